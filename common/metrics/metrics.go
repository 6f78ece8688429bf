package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine counters exposed on the metrics endpoint.
// All metrics are namespaced with "nexum".
type Metrics struct {
	executionsStarted   prometheus.Counter
	executionsCompleted prometheus.Counter
	executionsFailed    prometheus.Counter
	tasksCompleted      prometheus.Counter
	tasksFailed         prometheus.Counter
	tasksRetried        prometheus.Counter

	registry prometheus.Registerer
}

// New creates and registers the engine metrics with the provided
// registry. Pass a fresh prometheus.NewRegistry() per server instance
// so tests can run servers side by side.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		executionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "nexum",
			Name:      "executions_started_total",
			Help:      "Workflow executions started, including sub-workflow executions",
		}),
		executionsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "nexum",
			Name:      "executions_completed_total",
			Help:      "Workflow executions that reached COMPLETED",
		}),
		executionsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "nexum",
			Name:      "executions_failed_total",
			Help:      "Workflow executions that reached FAILED",
		}),
		tasksCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "nexum",
			Name:      "tasks_completed_total",
			Help:      "Tasks reported complete by workers",
		}),
		tasksFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "nexum",
			Name:      "tasks_failed_total",
			Help:      "Tasks that exhausted their retry budget",
		}),
		tasksRetried: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "nexum",
			Name:      "tasks_retried_total",
			Help:      "Task retry attempts scheduled after worker failures",
		}),
	}
}

func (m *Metrics) ExecutionStarted()   { m.executionsStarted.Inc() }
func (m *Metrics) ExecutionCompleted() { m.executionsCompleted.Inc() }
func (m *Metrics) ExecutionFailed()    { m.executionsFailed.Inc() }
func (m *Metrics) TaskCompleted()      { m.tasksCompleted.Inc() }
func (m *Metrics) TaskFailed()         { m.tasksFailed.Inc() }
func (m *Metrics) TaskRetried()        { m.tasksRetried.Inc() }

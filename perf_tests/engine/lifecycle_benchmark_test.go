package engine_test

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kuro6061/nexum/common/client"
)

// Configuration from environment
var (
	serverURL   = getEnv("NEXUM_SERVER", "http://localhost:50051")
	numCalls    = getEnvInt("PERF_NUM_CALLS", 1000)
	concurrency = getEnvInt("PERF_CONCURRENCY", 10)
)

const benchIR = `{"nodes": {"work": {"type": "COMPUTE"}}}`

// requireServer skips the benchmark when no server is listening.
func requireServer(tb testing.TB) *client.Client {
	tb.Helper()
	api := client.New(serverURL)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := api.Health(ctx); err != nil {
		tb.Skip("nexum-server not running")
	}
	return api
}

// registerBenchWorkflow registers a fresh single-node workflow so runs
// never contend with leftovers from earlier invocations.
func registerBenchWorkflow(tb testing.TB, api *client.Client) (workflowID, versionHash string) {
	tb.Helper()
	stamp := time.Now().UnixNano()
	workflowID = fmt.Sprintf("perf-wf-%d", stamp)
	versionHash = fmt.Sprintf("perf-v-%d", stamp)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := api.RegisterWorkflow(ctx, workflowID, versionHash, benchIR); err != nil {
		tb.Fatalf("failed to register benchmark workflow: %v", err)
	}
	return workflowID, versionHash
}

// BenchmarkExecutionLifecycle measures the full start -> poll -> complete
// round trip for a single-node workflow.
//
// Usage:
//
//	NEXUM_SERVER=http://localhost:50051 go test -bench=BenchmarkExecutionLifecycle -benchtime=1000x
//
// Metrics: ops/sec, ms/op
func BenchmarkExecutionLifecycle(b *testing.B) {
	api := requireServer(b)
	workflowID, versionHash := registerBenchWorkflow(b, api)
	ctx := context.Background()

	b.Logf("Benchmarking execution lifecycle: %d iterations", b.N)
	b.Logf("  Workflow: %s", workflowID)
	b.Logf("  Server:   %s", serverURL)

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := api.StartExecution(ctx, workflowID, versionHash, `{"i": 1}`); err != nil {
			b.Fatalf("StartExecution failed: %v", err)
		}
		task, err := api.PollTask(ctx, "perf-worker", versionHash)
		if err != nil {
			b.Fatalf("PollTask failed: %v", err)
		}
		if task == nil {
			b.Fatal("expected a ready task, queue was empty")
		}
		if err := api.CompleteTask(ctx, task.TaskID, `{"done": true}`); err != nil {
			b.Fatalf("CompleteTask failed: %v", err)
		}
	}

	b.StopTimer()

	elapsed := b.Elapsed()
	b.ReportMetric(float64(b.N)/elapsed.Seconds(), "ops/sec")
	b.ReportMetric(float64(elapsed.Nanoseconds()/int64(b.N))/1e6, "ms/op")
}

// BenchmarkPollEmptyQueue measures the poll hot path when no work is
// ready, the steady state of an idle worker fleet.
func BenchmarkPollEmptyQueue(b *testing.B) {
	api := requireServer(b)
	_, versionHash := registerBenchWorkflow(b, api)
	ctx := context.Background()

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		task, err := api.PollTask(ctx, "perf-worker", versionHash)
		if err != nil {
			b.Fatalf("PollTask failed: %v", err)
		}
		if task != nil {
			b.Fatalf("expected empty queue, got task %s", task.TaskID)
		}
	}

	b.StopTimer()

	elapsed := b.Elapsed()
	b.ReportMetric(float64(b.N)/elapsed.Seconds(), "ops/sec")
}

// TestConcurrentWorkerDrain starts PERF_NUM_CALLS executions and drains
// them with PERF_CONCURRENCY competing workers, exercising the lease
// path under contention.
func TestConcurrentWorkerDrain(t *testing.T) {
	api := requireServer(t)
	workflowID, versionHash := registerBenchWorkflow(t, api)
	ctx := context.Background()

	t.Logf("Concurrent drain test:")
	t.Logf("  Executions:  %d", numCalls)
	t.Logf("  Concurrency: %d", concurrency)
	t.Logf("  Workflow:    %s", workflowID)
	t.Logf("  Server:      %s", serverURL)

	for i := 0; i < numCalls; i++ {
		if _, err := api.StartExecution(ctx, workflowID, versionHash, `{"i": 1}`); err != nil {
			t.Fatalf("StartExecution failed: %v", err)
		}
	}

	start := time.Now()
	var completed int64
	doneChan := make(chan workerStats, concurrency)

	for w := 0; w < concurrency; w++ {
		go func(workerID int) {
			stats := workerStats{workerID: workerID}
			worker := fmt.Sprintf("perf-worker-%d", workerID)
			workerStart := time.Now()

			for atomic.LoadInt64(&completed) < int64(numCalls) {
				reqStart := time.Now()

				task, err := api.PollTask(ctx, worker, versionHash)
				if err != nil {
					stats.errors++
					continue
				}
				if task == nil {
					// Another worker may still be finishing; re-check the count.
					time.Sleep(10 * time.Millisecond)
					continue
				}
				if err := api.CompleteTask(ctx, task.TaskID, `{"done": true}`); err != nil {
					stats.errors++
					continue
				}
				atomic.AddInt64(&completed, 1)

				reqDuration := time.Since(reqStart)
				stats.totalCalls++
				stats.totalLatency += reqDuration
				if reqDuration < stats.minLatency || stats.minLatency == 0 {
					stats.minLatency = reqDuration
				}
				if reqDuration > stats.maxLatency {
					stats.maxLatency = reqDuration
				}
			}

			stats.duration = time.Since(workerStart)
			doneChan <- stats
		}(w)
	}

	// Collect results
	var totalStats workerStats
	for i := 0; i < concurrency; i++ {
		stats := <-doneChan
		totalStats.totalCalls += stats.totalCalls
		totalStats.totalLatency += stats.totalLatency
		totalStats.errors += stats.errors

		if stats.minLatency < totalStats.minLatency || totalStats.minLatency == 0 {
			totalStats.minLatency = stats.minLatency
		}
		if stats.maxLatency > totalStats.maxLatency {
			totalStats.maxLatency = stats.maxLatency
		}
	}

	elapsed := time.Since(start)

	if totalStats.totalCalls == 0 {
		t.Fatalf("No tasks completed. Errors: %d", totalStats.errors)
	}

	opsPerSec := float64(totalStats.totalCalls) / elapsed.Seconds()
	avgLatency := totalStats.totalLatency / time.Duration(totalStats.totalCalls)

	t.Logf("\n========================================")
	t.Logf("Performance Results:")
	t.Logf("========================================")
	t.Logf("Tasks completed: %d", totalStats.totalCalls)
	t.Logf("Errors:          %d", totalStats.errors)
	t.Logf("Duration:        %s", elapsed)
	t.Logf("Throughput:      %.2f tasks/sec", opsPerSec)
	t.Logf("\nPoll+complete latency:")
	t.Logf("  Min:     %s", totalStats.minLatency)
	t.Logf("  Average: %s", avgLatency)
	t.Logf("  Max:     %s", totalStats.maxLatency)
	t.Logf("========================================\n")
}

type workerStats struct {
	workerID     int
	totalCalls   int
	totalLatency time.Duration
	minLatency   time.Duration
	maxLatency   time.Duration
	errors       int
	duration     time.Duration
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

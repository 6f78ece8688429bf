package models

import (
	"github.com/kuro6061/nexum/common/db"
)

// ExecutionStatus represents the lifecycle state of a workflow execution
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "RUNNING"
	ExecutionCompleted ExecutionStatus = "COMPLETED"
	ExecutionFailed    ExecutionStatus = "FAILED"
	ExecutionCancelled ExecutionStatus = "CANCELLED"
)

// TaskStatus represents the lifecycle state of a queued task
type TaskStatus string

const (
	TaskReady     TaskStatus = "READY"
	TaskRunning   TaskStatus = "RUNNING"
	TaskDone      TaskStatus = "DONE"
	TaskFailed    TaskStatus = "FAILED"
	TaskCancelled TaskStatus = "CANCELLED"
)

// ApprovalStatus tracks HUMAN_APPROVAL gates on a task
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// Event types appended to the per-execution log
const (
	EventNodeCompleted      = "NodeCompleted"
	EventNodeFailed         = "NodeFailed"
	EventExecutionCancelled = "ExecutionCancelled"
)

// Node types understood by the engine. MAP_SUBTASK is engine-internal:
// it never appears in a registered IR, only on fan-out task rows.
const (
	NodeCompute       = "COMPUTE"
	NodeEffect        = "EFFECT"
	NodeReduce        = "REDUCE"
	NodeRouter        = "ROUTER"
	NodeMap           = "MAP"
	NodeTimer         = "TIMER"
	NodeHumanApproval = "HUMAN_APPROVAL"
	NodeSubWorkflow   = "SUBWORKFLOW"
	NodeMapSubtask    = "MAP_SUBTASK"
)

// Execution represents one run of a workflow version.
// Maps to: workflow_executions table
type Execution struct {
	ExecutionID string          `db:"execution_id" json:"execution_id"`
	WorkflowID  string          `db:"workflow_id" json:"workflow_id"`
	VersionHash string          `db:"version_hash" json:"version_hash"`
	Status      ExecutionStatus `db:"status" json:"status"`
	InputJSON   string          `db:"input_json" json:"input_json"`

	// Set only on child executions started by a SUBWORKFLOW node.
	ParentExecutionID string `db:"parent_execution_id" json:"parent_execution_id,omitempty"`
	ParentNodeID      string `db:"parent_node_id" json:"parent_node_id,omitempty"`

	CreatedAt db.Time `db:"created_at" json:"created_at"`
}

// Event is one entry in an execution's append-only log. SequenceID is
// dense and unique per execution.
// Maps to: events table
type Event struct {
	EventID     string  `db:"event_id" json:"event_id"`
	ExecutionID string  `db:"execution_id" json:"execution_id"`
	SequenceID  int64   `db:"sequence_id" json:"sequence_id"`
	EventType   string  `db:"event_type" json:"event_type"`
	Payload     string  `db:"payload" json:"payload"`
	CreatedAt   db.Time `db:"created_at" json:"created_at"`
}

// NodeCompletedPayload is the payload of a NodeCompleted event. Output
// may be a claim-check pointer when the raw output was offloaded.
type NodeCompletedPayload struct {
	NodeID string `json:"node_id"`
	Output any    `json:"output"`
}

// NodeFailedPayload is the payload of a NodeFailed event. FinalRetry is
// omitted for approval rejections.
type NodeFailedPayload struct {
	NodeID     string `json:"node_id"`
	Error      string `json:"error"`
	FinalRetry *int   `json:"final_retry,omitempty"`
}

// Task is one unit of work in the queue. A task is leased to a worker by
// the conditional READY→RUNNING update; the idempotency key makes enqueues
// safe to repeat.
// Maps to: task_queue table
type Task struct {
	TaskID         string     `db:"task_id" json:"task_id"`
	ExecutionID    string     `db:"execution_id" json:"execution_id"`
	NodeID         string     `db:"node_id" json:"node_id"`
	VersionHash    string     `db:"version_hash" json:"version_hash"`
	IdempotencyKey string     `db:"idempotency_key" json:"idempotency_key"`
	Status         TaskStatus `db:"status" json:"status"`
	NodeType       string     `db:"node_type" json:"node_type,omitempty"`
	InputJSON      string     `db:"input_json" json:"input_json,omitempty"`

	// Lease
	LockedBy   string  `db:"locked_by" json:"locked_by,omitempty"`
	LockedAt   db.Time `db:"locked_at" json:"locked_at,omitempty"`
	RetryCount int     `db:"retry_count" json:"retry_count"`

	ScheduledAt db.Time `db:"scheduled_at" json:"scheduled_at"`

	// MAP fan-out bookkeeping (MAP_SUBTASK rows only)
	MapItemJSON     string `db:"map_item_json" json:"map_item_json,omitempty"`
	MapIndex        int    `db:"map_index" json:"map_index,omitempty"`
	MapTotal        int    `db:"map_total" json:"map_total,omitempty"`
	MapParentNodeID string `db:"map_parent_node_id" json:"map_parent_node_id,omitempty"`

	// SUBWORKFLOW coupling (set once the child execution starts)
	SubExecutionID string `db:"sub_execution_id" json:"sub_execution_id,omitempty"`
	SubWorkflowID  string `db:"sub_workflow_id" json:"sub_workflow_id,omitempty"`
	SubInputJSON   string `db:"sub_input_json" json:"sub_input_json,omitempty"`

	// HUMAN_APPROVAL gate
	ApprovalStatus  string `db:"approval_status" json:"approval_status,omitempty"`
	Approver        string `db:"approver" json:"approver,omitempty"`
	ApprovalComment string `db:"approval_comment" json:"approval_comment,omitempty"`
}

// WorkflowVersion is one registered (workflow_id, version_hash) pair with
// its IR and the compatibility verdict recorded at registration time.
// Maps to: workflow_versions table
type WorkflowVersion struct {
	WorkflowID    string  `db:"workflow_id" json:"workflow_id"`
	VersionHash   string  `db:"version_hash" json:"version_hash"`
	IRJSON        string  `db:"ir_json" json:"ir_json"`
	Compatibility string  `db:"compatibility" json:"compatibility"`
	RegisteredAt  db.Time `db:"registered_at" json:"registered_at"`
}

// MapResult stages one MAP item result for fan-in. The sentinel row with
// item_index = -1 marks the fan-in as claimed.
// Maps to: map_results table
type MapResult struct {
	ExecutionID string `db:"execution_id" json:"execution_id"`
	MapNodeID   string `db:"map_node_id" json:"map_node_id"`
	ItemIndex   int    `db:"item_index" json:"item_index"`
	ResultJSON  string `db:"result_json" json:"result_json"`
}

// PendingApproval is one HUMAN_APPROVAL gate awaiting a decision,
// joined to its workflow for display.
type PendingApproval struct {
	ExecutionID string  `db:"execution_id" json:"execution_id"`
	NodeID      string  `db:"node_id" json:"node_id"`
	WorkflowID  string  `db:"workflow_id" json:"workflow_id"`
	StartedAt   db.Time `db:"started_at" json:"started_at"`
}

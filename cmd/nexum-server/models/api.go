package models

// Wire types for the control-plane API. Field names are the wire names;
// timestamps travel as RFC3339 strings.

// RegisterWorkflowRequest registers one IR version.
type RegisterWorkflowRequest struct {
	WorkflowID  string `json:"workflow_id"`
	VersionHash string `json:"version_hash"`
	IRJSON      string `json:"ir_json"`
}

// RegisterWorkflowResponse carries the compatibility advisory.
type RegisterWorkflowResponse struct {
	OK            bool   `json:"ok"`
	Compatibility string `json:"compatibility"`
	Message       string `json:"message"`
}

// ListVersionsResponse is the version catalogue of one workflow.
type ListVersionsResponse struct {
	Versions []VersionSummary `json:"versions"`
}

// VersionSummary is one row of the version catalogue.
type VersionSummary struct {
	WorkflowID       string `json:"workflow_id"`
	VersionHash      string `json:"version_hash"`
	Compatibility    string `json:"compatibility"`
	RegisteredAt     string `json:"registered_at"`
	ActiveExecutions int    `json:"active_executions"`
}

// StartExecutionRequest starts a run of a registered version.
type StartExecutionRequest struct {
	WorkflowID  string `json:"workflow_id"`
	VersionHash string `json:"version_hash"`
	InputJSON   string `json:"input_json"`
}

// StartExecutionResponse returns the new execution's ID.
type StartExecutionResponse struct {
	ExecutionID string `json:"execution_id"`
}

// ListExecutionsResponse lists executions, newest first.
type ListExecutionsResponse struct {
	Executions []ExecutionSummary `json:"executions"`
}

// ExecutionSummary is one row of an execution listing.
type ExecutionSummary struct {
	ExecutionID string `json:"execution_id"`
	WorkflowID  string `json:"workflow_id"`
	VersionHash string `json:"version_hash"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
}

// GetStatusResponse is the detailed view of one execution.
// CompletedNodesJSON maps node_id to its recorded output.
type GetStatusResponse struct {
	Status             string `json:"status"`
	CompletedNodesJSON string `json:"completed_nodes_json"`
}

// AckResponse acknowledges a state-changing call.
type AckResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// PollTaskRequest leases one ready task for a worker.
type PollTaskRequest struct {
	WorkerID    string `json:"worker_id"`
	VersionHash string `json:"version_hash"`
}

// PollTaskResponse is the leased task, or has_task=false when the queue
// has nothing ready. For MAP subtasks node_id carries the parent MAP
// node and map_item_json the assigned item.
type PollTaskResponse struct {
	HasTask        bool   `json:"has_task"`
	TaskID         string `json:"task_id,omitempty"`
	ExecutionID    string `json:"execution_id,omitempty"`
	NodeID         string `json:"node_id,omitempty"`
	InputJSON      string `json:"input_json,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	NodeType       string `json:"node_type,omitempty"`
	MapItemJSON    string `json:"map_item_json,omitempty"`
	IsMapSubtask   bool   `json:"is_map_subtask,omitempty"`
	MapIndex       int    `json:"map_index,omitempty"`
	MapTotal       int    `json:"map_total,omitempty"`
	SubExecutionID string `json:"sub_execution_id,omitempty"`
	SubWorkflowID  string `json:"sub_workflow_id,omitempty"`
	SubInputJSON   string `json:"sub_input_json,omitempty"`
}

// CompleteTaskRequest reports a task's output.
type CompleteTaskRequest struct {
	OutputJSON string `json:"output_json"`
}

// FailTaskRequest reports a task failure.
type FailTaskRequest struct {
	ErrorMessage string `json:"error_message"`
}

// ApproveTaskRequest resolves a HUMAN_APPROVAL gate positively.
type ApproveTaskRequest struct {
	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id"`
	Approver    string `json:"approver"`
	Comment     string `json:"comment"`
}

// RejectTaskRequest resolves a HUMAN_APPROVAL gate negatively.
type RejectTaskRequest struct {
	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id"`
	Approver    string `json:"approver"`
	Reason      string `json:"reason"`
}

// PendingApprovalsResponse lists approval gates awaiting a decision.
type PendingApprovalsResponse struct {
	Approvals []PendingApprovalSummary `json:"approvals"`
}

// PendingApprovalSummary is one pending HUMAN_APPROVAL gate.
type PendingApprovalSummary struct {
	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id"`
	WorkflowID  string `json:"workflow_id"`
	StartedAt   string `json:"started_at"`
}

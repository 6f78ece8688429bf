package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client talks to the Nexum control-plane API. It is transport only;
// callers decide what to log and how to render responses.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the server at baseURL (e.g. http://localhost:50051).
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// RegisterWorkflowResponse is the advisory returned by workflow registration.
type RegisterWorkflowResponse struct {
	OK            bool   `json:"ok"`
	Compatibility string `json:"compatibility"`
	Message       string `json:"message"`
}

// WorkflowVersion is one row of the version catalogue.
type WorkflowVersion struct {
	WorkflowID       string `json:"workflow_id"`
	VersionHash      string `json:"version_hash"`
	Compatibility    string `json:"compatibility"`
	RegisteredAt     string `json:"registered_at"`
	ActiveExecutions int    `json:"active_executions"`
}

// Execution is one row of an execution listing.
type Execution struct {
	ExecutionID string `json:"execution_id"`
	WorkflowID  string `json:"workflow_id"`
	VersionHash string `json:"version_hash"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
}

// ExecutionStatus is the detailed view of a single execution.
type ExecutionStatus struct {
	Status             string `json:"status"`
	CompletedNodesJSON string `json:"completed_nodes_json"`
}

// Task is a leased unit of work returned by PollTask.
type Task struct {
	TaskID         string `json:"task_id"`
	ExecutionID    string `json:"execution_id"`
	NodeID         string `json:"node_id"`
	InputJSON      string `json:"input_json"`
	IdempotencyKey string `json:"idempotency_key"`
	NodeType       string `json:"node_type"`
	MapItemJSON    string `json:"map_item_json"`
	IsMapSubtask   bool   `json:"is_map_subtask"`
	MapIndex       int    `json:"map_index"`
	MapTotal       int    `json:"map_total"`
	SubExecutionID string `json:"sub_execution_id"`
	SubWorkflowID  string `json:"sub_workflow_id"`
	SubInputJSON   string `json:"sub_input_json"`
}

// Approval is one pending HUMAN_APPROVAL gate.
type Approval struct {
	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id"`
	WorkflowID  string `json:"workflow_id"`
	StartedAt   string `json:"started_at"`
}

// RegisterWorkflow registers an IR version and returns the compatibility advisory.
func (c *Client) RegisterWorkflow(ctx context.Context, workflowID, versionHash, irJSON string) (*RegisterWorkflowResponse, error) {
	req := map[string]string{
		"workflow_id":  workflowID,
		"version_hash": versionHash,
		"ir_json":      irJSON,
	}
	var resp RegisterWorkflowResponse
	if err := c.post(ctx, "/api/v1/workflows", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListVersions fetches the version catalogue for a workflow.
func (c *Client) ListVersions(ctx context.Context, workflowID string) ([]WorkflowVersion, error) {
	var resp struct {
		Versions []WorkflowVersion `json:"versions"`
	}
	path := fmt.Sprintf("/api/v1/workflows/%s/versions", url.PathEscape(workflowID))
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Versions, nil
}

// StartExecution starts a run of a registered workflow version.
func (c *Client) StartExecution(ctx context.Context, workflowID, versionHash, inputJSON string) (string, error) {
	req := map[string]string{
		"workflow_id":  workflowID,
		"version_hash": versionHash,
		"input_json":   inputJSON,
	}
	var resp struct {
		ExecutionID string `json:"execution_id"`
	}
	if err := c.post(ctx, "/api/v1/executions", req, &resp); err != nil {
		return "", err
	}
	return resp.ExecutionID, nil
}

// ListExecutions lists executions, optionally filtered by workflow and status.
// A limit of 0 uses the server default.
func (c *Client) ListExecutions(ctx context.Context, workflowID, status string, limit int) ([]Execution, error) {
	q := url.Values{}
	if workflowID != "" {
		q.Set("workflow_id", workflowID)
	}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/v1/executions"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp struct {
		Executions []Execution `json:"executions"`
	}
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Executions, nil
}

// GetStatus fetches the status and completed-node outputs of an execution.
func (c *Client) GetStatus(ctx context.Context, executionID string) (*ExecutionStatus, error) {
	var resp ExecutionStatus
	path := fmt.Sprintf("/api/v1/executions/%s", url.PathEscape(executionID))
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CancelExecution cancels an execution and its live tasks.
func (c *Client) CancelExecution(ctx context.Context, executionID string) (string, error) {
	var resp struct {
		OK      bool   `json:"ok"`
		Message string `json:"message"`
	}
	path := fmt.Sprintf("/api/v1/executions/%s/cancel", url.PathEscape(executionID))
	if err := c.post(ctx, path, struct{}{}, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// PollTask leases one ready task for the given worker. Returns nil when
// no task is available.
func (c *Client) PollTask(ctx context.Context, workerID, versionHash string) (*Task, error) {
	req := map[string]string{
		"worker_id":    workerID,
		"version_hash": versionHash,
	}
	var resp struct {
		HasTask bool `json:"has_task"`
		Task
	}
	if err := c.post(ctx, "/api/v1/tasks/poll", req, &resp); err != nil {
		return nil, err
	}
	if !resp.HasTask {
		return nil, nil
	}
	task := resp.Task
	return &task, nil
}

// CompleteTask reports a task's output.
func (c *Client) CompleteTask(ctx context.Context, taskID, outputJSON string) error {
	req := map[string]string{"output_json": outputJSON}
	path := fmt.Sprintf("/api/v1/tasks/%s/complete", url.PathEscape(taskID))
	return c.post(ctx, path, req, nil)
}

// FailTask reports a task failure; the server decides retry vs terminal.
func (c *Client) FailTask(ctx context.Context, taskID, errorMessage string) error {
	req := map[string]string{"error_message": errorMessage}
	path := fmt.Sprintf("/api/v1/tasks/%s/fail", url.PathEscape(taskID))
	return c.post(ctx, path, req, nil)
}

// ApproveTask resolves a pending HUMAN_APPROVAL gate positively.
func (c *Client) ApproveTask(ctx context.Context, executionID, nodeID, approver, comment string) (string, error) {
	req := map[string]string{
		"execution_id": executionID,
		"node_id":      nodeID,
		"approver":     approver,
		"comment":      comment,
	}
	var resp struct {
		OK      bool   `json:"ok"`
		Message string `json:"message"`
	}
	if err := c.post(ctx, "/api/v1/approvals/approve", req, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// RejectTask resolves a pending HUMAN_APPROVAL gate negatively, failing
// the execution.
func (c *Client) RejectTask(ctx context.Context, executionID, nodeID, approver, reason string) (string, error) {
	req := map[string]string{
		"execution_id": executionID,
		"node_id":      nodeID,
		"approver":     approver,
		"reason":       reason,
	}
	var resp struct {
		OK      bool   `json:"ok"`
		Message string `json:"message"`
	}
	if err := c.post(ctx, "/api/v1/approvals/reject", req, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// PendingApprovals lists HUMAN_APPROVAL tasks waiting for a decision.
func (c *Client) PendingApprovals(ctx context.Context) ([]Approval, error) {
	var resp struct {
		Approvals []Approval `json:"approvals"`
	}
	if err := c.get(ctx, "/api/v1/approvals", &resp); err != nil {
		return nil, err
	}
	return resp.Approvals, nil
}

// Health reports whether the server is reachable and answering.
func (c *Client) Health(ctx context.Context) error {
	var resp map[string]string
	return c.get(ctx, "/health", &resp)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		// The API wraps errors as {"error": "..."}; surface the message
		// when it parses, the raw body otherwise.
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (status=%d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("request failed: status=%d, body=%s", resp.StatusCode, string(body))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

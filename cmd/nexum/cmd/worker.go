package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/kuro6061/nexum/common/client"
	"github.com/kuro6061/nexum/common/condition"
	"github.com/kuro6061/nexum/common/ratelimit"
)

// devWorker is a generic worker for local development. It runs no user
// handlers: COMPUTE, EFFECT and REDUCE tasks echo their hydrated input,
// ROUTER decisions are evaluated from the registered IR's route
// conditions, MAP coordinators fan out the first array-valued
// dependency, and SUBWORKFLOW coordinators start the child named in the
// IR. HUMAN_APPROVAL tasks are left for nexum approve / nexum reject.
type devWorker struct {
	api      *client.Client
	workerID string
	limiter  *ratelimit.PollLimiter

	// irs maps version hash to parsed IR for workflows registered via
	// --ir. Populated before Run starts, read-only afterwards.
	irs map[string]irDoc
}

// irDoc is the slice of the IR document the dev worker reads: node
// types, route conditions and child workflow names. Everything else in
// the IR belongs to the server.
type irDoc struct {
	Nodes map[string]irNode `json:"nodes"`
}

type irNode struct {
	Type          string    `json:"type"`
	SubWorkflowID string    `json:"subWorkflowId"`
	Routes        []irRoute `json:"routes"`
}

type irRoute struct {
	Condition string `json:"condition"`
	Target    string `json:"target"`
}

func newDevWorker(api *client.Client, pollRate float64) *devWorker {
	return &devWorker{
		api:      api,
		workerID: fmt.Sprintf("dev-worker-%d", os.Getpid()),
		limiter:  ratelimit.NewPollLimiter(pollRate),
		irs:      make(map[string]irDoc),
	}
}

// registerWorkflowFile registers one IR file with the server and keeps
// the parsed document for ROUTER and SUBWORKFLOW decisions. The workflow
// ID is the file stem; the version hash is content-derived.
func (w *devWorker) registerWorkflowFile(ctx context.Context, path string) error {
	irJSON, versionHash, err := loadIRFile(path)
	if err != nil {
		return err
	}
	workflowID := workflowIDFromPath(path)

	resp, err := w.api.RegisterWorkflow(ctx, workflowID, versionHash, irJSON)
	if err != nil {
		return fmt.Errorf("failed to register %s: %w", workflowID, err)
	}

	var ir irDoc
	if err := json.Unmarshal([]byte(irJSON), &ir); err != nil {
		return fmt.Errorf("invalid IR in %s: %w", path, err)
	}
	w.irs[versionHash] = ir

	fmt.Printf("Registered %s version %s (%s)\n", workflowID, versionHash, resp.Compatibility)
	return nil
}

// Run polls for tasks until ctx is cancelled, sleeping briefly when no
// work is available.
func (w *devWorker) Run(ctx context.Context) {
	fmt.Printf("Dev worker %s polling for tasks ...\n", w.workerID)
	for ctx.Err() == nil {
		task, versionHash, err := w.pollOnce(ctx)
		if err != nil || task == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}
		w.handle(ctx, task, versionHash)
	}
}

// pollOnce tries each known version hash in turn and returns the first
// leased task, or nil when every queue is empty.
func (w *devWorker) pollOnce(ctx context.Context) (*client.Task, string, error) {
	hashes, err := w.versionHashes(ctx)
	if err != nil {
		return nil, "", err
	}
	for _, hash := range hashes {
		if err := w.limiter.Wait(ctx, w.workerID); err != nil {
			return nil, "", err
		}
		task, err := w.api.PollTask(ctx, w.workerID, hash)
		if err != nil {
			return nil, "", err
		}
		if task != nil {
			return task, hash, nil
		}
	}
	return nil, "", nil
}

// versionHashes returns the hashes to poll: registered IRs first, then
// any other version with running executions, so the worker also drains
// workflows registered by other clients.
func (w *devWorker) versionHashes(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool, len(w.irs))
	hashes := make([]string, 0, len(w.irs))
	for hash := range w.irs {
		seen[hash] = true
		hashes = append(hashes, hash)
	}
	sort.Strings(hashes)

	executions, err := w.api.ListExecutions(ctx, "", "RUNNING", 50)
	if err != nil {
		return nil, err
	}
	for _, e := range executions {
		if !seen[e.VersionHash] {
			seen[e.VersionHash] = true
			hashes = append(hashes, e.VersionHash)
		}
	}
	return hashes, nil
}

func (w *devWorker) handle(ctx context.Context, task *client.Task, versionHash string) {
	output, skip, err := w.execute(task, versionHash)
	if err != nil {
		if failErr := w.api.FailTask(ctx, task.TaskID, err.Error()); failErr != nil {
			fmt.Printf("[dev-worker] %s %s: fail report error: %v\n", task.ExecutionID, task.NodeID, failErr)
			return
		}
		fmt.Printf("[dev-worker] %s %s: failed: %v\n", task.ExecutionID, task.NodeID, err)
		return
	}
	if skip {
		fmt.Printf("[dev-worker] %s %s: waiting for approval (nexum approve %s:%s)\n",
			task.ExecutionID, task.NodeID, task.ExecutionID, task.NodeID)
		return
	}
	if err := w.api.CompleteTask(ctx, task.TaskID, output); err != nil {
		fmt.Printf("[dev-worker] %s %s: complete error: %v\n", task.ExecutionID, task.NodeID, err)
		return
	}
	fmt.Printf("[dev-worker] %s %s: done\n", task.ExecutionID, task.NodeID)
}

// execute produces the output for one task. skip means the task was
// intentionally left running (approval gates).
func (w *devWorker) execute(task *client.Task, versionHash string) (output string, skip bool, err error) {
	if task.IsMapSubtask {
		item := task.MapItemJSON
		if item == "" {
			item = "null"
		}
		return fmt.Sprintf(`{"item": %s, "index": %d}`, item, task.MapIndex), false, nil
	}

	switch task.NodeType {
	case "HUMAN_APPROVAL":
		return "", true, nil
	case "ROUTER":
		output, err = w.route(task, versionHash)
	case "MAP":
		output, err = fanOutItems(task)
	case "SUBWORKFLOW":
		output, err = w.childSpec(task, versionHash)
	default:
		output, err = echoTask(task)
	}
	return output, false, err
}

// route evaluates the node's route conditions against the hydrated task
// input; the first condition that holds picks the target.
func (w *devWorker) route(task *client.Task, versionHash string) (string, error) {
	ir, ok := w.irs[versionHash]
	if !ok {
		return "", fmt.Errorf("no IR loaded for version %s: register it with --ir", versionHash)
	}
	node, ok := ir.Nodes[task.NodeID]
	if !ok {
		return "", fmt.Errorf("node %s not found in IR", task.NodeID)
	}
	for _, r := range node.Routes {
		if condition.Evaluate(r.Condition, task.InputJSON) {
			out, err := json.Marshal(map[string]string{"routed_to": r.Target})
			if err != nil {
				return "", err
			}
			return string(out), nil
		}
	}
	return "", fmt.Errorf("no route condition matched for node %s", task.NodeID)
}

// fanOutItems picks the item array for a MAP coordinator: the first
// array-valued dependency in key order, the execution input if that is
// an array, or an empty fan-out.
func fanOutItems(task *client.Task) (string, error) {
	var input struct {
		Input json.RawMessage            `json:"input"`
		Deps  map[string]json.RawMessage `json:"deps"`
	}
	if err := json.Unmarshal([]byte(task.InputJSON), &input); err != nil {
		return "", fmt.Errorf("malformed task input: %w", err)
	}

	depIDs := make([]string, 0, len(input.Deps))
	for depID := range input.Deps {
		depIDs = append(depIDs, depID)
	}
	sort.Strings(depIDs)
	for _, depID := range depIDs {
		if isJSONArray(input.Deps[depID]) {
			return string(input.Deps[depID]), nil
		}
	}
	if isJSONArray(input.Input) {
		return string(input.Input), nil
	}
	return "[]", nil
}

// childSpec builds the SUBWORKFLOW coordinator output from the IR's
// subWorkflowId, passing the parent's input through as the child input.
func (w *devWorker) childSpec(task *client.Task, versionHash string) (string, error) {
	ir, ok := w.irs[versionHash]
	if !ok {
		return "", fmt.Errorf("no IR loaded for version %s: register it with --ir", versionHash)
	}
	node := ir.Nodes[task.NodeID]
	if node.SubWorkflowID == "" {
		return "", fmt.Errorf("node %s has no subWorkflowId in its IR", task.NodeID)
	}

	childInput := json.RawMessage("null")
	var input struct {
		Input json.RawMessage `json:"input"`
	}
	if err := json.Unmarshal([]byte(task.InputJSON), &input); err == nil && len(input.Input) > 0 {
		childInput = input.Input
	}

	out, err := json.Marshal(struct {
		SubWorkflowID string          `json:"subWorkflowId"`
		ChildInput    json.RawMessage `json:"childInput"`
	}{node.SubWorkflowID, childInput})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// echoTask is the stand-in handler for COMPUTE, EFFECT and REDUCE nodes.
func echoTask(task *client.Task) (string, error) {
	input := task.InputJSON
	if input == "" {
		input = "null"
	}
	out, err := json.Marshal(struct {
		Node  string          `json:"node"`
		Input json.RawMessage `json:"input"`
	}{task.NodeID, json.RawMessage(input)})
	if err != nil {
		return "", fmt.Errorf("malformed task input: %w", err)
	}
	return string(out), nil
}

func isJSONArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '['
}

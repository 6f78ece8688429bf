package cmd

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuro6061/nexum/common/client"
)

func TestParseTaskID(t *testing.T) {
	execID, nodeID, err := parseTaskID("exec-123:approve-gate")
	require.NoError(t, err)
	assert.Equal(t, "exec-123", execID)
	assert.Equal(t, "approve-gate", nodeID)

	// Only the first colon splits, node IDs may contain more.
	execID, nodeID, err = parseTaskID("exec-123:ns:gate")
	require.NoError(t, err)
	assert.Equal(t, "exec-123", execID)
	assert.Equal(t, "ns:gate", nodeID)

	for _, bad := range []string{"", "exec-123", ":gate", "exec-123:"} {
		_, _, err := parseTaskID(bad)
		assert.Error(t, err, "task ID %q should not parse", bad)
	}
}

func TestFormatTimeAgo(t *testing.T) {
	assert.Equal(t, "unknown", formatTimeAgo(""))
	assert.Equal(t, "not a time", formatTimeAgo("not a time"))

	now := time.Now()
	assert.Equal(t, "30s ago", formatTimeAgo(now.Add(-30*time.Second).Format(time.RFC3339)))
	assert.Equal(t, "5m ago", formatTimeAgo(now.Add(-5*time.Minute).Format(time.RFC3339)))
	assert.Equal(t, "3h ago", formatTimeAgo(now.Add(-3*time.Hour).Format(time.RFC3339)))
	assert.Equal(t, "2d ago", formatTimeAgo(now.Add(-48*time.Hour).Format(time.RFC3339)))
}

func TestWorkflowIDFromPath(t *testing.T) {
	assert.Equal(t, "orders", workflowIDFromPath("workflows/orders.json"))
	assert.Equal(t, "orders", workflowIDFromPath("orders.json"))
	assert.Equal(t, "orders", workflowIDFromPath("orders"))
}

func TestLoadIRFile(t *testing.T) {
	irJSON := `{"nodes": {"a": {"type": "COMPUTE"}}}`
	path := filepath.Join(t.TempDir(), "orders.json")
	require.NoError(t, os.WriteFile(path, []byte(irJSON), 0o644))

	gotJSON, gotHash, err := loadIRFile(path)
	require.NoError(t, err)
	assert.Equal(t, irJSON, gotJSON)

	sum := sha256.Sum256([]byte(irJSON))
	assert.Equal(t, "sha256:"+hex.EncodeToString(sum[:]), gotHash)

	_, _, err = loadIRFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestDevWorkerEchoesComputeTasks(t *testing.T) {
	w := newDevWorker(nil, 0)

	output, skip, err := w.execute(&client.Task{
		NodeID:    "transform",
		NodeType:  "COMPUTE",
		InputJSON: `{"input": {"a": 1}, "deps": {}}`,
	}, "v1")
	require.NoError(t, err)
	assert.False(t, skip)

	var echoed struct {
		Node  string          `json:"node"`
		Input json.RawMessage `json:"input"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &echoed))
	assert.Equal(t, "transform", echoed.Node)
	assert.JSONEq(t, `{"input": {"a": 1}, "deps": {}}`, string(echoed.Input))
}

func TestDevWorkerSkipsApprovalGates(t *testing.T) {
	w := newDevWorker(nil, 0)

	output, skip, err := w.execute(&client.Task{
		NodeID:   "gate",
		NodeType: "HUMAN_APPROVAL",
	}, "v1")
	require.NoError(t, err)
	assert.True(t, skip)
	assert.Empty(t, output)
}

func TestDevWorkerRoutesFromIR(t *testing.T) {
	w := newDevWorker(nil, 0)
	w.irs["v1"] = irDoc{Nodes: map[string]irNode{
		"route": {
			Type: "ROUTER",
			Routes: []irRoute{
				{Condition: "input.x > 5", Target: "big"},
				{Condition: "true", Target: "small"},
			},
		},
	}}

	task := &client.Task{
		NodeID:    "route",
		NodeType:  "ROUTER",
		InputJSON: `{"input": {"x": 7}, "deps": {}}`,
	}
	output, skip, err := w.execute(task, "v1")
	require.NoError(t, err)
	assert.False(t, skip)
	assert.JSONEq(t, `{"routed_to": "big"}`, output)

	task.InputJSON = `{"input": {"x": 3}, "deps": {}}`
	output, _, err = w.execute(task, "v1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"routed_to": "small"}`, output)

	// Version the worker has no IR for: fail the task with a hint.
	_, _, err = w.execute(task, "v2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--ir")
}

func TestDevWorkerRouteWithoutMatchFails(t *testing.T) {
	w := newDevWorker(nil, 0)
	w.irs["v1"] = irDoc{Nodes: map[string]irNode{
		"route": {
			Type:   "ROUTER",
			Routes: []irRoute{{Condition: "input.x > 100", Target: "big"}},
		},
	}}

	_, _, err := w.execute(&client.Task{
		NodeID:    "route",
		NodeType:  "ROUTER",
		InputJSON: `{"input": {"x": 3}, "deps": {}}`,
	}, "v1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no route condition matched")
}

func TestDevWorkerFansOutFirstArrayDep(t *testing.T) {
	output, err := fanOutItems(&client.Task{
		NodeID:    "shard",
		NodeType:  "MAP",
		InputJSON: `{"input": {"n": 1}, "deps": {"b": [1,2], "a": {"k": 1}}}`,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `[1,2]`, output)

	output, err = fanOutItems(&client.Task{
		NodeID:    "shard",
		NodeType:  "MAP",
		InputJSON: `{"input": [5, 6], "deps": {}}`,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `[5, 6]`, output)

	output, err = fanOutItems(&client.Task{
		NodeID:    "shard",
		NodeType:  "MAP",
		InputJSON: `{"input": {"n": 1}, "deps": {}}`,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, output)
}

func TestDevWorkerMapSubtaskEchoesItem(t *testing.T) {
	w := newDevWorker(nil, 0)

	output, skip, err := w.execute(&client.Task{
		NodeID:       "shard",
		NodeType:     "MAP_SUBTASK",
		IsMapSubtask: true,
		MapIndex:     1,
		MapTotal:     3,
		MapItemJSON:  "42",
	}, "v1")
	require.NoError(t, err)
	assert.False(t, skip)
	assert.JSONEq(t, `{"item": 42, "index": 1}`, output)
}

func TestDevWorkerBuildsChildSpecFromIR(t *testing.T) {
	w := newDevWorker(nil, 0)
	w.irs["v1"] = irDoc{Nodes: map[string]irNode{
		"sub":  {Type: "SUBWORKFLOW", SubWorkflowID: "child-wf"},
		"bare": {Type: "SUBWORKFLOW"},
	}}

	output, skip, err := w.execute(&client.Task{
		NodeID:    "sub",
		NodeType:  "SUBWORKFLOW",
		InputJSON: `{"input": {"n": 5}, "deps": {}}`,
	}, "v1")
	require.NoError(t, err)
	assert.False(t, skip)
	assert.JSONEq(t, `{"subWorkflowId": "child-wf", "childInput": {"n": 5}}`, output)

	_, _, err = w.execute(&client.Task{
		NodeID:    "bare",
		NodeType:  "SUBWORKFLOW",
		InputJSON: `{"input": null, "deps": {}}`,
	}, "v1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subWorkflowId")
}

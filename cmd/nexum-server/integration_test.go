package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuro6061/nexum/cmd/nexum-server/container"
	"github.com/kuro6061/nexum/cmd/nexum-server/models"
	"github.com/kuro6061/nexum/cmd/nexum-server/routes"
	"github.com/kuro6061/nexum/common/bootstrap"
	"github.com/kuro6061/nexum/common/config"
	"github.com/kuro6061/nexum/common/db"
	"github.com/kuro6061/nexum/common/logger"
)

// testServer runs the full HTTP stack against an in-memory database.
type testServer struct {
	t      *testing.T
	url    string
	engine *container.Container
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	cfg, err := config.Load("nexum-server-test")
	require.NoError(t, err)
	cfg.Database.URL = "sqlite://:memory:"
	cfg.Blob.Backend = "fs"
	cfg.Blob.Dir = t.TempDir()

	components, err := bootstrap.Setup(ctx, "nexum-server-test",
		bootstrap.WithCustomConfig(cfg),
		bootstrap.WithCustomLogger(logger.New("error", "text")),
		bootstrap.WithoutTelemetry(),
		bootstrap.WithDBInitHook(func(database *db.DB) error {
			return database.Migrate()
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = components.Shutdown(ctx) })

	engine, err := container.NewContainer(ctx, components)
	require.NoError(t, err)

	e := setupEcho(components.Logger)
	routes.Register(e, engine)

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	return &testServer{t: t, url: srv.URL, engine: engine}
}

func (s *testServer) request(method, path string, body, out any) int {
	s.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, s.url+path, &buf)
	require.NoError(s.t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(s.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (s *testServer) post(path string, body, out any) int {
	return s.request(http.MethodPost, path, body, out)
}

func (s *testServer) get(path string, out any) int {
	return s.request(http.MethodGet, path, nil, out)
}

func (s *testServer) pollOne(versionHash string) *models.PollTaskResponse {
	s.t.Helper()
	var task models.PollTaskResponse
	code := s.post("/api/v1/tasks/poll", &models.PollTaskRequest{
		WorkerID:    "worker-it",
		VersionHash: versionHash,
	}, &task)
	require.Equal(s.t, http.StatusOK, code)
	return &task
}

func TestServerEndToEnd(t *testing.T) {
	s := newTestServer(t)

	linearIR := `{"nodes": {"a": {"type": "COMPUTE"}, "b": {"type": "COMPUTE", "dependencies": ["a"]}}}`

	var reg models.RegisterWorkflowResponse
	code := s.post("/api/v1/workflows", &models.RegisterWorkflowRequest{
		WorkflowID:  "orders",
		VersionHash: "v1",
		IRJSON:      linearIR,
	}, &reg)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, reg.OK)
	assert.Equal(t, "NEW", reg.Compatibility)

	var started models.StartExecutionResponse
	code = s.post("/api/v1/executions", &models.StartExecutionRequest{
		WorkflowID:  "orders",
		VersionHash: "v1",
		InputJSON:   `{"order": 42}`,
	}, &started)
	require.Equal(t, http.StatusOK, code)
	require.NotEmpty(t, started.ExecutionID)

	// Worker loop: drain both nodes over the wire.
	for _, want := range []string{"a", "b"} {
		task := s.pollOne("v1")
		require.True(t, task.HasTask)
		assert.Equal(t, want, task.NodeID)

		var ack models.AckResponse
		code = s.post("/api/v1/tasks/"+task.TaskID+"/complete", &models.CompleteTaskRequest{
			OutputJSON: `{"done": "` + want + `"}`,
		}, &ack)
		require.Equal(t, http.StatusOK, code)
		assert.True(t, ack.OK)
	}

	var status models.GetStatusResponse
	code = s.get("/api/v1/executions/"+started.ExecutionID, &status)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "COMPLETED", status.Status)

	var completed map[string]any
	require.NoError(t, json.Unmarshal([]byte(status.CompletedNodesJSON), &completed))
	assert.Len(t, completed, 2)

	var list models.ListExecutionsResponse
	code = s.get("/api/v1/executions?workflow_id=orders", &list)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, list.Executions, 1)
	assert.Equal(t, started.ExecutionID, list.Executions[0].ExecutionID)
	assert.Equal(t, "COMPLETED", list.Executions[0].Status)

	var versions models.ListVersionsResponse
	code = s.get("/api/v1/workflows/orders/versions", &versions)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, versions.Versions, 1)
	assert.Zero(t, versions.Versions[0].ActiveExecutions)
}

func TestServerRouterOverTheWire(t *testing.T) {
	s := newTestServer(t)

	routerIR := `{"nodes": {
		"r": {"type": "ROUTER", "routes": [
			{"condition": "x > 5", "target": "big"},
			{"condition": "x <= 5", "target": "small"}
		]},
		"big": {"type": "COMPUTE", "dependencies": ["r"]},
		"small": {"type": "COMPUTE", "dependencies": ["r"]}
	}}`
	code := s.post("/api/v1/workflows", &models.RegisterWorkflowRequest{
		WorkflowID: "routing", VersionHash: "r1", IRJSON: routerIR,
	}, nil)
	require.Equal(t, http.StatusOK, code)

	var started models.StartExecutionResponse
	code = s.post("/api/v1/executions", &models.StartExecutionRequest{
		WorkflowID: "routing", VersionHash: "r1", InputJSON: `{"x": 3}`,
	}, &started)
	require.Equal(t, http.StatusOK, code)

	router := s.pollOne("r1")
	require.True(t, router.HasTask)
	assert.Equal(t, "ROUTER", router.NodeType)

	code = s.post("/api/v1/tasks/"+router.TaskID+"/complete", &models.CompleteTaskRequest{
		OutputJSON: `{"routed_to": "small"}`,
	}, nil)
	require.Equal(t, http.StatusOK, code)

	target := s.pollOne("r1")
	require.True(t, target.HasTask)
	assert.Equal(t, "small", target.NodeID)

	code = s.post("/api/v1/tasks/"+target.TaskID+"/complete", &models.CompleteTaskRequest{
		OutputJSON: `{"ok": true}`,
	}, nil)
	require.Equal(t, http.StatusOK, code)

	var status models.GetStatusResponse
	code = s.get("/api/v1/executions/"+started.ExecutionID, &status)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "COMPLETED", status.Status)
}

func TestServerApprovalOverTheWire(t *testing.T) {
	s := newTestServer(t)

	code := s.post("/api/v1/workflows", &models.RegisterWorkflowRequest{
		WorkflowID: "gated", VersionHash: "g1",
		IRJSON: `{"nodes": {"gate": {"type": "HUMAN_APPROVAL"}}}`,
	}, nil)
	require.Equal(t, http.StatusOK, code)

	var started models.StartExecutionResponse
	code = s.post("/api/v1/executions", &models.StartExecutionRequest{
		WorkflowID: "gated", VersionHash: "g1", InputJSON: `{}`,
	}, &started)
	require.Equal(t, http.StatusOK, code)

	gate := s.pollOne("g1")
	require.True(t, gate.HasTask)
	assert.Equal(t, "HUMAN_APPROVAL", gate.NodeType)

	var pending models.PendingApprovalsResponse
	code = s.get("/api/v1/approvals", &pending)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, pending.Approvals, 1)
	assert.Equal(t, started.ExecutionID, pending.Approvals[0].ExecutionID)

	var ack models.AckResponse
	code = s.post("/api/v1/approvals/approve", &models.ApproveTaskRequest{
		ExecutionID: started.ExecutionID,
		NodeID:      "gate",
		Approver:    "alice",
		Comment:     "ship it",
	}, &ack)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Approved", ack.Message)

	var status models.GetStatusResponse
	code = s.get("/api/v1/executions/"+started.ExecutionID, &status)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "COMPLETED", status.Status)

	code = s.get("/api/v1/approvals", &pending)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, pending.Approvals)
}

func TestServerCancelOverTheWire(t *testing.T) {
	s := newTestServer(t)

	code := s.post("/api/v1/workflows", &models.RegisterWorkflowRequest{
		WorkflowID: "orders", VersionHash: "v1",
		IRJSON: `{"nodes": {"a": {"type": "COMPUTE"}}}`,
	}, nil)
	require.Equal(t, http.StatusOK, code)

	var started models.StartExecutionResponse
	code = s.post("/api/v1/executions", &models.StartExecutionRequest{
		WorkflowID: "orders", VersionHash: "v1", InputJSON: `{}`,
	}, &started)
	require.Equal(t, http.StatusOK, code)

	var ack models.AckResponse
	code = s.post("/api/v1/executions/"+started.ExecutionID+"/cancel", nil, &ack)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Execution cancelled", ack.Message)

	var status models.GetStatusResponse
	code = s.get("/api/v1/executions/"+started.ExecutionID, &status)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "CANCELLED", status.Status)

	// Nothing left for workers.
	task := s.pollOne("v1")
	assert.False(t, task.HasTask)
}

func TestServerErrorMapping(t *testing.T) {
	s := newTestServer(t)

	var errBody map[string]string

	// Validation failures.
	code := s.post("/api/v1/workflows", &models.RegisterWorkflowRequest{
		WorkflowID: "orders",
	}, &errBody)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "workflow_id and version_hash are required", errBody["error"])

	code = s.post("/api/v1/tasks/poll", &models.PollTaskRequest{WorkerID: "w"}, &errBody)
	assert.Equal(t, http.StatusBadRequest, code)

	// Invalid IR → 400 from the service.
	code = s.post("/api/v1/workflows", &models.RegisterWorkflowRequest{
		WorkflowID: "orders", VersionHash: "v1", IRJSON: `{`,
	}, &errBody)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, errBody["error"], "Invalid IR JSON")

	// Unknown resources → 404.
	code = s.post("/api/v1/executions", &models.StartExecutionRequest{
		WorkflowID: "ghost", VersionHash: "v1",
	}, &errBody)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Workflow not registered", errBody["error"])

	code = s.get("/api/v1/executions/exec-missing", &errBody)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Execution not found", errBody["error"])

	code = s.post("/api/v1/tasks/task-missing/complete", &models.CompleteTaskRequest{OutputJSON: `{}`}, &errBody)
	assert.Equal(t, http.StatusNotFound, code)

	code = s.post("/api/v1/approvals/approve", &models.ApproveTaskRequest{
		ExecutionID: "exec-missing", NodeID: "gate", Approver: "alice",
	}, &errBody)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "No pending approval task found", errBody["error"])
}

func TestServerHealth(t *testing.T) {
	s := newTestServer(t)

	var body map[string]string
	code := s.get("/health", &body)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

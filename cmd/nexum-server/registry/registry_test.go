package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuro6061/nexum/cmd/nexum-server/models"
)

func TestRegistryPutGet(t *testing.T) {
	r := New()

	_, ok := r.Get("orders", "v1")
	assert.False(t, ok)

	ir, err := models.ParseIR(`{"nodes": {"a": {"type": "COMPUTE", "dependencies": []}}}`)
	require.NoError(t, err)
	r.Put("orders", "v1", ir)

	got, ok := r.Get("orders", "v1")
	require.True(t, ok)
	assert.Equal(t, models.NodeCompute, got.NodeType("a"))

	// Same workflow, different hash, is a distinct entry.
	_, ok = r.Get("orders", "v2")
	assert.False(t, ok)
}

func TestRegistryRehydrateSkipsBadRows(t *testing.T) {
	r := New()

	versions := []*models.WorkflowVersion{
		{WorkflowID: "orders", VersionHash: "v1", IRJSON: `{"nodes": {"a": {}}}`},
		{WorkflowID: "orders", VersionHash: "v2", IRJSON: `{"nodes": broken`},
		{WorkflowID: "billing", VersionHash: "v1", IRJSON: `{"nodes": {"b": {"type": "EFFECT"}}}`},
	}

	loaded := r.Rehydrate(versions)
	assert.Equal(t, 2, loaded)
	assert.Equal(t, 2, r.Len())

	_, ok := r.Get("orders", "v2")
	assert.False(t, ok)
	_, ok = r.Get("billing", "v1")
	assert.True(t, ok)
}

func TestCompareIdenticalBytes(t *testing.T) {
	ir := `{"nodes": {"a": {"type": "COMPUTE"}}}`
	assert.Equal(t, CompatibilityIdentical, Compare(ir, ir))
}

func TestCompareEquivalentDocuments(t *testing.T) {
	// Different bytes, same graph.
	old := `{"nodes": {"a": {"type": "COMPUTE", "dependencies": []}}}`
	next := `{"nodes":{"a":{"dependencies":[],"type":"COMPUTE"}}}`
	assert.Equal(t, CompatibilityIdentical, Compare(old, next))
}

func TestCompareAddedNodeIsSafe(t *testing.T) {
	old := `{"nodes": {"a": {"type": "COMPUTE", "dependencies": []}}}`
	next := `{"nodes": {"a": {"type": "COMPUTE", "dependencies": []}, "b": {"type": "EFFECT", "dependencies": ["a"]}}}`
	assert.Equal(t, CompatibilitySafe, Compare(old, next))
}

func TestCompareBreakingChanges(t *testing.T) {
	old := `{"nodes": {"a": {"type": "COMPUTE", "dependencies": []}, "b": {"type": "EFFECT", "dependencies": ["a"]}}}`

	tests := []struct {
		name string
		next string
	}{
		{"removed node", `{"nodes": {"a": {"type": "COMPUTE", "dependencies": []}}}`},
		{"changed type", `{"nodes": {"a": {"type": "EFFECT", "dependencies": []}, "b": {"type": "EFFECT", "dependencies": ["a"]}}}`},
		{"changed dependencies", `{"nodes": {"a": {"type": "COMPUTE", "dependencies": []}, "b": {"type": "EFFECT", "dependencies": []}}}`},
		{"nodes not an object", `{"nodes": ["a", "b"]}`},
		{"unparseable", `{"nodes": {`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, CompatibilityBreaking, Compare(old, tt.next))
		})
	}
}

func TestCompareUnparseablePrevious(t *testing.T) {
	assert.Equal(t, CompatibilityBreaking, Compare(`{broken`, `{"nodes": {}}`))
}

func TestCompareMissingVersusNullField(t *testing.T) {
	// A dependencies field that disappears is a change even when it was null.
	old := `{"nodes": {"a": {"type": "COMPUTE", "dependencies": null}}}`
	next := `{"nodes": {"a": {"type": "COMPUTE"}}}`
	assert.Equal(t, CompatibilityBreaking, Compare(old, next))
}

func TestMessageByCompatibility(t *testing.T) {
	assert.Equal(t, "New nodes added. Old executions continue on previous version.", Message(CompatibilitySafe))
	assert.Equal(t, "Breaking change detected. Run parallel workers for in-flight executions.", Message(CompatibilityBreaking))
	assert.Equal(t, "No changes detected.", Message(CompatibilityIdentical))
	assert.Equal(t, "New workflow registered.", Message(CompatibilityNew))
}

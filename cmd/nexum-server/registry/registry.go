// Package registry caches parsed workflow IRs in memory, keyed by
// "<workflow_id>:<version_hash>". The cache is rebuilt from the
// workflow_versions table on startup and updated on every registration.
package registry

import (
	"sync"

	"github.com/kuro6061/nexum/cmd/nexum-server/models"
)

type Registry struct {
	mu  sync.RWMutex
	irs map[string]*models.WorkflowIR
}

func New() *Registry {
	return &Registry{irs: make(map[string]*models.WorkflowIR)}
}

func key(workflowID, versionHash string) string {
	return workflowID + ":" + versionHash
}

// Get returns the cached IR for a workflow version.
func (r *Registry) Get(workflowID, versionHash string) (*models.WorkflowIR, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ir, ok := r.irs[key(workflowID, versionHash)]
	return ir, ok
}

// Put caches the IR for a workflow version, replacing any previous entry.
func (r *Registry) Put(workflowID, versionHash string, ir *models.WorkflowIR) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.irs[key(workflowID, versionHash)] = ir
}

// Rehydrate parses and caches every stored workflow version. Rows whose
// IR no longer parses are skipped. Returns the number of versions loaded.
func (r *Registry) Rehydrate(versions []*models.WorkflowVersion) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	loaded := 0
	for _, v := range versions {
		ir, err := models.ParseIR(v.IRJSON)
		if err != nil {
			continue
		}
		r.irs[key(v.WorkflowID, v.VersionHash)] = ir
		loaded++
	}
	return loaded
}

// Len reports the number of cached versions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.irs)
}

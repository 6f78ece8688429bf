package service

import (
	"context"
	"time"

	"github.com/kuro6061/nexum/cmd/nexum-server/models"
	"github.com/kuro6061/nexum/cmd/nexum-server/registry"
	"github.com/kuro6061/nexum/cmd/nexum-server/repository"
	"github.com/kuro6061/nexum/common/db"
	"github.com/kuro6061/nexum/common/logger"
)

// WorkflowService handles workflow registration and the version catalogue.
type WorkflowService struct {
	versions   *repository.VersionRepository
	executions *repository.ExecutionRepository
	registry   *registry.Registry
	log        *logger.Logger
}

// NewWorkflowService creates a new workflow service.
func NewWorkflowService(
	versions *repository.VersionRepository,
	executions *repository.ExecutionRepository,
	reg *registry.Registry,
	log *logger.Logger,
) *WorkflowService {
	return &WorkflowService{
		versions:   versions,
		executions: executions,
		registry:   reg,
		log:        log,
	}
}

// Register stores one IR version, compares it against the workflow's
// previous latest version and answers with a compatibility advisory.
// Re-registering an existing (workflow, version) pair is a no-op write.
func (s *WorkflowService) Register(ctx context.Context, req *models.RegisterWorkflowRequest) (*models.RegisterWorkflowResponse, error) {
	ir, err := models.ParseIR(req.IRJSON)
	if err != nil {
		return nil, InvalidArgument("Invalid IR JSON: %v", err)
	}
	if err := ir.Validate(); err != nil {
		return nil, InvalidArgument("Invalid IR: %v", err)
	}

	prev, err := s.versions.Latest(ctx, req.WorkflowID)
	if err != nil {
		return nil, err
	}

	compatibility := registry.CompatibilityNew
	if prev != nil {
		compatibility = registry.Compare(prev.IRJSON, req.IRJSON)
	}

	version := &models.WorkflowVersion{
		WorkflowID:    req.WorkflowID,
		VersionHash:   req.VersionHash,
		IRJSON:        req.IRJSON,
		Compatibility: compatibility,
		RegisteredAt:  db.Now(),
	}
	if err := s.versions.Insert(ctx, version); err != nil {
		return nil, err
	}

	s.log.Info("Registering workflow",
		"workflow_id", req.WorkflowID,
		"version_hash", req.VersionHash,
		"compatibility", compatibility)

	s.registry.Put(req.WorkflowID, req.VersionHash, ir)

	return &models.RegisterWorkflowResponse{
		OK:            true,
		Compatibility: compatibility,
		Message:       registry.Message(compatibility),
	}, nil
}

// ListVersions returns the workflow's versions, newest first, each with
// its count of currently running executions.
func (s *WorkflowService) ListVersions(ctx context.Context, workflowID string) (*models.ListVersionsResponse, error) {
	versions, err := s.versions.ListByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	summaries := make([]models.VersionSummary, 0, len(versions))
	for _, v := range versions {
		active, err := s.executions.CountRunningByVersion(ctx, workflowID, v.VersionHash)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, models.VersionSummary{
			WorkflowID:       v.WorkflowID,
			VersionHash:      v.VersionHash,
			Compatibility:    v.Compatibility,
			RegisteredAt:     v.RegisteredAt.Format(time.RFC3339),
			ActiveExecutions: active,
		})
	}

	return &models.ListVersionsResponse{Versions: summaries}, nil
}

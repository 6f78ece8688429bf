package container

import (
	"context"
	"fmt"

	"github.com/kuro6061/nexum/cmd/nexum-server/claimcheck"
	"github.com/kuro6061/nexum/cmd/nexum-server/reaper"
	"github.com/kuro6061/nexum/cmd/nexum-server/registry"
	"github.com/kuro6061/nexum/cmd/nexum-server/repository"
	"github.com/kuro6061/nexum/cmd/nexum-server/service"
	"github.com/kuro6061/nexum/common/bootstrap"
	"github.com/kuro6061/nexum/common/ratelimit"
)

// Container holds all initialized repositories and services (singleton pattern)
type Container struct {
	// Components
	Components *bootstrap.Components

	// Repositories
	VersionRepo   *repository.VersionRepository
	ExecutionRepo *repository.ExecutionRepository
	TaskRepo      *repository.TaskRepository
	MapResultRepo *repository.MapResultRepository
	EventRepo     *repository.EventRepository

	// Engine state
	Registry    *registry.Registry
	ClaimChecks *claimcheck.Offloader
	Scheduler   *service.Scheduler

	// Services
	WorkflowService  *service.WorkflowService
	ExecutionService *service.ExecutionService
	TaskService      *service.TaskService
	ApprovalService  *service.ApprovalService

	// Background workers
	Reaper *reaper.Reaper
}

// NewContainer initializes all repositories and services once. The
// in-memory IR registry is rehydrated from the version catalogue so a
// restarted server keeps scheduling in-flight executions.
func NewContainer(ctx context.Context, components *bootstrap.Components) (*Container, error) {
	cfg := components.Config

	// Initialize repositories
	versionRepo := repository.NewVersionRepository(components.DB)
	executionRepo := repository.NewExecutionRepository(components.DB)
	taskRepo := repository.NewTaskRepository(components.DB)
	mapResultRepo := repository.NewMapResultRepository(components.DB)
	eventRepo := repository.NewEventRepository(components.DB)

	// Rehydrate the IR registry from persisted versions
	reg := registry.New()
	versions, err := versionRepo.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow versions: %w", err)
	}
	loaded := reg.Rehydrate(versions)
	components.Logger.Info("Loaded workflow versions from DB", "count", loaded)

	claimChecks := claimcheck.New(components.Blob, cfg.Engine.ClaimCheckThreshold, components.Logger)

	// Initialize services (bottom-up: the scheduler first, everything
	// else on top of it)
	scheduler := service.NewScheduler(
		taskRepo,
		eventRepo,
		executionRepo,
		reg,
		components.Metrics,
		components.Logger,
	)

	workflowService := service.NewWorkflowService(
		versionRepo,
		executionRepo,
		reg,
		components.Logger,
	)

	executionService := service.NewExecutionService(
		executionRepo,
		eventRepo,
		taskRepo,
		reg,
		scheduler,
		components.Metrics,
		components.Logger,
	)

	taskService := service.NewTaskService(&service.TaskServiceOpts{
		Tasks:       taskRepo,
		Events:      eventRepo,
		Executions:  executionRepo,
		Versions:    versionRepo,
		MapResults:  mapResultRepo,
		Registry:    reg,
		ClaimChecks: claimChecks,
		Scheduler:   scheduler,
		Limiter:     ratelimit.NewPollLimiter(cfg.Engine.PollRateLimit),
		MaxRetries:  cfg.Engine.MaxRetries,
		Metrics:     components.Metrics,
		Logger:      components.Logger,
	})

	approvalService := service.NewApprovalService(
		taskRepo,
		eventRepo,
		executionRepo,
		scheduler,
		components.Metrics,
		components.Logger,
	)

	taskReaper := reaper.New(taskRepo, components.Metrics, components.Logger).
		WithInterval(cfg.Engine.ReaperInterval).
		WithTaskTimeout(cfg.Engine.TaskTimeout)

	return &Container{
		Components:       components,
		VersionRepo:      versionRepo,
		ExecutionRepo:    executionRepo,
		TaskRepo:         taskRepo,
		MapResultRepo:    mapResultRepo,
		EventRepo:        eventRepo,
		Registry:         reg,
		ClaimChecks:      claimChecks,
		Scheduler:        scheduler,
		WorkflowService:  workflowService,
		ExecutionService: executionService,
		TaskService:      taskService,
		ApprovalService:  approvalService,
		Reaper:           taskReaper,
	}, nil
}

package handler

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/hguangin/soultalk-tool/internal/jobs"
	"github.com/hguangin/soultalk-tool/internal/model"
	"github.com/hguangin/soultalk-tool/pkg/response"
)

// Controller is the orchestration surface the job routes drive.
// *jobs.Orchestrator satisfies it.
type Controller interface {
	Create(ctx context.Context, params *model.JobParams) (*model.Job, error)
	Get(ctx context.Context, id string) (*model.Job, error)
	List(ctx context.Context, limit int) ([]*model.Job, error)
	Logs(ctx context.Context, id string) ([]model.StepLog, error)
	Pause(ctx context.Context, id string) (*model.Job, error)
	Resume(ctx context.Context, id string) (*model.Job, error)
	Cancel(ctx context.Context, id string) (*model.Job, error)
}

type JobHandler struct {
	controller Controller
	validator  *validator.Validate
}

func NewJobHandler(ctl Controller, v *validator.Validate) *JobHandler {
	return &JobHandler{
		controller: ctl,
		validator:  v,
	}
}

// Create handles POST /api/jobs
func (h *JobHandler) Create(c *fiber.Ctx) error {
	var req model.CreateJobRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	job, err := h.controller.Create(c.Context(), &model.JobParams{
		Name:      req.Name,
		Kind:      req.Kind,
		RecordRef: req.RecordRef,
		Input:     req.Input,
		Overrides: req.Overrides,
		Providers: req.Providers,
	})
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, model.CreateJobResponse{
		JobID:  job.ID,
		Status: job.Status,
	})
}

// Get handles GET /api/jobs/:jobId
func (h *JobHandler) Get(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	job, err := h.controller.Get(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, job)
}

// List handles GET /api/jobs
func (h *JobHandler) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 0)

	list, err := h.controller.List(c.Context(), limit)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, model.JobListResponse{
		Jobs:  list,
		Total: len(list),
	})
}

// Logs handles GET /api/jobs/:jobId/logs
func (h *JobHandler) Logs(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	logs, err := h.controller.Logs(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, model.JobLogsResponse{
		JobID: jobID,
		Logs:  logs,
	})
}

// Pause handles POST /api/jobs/:jobId/pause
func (h *JobHandler) Pause(c *fiber.Ctx) error {
	return h.control(c, h.controller.Pause)
}

// Resume handles POST /api/jobs/:jobId/resume
func (h *JobHandler) Resume(c *fiber.Ctx) error {
	return h.control(c, h.controller.Resume)
}

// Cancel handles POST /api/jobs/:jobId/cancel
func (h *JobHandler) Cancel(c *fiber.Ctx) error {
	return h.control(c, h.controller.Cancel)
}

func (h *JobHandler) control(c *fiber.Ctx, op func(ctx context.Context, id string) (*model.Job, error)) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	job, err := op(c.Context(), jobID)
	if err != nil {
		var stateErr *jobs.StateError
		switch {
		case errors.Is(err, jobs.ErrNotFound):
			return response.NotFound(c, "Job not found")
		case errors.Is(err, jobs.ErrNotActive):
			return response.Conflict(c, err.Error())
		case errors.As(err, &stateErr):
			return response.Conflict(c, err.Error())
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, model.JobControlResponse{
		Success: true,
		JobID:   job.ID,
		Status:  job.Status,
	})
}

// formatValidationErrors formats validator errors for response
func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}

package handler

import (
	"path/filepath"

	"github.com/gofiber/fiber/v2"

	"github.com/videoweave/api/internal/middleware"
	"github.com/videoweave/api/internal/model"
	"github.com/videoweave/api/internal/service"
	"github.com/videoweave/api/pkg/response"
)

type JobHandler struct {
	service *service.ComposeService
}

func NewJobHandler(svc *service.ComposeService) *JobHandler {
	return &JobHandler{service: svc}
}

// List handles GET /api/v1/jobs
func (h *JobHandler) List(c *fiber.Ctx) error {
	status := model.JobStatus(c.Query("status"))
	limit := c.QueryInt("limit", 20)
	offset := c.QueryInt("offset", 0)
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	jobs, err := h.service.List(c.Context(), middleware.GetOwner(c), status, limit, offset)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, fiber.Map{"jobs": jobs, "count": len(jobs)})
}

// Status handles GET /api/v1/jobs/:jobId
func (h *JobHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetStatus(c.Context(), middleware.GetOwner(c), jobID)
	if err != nil {
		return mapJobError(c, err)
	}
	return response.OK(c, result)
}

// Cancel handles DELETE /api/v1/jobs/:jobId
func (h *JobHandler) Cancel(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.Cancel(c.Context(), middleware.GetOwner(c), jobID)
	if err != nil {
		return mapJobError(c, err)
	}
	return response.OK(c, result)
}

// Download handles GET /api/v1/download/:jobId
func (h *JobHandler) Download(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	path, err := h.service.Output(c.Context(), middleware.GetOwner(c), jobID)
	if err != nil {
		return mapJobError(c, err)
	}
	return c.Download(path, filepath.Base(path))
}

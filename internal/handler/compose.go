package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/videoweave/api/internal/middleware"
	"github.com/videoweave/api/internal/model"
	"github.com/videoweave/api/internal/service"
	"github.com/videoweave/api/pkg/response"
)

type ComposeHandler struct {
	service   *service.ComposeService
	validator *validator.Validate
}

func NewComposeHandler(svc *service.ComposeService, v *validator.Validate) *ComposeHandler {
	return &ComposeHandler{
		service:   svc,
		validator: v,
	}
}

// Submit handles POST /api/v1/compose
func (h *ComposeHandler) Submit(c *fiber.Ctx) error {
	var spec model.CompositionSpec
	if err := c.BodyParser(&spec); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&spec); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Submit(c.Context(), middleware.GetOwner(c), &spec)
	if err != nil {
		return mapSubmitError(c, err)
	}

	return response.Accepted(c, result)
}

// QueueStatus handles GET /api/v1/compose/queue
func (h *ComposeHandler) QueueStatus(c *fiber.Ctx) error {
	result, err := h.service.QueueStatus(c.Context(), middleware.GetOwner(c))
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, result)
}

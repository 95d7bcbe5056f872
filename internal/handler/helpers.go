package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/videoweave/api/internal/compose"
	"github.com/videoweave/api/internal/media"
	"github.com/videoweave/api/internal/service"
	"github.com/videoweave/api/pkg/response"
)

// formatValidationErrors formats validator errors for response
func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errs := make(map[string]string)
		for _, e := range validationErrors {
			errs[e.Field()] = e.Tag()
		}
		return errs
	}
	return nil
}

// mapSubmitError translates submission failures. Spec and resolution problems
// are user errors; everything else is a 5xx.
func mapSubmitError(c *fiber.Ctx, err error) error {
	if se, ok := compose.AsSpecError(err); ok {
		return response.ValidationError(c, se.Message, map[string]interface{}{
			"kind": se.Kind,
		})
	}
	return mapResolutionOrService(c, err)
}

func mapResolutionOrService(c *fiber.Ctx, err error) error {
	if re, ok := media.AsResolutionError(err); ok {
		details := map[string]interface{}{
			"kind":   re.Kind,
			"source": re.Source,
		}
		if re.Kind == media.KindNotFound {
			return response.Error(c, fiber.StatusNotFound, response.CodeNotFound, re.Message, details)
		}
		return response.ValidationError(c, re.Message, details)
	}
	return response.ServiceError(c, err.Error())
}

// mapJobError translates job lifecycle errors onto the HTTP surface.
func mapJobError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrJobNotFound):
		return response.NotFound(c, "Job not found")
	case errors.Is(err, service.ErrForbidden):
		return response.Forbidden(c, "Job belongs to another owner")
	case errors.Is(err, service.ErrInvalidStateForCancel):
		return response.InvalidState(c, "Job cannot be cancelled in its current state")
	case errors.Is(err, service.ErrNotReady):
		return response.NotReady(c, "Job output is not ready yet")
	default:
		return response.ServiceError(c, err.Error())
	}
}

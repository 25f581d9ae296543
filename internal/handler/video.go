package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/promptmotion/api/internal/model"
	"github.com/promptmotion/api/internal/service"
	"github.com/promptmotion/api/internal/store"
	"github.com/promptmotion/api/pkg/response"
)

type VideoHandler struct {
	service   *service.VideoService
	validator *validator.Validate
}

func NewVideoHandler(svc *service.VideoService, v *validator.Validate) *VideoHandler {
	return &VideoHandler{
		service:   svc,
		validator: v,
	}
}

// Generate handles POST /generate-video
func (h *VideoHandler) Generate(c *fiber.Ctx) error {
	var req model.GenerateVideoRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Prompt is required", formatValidationErrors(err))
	}

	job, err := h.service.StartGeneration(c.Context(), req.Prompt)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, model.GenerateVideoResponse{
		Status:  "accepted",
		Message: "Video generation started",
		JobID:   job.ID,
	})
}

// Status handles GET /job-status/:job_id
func (h *VideoHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("job_id")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	job, err := h.service.GetStatus(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, model.JobStatusResponse{
		Status:    job.Status,
		Message:   job.Message,
		VideoPath: job.VideoPath,
		CreatedAt: job.CreatedAt,
	})
}

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

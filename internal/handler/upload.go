package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/videoweave/api/internal/model"
	"github.com/videoweave/api/internal/service"
	"github.com/videoweave/api/pkg/response"
)

// maxUploadFiles caps files per multipart request.
const maxUploadFiles = 10

type UploadHandler struct {
	service *service.UploadService
}

func NewUploadHandler(svc *service.UploadService) *UploadHandler {
	return &UploadHandler{service: svc}
}

// Upload handles POST /api/v1/upload
func (h *UploadHandler) Upload(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return response.ValidationError(c, "Multipart form is required", nil)
	}

	files := form.File["files"]
	if len(files) == 0 {
		return response.ValidationError(c, "At least one file is required", nil)
	}
	if len(files) > maxUploadFiles {
		return response.ValidationError(c, "Too many files", map[string]interface{}{
			"maxFiles": maxUploadFiles,
			"files":    len(files),
		})
	}

	results := make([]*model.UploadResponse, 0, len(files))
	for _, file := range files {
		if file.Size > h.service.MaxSize() {
			return response.ValidationError(c, "File size exceeds limit", map[string]interface{}{
				"filename": file.Filename,
				"maxSize":  h.service.MaxSize(),
				"fileSize": file.Size,
			})
		}

		f, err := file.Open()
		if err != nil {
			return response.ServiceError(c, "Failed to open uploaded file")
		}
		result, err := h.service.SaveFile(file.Filename, file.Size, f)
		f.Close()
		if err != nil {
			return response.ValidationError(c, err.Error(), map[string]interface{}{
				"filename": file.Filename,
			})
		}
		results = append(results, result)
	}

	return response.Created(c, fiber.Map{"files": results, "count": len(results)})
}

// FileInfo handles GET /api/v1/upload/:fileId
func (h *UploadHandler) FileInfo(c *fiber.Ctx) error {
	fileID := c.Params("fileId")
	if fileID == "" {
		return response.ValidationError(c, "File ID is required", nil)
	}

	result, err := h.service.FileInfo(fileID)
	if err != nil {
		return mapUploadError(c, err)
	}
	return response.OK(c, result)
}

// Delete handles DELETE /api/v1/upload/:fileId
func (h *UploadHandler) Delete(c *fiber.Ctx) error {
	fileID := c.Params("fileId")
	if fileID == "" {
		return response.ValidationError(c, "File ID is required", nil)
	}

	if err := h.service.Delete(fileID); err != nil {
		return mapUploadError(c, err)
	}
	return response.NoContent(c)
}

func mapUploadError(c *fiber.Ctx, err error) error {
	return mapResolutionOrService(c, err)
}

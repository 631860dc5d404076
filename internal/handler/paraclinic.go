package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/apc939/asistentehc/internal/audit"
	"github.com/apc939/asistentehc/internal/paraclinic"
	"github.com/apc939/asistentehc/internal/service"
)

// ParaclinicHandler implements the paraclinic document upload endpoint.
type ParaclinicHandler struct {
	service *service.ConsultationService
	auditor *audit.Logger
	logger  *zap.Logger
}

// NewParaclinicHandler creates a new ParaclinicHandler
func NewParaclinicHandler(service *service.ConsultationService, auditor *audit.Logger, logger *zap.Logger) *ParaclinicHandler {
	return &ParaclinicHandler{
		service: service,
		auditor: auditor,
		logger:  logger,
	}
}

// Upload posts a batch of document images for analysis.
func (h *ParaclinicHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Multipart form data is required",
			Details: stringPtr(err.Error()),
		})
		return
	}

	var images []paraclinic.Image
	for _, fh := range form.File["images"] {
		file, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Code:    "VALIDATION_ERROR",
				Message: "Failed to open image " + fh.Filename,
				Details: stringPtr(err.Error()),
			})
			return
		}

		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Code:    "VALIDATION_ERROR",
				Message: "Failed to read image " + fh.Filename,
				Details: stringPtr(err.Error()),
			})
			return
		}

		images = append(images, paraclinic.Image{
			Filename: fh.Filename,
			Data:     data,
		})
	}

	ip, requestID := requestMeta(c)

	result, err := h.service.UploadParaclinics(c.Request.Context(), images)
	if err != nil {
		h.logger.Error("paraclinic upload failed",
			zap.Int("images", len(images)),
			zap.Error(err),
		)
		h.auditor.LogDeliver(audit.ResourceParaclinicUpload, ip, requestID, "failed")
		status, body := errorBody(err)
		c.JSON(status, body)
		return
	}

	h.auditor.LogDeliver(audit.ResourceParaclinicUpload, ip, requestID, "ok")
	c.JSON(http.StatusOK, result)
}

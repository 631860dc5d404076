package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/apc939/asistentehc/internal/service"
)

// AudioHandler implements the uploaded-audio endpoints.
type AudioHandler struct {
	service *service.ConsultationService
	logger  *zap.Logger
}

// NewAudioHandler creates a new AudioHandler
func NewAudioHandler(service *service.ConsultationService, logger *zap.Logger) *AudioHandler {
	return &AudioHandler{
		service: service,
		logger:  logger,
	}
}

// Upload validates a multipart audio file and holds it as the consultation's
// audio.
func (h *AudioHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "A 'file' form field is required",
			Details: stringPtr(err.Error()),
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Failed to open uploaded file",
			Details: stringPtr(err.Error()),
		})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Failed to read uploaded file",
			Details: stringPtr(err.Error()),
		})
		return
	}

	uploaded, err := h.service.AcceptUpload(fileHeader.Filename, fileHeader.Header.Get("Content-Type"), data)
	if err != nil {
		h.logger.Warn("upload rejected",
			zap.String("filename", fileHeader.Filename),
			zap.Error(err),
		)
		status, body := errorBody(err)
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusCreated, uploaded)
}

// Discard drops the accepted upload without delivering it.
func (h *AudioHandler) Discard(c *gin.Context) {
	h.service.DiscardUpload()
	c.JSON(http.StatusOK, gin.H{"message": "upload discarded"})
}

// Current reports the accepted upload, if any.
func (h *AudioHandler) Current(c *gin.Context) {
	uploaded := h.service.PendingUpload()
	if uploaded == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Code:    "NOT_FOUND",
			Message: "No accepted upload",
		})
		return
	}

	c.JSON(http.StatusOK, uploaded)
}

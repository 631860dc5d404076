package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/apc939/asistentehc/internal/capture"
	"github.com/apc939/asistentehc/internal/service"
)

// RecordingHandler implements the capture state machine endpoints. Encoded
// audio chunks from the client stream in through the chunks endpoint.
type RecordingHandler struct {
	service *service.ConsultationService
	device  *capture.StreamDevice
	logger  *zap.Logger
}

// NewRecordingHandler creates a new RecordingHandler
func NewRecordingHandler(service *service.ConsultationService, device *capture.StreamDevice, logger *zap.Logger) *RecordingHandler {
	return &RecordingHandler{
		service: service,
		device:  device,
		logger:  logger,
	}
}

// Start begins audio capture for the active encounter.
func (h *RecordingHandler) Start(c *gin.Context) {
	if err := h.service.StartRecording(c.Request.Context()); err != nil {
		h.logger.Error("failed to start recording", zap.Error(err))
		status, body := errorBody(err)
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, h.service.RecordingSession())
}

// TogglePause pauses a running recording or resumes a paused one.
func (h *RecordingHandler) TogglePause(c *gin.Context) {
	if err := h.service.TogglePause(); err != nil {
		status, body := errorBody(err)
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, h.service.RecordingSession())
}

// Stop finalizes the recording. The response waits for the device to flush
// its buffered chunks.
func (h *RecordingHandler) Stop(c *gin.Context) {
	artifact, err := h.service.StopRecording(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to stop recording", zap.Error(err))
		status, body := errorBody(err)
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session":  h.service.RecordingSession(),
		"artifact": artifact,
	})
}

// Reset discards the capture session from any state.
func (h *RecordingHandler) Reset(c *gin.Context) {
	h.service.ResetRecording()
	c.JSON(http.StatusOK, h.service.RecordingSession())
}

// Session reports the capture session snapshot.
func (h *RecordingHandler) Session(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.RecordingSession())
}

// PushChunk appends one encoded audio chunk to the running recording. Chunks
// sent while paused are dropped.
func (h *RecordingHandler) PushChunk(c *gin.Context) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Failed to read chunk body",
			Details: stringPtr(err.Error()),
		})
		return
	}

	if err := h.device.Push(data); err != nil {
		c.JSON(http.StatusConflict, ErrorResponse{
			Code:    "INVALID_RECORDING_STATE",
			Message: "No recording is accepting audio",
			Details: stringPtr(err.Error()),
		})
		return
	}

	c.Status(http.StatusAccepted)
}

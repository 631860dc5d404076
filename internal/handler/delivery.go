package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/apc939/asistentehc/internal/audit"
	"github.com/apc939/asistentehc/internal/service"
	"github.com/apc939/asistentehc/internal/webhook"
)

// DeliveryHandler implements consultation delivery, standalone transcription
// and the delivery log endpoints.
type DeliveryHandler struct {
	service *service.ConsultationService
	log     *webhook.DeliveryLog
	auditor *audit.Logger
	logger  *zap.Logger
}

// NewDeliveryHandler creates a new DeliveryHandler
func NewDeliveryHandler(service *service.ConsultationService, log *webhook.DeliveryLog, auditor *audit.Logger, logger *zap.Logger) *DeliveryHandler {
	return &DeliveryHandler{
		service: service,
		log:     log,
		auditor: auditor,
		logger:  logger,
	}
}

type sendRequest struct {
	// Manual marks a user-triggered send, which bypasses the enabled gate.
	Manual bool `json:"manual"`
}

// Send transcribes and delivers the consultation.
func (h *DeliveryHandler) Send(c *gin.Context) {
	var req sendRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Code:    "VALIDATION_ERROR",
				Message: "Invalid request body",
				Details: stringPtr(err.Error()),
			})
			return
		}
	}

	ip, requestID := requestMeta(c)

	if err := h.service.Send(c.Request.Context(), req.Manual); err != nil {
		h.logger.Error("delivery failed", zap.Error(err))
		h.auditor.LogDeliver(audit.ResourceConsultation, ip, requestID, "failed")
		status, body := errorBody(err)
		c.JSON(status, body)
		return
	}

	h.auditor.LogDeliver(audit.ResourceConsultation, ip, requestID, "ok")
	c.JSON(http.StatusOK, gin.H{"message": "consultation delivered"})
}

// SendAudio delivers the base64 audio payload without transcription.
func (h *DeliveryHandler) SendAudio(c *gin.Context) {
	var req sendRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Code:    "VALIDATION_ERROR",
				Message: "Invalid request body",
				Details: stringPtr(err.Error()),
			})
			return
		}
	}

	ip, requestID := requestMeta(c)

	if err := h.service.SendAudio(c.Request.Context(), req.Manual); err != nil {
		h.logger.Error("audio delivery failed", zap.Error(err))
		h.auditor.LogDeliver(audit.ResourceConsultation, ip, requestID, "failed")
		status, body := errorBody(err)
		c.JSON(status, body)
		return
	}

	h.auditor.LogDeliver(audit.ResourceConsultation, ip, requestID, "ok")
	c.JSON(http.StatusOK, gin.H{"message": "consultation delivered"})
}

// Transcribe runs transcription on the consultation audio without delivering.
func (h *DeliveryHandler) Transcribe(c *gin.Context) {
	result, err := h.service.TranscribeCurrent(c.Request.Context())
	if err != nil {
		h.logger.Error("transcription failed", zap.Error(err))
		status, body := errorBody(err)
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Log returns the delivery attempts, newest first.
func (h *DeliveryHandler) Log(c *gin.Context) {
	c.JSON(http.StatusOK, h.log.Entries())
}

// ClearLog discards all delivery log entries.
func (h *DeliveryHandler) ClearLog(c *gin.Context) {
	h.log.Clear()
	c.JSON(http.StatusOK, gin.H{"message": "delivery log cleared"})
}

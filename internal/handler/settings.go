package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/apc939/asistentehc/internal/audit"
	"github.com/apc939/asistentehc/internal/paraclinic"
	"github.com/apc939/asistentehc/internal/transcribe"
	"github.com/apc939/asistentehc/internal/webhook"
)

// SettingsHandler implements the three integration-configuration surfaces:
// the delivery webhook, the transcription provider and the paraclinic
// analysis webhook. Every mutation lands in the audit trail.
type SettingsHandler struct {
	sender      *webhook.Sender
	transcriber *transcribe.Client
	documents   *paraclinic.Uploader
	auditor     *audit.Logger
	logger      *zap.Logger
}

// NewSettingsHandler creates a new SettingsHandler
func NewSettingsHandler(sender *webhook.Sender, transcriber *transcribe.Client, documents *paraclinic.Uploader, auditor *audit.Logger, logger *zap.Logger) *SettingsHandler {
	return &SettingsHandler{
		sender:      sender,
		transcriber: transcriber,
		documents:   documents,
		auditor:     auditor,
		logger:      logger,
	}
}

type webhookSettingsRequest struct {
	Endpoint string `json:"endpoint"`
	Enabled  *bool  `json:"enabled"`
}

type transcriptionSettingsRequest struct {
	Credential string `json:"credential"`
	Enabled    *bool  `json:"enabled"`
}

// GetWebhook returns the delivery webhook configuration.
func (h *SettingsHandler) GetWebhook(c *gin.Context) {
	c.JSON(http.StatusOK, h.sender.Config())
}

// PutWebhook updates the delivery webhook endpoint and/or enabled flag.
func (h *SettingsHandler) PutWebhook(c *gin.Context) {
	var req webhookSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Invalid request body",
			Details: stringPtr(err.Error()),
		})
		return
	}

	ip, requestID := requestMeta(c)

	if req.Endpoint != "" {
		if err := h.sender.Configure(req.Endpoint); err != nil {
			h.auditor.LogConfigure(audit.ResourceWebhookConfig, ip, requestID, "rejected")
			status, body := errorBody(err)
			c.JSON(status, body)
			return
		}
	}
	if req.Enabled != nil {
		if err := h.sender.SetEnabled(*req.Enabled); err != nil {
			h.auditor.LogToggle(audit.ResourceWebhookConfig, *req.Enabled, ip, requestID, "rejected")
			status, body := errorBody(err)
			c.JSON(status, body)
			return
		}
		h.auditor.LogToggle(audit.ResourceWebhookConfig, *req.Enabled, ip, requestID, "ok")
	}

	h.auditor.LogConfigure(audit.ResourceWebhookConfig, ip, requestID, "ok")
	c.JSON(http.StatusOK, h.sender.Config())
}

// TestWebhook verifies the delivery webhook endpoint.
func (h *SettingsHandler) TestWebhook(c *gin.Context) {
	ip, requestID := requestMeta(c)

	if err := h.sender.Verify(c.Request.Context()); err != nil {
		h.logger.Warn("webhook verification failed", zap.Error(err))
		h.auditor.LogVerify(audit.ResourceWebhookConfig, ip, requestID, "failed")
		status, body := errorBody(err)
		c.JSON(status, body)
		return
	}

	h.auditor.LogVerify(audit.ResourceWebhookConfig, ip, requestID, "ok")
	c.JSON(http.StatusOK, h.sender.Config())
}

// DeleteWebhook removes the delivery webhook configuration.
func (h *SettingsHandler) DeleteWebhook(c *gin.Context) {
	if err := h.sender.ClearConfig(); err != nil {
		status, body := errorBody(err)
		c.JSON(status, body)
		return
	}

	ip, requestID := requestMeta(c)
	h.auditor.LogClear(audit.ResourceWebhookConfig, ip, requestID, "ok")
	c.JSON(http.StatusOK, gin.H{"message": "webhook configuration cleared"})
}

// GetTranscription returns the transcription configuration with the
// credential masked.
func (h *SettingsHandler) GetTranscription(c *gin.Context) {
	c.JSON(http.StatusOK, h.transcriber.Config())
}

// PutTranscription updates the transcription credential and/or enabled flag.
func (h *SettingsHandler) PutTranscription(c *gin.Context) {
	var req transcriptionSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Invalid request body",
			Details: stringPtr(err.Error()),
		})
		return
	}

	ip, requestID := requestMeta(c)

	if req.Credential != "" {
		if err := h.transcriber.SetCredential(req.Credential); err != nil {
			status, body := errorBody(err)
			c.JSON(status, body)
			return
		}
	}
	if req.Enabled != nil {
		if err := h.transcriber.SetEnabled(*req.Enabled); err != nil {
			h.auditor.LogToggle(audit.ResourceTranscriptionConfig, *req.Enabled, ip, requestID, "rejected")
			status, body := errorBody(err)
			c.JSON(status, body)
			return
		}
		h.auditor.LogToggle(audit.ResourceTranscriptionConfig, *req.Enabled, ip, requestID, "ok")
	}

	h.auditor.LogConfigure(audit.ResourceTranscriptionConfig, ip, requestID, "ok")
	c.JSON(http.StatusOK, h.transcriber.Config())
}

// TestTranscription verifies the transcription credential.
func (h *SettingsHandler) TestTranscription(c *gin.Context) {
	ip, requestID := requestMeta(c)

	if err := h.transcriber.Verify(c.Request.Context()); err != nil {
		h.logger.Warn("transcription verification failed", zap.Error(err))
		h.auditor.LogVerify(audit.ResourceTranscriptionConfig, ip, requestID, "failed")
		status, body := errorBody(err)
		c.JSON(status, body)
		return
	}

	h.auditor.LogVerify(audit.ResourceTranscriptionConfig, ip, requestID, "ok")
	c.JSON(http.StatusOK, h.transcriber.Config())
}

// DeleteTranscription removes the transcription configuration.
func (h *SettingsHandler) DeleteTranscription(c *gin.Context) {
	if err := h.transcriber.ClearConfig(); err != nil {
		status, body := errorBody(err)
		c.JSON(status, body)
		return
	}

	ip, requestID := requestMeta(c)
	h.auditor.LogClear(audit.ResourceTranscriptionConfig, ip, requestID, "ok")
	c.JSON(http.StatusOK, gin.H{"message": "transcription configuration cleared"})
}

// GetParaclinic returns the paraclinic webhook configuration.
func (h *SettingsHandler) GetParaclinic(c *gin.Context) {
	c.JSON(http.StatusOK, h.documents.Config())
}

// PutParaclinic updates the paraclinic webhook endpoint and/or enabled flag.
func (h *SettingsHandler) PutParaclinic(c *gin.Context) {
	var req webhookSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Invalid request body",
			Details: stringPtr(err.Error()),
		})
		return
	}

	ip, requestID := requestMeta(c)

	if req.Endpoint != "" {
		if err := h.documents.Configure(req.Endpoint); err != nil {
			h.auditor.LogConfigure(audit.ResourceParaclinicConfig, ip, requestID, "rejected")
			status, body := errorBody(err)
			c.JSON(status, body)
			return
		}
	}
	if req.Enabled != nil {
		if err := h.documents.SetEnabled(*req.Enabled); err != nil {
			h.auditor.LogToggle(audit.ResourceParaclinicConfig, *req.Enabled, ip, requestID, "rejected")
			status, body := errorBody(err)
			c.JSON(status, body)
			return
		}
		h.auditor.LogToggle(audit.ResourceParaclinicConfig, *req.Enabled, ip, requestID, "ok")
	}

	h.auditor.LogConfigure(audit.ResourceParaclinicConfig, ip, requestID, "ok")
	c.JSON(http.StatusOK, h.documents.Config())
}

// TestParaclinic verifies the paraclinic webhook endpoint.
func (h *SettingsHandler) TestParaclinic(c *gin.Context) {
	ip, requestID := requestMeta(c)

	if err := h.documents.Verify(c.Request.Context()); err != nil {
		h.logger.Warn("paraclinic verification failed", zap.Error(err))
		h.auditor.LogVerify(audit.ResourceParaclinicConfig, ip, requestID, "failed")
		status, body := errorBody(err)
		c.JSON(status, body)
		return
	}

	h.auditor.LogVerify(audit.ResourceParaclinicConfig, ip, requestID, "ok")
	c.JSON(http.StatusOK, h.documents.Config())
}

// DeleteParaclinic removes the paraclinic webhook configuration.
func (h *SettingsHandler) DeleteParaclinic(c *gin.Context) {
	if err := h.documents.ClearConfig(); err != nil {
		status, body := errorBody(err)
		c.JSON(status, body)
		return
	}

	ip, requestID := requestMeta(c)
	h.auditor.LogClear(audit.ResourceParaclinicConfig, ip, requestID, "ok")
	c.JSON(http.StatusOK, gin.H{"message": "paraclinic configuration cleared"})
}

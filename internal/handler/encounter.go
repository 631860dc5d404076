package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/apc939/asistentehc/internal/service"
)

// EncounterHandler implements the encounter lifecycle endpoints.
type EncounterHandler struct {
	service *service.ConsultationService
	logger  *zap.Logger
}

// NewEncounterHandler creates a new EncounterHandler
func NewEncounterHandler(service *service.ConsultationService, logger *zap.Logger) *EncounterHandler {
	return &EncounterHandler{
		service: service,
		logger:  logger,
	}
}

type startEncounterRequest struct {
	PatientAlias      string `json:"patient_alias"`
	PatientInternalID string `json:"patient_internal_id"`
}

// Start begins a new encounter, clearing any previous session state.
func (h *EncounterHandler) Start(c *gin.Context) {
	var req startEncounterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Invalid request body",
			Details: stringPtr(err.Error()),
		})
		return
	}

	ec, err := h.service.StartEncounter(req.PatientAlias, req.PatientInternalID)
	if err != nil {
		status, body := errorBody(err)
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusCreated, ec)
}

// Current returns the active encounter context.
func (h *EncounterHandler) Current(c *gin.Context) {
	ec, err := h.service.CurrentEncounter()
	if err != nil {
		status, body := errorBody(err)
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, ec)
}

// Reset ends the active encounter and discards its session state. The next
// consultation starts with a fresh encounter id.
func (h *EncounterHandler) Reset(c *gin.Context) {
	h.service.EndEncounter()
	c.JSON(http.StatusOK, gin.H{"message": "encounter reset"})
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthHandler implements the liveness endpoint.
type HealthHandler struct{}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// Get reports service health.
func (h *HealthHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "asistentehc-backend",
		"version": "1.0.0",
	})
}

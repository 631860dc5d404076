package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/apc939/asistentehc/internal/notes"
)

// NotesHandler implements the clinical note and note-type endpoints.
type NotesHandler struct {
	collector *notes.Collector
	logger    *zap.Logger
}

// NewNotesHandler creates a new NotesHandler
func NewNotesHandler(collector *notes.Collector, logger *zap.Logger) *NotesHandler {
	return &NotesHandler{
		collector: collector,
		logger:    logger,
	}
}

type noteTypeRequest struct {
	Label string `json:"label"`
}

type noteRequest struct {
	TypeID  string `json:"type_id"`
	Content string `json:"content"`
}

// ListTypes returns the note-type catalog.
func (h *NotesHandler) ListTypes(c *gin.Context) {
	c.JSON(http.StatusOK, h.collector.Types())
}

// AddType registers a new note type.
func (h *NotesHandler) AddType(c *gin.Context) {
	var req noteTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Invalid request body",
			Details: stringPtr(err.Error()),
		})
		return
	}

	nt, err := h.collector.AddType(req.Label)
	if err != nil {
		status, body := errorBody(err)
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusCreated, nt)
}

// UpdateType renames a note type.
func (h *NotesHandler) UpdateType(c *gin.Context) {
	var req noteTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Invalid request body",
			Details: stringPtr(err.Error()),
		})
		return
	}

	if err := h.collector.UpdateType(c.Param("id"), req.Label); err != nil {
		status, body := errorBody(err)
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "note type updated"})
}

// RemoveType deletes a note type. The last remaining type cannot be removed.
func (h *NotesHandler) RemoveType(c *gin.Context) {
	if err := h.collector.RemoveType(c.Param("id")); err != nil {
		status, body := errorBody(err)
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "note type removed"})
}

// ResetTypes restores the default note-type catalog.
func (h *NotesHandler) ResetTypes(c *gin.Context) {
	if err := h.collector.ResetTypes(); err != nil {
		status, body := errorBody(err)
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, h.collector.Types())
}

// List returns the notes of the current encounter, in creation order.
func (h *NotesHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, h.collector.All())
}

// Add creates a new note.
func (h *NotesHandler) Add(c *gin.Context) {
	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Invalid request body",
			Details: stringPtr(err.Error()),
		})
		return
	}

	note, err := h.collector.Add(req.TypeID, req.Content)
	if err != nil {
		status, body := errorBody(err)
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusCreated, note)
}

// Update changes a note's content and/or type.
func (h *NotesHandler) Update(c *gin.Context) {
	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Invalid request body",
			Details: stringPtr(err.Error()),
		})
		return
	}

	if err := h.collector.Update(c.Param("id"), req.TypeID, req.Content); err != nil {
		status, body := errorBody(err)
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "note updated"})
}

// Remove deletes a note.
func (h *NotesHandler) Remove(c *gin.Context) {
	if err := h.collector.Remove(c.Param("id")); err != nil {
		status, body := errorBody(err)
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "note removed"})
}

package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/apc939/asistentehc/internal/capture"
	"github.com/apc939/asistentehc/internal/encounter"
	"github.com/apc939/asistentehc/internal/notes"
	"github.com/apc939/asistentehc/internal/paraclinic"
	"github.com/apc939/asistentehc/internal/service"
	"github.com/apc939/asistentehc/internal/transcribe"
	"github.com/apc939/asistentehc/internal/upload"
	"github.com/apc939/asistentehc/internal/webhook"
)

// ErrorResponse is the error body every endpoint answers with.
type ErrorResponse struct {
	Code    string  `json:"code"`
	Message string  `json:"message"`
	Details *string `json:"details,omitempty"`
}

// stringPtr creates a pointer to a string
func stringPtr(s string) *string {
	return &s
}

// requestMeta extracts the client ip and request id for audit entries.
func requestMeta(c *gin.Context) (ip, requestID string) {
	return c.ClientIP(), c.GetString("request_id")
}

// errorStatus maps domain errors to an HTTP status and a stable error code.
func errorStatus(err error) (int, string) {
	var unsafeErr *webhook.UnsafeDestinationError
	var deliveryErr *webhook.DeliveryFailedError
	var uploadErr *paraclinic.UploadFailedError
	var transcriptionErr *transcribe.FailedError

	switch {
	case errors.Is(err, encounter.ErrNoActiveEncounter):
		return http.StatusConflict, "NO_ACTIVE_ENCOUNTER"
	case errors.Is(err, encounter.ErrMissingPatientContext):
		return http.StatusBadRequest, "MISSING_PATIENT_CONTEXT"

	case errors.Is(err, capture.ErrInvalidTransition):
		return http.StatusConflict, "INVALID_RECORDING_STATE"
	case errors.Is(err, capture.ErrDevice):
		return http.StatusServiceUnavailable, "CAPTURE_DEVICE_ERROR"

	case errors.Is(err, upload.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType, "UNSUPPORTED_FORMAT"
	case errors.Is(err, upload.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE"
	case errors.Is(err, upload.ErrDurationExceeded):
		return http.StatusUnprocessableEntity, "DURATION_EXCEEDED"
	case errors.Is(err, upload.ErrProbe):
		return http.StatusUnprocessableEntity, "UNREADABLE_AUDIO"

	case errors.Is(err, service.ErrNoAudio):
		return http.StatusConflict, "NO_AUDIO"

	case errors.As(err, &unsafeErr):
		return http.StatusBadRequest, "UNSAFE_DESTINATION"
	case errors.Is(err, webhook.ErrNotConfigured),
		errors.Is(err, transcribe.ErrNotConfigured),
		errors.Is(err, paraclinic.ErrNotConfigured):
		return http.StatusConflict, "NOT_CONFIGURED"
	case errors.Is(err, webhook.ErrNotVerified),
		errors.Is(err, transcribe.ErrNotVerified),
		errors.Is(err, paraclinic.ErrNotVerified):
		return http.StatusConflict, "NOT_VERIFIED"
	case errors.Is(err, webhook.ErrNotEnabled),
		errors.Is(err, transcribe.ErrNotEnabled),
		errors.Is(err, paraclinic.ErrNotEnabled):
		return http.StatusConflict, "NOT_ENABLED"

	case errors.As(err, &deliveryErr):
		return http.StatusBadGateway, "DELIVERY_FAILED"
	case errors.As(err, &uploadErr):
		return http.StatusBadGateway, "ANALYSIS_FAILED"
	case errors.As(err, &transcriptionErr):
		return http.StatusBadGateway, "TRANSCRIPTION_FAILED"

	case errors.Is(err, paraclinic.ErrNoImages),
		errors.Is(err, paraclinic.ErrTooManyImages),
		errors.Is(err, paraclinic.ErrUnsupportedImage):
		return http.StatusBadRequest, "INVALID_IMAGES"

	case errors.Is(err, notes.ErrDuplicateTypeLabel):
		return http.StatusConflict, "DUPLICATE_NOTE_TYPE"
	case errors.Is(err, notes.ErrLastType):
		return http.StatusConflict, "LAST_NOTE_TYPE"
	case errors.Is(err, notes.ErrEmptyLabel):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, notes.ErrTypeNotFound), errors.Is(err, notes.ErrNoteNotFound):
		return http.StatusNotFound, "NOT_FOUND"

	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// errorBody builds the response body for a domain error.
func errorBody(err error) (int, ErrorResponse) {
	status, code := errorStatus(err)
	return status, ErrorResponse{
		Code:    code,
		Message: err.Error(),
	}
}

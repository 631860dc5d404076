package integration_tests

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/apc939/asistentehc/internal/audit"
	"github.com/apc939/asistentehc/internal/capture"
	"github.com/apc939/asistentehc/internal/config"
	"github.com/apc939/asistentehc/internal/encounter"
	"github.com/apc939/asistentehc/internal/handler"
	"github.com/apc939/asistentehc/internal/notes"
	"github.com/apc939/asistentehc/internal/paraclinic"
	"github.com/apc939/asistentehc/internal/security"
	"github.com/apc939/asistentehc/internal/service"
	"github.com/apc939/asistentehc/internal/storage"
	"github.com/apc939/asistentehc/internal/transcribe"
	"github.com/apc939/asistentehc/internal/upload"
	"github.com/apc939/asistentehc/internal/webhook"
)

// fixedDurationProber reports a constant duration so flow tests can exercise
// the upload path without real encoded audio.
type fixedDurationProber struct{ seconds float64 }

func (p fixedDurationProber) ProbeDuration([]byte, string) (float64, error) {
	return p.seconds, nil
}

// stack is the full application wired the way main does it, on an in-memory
// filesystem. Rebuilding a stack over the same filesystem simulates a server
// restart.
type stack struct {
	router *gin.Engine
	fs     afero.Fs
}

func buildStack(t *testing.T, fs afero.Fs, encryptionKey []byte) *stack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zap.NewNop()

	fileStore, err := storage.NewFileStore(fs, "/data", logger)
	require.NoError(t, err)

	var store storage.Store = fileStore
	if encryptionKey != nil {
		encryptor, err := security.NewEncryptor(encryptionKey)
		require.NoError(t, err)
		store, err = storage.NewEncryptedStore(fileStore, encryptor)
		require.NoError(t, err)
	}

	device := capture.NewStreamDevice("")
	recorder := capture.NewRecorder(device, logger)

	validator, err := upload.NewValidator(10<<20, 3600, fixedDurationProber{seconds: 30}, logger)
	require.NoError(t, err)

	collector, err := notes.NewCollector(store, logger)
	require.NoError(t, err)

	deliveryLog := webhook.NewDeliveryLog()
	sender, err := webhook.NewSender(store, deliveryLog, nil, logger)
	require.NoError(t, err)

	transcriber, err := transcribe.NewClient(store, config.TranscriptionConfig{
		BaseURL:      "https://api.example.test",
		PollInterval: time.Second,
		PollTimeout:  time.Minute,
	}, logger)
	require.NoError(t, err)

	documents, err := paraclinic.NewUploader(store, 6, nil, logger)
	require.NoError(t, err)

	svc, err := service.NewConsultationService(
		recorder, validator, transcriber, sender, documents,
		encounter.NewManager(logger), collector,
		time.Second, logger,
	)
	require.NoError(t, err)

	auditor := audit.NewLogger(logger)

	router := gin.New()
	handler.RegisterRoutes(router, handler.Handlers{
		Encounter:  handler.NewEncounterHandler(svc, logger),
		Recording:  handler.NewRecordingHandler(svc, device, logger),
		Audio:      handler.NewAudioHandler(svc, logger),
		Delivery:   handler.NewDeliveryHandler(svc, deliveryLog, auditor, logger),
		Notes:      handler.NewNotesHandler(collector, logger),
		Settings:   handler.NewSettingsHandler(sender, transcriber, documents, auditor, logger),
		Paraclinic: handler.NewParaclinicHandler(svc, auditor, logger),
		Health:     handler.NewHealthHandler(),
	})

	return &stack{router: router, fs: fs}
}

func newEncryptionKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func multipartFile(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (s *stack) request(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *stack) decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func (s *stack) startEncounter(t *testing.T, alias, internalID string) map[string]any {
	t.Helper()
	w := s.request(t, http.MethodPost, "/api/v1/encounters",
		`{"patient_alias":"`+alias+`","patient_internal_id":"`+internalID+`"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return s.decode(t, w)
}

package integration_tests

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConsultationFlowIntegration walks the full consultation session through
// the HTTP surface: encounter start, chunked capture, notes, and the gates
// that protect delivery.
func TestConsultationFlowIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	s := buildStack(t, afero.NewMemMapFs(), nil)

	t.Run("Complete capture flow", func(t *testing.T) {
		// Step 1: start the encounter.
		t.Log("Step 1: Starting encounter")
		ec := s.startEncounter(t, "P-042", "HC-1234")
		require.NotEmpty(t, ec["encounter_id"])

		// Step 2: record in chunks, with a pause in the middle.
		t.Log("Step 2: Recording audio")
		w := s.request(t, http.MethodPost, "/api/v1/recording/start", "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		for _, chunk := range []string{"primer segmento", "segundo segmento"} {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/recording/chunks", strings.NewReader(chunk))
			rec := httptest.NewRecorder()
			s.router.ServeHTTP(rec, req)
			require.Equal(t, http.StatusAccepted, rec.Code)
		}

		w = s.request(t, http.MethodPost, "/api/v1/recording/pause", "")
		require.Equal(t, http.StatusOK, w.Code)

		w = s.request(t, http.MethodPost, "/api/v1/recording/pause", "")
		require.Equal(t, http.StatusOK, w.Code, "second pause resumes")

		// Step 3: attach notes while recording.
		t.Log("Step 3: Adding notes")
		w = s.request(t, http.MethodPost, "/api/v1/notes", `{"type_id":"diagnosis","content":"Faringitis aguda"}`)
		require.Equal(t, http.StatusCreated, w.Code)

		w = s.request(t, http.MethodPost, "/api/v1/notes", `{"type_id":"plan","content":"Reposo e hidratación"}`)
		require.Equal(t, http.StatusCreated, w.Code)

		// Step 4: stop and confirm the artifact was assembled.
		t.Log("Step 4: Stopping recording")
		w = s.request(t, http.MethodPost, "/api/v1/recording/stop", "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		body := s.decode(t, w)
		session, ok := body["session"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "stopped", session["state"])
		assert.Equal(t, true, session["has_artifact"])

		// Step 5: delivery stays blocked until the webhook is configured.
		t.Log("Step 5: Delivery gate")
		w = s.request(t, http.MethodPost, "/api/v1/deliveries/transcript", `{"manual":true}`)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Contains(t, w.Body.String(), "NOT_CONFIGURED")

		// Step 6: resetting the encounter clears the session.
		t.Log("Step 6: Resetting encounter")
		w = s.request(t, http.MethodPost, "/api/v1/encounters/reset", "")
		require.Equal(t, http.StatusOK, w.Code)

		w = s.request(t, http.MethodGet, "/api/v1/recording", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"idle"`)

		w = s.request(t, http.MethodGet, "/api/v1/notes", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.NotContains(t, w.Body.String(), "Faringitis aguda")
	})

	t.Run("New encounter gets a fresh identity", func(t *testing.T) {
		first := s.startEncounter(t, "P-042", "HC-1234")
		s.request(t, http.MethodPost, "/api/v1/encounters/reset", "")
		second := s.startEncounter(t, "P-042", "HC-1234")
		assert.NotEqual(t, first["encounter_id"], second["encounter_id"])
	})
}

// TestUploadedAudioFlowIntegration covers the upload-instead-of-record path.
func TestUploadedAudioFlowIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	s := buildStack(t, afero.NewMemMapFs(), nil)
	s.startEncounter(t, "P-077", "HC-9001")

	t.Log("Uploading an audio file")
	body, contentType := multipartFile(t, "file", "consulta.mp3", []byte("encoded audio bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/audio", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	t.Log("Accepted upload replaces any recording")
	got := s.request(t, http.MethodGet, "/api/v1/audio", "")
	require.Equal(t, http.StatusOK, got.Code)
	assert.Contains(t, got.Body.String(), "consulta.mp3")

	t.Log("Starting a recording discards the pending upload")
	started := s.request(t, http.MethodPost, "/api/v1/recording/start", "")
	require.Equal(t, http.StatusOK, started.Code)

	got = s.request(t, http.MethodGet, "/api/v1/audio", "")
	assert.Equal(t, http.StatusNotFound, got.Code)
}

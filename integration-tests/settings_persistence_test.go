package integration_tests

import (
	"net/http"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSettingsPersistenceIntegration verifies that integration configuration
// survives a server restart while clinical session state does not.
func TestSettingsPersistenceIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	fs := afero.NewMemMapFs()
	s := buildStack(t, fs, nil)

	t.Log("Configuring integrations and session state")
	w := s.request(t, http.MethodPut, "/api/v1/settings/webhook", `{"endpoint":"https://hooks.example.com/consultas"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.request(t, http.MethodPut, "/api/v1/settings/transcription", `{"credential":"sk-prod-9f2c1a-abcd"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.request(t, http.MethodPost, "/api/v1/note-types", `{"label":"Antecedentes"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	s.startEncounter(t, "P-042", "HC-1234")
	w = s.request(t, http.MethodPost, "/api/v1/notes", `{"type_id":"diagnosis","content":"Faringitis"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	t.Log("Restarting the stack over the same filesystem")
	restarted := buildStack(t, fs, nil)

	// Integration configuration and the note-type catalog survive.
	w = restarted.request(t, http.MethodGet, "/api/v1/settings/webhook", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "https://hooks.example.com/consultas")

	w = restarted.request(t, http.MethodGet, "/api/v1/settings/transcription", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "****abcd")
	assert.NotContains(t, w.Body.String(), "sk-prod-9f2c1a-abcd")

	w = restarted.request(t, http.MethodGet, "/api/v1/note-types", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Antecedentes")

	// Clinical session state does not: no encounter, no notes.
	w = restarted.request(t, http.MethodGet, "/api/v1/encounters/current", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = restarted.request(t, http.MethodGet, "/api/v1/notes", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "Faringitis")
}

// TestEncryptedSettingsAtRestIntegration verifies that with storage
// encryption enabled the credential never reaches the disk in plaintext, and
// that a restart with the same key can still read the configuration.
func TestEncryptedSettingsAtRestIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	fs := afero.NewMemMapFs()
	key := newEncryptionKey(t)
	s := buildStack(t, fs, key)

	w := s.request(t, http.MethodPut, "/api/v1/settings/transcription", `{"credential":"sk-prod-9f2c1a-abcd"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	t.Log("Checking the raw store contents")
	raw, err := afero.ReadFile(fs, "/data/transcription-config.json")
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "sk-prod-9f2c1a-abcd")
	assert.NotContains(t, string(raw), "credential")

	t.Log("Restarting with the same key")
	restarted := buildStack(t, fs, key)
	w = restarted.request(t, http.MethodGet, "/api/v1/settings/transcription", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "****abcd")
}

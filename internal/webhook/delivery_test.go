package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/apc939/asistentehc/internal/storage"
	"github.com/apc939/asistentehc/pkg/model"
)

// rewriteTransport redirects every request to the test server so the https
// and non-IP-host policy can stay enforced on the configured endpoint.
type rewriteTransport struct {
	target *url.URL
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = t.target.Scheme
	req.URL.Host = t.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func newTestSender(t *testing.T, srv *httptest.Server, allowed []string) (*Sender, *DeliveryLog) {
	t.Helper()

	store, err := storage.NewFileStore(afero.NewMemMapFs(), "/data", zap.NewNop())
	require.NoError(t, err)

	log := NewDeliveryLog()
	s, err := NewSender(store, log, allowed, zap.NewNop())
	require.NoError(t, err)

	if srv != nil {
		target, err := url.Parse(srv.URL)
		require.NoError(t, err)
		s.httpClient = &http.Client{Transport: &rewriteTransport{target: target}}
	}
	return s, log
}

func TestSender_Configure_RejectsUnsafeURL(t *testing.T) {
	s, _ := newTestSender(t, nil, nil)

	var unsafeErr *UnsafeDestinationError
	err := s.Configure("http://hooks.example.com/x")
	require.ErrorAs(t, err, &unsafeErr)

	err = s.Configure("https://192.168.1.5/x")
	require.ErrorAs(t, err, &unsafeErr)

	assert.Empty(t, s.Config().Endpoint)
}

func TestSender_Configure_ChangeInvalidatesVerification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s, _ := newTestSender(t, srv, nil)
	require.NoError(t, s.Configure("https://hooks.example.com/consultas"))
	require.NoError(t, s.Verify(context.Background()))
	require.NoError(t, s.SetEnabled(true))

	require.NoError(t, s.Configure("https://hooks.example.com/otro"))
	cfg := s.Config()
	assert.False(t, cfg.IsVerified)
	assert.False(t, cfg.Enabled)
	assert.Nil(t, cfg.LastTestedAt)
}

func TestSender_SetEnabled_RequiresVerification(t *testing.T) {
	s, _ := newTestSender(t, nil, nil)
	require.NoError(t, s.Configure("https://hooks.example.com/x"))

	err := s.SetEnabled(true)
	assert.ErrorIs(t, err, ErrNotVerified)
	assert.False(t, s.Config().Enabled)
}

func TestSender_Verify_MarksEndpointVerified(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s, _ := newTestSender(t, srv, nil)
	require.NoError(t, s.Configure("https://hooks.example.com/consultas"))
	require.NoError(t, s.Verify(context.Background()))

	cfg := s.Config()
	assert.True(t, cfg.IsVerified)
	assert.True(t, cfg.Enabled, "first verification enables the integration")
	require.NotNil(t, cfg.LastTestedAt)
	assert.Equal(t, true, received["test"])
	assert.NotEmpty(t, received["timestamp"])
}

func TestSender_Verify_RetestDoesNotForceEnable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s, _ := newTestSender(t, srv, nil)
	require.NoError(t, s.Configure("https://hooks.example.com/consultas"))
	require.NoError(t, s.Verify(context.Background()))
	require.NoError(t, s.SetEnabled(false))

	// A deliberately disabled integration stays disabled on re-test.
	require.NoError(t, s.Verify(context.Background()))
	assert.False(t, s.Config().Enabled)
	assert.True(t, s.Config().IsVerified)
}

func TestSender_Verify_FailedRetestWithdrawsTrust(t *testing.T) {
	var status int32 = http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(int(atomic.LoadInt32(&status)))
	}))
	defer srv.Close()

	s, _ := newTestSender(t, srv, nil)
	require.NoError(t, s.Configure("https://hooks.example.com/consultas"))
	require.NoError(t, s.Verify(context.Background()))
	require.True(t, s.Config().IsVerified)

	// The endpoint stops answering: the failed re-test withdraws both the
	// verification and the enablement that depended on it.
	atomic.StoreInt32(&status, http.StatusInternalServerError)
	err := s.Verify(context.Background())
	require.Error(t, err)

	cfg := s.Config()
	assert.False(t, cfg.IsVerified)
	assert.False(t, cfg.Enabled)
}

func TestSender_Verify_FailureLeavesUnverified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	s, _ := newTestSender(t, srv, nil)
	require.NoError(t, s.Configure("https://hooks.example.com/consultas"))

	err := s.Verify(context.Background())
	var failed *DeliveryFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, http.StatusForbidden, failed.StatusCode)
	assert.False(t, s.Config().IsVerified)
}

func TestSender_Deliver_PostsConsultationPayload(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s, log := newTestSender(t, srv, nil)
	require.NoError(t, s.Configure("https://hooks.example.com/consultas"))
	require.NoError(t, s.Verify(context.Background()))
	require.NoError(t, s.SetEnabled(true))

	err := s.Deliver(context.Background(), Payload{
		Transcript:      "Paciente refiere cefalea.",
		DurationSeconds: 95,
		EncounterID:     "enc-1",
		CaptureMethod:   model.CaptureMethodRecorded,
		Notes: []model.NoteSnapshot{
			{TypeID: "diagnosis", TypeLabel: "Diagnóstico", Content: "Migraña"},
		},
	}, false)
	require.NoError(t, err)

	assert.Equal(t, "medical_consultation", received["type"])
	assert.Equal(t, "Paciente refiere cefalea.", received["transcript"])
	assert.Equal(t, "enc-1", received["encounter_id"])
	assert.Equal(t, "recorded", received["capture_method"])
	assert.NotEmpty(t, received["timestamp"])

	entries := log.Entries()
	require.Len(t, entries, 1, "verification is not logged, delivery is")
	assert.Equal(t, model.DeliveryStatusSuccess, entries[0].Status)
}

func TestSender_Deliver_LogsAttemptDuration(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s, log := newTestSender(t, srv, nil)
	require.NoError(t, s.Configure("https://hooks.example.com/consultas"))

	// A 65-second consultation against a local endpoint: the log measures
	// the attempt, not the audio.
	err := s.Deliver(context.Background(), Payload{DurationSeconds: 65, EncounterID: "enc-1"}, true)
	require.NoError(t, err)

	entries := log.Entries()
	require.Len(t, entries, 1)
	assert.GreaterOrEqual(t, entries[0].DurationSeconds, 0.0)
	assert.Less(t, entries[0].DurationSeconds, 10.0, "log records the attempt duration, not the audio duration")
}

func TestSender_Deliver_AutomaticRequiresEnabled(t *testing.T) {
	s, log := newTestSender(t, nil, nil)
	require.NoError(t, s.Configure("https://hooks.example.com/consultas"))

	err := s.Deliver(context.Background(), Payload{EncounterID: "enc-1"}, false)
	assert.ErrorIs(t, err, ErrNotEnabled)
	assert.Empty(t, log.Entries(), "gate failures never reach the log")
}

func TestSender_Deliver_ManualBypassesEnabledGate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s, _ := newTestSender(t, srv, nil)
	require.NoError(t, s.Configure("https://hooks.example.com/consultas"))

	err := s.Deliver(context.Background(), Payload{EncounterID: "enc-1"}, true)
	assert.NoError(t, err)
}

func TestSender_Deliver_Unconfigured(t *testing.T) {
	s, _ := newTestSender(t, nil, nil)

	err := s.Deliver(context.Background(), Payload{}, true)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestSender_Deliver_RecordsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s, log := newTestSender(t, srv, nil)
	require.NoError(t, s.Configure("https://hooks.example.com/consultas"))

	err := s.Deliver(context.Background(), Payload{DurationSeconds: 30}, true)
	var failed *DeliveryFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, http.StatusBadGateway, failed.StatusCode)

	entries := log.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, model.DeliveryStatusError, entries[0].Status)
}

func TestSender_AllowListEnforced(t *testing.T) {
	s, _ := newTestSender(t, nil, []string{"hooks.example.com"})

	require.NoError(t, s.Configure("https://eu.hooks.example.com/x"))

	var unsafeErr *UnsafeDestinationError
	err := s.Configure("https://other.example.org/x")
	require.ErrorAs(t, err, &unsafeErr)
}

func TestSender_ConfigSurvivesRestart(t *testing.T) {
	fs := afero.NewMemMapFs()
	store, err := storage.NewFileStore(fs, "/data", zap.NewNop())
	require.NoError(t, err)

	s, err := NewSender(store, NewDeliveryLog(), nil, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.Configure("https://hooks.example.com/consultas"))

	s2, err := NewSender(store, NewDeliveryLog(), nil, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "https://hooks.example.com/consultas", s2.Config().Endpoint)
}

func TestSender_ClearConfig(t *testing.T) {
	s, _ := newTestSender(t, nil, nil)
	require.NoError(t, s.Configure("https://hooks.example.com/consultas"))
	require.NoError(t, s.ClearConfig())

	assert.Empty(t, s.Config().Endpoint)
	err := s.Deliver(context.Background(), Payload{}, true)
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

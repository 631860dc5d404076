package paraclinic

import (
	"context"
	"fmt"
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
	"github.com/apc939/asistentehc/internal/webhook"
)

type rewriteTransport struct {
	target *url.URL
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = t.target.Scheme
	req.URL.Host = t.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func newTestUploader(t *testing.T, srv *httptest.Server) *Uploader {
	t.Helper()

	store, err := storage.NewFileStore(afero.NewMemMapFs(), "/data", zap.NewNop())
	require.NoError(t, err)

	u, err := NewUploader(store, 6, nil, zap.NewNop())
	require.NoError(t, err)

	if srv != nil {
		target, err := url.Parse(srv.URL)
		require.NoError(t, err)
		u.httpClient = &http.Client{Transport: &rewriteTransport{target: target}}
	}
	return u
}

func readyUploader(t *testing.T, srv *httptest.Server) *Uploader {
	t.Helper()
	u := newTestUploader(t, srv)
	require.NoError(t, u.Configure("https://analisis.example.com/hook"))
	require.NoError(t, u.Verify(context.Background()))
	require.NoError(t, u.SetEnabled(true))
	return u
}

func testImages(n int) []Image {
	imgs := make([]Image, n)
	for i := range imgs {
		imgs[i] = Image{Filename: fmt.Sprintf("lab-%d.jpg", i), Data: []byte("fake image")}
	}
	return imgs
}

func TestUploader_RejectsEmptyBatch(t *testing.T) {
	u := readyUploader(t, okServer(t, `"ok"`))

	_, err := u.Upload(context.Background(), nil, Metadata{})
	assert.ErrorIs(t, err, ErrNoImages)
}

func TestUploader_RejectsOversizedBatch(t *testing.T) {
	u := readyUploader(t, okServer(t, `"ok"`))

	_, err := u.Upload(context.Background(), testImages(7), Metadata{})
	assert.ErrorIs(t, err, ErrTooManyImages)
}

func TestUploader_RejectsUnsupportedImage(t *testing.T) {
	u := readyUploader(t, okServer(t, `"ok"`))

	imgs := []Image{{Filename: "informe.pdf", Data: []byte("%PDF-1.4 fake")}}
	_, err := u.Upload(context.Background(), imgs, Metadata{})
	assert.ErrorIs(t, err, ErrUnsupportedImage)
}

func TestUploader_GatesBeforeNetwork(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		u := newTestUploader(t, nil)
		_, err := u.Upload(context.Background(), testImages(1), Metadata{})
		assert.ErrorIs(t, err, ErrNotConfigured)
	})

	t.Run("not enabled", func(t *testing.T) {
		u := newTestUploader(t, nil)
		require.NoError(t, u.Configure("https://analisis.example.com/hook"))
		_, err := u.Upload(context.Background(), testImages(1), Metadata{})
		assert.ErrorIs(t, err, ErrNotEnabled)
	})

	t.Run("enable requires verification", func(t *testing.T) {
		u := newTestUploader(t, nil)
		require.NoError(t, u.Configure("https://analisis.example.com/hook"))
		assert.ErrorIs(t, u.SetEnabled(true), ErrNotVerified)
	})
}

func TestUploader_Verify_FirstSuccessEnables(t *testing.T) {
	u := newTestUploader(t, okServer(t, `"ok"`))
	require.NoError(t, u.Configure("https://analisis.example.com/hook"))
	require.NoError(t, u.Verify(context.Background()))

	cfg := u.Config()
	assert.True(t, cfg.IsVerified)
	assert.True(t, cfg.Enabled, "first verification enables the integration")
	require.NotNil(t, cfg.LastTestedAt)

	// A later verification does not force-enable a deliberately disabled
	// integration.
	require.NoError(t, u.SetEnabled(false))
	require.NoError(t, u.Verify(context.Background()))
	assert.False(t, u.Config().Enabled)
}

func TestUploader_Verify_FailedRetestWithdrawsTrust(t *testing.T) {
	var status int32 = http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(int(atomic.LoadInt32(&status)))
	}))
	defer srv.Close()

	u := newTestUploader(t, srv)
	require.NoError(t, u.Configure("https://analisis.example.com/hook"))
	require.NoError(t, u.Verify(context.Background()))
	require.True(t, u.Config().IsVerified)

	// The endpoint stops answering: the failed re-test withdraws both the
	// verification and the enablement that depended on it.
	atomic.StoreInt32(&status, http.StatusInternalServerError)
	err := u.Verify(context.Background())
	require.Error(t, err)

	cfg := u.Config()
	assert.False(t, cfg.IsVerified)
	assert.False(t, cfg.Enabled)
}

func TestUploader_Configure_RejectsUnsafeURL(t *testing.T) {
	u := newTestUploader(t, nil)

	var unsafeErr *webhook.UnsafeDestinationError
	err := u.Configure("http://analisis.example.com/hook")
	require.ErrorAs(t, err, &unsafeErr)
}

func TestUploader_Upload_SendsMultipartBatch(t *testing.T) {
	var gotImages []string
	var gotType, gotMetadata string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(32<<20))
		for _, fh := range r.MultipartForm.File["images"] {
			gotImages = append(gotImages, fh.Filename)
		}
		gotType = r.FormValue("type")
		gotMetadata = r.FormValue("metadata")
		fmt.Fprint(w, `{"text":"Hemograma dentro de rangos normales."}`)
	}))
	defer srv.Close()

	u := readyUploader(t, srv)

	result, err := u.Upload(context.Background(), testImages(3), Metadata{
		EncounterID:  "enc-1",
		PatientAlias: "P-042",
	})
	require.NoError(t, err)

	assert.Equal(t, "Hemograma dentro de rangos normales.", result.Summary)
	assert.NotEmpty(t, result.ID)
	assert.Equal(t, []string{"lab-0.jpg", "lab-1.jpg", "lab-2.jpg"}, gotImages)
	assert.Equal(t, "paraclinic_document", gotType)
	assert.Contains(t, gotMetadata, `"encounter_id":"enc-1"`)
	assert.Contains(t, gotMetadata, `"patient_alias":"P-042"`)
}

func TestUploader_Upload_FailsOnErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	u := readyUploader(t, srv)

	_, err := u.Upload(context.Background(), testImages(1), Metadata{})
	var failed *UploadFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, http.StatusInternalServerError, failed.StatusCode)
}

func okServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestParseSummary(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bare string", `"Resumen del examen."`, "Resumen del examen."},
		{"text field", `{"text":"Valores normales."}`, "Valores normales."},
		{
			"llm parts",
			`{"content":{"parts":[{"text":"Parte uno."},{"text":"Parte dos."}]}}`,
			"Parte uno.\nParte dos.",
		},
		{"string parts", `{"content":{"parts":["Solo texto."]}}`, "Solo texto."},
		{"summary field", `{"summary":"Radiografía sin hallazgos."}`, "Radiografía sin hallazgos."},
		{"array of objects", `[{"text":"Primero."},{"text":"Segundo."}]`, "Primero."},
		{"array of strings", `["Único."]`, "Único."},
		{"plain text body", "informe procesado", "informe procesado"},
		{"text wins over summary", `{"text":"A","summary":"B"}`, "A"},
		{"empty body", ``, fallbackSummary},
		{"unreadable object", `{"status":"ok"}`, fallbackSummary},
		{"empty array", `[]`, fallbackSummary},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseSummary([]byte(tt.body)))
		})
	}
}

func TestImageAccepted_BySniffedType(t *testing.T) {
	// A PNG signature with no useful filename is still accepted.
	png := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}
	assert.True(t, imageAccepted(Image{Filename: "captura", Data: png}))
	assert.False(t, imageAccepted(Image{Filename: "nota", Data: []byte("plain text")}))
}

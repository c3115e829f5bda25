package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/service"
)

type stubService struct {
	identities []string
}

func (s *stubService) Recognize(ctx context.Context, imageBytes []byte, annotate bool) (*service.Recognition, error) {
	return nil, errors.New("not used")
}

func (s *stubService) EnrollIdentity(ctx context.Context, key string, samples [][]byte) (*service.Enrollment, error) {
	return nil, errors.New("not used")
}

func (s *stubService) RemoveIdentity(ctx context.Context, key string) (bool, error) {
	return false, nil
}

func (s *stubService) ListIdentities() []string { return s.identities }

func (s *stubService) IsReady() bool { return len(s.identities) > 0 }

func (s *stubService) Reload(ctx context.Context) error { return nil }

type stubPinger struct{ err error }

func (p stubPinger) Ping(ctx context.Context) error { return p.err }

func newTestRouter(deps *Dependencies) *Router {
	r := NewRouter(slog.New(slog.NewTextHandler(io.Discard, nil)), deps)
	r.Setup()
	return r
}

func TestRouter_Routes(t *testing.T) {
	r := newTestRouter(&Dependencies{Service: &stubService{identities: []string{"1_ana"}}})

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/ready", http.StatusOK},
		{http.MethodGet, "/v1/identities", http.StatusOK},
		{http.MethodDelete, "/v1/identities/1_ana", http.StatusNotFound},
		{http.MethodPost, "/v1/gallery/reload", http.StatusNoContent},
		{http.MethodPost, "/v1/attendance", http.StatusUnprocessableEntity},
		{http.MethodGet, "/v1/faces", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			resp, err := r.App().Test(httptest.NewRequest(tt.method, tt.path, nil), -1)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
			assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
		})
	}
}

func TestRouter_ListIdentities(t *testing.T) {
	r := newTestRouter(&Dependencies{Service: &stubService{identities: []string{"1_ana", "2_bia"}}})

	resp, err := r.App().Test(httptest.NewRequest(http.MethodGet, "/v1/identities", nil), -1)
	require.NoError(t, err)

	var body struct {
		Identities []string `json:"identities"`
		Count      int      `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, []string{"1_ana", "2_bia"}, body.Identities)
	assert.Equal(t, 2, body.Count)
}

func TestRouter_Readiness(t *testing.T) {
	tests := []struct {
		name string
		deps *Dependencies
		want int
	}{
		{name: "no dependencies", deps: nil, want: http.StatusServiceUnavailable},
		{name: "empty gallery", deps: &Dependencies{Service: &stubService{}}, want: http.StatusServiceUnavailable},
		{
			name: "database down",
			deps: &Dependencies{Service: &stubService{identities: []string{"1_ana"}}, DB: stubPinger{err: errors.New("refused")}},
			want: http.StatusServiceUnavailable,
		},
		{
			name: "ready",
			deps: &Dependencies{Service: &stubService{identities: []string{"1_ana"}}, DB: stubPinger{}},
			want: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(tt.deps)
			resp, err := r.App().Test(httptest.NewRequest(http.MethodGet, "/ready", nil), -1)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestRouter_WithoutServiceOnlyServesHealth(t *testing.T) {
	r := newTestRouter(nil)

	resp, err := r.App().Test(httptest.NewRequest(http.MethodGet, "/health", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = r.App().Test(httptest.NewRequest(http.MethodGet, "/v1/identities", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

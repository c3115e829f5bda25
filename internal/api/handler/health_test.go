package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

type staticReady bool

func (r staticReady) IsReady() bool { return bool(r) }

type stubPinger struct{ err error }

func (p stubPinger) Ping(ctx context.Context) error { return p.err }

func TestHealthHandler_Health(t *testing.T) {
	app := fiber.New()
	handler := NewHealthHandler(staticReady(false), nil)
	app.Get("/health", handler.Health)

	req := httptest.NewRequest("GET", "/health", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Failed to test: %v", err)
	}

	if resp.StatusCode != 200 {
		t.Errorf("Status = %d, want 200", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	var result HealthResponse
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if result.Status != "ok" {
		t.Errorf("Status = %s, want ok", result.Status)
	}

	if result.Version == "" {
		t.Error("Version should not be empty")
	}
}

func TestHealthHandler_Ready(t *testing.T) {
	tests := []struct {
		name       string
		ready      ReadinessChecker
		db         stubPinger
		withDB     bool
		wantStatus int
		wantBody   string
		wantReason string
	}{
		{name: "gallery populated", ready: staticReady(true), wantStatus: 200, wantBody: "ready"},
		{name: "gallery empty", ready: staticReady(false), wantStatus: 503, wantBody: "not_ready", wantReason: "gallery is empty"},
		{name: "database reachable", ready: staticReady(true), withDB: true, wantStatus: 200, wantBody: "ready"},
		{
			name:       "database down",
			ready:      staticReady(true),
			withDB:     true,
			db:         stubPinger{err: errors.New("connection refused")},
			wantStatus: 503,
			wantBody:   "not_ready",
			wantReason: "database unreachable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			handler := NewHealthHandler(tt.ready, nil)
			if tt.withDB {
				handler = NewHealthHandler(tt.ready, tt.db)
			}
			app.Get("/ready", handler.Ready)

			resp, err := app.Test(httptest.NewRequest("GET", "/ready", nil))
			if err != nil {
				t.Fatalf("Failed to test: %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("Status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}

			body, _ := io.ReadAll(resp.Body)
			var result HealthResponse
			if err := json.Unmarshal(body, &result); err != nil {
				t.Fatalf("Failed to parse response: %v", err)
			}
			if result.Status != tt.wantBody {
				t.Errorf("Status = %s, want %s", result.Status, tt.wantBody)
			}
			if result.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", result.Reason, tt.wantReason)
			}
		})
	}
}

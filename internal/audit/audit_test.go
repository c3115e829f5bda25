package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	line := strings.TrimSpace(buf.String())
	require.NotEmpty(t, line)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	return entry
}

func TestSlogLogger_Log(t *testing.T) {
	tests := []struct {
		name         string
		event        Event
		wantKey      string
		wantRunID    string
		wantSuccess  bool
		wantHasError bool
	}{
		{
			name: "attendance taken",
			event: Event{
				EventType: EventAttendanceTaken,
				RunID:     "run-1",
				Present:   []string{"1_ana"},
				Success:   true,
				Metadata:  map[string]string{"quorum": "2"},
			},
			wantRunID:   "run-1",
			wantSuccess: true,
		},
		{
			name: "identity enrolled",
			event: Event{
				EventType:   EventIdentityEnrolled,
				IdentityKey: "1_ana",
				Success:     true,
			},
			wantKey:     "1_ana",
			wantSuccess: true,
		},
		{
			name: "failed removal",
			event: Event{
				EventType:   EventIdentityRemoved,
				IdentityKey: "9_nobody",
				Error:       "identity not found",
			},
			wantKey:      "9_nobody",
			wantHasError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewSlogLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

			require.NoError(t, logger.Log(context.Background(), tt.event))

			entry := decodeLine(t, &buf)
			assert.Equal(t, "audit_event", entry["msg"])
			assert.Equal(t, "audit", entry["component"])
			assert.Equal(t, string(tt.event.EventType), entry["event_type"])
			assert.Equal(t, tt.wantSuccess, entry["success"])
			assert.NotEmpty(t, entry["event_id"])

			if tt.wantKey != "" {
				assert.Equal(t, tt.wantKey, entry["identity_key"])
			} else {
				assert.NotContains(t, entry, "identity_key")
			}
			if tt.wantRunID != "" {
				assert.Equal(t, tt.wantRunID, entry["run_id"])
			}

			var data Event
			require.NoError(t, json.Unmarshal([]byte(entry["event_data"].(string)), &data))
			assert.Equal(t, tt.wantHasError, data.Error != "")
			assert.False(t, data.Timestamp.IsZero())
		})
	}
}

func TestSlogLogger_KeepsGivenIDAndTimestamp(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	id := uuid.New()
	ts := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	require.NoError(t, logger.Log(context.Background(), Event{ID: id, Timestamp: ts, EventType: EventGalleryReloaded, Success: true}))

	entry := decodeLine(t, &buf)
	assert.Equal(t, id.String(), entry["event_id"])

	var data Event
	require.NoError(t, json.Unmarshal([]byte(entry["event_data"].(string)), &data))
	assert.True(t, ts.Equal(data.Timestamp))
}

func TestNoOpLogger(t *testing.T) {
	var logger Logger = &NoOpLogger{}
	assert.NoError(t, logger.Log(context.Background(), Event{EventType: EventAttendanceTaken}))
}

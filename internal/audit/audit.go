// Package audit records who was enrolled, removed or marked present, and
// when. Events carry identity keys only, never images or templates.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// EventType defines the type of auditable event
type EventType string

const (
	EventAttendanceTaken  EventType = "ATTENDANCE_TAKEN"
	EventIdentityEnrolled EventType = "IDENTITY_ENROLLED"
	EventIdentityRemoved  EventType = "IDENTITY_REMOVED"
	EventGalleryReloaded  EventType = "GALLERY_RELOADED"
)

// Event is one audit record
type Event struct {
	ID          uuid.UUID         `json:"id"`
	Timestamp   time.Time         `json:"timestamp"`
	EventType   EventType         `json:"event_type"`
	RunID       string            `json:"run_id,omitempty"`
	IdentityKey string            `json:"identity_key,omitempty"`
	Present     []string          `json:"present,omitempty"`
	Success     bool              `json:"success"`
	Error       string            `json:"error,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Logger defines the interface for audit logging
type Logger interface {
	Log(ctx context.Context, event Event) error
}

// SlogLogger writes events to a structured logger
type SlogLogger struct {
	logger *slog.Logger
}

func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	return &SlogLogger{
		logger: logger.With("component", "audit"),
	}
}

// Log fills in ID and Timestamp when unset and records the event
func (l *SlogLogger) Log(ctx context.Context, event Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		l.logger.ErrorContext(ctx, "failed to marshal audit event",
			slog.String("error", err.Error()),
			slog.String("event_type", string(event.EventType)),
		)
		return err
	}

	attrs := []any{
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", string(event.EventType)),
		slog.Bool("success", event.Success),
		slog.String("event_data", string(eventJSON)),
	}
	if event.IdentityKey != "" {
		attrs = append(attrs, slog.String("identity_key", event.IdentityKey))
	}
	if event.RunID != "" {
		attrs = append(attrs, slog.String("run_id", event.RunID))
	}
	l.logger.InfoContext(ctx, "audit_event", attrs...)

	return nil
}

// NoOpLogger discards events
type NoOpLogger struct{}

func (l *NoOpLogger) Log(_ context.Context, _ Event) error {
	return nil
}

package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/domain"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/ensemble"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/service"
)

// AttendanceService is the recognition and enrollment facade
type AttendanceService interface {
	Recognize(ctx context.Context, imageBytes []byte, annotate bool) (*service.Recognition, error)
	EnrollIdentity(ctx context.Context, key string, samples [][]byte) (*service.Enrollment, error)
	RemoveIdentity(ctx context.Context, key string) (bool, error)
	ListIdentities() []string
	IsReady() bool
	Reload(ctx context.Context) error
}

// AttendanceHandler handles attendance and identity requests
type AttendanceHandler struct {
	service      AttendanceService
	maxImageSize int64
	logger       *slog.Logger
}

// NewAttendanceHandler creates a new AttendanceHandler instance
func NewAttendanceHandler(service AttendanceService, maxImageSize int64, logger *slog.Logger) *AttendanceHandler {
	if maxImageSize <= 0 {
		maxImageSize = DefaultMaxImageSize
	}
	return &AttendanceHandler{
		service:      service,
		maxImageSize: maxImageSize,
		logger:       logger,
	}
}

// AttendanceResponse response for the attendance endpoint
type AttendanceResponse struct {
	RunID          string                  `json:"run_id"`
	Attendance     domain.AttendanceRecord `json:"attendance"`
	Summary        domain.Summary          `json:"summary"`
	Votes          ensemble.VoteTally      `json:"votes"`
	Quorum         int                     `json:"quorum"`
	Layers         []ensemble.LayerReport  `json:"layers"`
	Evidence       []ensemble.Evidence     `json:"evidence"`
	Width          int                     `json:"width"`
	Height         int                     `json:"height"`
	CapturedAt     *time.Time              `json:"captured_at,omitempty"`
	LatencyMs      int64                   `json:"latency_ms"`
	AnnotatedImage string                  `json:"annotated_image,omitempty"`
}

// IdentitiesResponse response for the identity listing
type IdentitiesResponse struct {
	Identities []string `json:"identities"`
	Count      int      `json:"count"`
}

// Recognize POST /v1/attendance - mark attendance from a class photo
func (h *AttendanceHandler) Recognize(c *fiber.Ctx) error {
	imageBytes, err := formImage(c, "image", h.maxImageSize)
	if err != nil {
		return err
	}

	rec, err := h.service.Recognize(c.UserContext(), imageBytes, c.QueryBool("annotate", false))
	if err != nil {
		return err
	}

	resp := AttendanceResponse{
		RunID:      rec.RunID,
		Attendance: rec.Record,
		Summary:    rec.Record.Summary(),
		Votes:      rec.Tally,
		Quorum:     rec.Quorum,
		Layers:     rec.Layers,
		Evidence:   rec.Evidence,
		Width:      rec.Width,
		Height:     rec.Height,
		CapturedAt: rec.CapturedAt,
		LatencyMs:  rec.Duration.Milliseconds(),
	}
	if len(rec.Annotated) > 0 {
		resp.AnnotatedImage = base64.StdEncoding.EncodeToString(rec.Annotated)
	}
	return c.JSON(resp)
}

// Enroll POST /v1/identities - enroll or re-enroll an identity
func (h *AttendanceHandler) Enroll(c *fiber.Ctx) error {
	key := c.FormValue("key")
	if key == "" {
		key = domain.IdentityKey(c.FormValue("roll"), c.FormValue("name"))
	}
	if key == "" {
		return domain.ErrValidationFailed.WithError(errors.New("key or roll and name are required"))
	}

	samples, err := formImages(c, h.maxImageSize, "images", "image")
	if err != nil {
		return err
	}

	enrollment, err := h.service.EnrollIdentity(c.UserContext(), key, samples)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(enrollment)
}

// Delete DELETE /v1/identities/:key - remove an identity
func (h *AttendanceHandler) Delete(c *fiber.Ctx) error {
	key, err := url.PathUnescape(c.Params("key"))
	if err != nil || key == "" {
		return domain.ErrValidationFailed.WithError(errors.New("invalid identity key"))
	}

	removed, err := h.service.RemoveIdentity(c.UserContext(), key)
	if err != nil {
		return err
	}
	if !removed {
		return domain.ErrIdentityNotFound
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// List GET /v1/identities - enrolled keys, sorted
func (h *AttendanceHandler) List(c *fiber.Ctx) error {
	keys := h.service.ListIdentities()
	if keys == nil {
		keys = []string{}
	}
	return c.JSON(IdentitiesResponse{Identities: keys, Count: len(keys)})
}

// Reload POST /v1/gallery/reload - pick up gallery changes made elsewhere
func (h *AttendanceHandler) Reload(c *fiber.Ctx) error {
	if err := h.service.Reload(c.UserContext()); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

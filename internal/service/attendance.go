package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/disintegration/imaging"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/audit"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/domain"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/ensemble"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/gallery"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/imageproc"
)

const annotatedJPEGQuality = 90

type IdentityGallery interface {
	Enroll(ctx context.Context, key string, templates map[string]gallery.Template) error
	Delete(ctx context.Context, key string) (bool, error)
	Load(ctx context.Context) error
	Keys() []string
	Len() int
}

type Recognizer interface {
	Recognize(ctx context.Context, img image.Image) (*ensemble.Result, error)
}

type TemplateAggregator interface {
	Aggregate(ctx context.Context, samples []image.Image) (map[string]gallery.Template, error)
}

// Recognition is the answer to one attendance photo
type Recognition struct {
	*ensemble.Result

	Width      int        `json:"width"`
	Height     int        `json:"height"`
	Scale      float64    `json:"scale"`
	CapturedAt *time.Time `json:"captured_at,omitempty"`

	// Annotated is a JPEG of the input with a box around every Present
	// identity; nil unless requested
	Annotated []byte `json:"-"`
}

// Enrollment describes a stored identity
type Enrollment struct {
	Key      string         `json:"key"`
	Replaced bool           `json:"replaced"`
	Samples  int            `json:"samples"`
	Spaces   map[string]int `json:"spaces"`
}

type AttendanceService struct {
	gallery    IdentityGallery
	recognizer Recognizer
	aggregator TemplateAggregator
	preparer   imageproc.Preparer
	auditor    audit.Logger
	logger     *slog.Logger
}

type Option func(*AttendanceService)

// WithPreparer overrides the default in-memory downscaling
func WithPreparer(p imageproc.Preparer) Option {
	return func(s *AttendanceService) {
		s.preparer = p
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *AttendanceService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAuditor records enrollments, removals and attendance runs
func WithAuditor(a audit.Logger) Option {
	return func(s *AttendanceService) {
		if a != nil {
			s.auditor = a
		}
	}
}

func NewAttendanceService(g IdentityGallery, recognizer Recognizer, aggregator TemplateAggregator, opts ...Option) *AttendanceService {
	s := &AttendanceService{
		gallery:    g,
		recognizer: recognizer,
		aggregator: aggregator,
		auditor:    &audit.NoOpLogger{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Recognize marks attendance for every enrolled identity from one photo
func (s *AttendanceService) Recognize(ctx context.Context, imageBytes []byte, annotate bool) (*Recognition, error) {
	decoded, err := imageproc.Decode(imageBytes)
	if err != nil {
		return nil, err
	}

	working, err := s.preparer.Prepare(decoded.Image)
	if err != nil {
		return nil, fmt.Errorf("prepare image: %w", err)
	}
	defer func() {
		if err := working.Release(); err != nil {
			s.logger.Warn("failed to release working image", slog.Any("error", err))
		}
	}()

	result, err := s.recognizer.Recognize(ctx, working.Image)
	if err != nil {
		return nil, fmt.Errorf("recognize: %w", err)
	}

	for i := range result.Evidence {
		result.Evidence[i].Box = working.ToOriginal(result.Evidence[i].Box).Clip(decoded.Image.Bounds())
	}

	bounds := decoded.Image.Bounds()
	rec := &Recognition{
		Result: result,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Scale:  working.Ratio,
	}
	if !decoded.CapturedAt.IsZero() {
		captured := decoded.CapturedAt
		rec.CapturedAt = &captured
	}

	s.recordAudit(ctx, audit.Event{
		EventType: audit.EventAttendanceTaken,
		RunID:     result.RunID,
		Present:   result.Record.Present(),
		Success:   true,
		Metadata:  map[string]string{"quorum": strconv.Itoa(result.Quorum)},
	})

	if annotate {
		rec.Annotated, err = annotateJPEG(decoded.Image, result.Highlights())
		if err != nil {
			return nil, fmt.Errorf("annotate image: %w", err)
		}
	}

	return rec, nil
}

func annotateJPEG(img image.Image, highlights []ensemble.Evidence) ([]byte, error) {
	labels := make([]imageproc.Label, 0, len(highlights))
	for _, ev := range highlights {
		labels = append(labels, imageproc.Label{Box: ev.Box, Text: ev.Key})
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, imageproc.Annotate(img, labels), imaging.JPEG, imaging.JPEGQuality(annotatedJPEGQuality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Enroll stores key from sample photos. It reports true once the identity
// is persisted.
func (s *AttendanceService) Enroll(ctx context.Context, key string, samples [][]byte) (bool, error) {
	if _, err := s.EnrollIdentity(ctx, key, samples); err != nil {
		return false, err
	}
	return true, nil
}

// EnrollIdentity is Enroll with the per-space sample counts. Undecodable
// samples are skipped like samples without a face.
func (s *AttendanceService) EnrollIdentity(ctx context.Context, key string, samples [][]byte) (*Enrollment, error) {
	k, err := domain.ValidateKey(key)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, domain.ErrEnrollmentInsufficientSamples
	}

	images := make([]image.Image, 0, len(samples))
	for i, data := range samples {
		img, err := s.prepareSample(data)
		if err != nil {
			s.logger.Warn("enrollment sample rejected",
				slog.String("key", k),
				slog.Int("sample", i),
				slog.Any("error", err),
			)
			continue
		}
		images = append(images, img)
	}
	if len(images) == 0 {
		return nil, domain.ErrEnrollmentInsufficientSamples.WithError(domain.ErrInvalidImage)
	}

	templates, err := s.aggregator.Aggregate(ctx, images)
	if err != nil {
		return nil, err
	}

	replaced := s.isEnrolled(k)
	if err := s.gallery.Enroll(ctx, k, templates); err != nil {
		return nil, fmt.Errorf("enroll %s: %w", k, err)
	}

	enrollment := &Enrollment{Key: k, Replaced: replaced, Samples: len(samples), Spaces: map[string]int{}}
	for space, t := range templates {
		enrollment.Spaces[space] = t.SampleCount
	}

	s.recordAudit(ctx, audit.Event{
		EventType:   audit.EventIdentityEnrolled,
		IdentityKey: k,
		Success:     true,
		Metadata:    map[string]string{"replaced": strconv.FormatBool(replaced)},
	})

	s.logger.Info("identity enrolled",
		slog.String("key", k),
		slog.Bool("replaced", replaced),
		slog.Int("samples", len(samples)),
		slog.Int("spaces", len(templates)),
	)
	return enrollment, nil
}

// prepareSample decodes and downscales one sample. The scaled copy lives in
// memory, so nothing is left to release.
func (s *AttendanceService) prepareSample(data []byte) (image.Image, error) {
	decoded, err := imageproc.Decode(data)
	if err != nil {
		return nil, err
	}

	working, err := imageproc.Preparer{}.Prepare(decoded.Image)
	if err != nil {
		return nil, err
	}
	return working.Image, nil
}

func (s *AttendanceService) isEnrolled(key string) bool {
	keys := s.gallery.Keys()
	i := sort.SearchStrings(keys, key)
	return i < len(keys) && keys[i] == key
}

// RemoveIdentity deletes key. Reports false when it was not enrolled.
func (s *AttendanceService) RemoveIdentity(ctx context.Context, key string) (bool, error) {
	removed, err := s.gallery.Delete(ctx, key)
	if err != nil {
		return false, fmt.Errorf("remove %s: %w", key, err)
	}
	if removed {
		k := domain.NormalizeKey(key)
		s.recordAudit(ctx, audit.Event{EventType: audit.EventIdentityRemoved, IdentityKey: k, Success: true})
		s.logger.Info("identity removed", slog.String("key", k))
	}
	return removed, nil
}

// ListIdentities returns every enrolled key, sorted
func (s *AttendanceService) ListIdentities() []string {
	return s.gallery.Keys()
}

// IsReady reports whether there is anyone to recognize
func (s *AttendanceService) IsReady() bool {
	return s.gallery.Len() > 0
}

// Reload replaces the in-memory gallery with the persisted one
func (s *AttendanceService) Reload(ctx context.Context) error {
	if err := s.gallery.Load(ctx); err != nil {
		s.recordAudit(ctx, audit.Event{EventType: audit.EventGalleryReloaded, Error: err.Error()})
		return err
	}
	s.recordAudit(ctx, audit.Event{EventType: audit.EventGalleryReloaded, Success: true})
	s.logger.Info("gallery reloaded", slog.Int("identities", s.gallery.Len()))
	return nil
}

func (s *AttendanceService) recordAudit(ctx context.Context, event audit.Event) {
	if err := s.auditor.Log(ctx, event); err != nil {
		s.logger.Warn("audit event dropped", slog.String("event_type", string(event.EventType)), slog.Any("error", err))
	}
}

// Package ensemble turns per-layer face matches into attendance verdicts.
//
// Every layer detects, embeds and matches on its own and casts at most one
// vote per identity. An identity is Present when at least quorum layers
// voted for it. A layer that fails or times out simply casts no votes.
package ensemble

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/domain"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/gallery"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/matcher"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/provider"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/vector"
)

// DefaultLayerTimeout bounds one layer's detection and embedding
const DefaultLayerTimeout = 30 * time.Second

var errLayerTimeout = errors.New("layer timed out")

// Snapshotter is the read side of the gallery
type Snapshotter interface {
	All() gallery.Snapshot
}

// Engine is safe for concurrent use
type Engine struct {
	gallery  Snapshotter
	layers   []Layer
	quorum   int
	timeout  time.Duration
	parallel bool
	logger   *slog.Logger

	// warned[i] is set once layer i's outage has been logged at WARN
	warned []atomic.Bool
}

// Option configures an Engine
type Option func(*Engine)

// WithLayerTimeout overrides DefaultLayerTimeout
func WithLayerTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithParallelLayers runs the layers concurrently
func WithParallelLayers(parallel bool) Option {
	return func(e *Engine) {
		e.parallel = parallel
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine validates the layer list and quorum (1 <= quorum <= len(layers))
func NewEngine(g Snapshotter, layers []Layer, quorum int, opts ...Option) (*Engine, error) {
	if err := validateLayers(layers, quorum); err != nil {
		return nil, err
	}

	e := &Engine{
		gallery: g,
		layers:  append([]Layer(nil), layers...),
		quorum:  quorum,
		timeout: DefaultLayerTimeout,
		logger:  slog.Default(),
		warned:  make([]atomic.Bool, len(layers)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Layers returns the configured layers in declared order
func (e *Engine) Layers() []Layer {
	return append([]Layer(nil), e.layers...)
}

// Quorum returns the number of votes an identity needs to be Present
func (e *Engine) Quorum() int {
	return e.quorum
}

// Recognize decides attendance for every gallery identity from one image.
// An empty gallery yields an empty record without calling any backend.
// When every layer that ran was unavailable (backend down or timed out),
// the error is ErrBackendUnavailable.
func (e *Engine) Recognize(ctx context.Context, img image.Image) (*Result, error) {
	start := time.Now()
	snapshot := e.gallery.All()

	result := &Result{
		RunID:    uuid.NewString(),
		Record:   domain.AttendanceRecord{},
		Tally:    VoteTally{},
		Quorum:   e.quorum,
		Layers:   make([]LayerReport, len(e.layers)),
		Evidence: []Evidence{},
	}

	if snapshot.Len() == 0 {
		e.logger.Warn("recognition skipped, gallery is empty", slog.String("run_id", result.RunID))
		result.Layers = nil
		result.Duration = time.Since(start)
		return result, nil
	}

	outcomes := make([]layerOutcome, len(e.layers))
	if e.parallel {
		var wg sync.WaitGroup
		for i := range e.layers {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				outcomes[i] = e.runLayer(ctx, i, img, snapshot)
			}(i)
		}
		wg.Wait()
	} else {
		for i := range e.layers {
			if ctx.Err() != nil {
				break
			}
			outcomes[i] = e.runLayer(ctx, i, img, snapshot)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("recognize: %w", err)
	}

	attempted, failed, unavailable := 0, 0, 0
	var lastErr error
	for i, o := range outcomes {
		result.Layers[i] = o.report
		if o.report.Skipped {
			continue
		}
		attempted++
		if o.report.err != nil {
			failed++
			if isUnavailable(o.report.err) {
				unavailable++
				lastErr = o.report.err
			}
			continue
		}
		result.Tally.Merge(o.tally)
		result.Evidence = append(result.Evidence, o.evidence...)
	}

	if attempted > 0 && unavailable == attempted {
		return nil, domain.ErrBackendUnavailable.WithError(fmt.Errorf("all %d layers unavailable: %w", unavailable, lastErr))
	}

	result.Record = ApplyQuorum(snapshot.Keys(), result.Tally, e.quorum)
	result.Duration = time.Since(start)

	summary := result.Record.Summary()
	e.logger.Info("recognition finished",
		slog.String("run_id", result.RunID),
		slog.Int("identities", summary.Total),
		slog.Int("present", summary.Present),
		slog.Int("failed_layers", failed),
		slog.Duration("duration", result.Duration),
	)
	return result, nil
}

// isUnavailable reports failures that mean the backend could not serve the
// layer at all. Other failures still cast zero votes but do not escalate.
func isUnavailable(err error) bool {
	return errors.Is(err, domain.ErrBackendUnavailable) || errors.Is(err, errLayerTimeout)
}

type layerOutcome struct {
	tally    VoteTally
	evidence []Evidence
	report   LayerReport
}

// runLayer evaluates layer i under the layer timeout. A layer goroutine that
// ignores its context is abandoned and reported as timed out.
func (e *Engine) runLayer(ctx context.Context, i int, img image.Image, snapshot gallery.Snapshot) layerOutcome {
	layer := e.layers[i]
	start := time.Now()

	entries := snapshot.Entries(layer.Space())
	if len(entries) == 0 {
		e.logger.Debug("layer skipped, no templates in its space",
			slog.String("layer", layer.Name),
			slog.String("space", layer.Space()),
		)
		return layerOutcome{report: LayerReport{Name: layer.Name, Space: layer.Space(), Skipped: true, Votes: []string{}}}
	}

	lctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	done := make(chan layerOutcome, 1)
	go func() {
		done <- e.evaluate(lctx, layer, img, entries)
	}()

	var out layerOutcome
	select {
	case out = <-done:
	case <-lctx.Done():
		out = layerOutcome{report: LayerReport{TimedOut: true, err: errLayerTimeout}}
	}

	// A layer that returned because its deadline passed is a timeout too
	if out.report.err != nil && errors.Is(lctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		out.report.TimedOut = true
		out.report.err = fmt.Errorf("%w after %s: %v", errLayerTimeout, e.timeout, out.report.err)
	}

	out.report.Name = layer.Name
	out.report.Space = layer.Space()
	out.report.Latency = time.Since(start)
	if out.report.Votes == nil {
		out.report.Votes = []string{}
	}

	if out.report.err != nil {
		out.report.Error = out.report.err.Error()
		out.tally, out.evidence = nil, nil
		e.logLayerFailure(i, out.report)
	} else {
		e.warned[i].Store(false)
	}
	return out
}

func (e *Engine) evaluate(ctx context.Context, layer Layer, img image.Image, entries []gallery.Entry) layerOutcome {
	out := layerOutcome{tally: VoteTally{}}

	faces, err := layer.Detector.Detect(ctx, img)
	if err != nil && layer.Fallback != nil && ctx.Err() == nil {
		e.logger.Debug("primary detector failed, trying fallback",
			slog.String("layer", layer.Name),
			slog.Any("error", err),
		)
		out.report.UsedFallback = true
		faces, err = layer.Fallback.Detect(ctx, img)
	}
	if err != nil {
		out.report.err = fmt.Errorf("detect: %w", err)
		return out
	}
	out.report.Faces = len(faces)

	best := make(map[string]Evidence)
	var embedErr error
	for _, face := range faces {
		if ctx.Err() != nil {
			out.report.err = ctx.Err()
			return out
		}

		raw, err := layer.Embedder.Embed(ctx, face.Crop)
		if err != nil {
			embedErr = err
			e.logger.Debug("embedding failed, face skipped",
				slog.String("layer", layer.Name),
				slog.Any("error", err),
			)
			continue
		}
		probe, err := vector.Normalize(raw)
		if err != nil {
			embedErr = domain.ErrEmbeddingFailure.WithError(err)
			continue
		}
		out.report.Embedded++

		m, ok, err := matcher.Best(probe, entries)
		if err != nil {
			embedErr = domain.ErrEmbeddingFailure.WithError(err)
			continue
		}
		if !ok || m.Similarity < layer.Threshold {
			continue
		}

		if cur, seen := best[m.Key]; !seen || m.Similarity > cur.Similarity {
			best[m.Key] = Evidence{Layer: layer.Name, Key: m.Key, Similarity: m.Similarity, Box: face.Box}
		}
	}

	// Faces were found but the embedding backend never answered
	if len(faces) > 0 && out.report.Embedded == 0 && errors.Is(embedErr, domain.ErrBackendUnavailable) {
		out.report.err = fmt.Errorf("embed: %w", embedErr)
		return out
	}
	if ctx.Err() != nil {
		out.report.err = ctx.Err()
		return out
	}

	// one vote per identity per layer
	for _, entry := range entries {
		if ev, ok := best[entry.Key]; ok {
			out.tally.Add(entry.Key)
			out.evidence = append(out.evidence, ev)
			out.report.Votes = append(out.report.Votes, entry.Key)
		}
	}
	return out
}

func (e *Engine) logLayerFailure(i int, report LayerReport) {
	attrs := []any{
		slog.String("layer", report.Name),
		slog.Bool("timed_out", report.TimedOut),
		slog.String("error", report.Error),
	}
	if e.warned[i].CompareAndSwap(false, true) {
		e.logger.Warn("layer unavailable, casting no votes", attrs...)
		return
	}
	e.logger.Debug("layer still unavailable", attrs...)
}

// Warmup pings every backend that supports health checks. It fails only
// when no layer is reachable.
func (e *Engine) Warmup(ctx context.Context) error {
	var errs []error
	reachable := 0

	for _, layer := range e.layers {
		err := ping(ctx, layer.Detector)
		if err != nil && layer.Fallback != nil {
			err = ping(ctx, layer.Fallback)
		}
		if err == nil {
			err = ping(ctx, layer.Embedder)
		}

		if err != nil {
			e.logger.Warn("layer backend unreachable",
				slog.String("layer", layer.Name),
				slog.Any("error", err),
			)
			errs = append(errs, fmt.Errorf("layer %s: %w", layer.Name, err))
			continue
		}
		reachable++
	}

	if reachable == 0 {
		return domain.ErrBackendUnavailable.WithError(errors.Join(errs...))
	}

	e.logger.Info("ensemble ready",
		slog.Int("layers", len(e.layers)),
		slog.Int("reachable", reachable),
		slog.Int("quorum", e.quorum),
	)
	return nil
}

func ping(ctx context.Context, backend any) error {
	hc, ok := backend.(provider.HealthChecker)
	if !ok {
		return nil
	}
	return hc.Ping(ctx)
}

// Package enroll builds identity templates from a handful of sample photos.
package enroll

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/domain"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/ensemble"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/gallery"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/provider"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/vector"
)

var errNoFace = errors.New("no face in sample")

// pipeline is the detector and embedder used to fill one embedding space
type pipeline struct {
	layer string
	space string

	detector provider.Detector
	fallback provider.Detector
	embedder provider.Embedder
}

// Aggregator averages per-sample embeddings into one template per space
type Aggregator struct {
	pipelines []pipeline
	logger    *slog.Logger
}

// NewAggregator picks, for every embedding space, the first layer in
// declared order that produces it
func NewAggregator(layers []ensemble.Layer, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}

	seen := make(map[string]bool)
	a := &Aggregator{logger: logger}
	for _, l := range layers {
		space := l.Space()
		if seen[space] {
			continue
		}
		seen[space] = true
		a.pipelines = append(a.pipelines, pipeline{
			layer:    l.Name,
			space:    space,
			detector: l.Detector,
			fallback: l.Fallback,
			embedder: l.Embedder,
		})
	}
	return a
}

// Spaces returns the embedding spaces the aggregator fills
func (a *Aggregator) Spaces() []string {
	out := make([]string, 0, len(a.pipelines))
	for _, p := range a.pipelines {
		out = append(out, p.space)
	}
	return out
}

// Aggregate returns one renormalized mean template per space. Samples with no
// face or a failed embedding are skipped; a space without usable samples is
// left out. It fails only when no space produced a template.
func (a *Aggregator) Aggregate(ctx context.Context, samples []image.Image) (map[string]gallery.Template, error) {
	if len(samples) == 0 {
		return nil, domain.ErrEnrollmentInsufficientSamples
	}

	templates := make(map[string]gallery.Template, len(a.pipelines))
	for _, p := range a.pipelines {
		t, ok, err := a.aggregateSpace(ctx, p, samples)
		if err != nil {
			return nil, err
		}
		if ok {
			templates[p.space] = t
		}
	}

	if len(templates) == 0 {
		return nil, domain.ErrEnrollmentInsufficientSamples
	}
	return templates, nil
}

func (a *Aggregator) aggregateSpace(ctx context.Context, p pipeline, samples []image.Image) (gallery.Template, bool, error) {
	var mean vector.Mean

	for i, img := range samples {
		if err := ctx.Err(); err != nil {
			return gallery.Template{}, false, fmt.Errorf("enroll: %w", err)
		}

		v, err := a.embedSample(ctx, p, img)
		if err != nil {
			a.logger.Debug("enrollment sample skipped",
				slog.String("layer", p.layer),
				slog.String("space", p.space),
				slog.Int("sample", i),
				slog.Any("error", err),
			)
			continue
		}

		if err := mean.Add(v); err != nil {
			a.logger.Warn("enrollment sample has a different dimension",
				slog.String("space", p.space),
				slog.Int("sample", i),
			)
			continue
		}
	}

	if mean.Count() == 0 {
		a.logger.Warn("no usable enrollment sample for space", slog.String("space", p.space))
		return gallery.Template{}, false, nil
	}

	unit, err := mean.Unit()
	if err != nil {
		// samples that cancel out leave nothing to store
		a.logger.Warn("enrollment mean is degenerate", slog.String("space", p.space), slog.Any("error", err))
		return gallery.Template{}, false, nil
	}
	return gallery.Template{Vector: unit, SampleCount: mean.Count()}, true, nil
}

// embedSample embeds the largest face of one sample
func (a *Aggregator) embedSample(ctx context.Context, p pipeline, img image.Image) ([]float64, error) {
	faces, err := p.detector.Detect(ctx, img)
	if err != nil && p.fallback != nil && ctx.Err() == nil {
		faces, err = p.fallback.Detect(ctx, img)
	}
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}

	idx := provider.Largest(faces)
	if idx < 0 {
		return nil, errNoFace
	}

	raw, err := p.embedder.Embed(ctx, faces[idx].Crop)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	v, err := vector.Normalize(raw)
	if err != nil {
		return nil, domain.ErrEmbeddingFailure.WithError(err)
	}
	return v, nil
}

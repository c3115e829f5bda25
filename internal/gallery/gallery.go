// Package gallery keeps the enrolled identities and their templates.
//
// Templates are grouped by embedding space: a vector produced by one model is
// never compared with a vector produced by another. Within a space every key
// has exactly one unit-length template.
package gallery

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/domain"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/vector"
)

// Gallery is safe for concurrent use. Readers get copies only.
//
// persist serializes every operation that talks to the store (Load, Save,
// Enroll, Delete) so a reload can never swap in a read taken before a
// mutation committed. mu guards spaces; readers only take mu. Lock order is
// persist then mu.
type Gallery struct {
	persist sync.Mutex
	mu      sync.RWMutex
	spaces  map[string]map[string]Template
	store   Store
	logger  *slog.Logger
}

// New creates an empty gallery backed by store. Call Load to read what the
// store already holds.
func New(store Store, logger *slog.Logger) *Gallery {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gallery{
		spaces: make(map[string]map[string]Template),
		store:  store,
		logger: logger,
	}
}

// Add stores or overwrites key's template in space. The vector is
// renormalized; zero and non-finite vectors are rejected.
func (g *Gallery) Add(space, key string, v []float64, sampleCount int) error {
	k, err := domain.ValidateKey(key)
	if err != nil {
		return err
	}
	t, err := g.template(v, sampleCount)
	if err != nil {
		return err
	}

	g.persist.Lock()
	defer g.persist.Unlock()

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.checkDimension(space, k, len(t.Vector)); err != nil {
		return err
	}
	g.put(space, k, t)
	return nil
}

// Remove drops key from every space and reports whether it existed
func (g *Gallery) Remove(key string) bool {
	k := domain.NormalizeKey(key)

	g.persist.Lock()
	defer g.persist.Unlock()

	g.mu.Lock()
	defer g.mu.Unlock()

	_, ok := g.remove(k)
	return ok
}

// Get returns a copy of key's template in space
func (g *Gallery) Get(space, key string) (Template, bool) {
	k := domain.NormalizeKey(key)

	g.mu.RLock()
	defer g.mu.RUnlock()

	t, ok := g.spaces[space][k]
	if !ok {
		return Template{}, false
	}
	return Template{Vector: append([]float64(nil), t.Vector...), SampleCount: t.SampleCount}, true
}

// All returns a snapshot of the whole gallery
func (g *Gallery) All() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return newSnapshot(g.spaces)
}

// Keys returns the sorted identity keys
func (g *Gallery) Keys() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.keysLocked()
}

// Len returns the number of identities
func (g *Gallery) Len() int {
	return len(g.Keys())
}

// Load replaces the in-memory state with the store contents. On any error
// the previous state is kept.
func (g *Gallery) Load(ctx context.Context) error {
	g.persist.Lock()
	defer g.persist.Unlock()

	records, err := g.store.Load(ctx)
	if err != nil {
		return domain.ErrGalleryIO.WithError(fmt.Errorf("load gallery: %w", err))
	}

	spaces := make(map[string]map[string]Template)
	dims := make(map[string]int)
	for _, r := range records {
		k, err := domain.ValidateKey(r.Key)
		if err != nil || k != r.Key {
			return domain.ErrGalleryIO.WithError(fmt.Errorf("load gallery: invalid key %q", r.Key))
		}
		if _, dup := spaces[r.Space][k]; dup {
			return domain.ErrGalleryIO.WithError(fmt.Errorf("load gallery: duplicate identity %q in space %q", k, r.Space))
		}
		t, err := g.template(r.Vector, r.SampleCount)
		if err != nil {
			return domain.ErrGalleryIO.WithError(fmt.Errorf("load gallery: identity %q: %w", k, err))
		}
		if d, ok := dims[r.Space]; ok && d != len(t.Vector) {
			return domain.ErrGalleryIO.WithError(fmt.Errorf("load gallery: identity %q: %w", k, vector.ErrDimensionMismatch))
		}
		dims[r.Space] = len(t.Vector)

		if spaces[r.Space] == nil {
			spaces[r.Space] = make(map[string]Template)
		}
		spaces[r.Space][k] = t
	}

	g.mu.Lock()
	g.spaces = spaces
	n := len(g.keysLocked())
	g.mu.Unlock()

	g.logger.Info("gallery loaded",
		slog.Int("identities", n),
		slog.Int("templates", len(records)),
	)
	return nil
}

// Save writes the in-memory state to the store
func (g *Gallery) Save(ctx context.Context) error {
	g.persist.Lock()
	defer g.persist.Unlock()

	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.persistLocked(ctx)
}

// Enroll replaces every template of key with templates (space -> template)
// and persists. If persisting fails the previous templates are restored.
func (g *Gallery) Enroll(ctx context.Context, key string, templates map[string]Template) error {
	k, err := domain.ValidateKey(key)
	if err != nil {
		return err
	}
	if len(templates) == 0 {
		return domain.ErrEnrollmentInsufficientSamples
	}

	normalized := make(map[string]Template, len(templates))
	for space, t := range templates {
		nt, err := g.template(t.Vector, t.SampleCount)
		if err != nil {
			return err
		}
		normalized[space] = nt
	}

	g.persist.Lock()
	defer g.persist.Unlock()

	g.mu.Lock()
	defer g.mu.Unlock()

	for space, t := range normalized {
		if err := g.checkDimension(space, k, len(t.Vector)); err != nil {
			return err
		}
	}

	previous, _ := g.remove(k)
	for space, t := range normalized {
		g.put(space, k, t)
	}

	if err := g.persistLocked(ctx); err != nil {
		g.remove(k)
		for space, t := range previous {
			g.put(space, k, t)
		}
		return err
	}
	return nil
}

// Delete removes key and persists. Reports false when key was not enrolled.
func (g *Gallery) Delete(ctx context.Context, key string) (bool, error) {
	k := domain.NormalizeKey(key)

	g.persist.Lock()
	defer g.persist.Unlock()

	g.mu.Lock()
	defer g.mu.Unlock()

	previous, ok := g.remove(k)
	if !ok {
		return false, nil
	}

	if err := g.persistLocked(ctx); err != nil {
		for space, t := range previous {
			g.put(space, k, t)
		}
		return false, err
	}
	return true, nil
}

func (g *Gallery) persistLocked(ctx context.Context) error {
	if err := g.store.Save(ctx, g.recordsLocked()); err != nil {
		return domain.ErrGalleryIO.WithError(fmt.Errorf("save gallery: %w", err))
	}
	return nil
}

// recordsLocked returns records ordered by space then key
func (g *Gallery) recordsLocked() []Record {
	var records []Record
	for space, byKey := range g.spaces {
		for key, t := range byKey {
			records = append(records, Record{
				Space:       space,
				Key:         key,
				Vector:      append([]float64(nil), t.Vector...),
				SampleCount: t.SampleCount,
			})
		}
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Space != records[j].Space {
			return records[i].Space < records[j].Space
		}
		return records[i].Key < records[j].Key
	})
	return records
}

func (g *Gallery) keysLocked() []string {
	seen := make(map[string]struct{})
	for _, byKey := range g.spaces {
		for key := range byKey {
			seen[key] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (g *Gallery) checkDimension(space, key string, dim int) error {
	for other, t := range g.spaces[space] {
		if other == key {
			continue
		}
		if len(t.Vector) != dim {
			return domain.ErrInvalidTemplate.WithError(
				fmt.Errorf("space %s holds %d-d templates, got %d: %w", space, len(t.Vector), dim, vector.ErrDimensionMismatch))
		}
		return nil
	}
	return nil
}

func (g *Gallery) put(space, key string, t Template) {
	if g.spaces[space] == nil {
		g.spaces[space] = make(map[string]Template)
	}
	g.spaces[space][key] = t
}

// remove drops key everywhere and returns what was removed
func (g *Gallery) remove(key string) (map[string]Template, bool) {
	removed := make(map[string]Template)
	for space, byKey := range g.spaces {
		if t, ok := byKey[key]; ok {
			removed[space] = t
			delete(byKey, key)
			if len(byKey) == 0 {
				delete(g.spaces, space)
			}
		}
	}
	return removed, len(removed) > 0
}

// template builds a template with newTemplate and passes it through the
// store's Quantizer, so the in-memory template equals what the store reads back
func (g *Gallery) template(v []float64, sampleCount int) (Template, error) {
	t, err := newTemplate(v, sampleCount)
	if err != nil {
		return Template{}, err
	}
	q, ok := g.store.(Quantizer)
	if !ok {
		return t, nil
	}
	t.Vector = q.Quantize(t.Vector)
	return t, nil
}

// newTemplate copies v, renormalizing unless it already has unit length so
// that persisted templates load back bit for bit
func newTemplate(v []float64, sampleCount int) (Template, error) {
	unit, err := vector.Normalize(v)
	if err != nil {
		return Template{}, domain.ErrInvalidTemplate.WithError(err)
	}
	if vector.IsUnit(v) {
		unit = append(unit[:0], v...)
	}
	if sampleCount < 1 {
		sampleCount = 1
	}
	return Template{Vector: unit, SampleCount: sampleCount}, nil
}


package gallery

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/domain"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/vector"
)

const (
	spaceA = "deepface/Facenet512"
	spaceB = "insightface/buffalo_l"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Load(ctx context.Context) ([]Record, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Record), args.Error(1)
}

func (m *mockStore) Save(ctx context.Context, records []Record) error {
	args := m.Called(ctx, records)
	return args.Error(0)
}

// memStore keeps the last saved blob in memory
type memStore struct {
	mu      sync.Mutex
	records []Record
	saves   int
}

func (s *memStore) Load(ctx context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records...), nil
}

func (s *memStore) Save(ctx context.Context, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append([]Record(nil), records...)
	s.saves++
	return nil
}

func TestGallery_AddNormalizes(t *testing.T) {
	g := New(&memStore{}, nil)

	require.NoError(t, g.Add(spaceA, "12_Ana", []float64{3, 4}, 2))

	tmpl, ok := g.Get(spaceA, "12_Ana")
	require.True(t, ok)
	assert.InDeltaSlice(t, []float64{0.6, 0.8}, tmpl.Vector, 1e-12)
	assert.True(t, vector.IsUnit(tmpl.Vector))
	assert.Equal(t, 2, tmpl.SampleCount)
}

func TestGallery_AddRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		vec     []float64
		wantErr error
	}{
		{"zero vector", "1_A", []float64{0, 0, 0}, domain.ErrInvalidTemplate},
		{"empty vector", "1_A", nil, domain.ErrInvalidTemplate},
		{"empty key", "   ", []float64{1, 0}, domain.ErrInvalidIdentityKey},
		{"path in key", "../x", []float64{1, 0}, domain.ErrInvalidIdentityKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(&memStore{}, nil)
			err := g.Add(spaceA, tt.key, tt.vec, 1)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, g.Len())
		})
	}
}

func TestGallery_DimensionMismatchWithinSpace(t *testing.T) {
	g := New(&memStore{}, nil)
	require.NoError(t, g.Add(spaceA, "a", []float64{1, 0, 0}, 1))

	err := g.Add(spaceA, "b", []float64{1, 0}, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidTemplate)

	// another space has its own dimension
	require.NoError(t, g.Add(spaceB, "b", []float64{1, 0}, 1))
	// overwriting the only entry with a new dimension is allowed
	require.NoError(t, g.Add(spaceA, "a", []float64{0, 1}, 1))
}

func TestGallery_KeysAcrossSpaces(t *testing.T) {
	g := New(&memStore{}, nil)
	require.NoError(t, g.Add(spaceA, "b", []float64{1, 0}, 1))
	require.NoError(t, g.Add(spaceB, "b", []float64{0, 1}, 1))
	require.NoError(t, g.Add(spaceB, "a", []float64{1, 1}, 1))

	assert.Equal(t, []string{"a", "b"}, g.Keys())
	assert.Equal(t, 2, g.Len())

	assert.True(t, g.Remove("b"))
	assert.False(t, g.Remove("b"))
	_, ok := g.Get(spaceA, "b")
	assert.False(t, ok)
	assert.Equal(t, []string{"a"}, g.Keys())
}

func TestGallery_SnapshotIsACopy(t *testing.T) {
	g := New(&memStore{}, nil)
	require.NoError(t, g.Add(spaceA, "b", []float64{0, 1}, 1))
	require.NoError(t, g.Add(spaceA, "a", []float64{1, 0}, 1))

	first := g.All()
	second := g.All()
	assert.Equal(t, first, second, "no-op reads return identical snapshots")

	entries := first.Entries(spaceA)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Key, "entries are sorted by key")
	entries[0].Vector[0] = 42

	require.NoError(t, g.Add(spaceA, "c", []float64{1, 1}, 1))

	assert.Equal(t, 2, second.Len(), "later writes are not visible")
	tmpl, _ := g.Get(spaceA, "a")
	assert.Equal(t, []float64{1, 0}, tmpl.Vector, "mutating a snapshot does not reach the gallery")
	assert.Equal(t, []string{spaceA}, g.All().Spaces())
}

func TestGallery_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gallery", "templates.json")
	ctx := context.Background()

	g := New(NewFileStore(path), nil)
	require.NoError(t, g.Add(spaceA, "12_Ana", []float64{0.1, 0.2, 0.3, 0.4}, 3))
	require.NoError(t, g.Add(spaceA, "7_Bruno", []float64{-1, 2, -3, 4}, 1))
	require.NoError(t, g.Add(spaceB, "12_Ana", []float64{5, 5}, 2))
	require.NoError(t, g.Save(ctx))

	fresh := New(NewFileStore(path), nil)
	require.NoError(t, fresh.Load(ctx))

	assert.Equal(t, g.All(), fresh.All())
	for _, space := range fresh.All().Spaces() {
		for _, e := range fresh.All().Entries(space) {
			assert.True(t, vector.IsUnit(e.Vector), "%s/%s", space, e.Key)
		}
	}

	// idempotent
	require.NoError(t, fresh.Load(ctx))
	require.NoError(t, fresh.Save(ctx))
	require.NoError(t, fresh.Save(ctx))
	assert.Equal(t, g.All(), fresh.All())
}

func TestGallery_LoadMissingFileIsEmpty(t *testing.T) {
	g := New(NewFileStore(filepath.Join(t.TempDir(), "none.json")), nil)
	require.NoError(t, g.Load(context.Background()))
	assert.Zero(t, g.Len())
}

func TestGallery_LoadFailureKeepsState(t *testing.T) {
	tests := []struct {
		name    string
		records []Record
		err     error
	}{
		{name: "store error", err: errors.New("disk on fire")},
		{
			name: "duplicate identity",
			records: []Record{
				{Space: spaceA, Key: "a", Vector: []float64{1, 0}, SampleCount: 1},
				{Space: spaceA, Key: "a", Vector: []float64{0, 1}, SampleCount: 1},
			},
		},
		{
			name:    "zero template",
			records: []Record{{Space: spaceA, Key: "a", Vector: []float64{0, 0}, SampleCount: 1}},
		},
		{
			name: "mixed dimensions",
			records: []Record{
				{Space: spaceA, Key: "a", Vector: []float64{1, 0}, SampleCount: 1},
				{Space: spaceA, Key: "b", Vector: []float64{1, 0, 0}, SampleCount: 1},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(mockStore)
			store.On("Load", mock.Anything).Return(tt.records, tt.err)

			g := New(store, nil)
			require.NoError(t, g.Add(spaceA, "kept", []float64{1, 0}, 1))

			err := g.Load(context.Background())
			assert.ErrorIs(t, err, domain.ErrGalleryIO)
			assert.Equal(t, []string{"kept"}, g.Keys())
			store.AssertExpectations(t)
		})
	}
}

func TestGallery_EnrollReplacesWholesale(t *testing.T) {
	store := &memStore{}
	g := New(store, nil)
	ctx := context.Background()

	require.NoError(t, g.Add(spaceA, "a", []float64{1, 0}, 5))
	require.NoError(t, g.Add(spaceB, "a", []float64{1, 0}, 5))

	require.NoError(t, g.Enroll(ctx, "a", map[string]Template{
		spaceA: {Vector: []float64{0, 2}, SampleCount: 2},
	}))

	tmpl, ok := g.Get(spaceA, "a")
	require.True(t, ok)
	assert.Equal(t, []float64{0, 1}, tmpl.Vector)
	_, ok = g.Get(spaceB, "a")
	assert.False(t, ok, "templates of spaces not re-enrolled are dropped")

	assert.Equal(t, 1, store.saves)
	require.Len(t, store.records, 1)
	assert.Equal(t, Record{Space: spaceA, Key: "a", Vector: []float64{0, 1}, SampleCount: 2}, store.records[0])
}

func TestGallery_EnrollRollsBackOnSaveFailure(t *testing.T) {
	store := new(mockStore)
	store.On("Save", mock.Anything, mock.Anything).Return(errors.New("read-only filesystem"))

	g := New(store, nil)
	require.NoError(t, g.Add(spaceA, "a", []float64{1, 0}, 3))
	before := g.All()

	err := g.Enroll(context.Background(), "a", map[string]Template{spaceA: {Vector: []float64{0, 1}, SampleCount: 1}})
	assert.ErrorIs(t, err, domain.ErrGalleryIO)
	assert.Equal(t, before, g.All())

	err = g.Enroll(context.Background(), "new", map[string]Template{spaceA: {Vector: []float64{0, 1}, SampleCount: 1}})
	assert.ErrorIs(t, err, domain.ErrGalleryIO)
	assert.Equal(t, before, g.All())
}

func TestGallery_EnrollRejectsEmpty(t *testing.T) {
	g := New(&memStore{}, nil)
	err := g.Enroll(context.Background(), "a", nil)
	assert.ErrorIs(t, err, domain.ErrEnrollmentInsufficientSamples)
}

func TestGallery_Delete(t *testing.T) {
	store := &memStore{}
	g := New(store, nil)
	ctx := context.Background()
	require.NoError(t, g.Add(spaceA, "a", []float64{1, 0}, 1))

	ok, err := g.Delete(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, store.saves)

	ok, err = g.Delete(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, g.Len())
	assert.Empty(t, store.records)
}

func TestGallery_DeleteRollsBack(t *testing.T) {
	store := new(mockStore)
	store.On("Save", mock.Anything, mock.Anything).Return(errors.New("boom"))

	g := New(store, nil)
	require.NoError(t, g.Add(spaceA, "a", []float64{1, 0}, 1))

	ok, err := g.Delete(context.Background(), "a")
	assert.False(t, ok)
	assert.ErrorIs(t, err, domain.ErrGalleryIO)
	assert.Equal(t, []string{"a"}, g.Keys())
}

func TestGallery_ConcurrentReadersAndWriters(t *testing.T) {
	g := New(&memStore{}, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = g.Enroll(ctx, "k", map[string]Template{spaceA: {Vector: []float64{float64(i + 1), 1}, SampleCount: 1}})
		}(i)
		go func() {
			defer wg.Done()
			for _, e := range g.All().Entries(spaceA) {
				assert.True(t, vector.IsUnit(e.Vector))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, []string{"k"}, g.Keys())
}

// blockingStore holds its first Load open until release is closed
type blockingStore struct {
	memStore
	once    sync.Once
	loading chan struct{}
	release chan struct{}
}

func newBlockingStore() *blockingStore {
	return &blockingStore{loading: make(chan struct{}), release: make(chan struct{})}
}

func (s *blockingStore) Load(ctx context.Context) ([]Record, error) {
	records, err := s.memStore.Load(ctx)
	first := false
	s.once.Do(func() { first = true })
	if first {
		close(s.loading)
		<-s.release
	}
	return records, err
}

func TestGallery_ReloadDuringEnrollKeepsEnrollment(t *testing.T) {
	store := newBlockingStore()
	g := New(store, nil)
	ctx := context.Background()

	require.NoError(t, g.Enroll(ctx, "1_ana", map[string]Template{spaceA: {Vector: []float64{1, 0}, SampleCount: 1}}))

	loadErr := make(chan error, 1)
	go func() { loadErr <- g.Load(ctx) }()
	<-store.loading

	enrollErr := make(chan error, 1)
	go func() {
		enrollErr <- g.Enroll(ctx, "2_bia", map[string]Template{spaceA: {Vector: []float64{0, 1}, SampleCount: 1}})
	}()

	close(store.release)
	require.NoError(t, <-loadErr)
	require.NoError(t, <-enrollErr)

	assert.Equal(t, []string{"1_ana", "2_bia"}, g.Keys())

	deleted, err := g.Delete(ctx, "1_ana")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, []string{"2_bia"}, g.Keys())

	records, err := store.memStore.Load(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "2_bia", records[0].Key)
}

func TestGallery_ConcurrentSaveAndEnroll(t *testing.T) {
	store := &memStore{}
	g := New(store, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i))
			assert.NoError(t, g.Enroll(ctx, key, map[string]Template{spaceA: {Vector: []float64{1, float64(i)}, SampleCount: 1}}))
		}(i)
		go func() {
			defer wg.Done()
			assert.NoError(t, g.Save(ctx))
		}()
	}
	wg.Wait()

	// the last write to the store always reflects every committed enrollment
	records, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 8)
	assert.Equal(t, 8, g.Len())
}

// halfStore persists vectors at float32 precision
type halfStore struct {
	memStore
}

func (s *halfStore) Quantize(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(float32(x))
	}
	return out
}

func (s *halfStore) Save(ctx context.Context, records []Record) error {
	for i := range records {
		records[i].Vector = s.Quantize(records[i].Vector)
	}
	return s.memStore.Save(ctx, records)
}

func TestGallery_QuantizingStoreRoundTripsExactly(t *testing.T) {
	store := &halfStore{}
	g := New(store, nil)
	ctx := context.Background()

	require.NoError(t, g.Enroll(ctx, "1_ana", map[string]Template{
		spaceA: {Vector: []float64{0.1, 0.2, 0.3}, SampleCount: 3},
	}))
	before, ok := g.Get(spaceA, "1_ana")
	require.True(t, ok)

	require.NoError(t, g.Load(ctx))
	after, ok := g.Get(spaceA, "1_ana")
	require.True(t, ok)

	assert.Equal(t, before, after)
	assert.True(t, vector.IsUnit(after.Vector))
}

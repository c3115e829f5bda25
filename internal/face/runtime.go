package face

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/audit"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/config"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/database"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/enroll"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/ensemble"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/gallery"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/imageproc"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/repository"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/service"
)

// Runtime is everything a process needs to recognize and enroll
type Runtime struct {
	Gallery *gallery.Gallery
	Engine  *ensemble.Engine
	Service *service.AttendanceService
	// Pool is nil with the file gallery backend
	Pool *pgxpool.Pool
}

// Close releases the database pool, if any
func (r *Runtime) Close() {
	if r.Pool != nil {
		r.Pool.Close()
	}
}

// NewGalleryStore opens the store selected by cfg.GalleryBackend
func NewGalleryStore(ctx context.Context, cfg *config.Config) (gallery.Store, *pgxpool.Pool, error) {
	switch cfg.GalleryBackend {
	case config.GalleryBackendFile:
		return gallery.NewFileStore(cfg.GalleryPath), nil, nil
	case config.GalleryBackendPostgres:
		pool, err := database.NewPgxPool(ctx, database.DefaultPoolConfig(cfg.DatabaseURL))
		if err != nil {
			return nil, nil, err
		}
		return repository.NewGalleryStore(pool), pool, nil
	default:
		return nil, nil, fmt.Errorf("unknown gallery backend: %s", cfg.GalleryBackend)
	}
}

// Bootstrap loads the gallery and the layer file and wires the engine, the
// enrollment aggregator and the attendance service together
func Bootstrap(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...FactoryOption) (*Runtime, error) {
	store, pool, err := NewGalleryStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	rt := &Runtime{Pool: pool}

	rt.Gallery = gallery.New(store, logger)
	if err := rt.Gallery.Load(ctx); err != nil {
		rt.Close()
		return nil, err
	}

	spec, err := config.LoadLayers(cfg.LayersFile, cfg.Quorum)
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.Engine, err = NewFactory(cfg, opts...).NewEngine(ctx, spec, rt.Gallery, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.Service = service.NewAttendanceService(
		rt.Gallery,
		rt.Engine,
		enroll.NewAggregator(rt.Engine.Layers(), logger),
		service.WithPreparer(imageproc.Preparer{SpoolDir: cfg.SpoolDir}),
		service.WithAuditor(audit.NewSlogLogger(logger)),
		service.WithLogger(logger),
	)

	logger.Info("attendance engine ready",
		slog.Int("layers", len(rt.Engine.Layers())),
		slog.Int("quorum", rt.Engine.Quorum()),
		slog.Int("identities", rt.Gallery.Len()),
		slog.String("gallery_backend", cfg.GalleryBackend),
	)

	return rt, nil
}

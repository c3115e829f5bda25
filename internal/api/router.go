package api

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	swagger "github.com/go-swagno/swagno-fiber/swagger"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/api/docs"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/api/handler"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/database"
)

// maxEnrollmentSamples bounds the request body of a multi-image enrollment
const maxEnrollmentSamples = 8

type Dependencies struct {
	Service handler.AttendanceService
	// DB is nil unless the gallery lives in Postgres
	DB database.Pinger
	// MaxUploadSize is the per-image limit in bytes
	MaxUploadSize int64
}

type Router struct {
	app    *fiber.App
	logger *slog.Logger
	deps   *Dependencies
}

func NewRouter(logger *slog.Logger, deps *Dependencies) *Router {
	maxImage := int64(handler.DefaultMaxImageSize)
	if deps != nil && deps.MaxUploadSize > 0 {
		maxImage = deps.MaxUploadSize
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(logger),
		AppName:      "Rollcall API",
		BodyLimit:    int(maxImage) * maxEnrollmentSamples,
	})

	return &Router{
		app:    app,
		logger: logger,
		deps:   deps,
	}
}

func (r *Router) Setup() {
	// Global middlewares
	r.app.Use(requestid.New())
	r.app.Use(middleware.Recover(r.logger))
	r.app.Use(middleware.Logger(r.logger))
	r.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	sw := docs.NewSwagger()
	swagger.SwaggerHandler(r.app, sw.MustToJson())

	var (
		ready handler.ReadinessChecker
		db    database.Pinger
	)
	if r.deps != nil {
		db = r.deps.DB
		if r.deps.Service != nil {
			ready = r.deps.Service
		}
	}
	healthHandler := handler.NewHealthHandler(ready, db)
	r.app.Get("/health", healthHandler.Health)
	r.app.Get("/ready", healthHandler.Ready)

	if r.deps == nil || r.deps.Service == nil {
		return
	}

	attendanceHandler := handler.NewAttendanceHandler(r.deps.Service, r.deps.MaxUploadSize, r.logger)

	v1 := r.app.Group("/v1")
	v1.Post("/attendance", attendanceHandler.Recognize)

	v1.Post("/identities", attendanceHandler.Enroll)
	v1.Get("/identities", attendanceHandler.List)
	v1.Delete("/identities/:key", attendanceHandler.Delete)

	v1.Post("/gallery/reload", attendanceHandler.Reload)
}

func (r *Router) App() *fiber.App {
	return r.app
}

func (r *Router) Listen(addr string) error {
	return r.app.Listen(addr)
}

func (r *Router) Shutdown() error {
	return r.app.Shutdown()
}

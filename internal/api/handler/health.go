package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/database"
)

// Version is reported by /health
var Version = "0.1.0"

// ReadinessChecker reports whether the gallery has anyone to recognize
type ReadinessChecker interface {
	IsReady() bool
}

type HealthHandler struct {
	ready ReadinessChecker
	db    database.Pinger
}

// NewHealthHandler creates a health handler. db may be nil when the gallery
// is not stored in Postgres.
func NewHealthHandler(ready ReadinessChecker, db database.Pinger) *HealthHandler {
	return &HealthHandler{ready: ready, db: db}
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:  "ok",
		Version: Version,
	})
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	if h.db != nil {
		if err := database.HealthCheck(context.Background(), h.db); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(HealthResponse{
				Status: "not_ready",
				Reason: "database unreachable",
			})
		}
	}

	if h.ready == nil || !h.ready.IsReady() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(HealthResponse{
			Status: "not_ready",
			Reason: "gallery is empty",
		})
	}

	return c.JSON(HealthResponse{
		Status: "ready",
	})
}

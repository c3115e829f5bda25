package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	GalleryBackendFile     = "file"
	GalleryBackendPostgres = "postgres"
)

type Config struct {
	// Server
	Port          int    `envconfig:"PORT" default:"3000"`
	Environment   string `envconfig:"ENV" default:"development"`
	MaxUploadSize int    `envconfig:"MAX_UPLOAD_SIZE" default:"20971520"`

	// Gallery
	GalleryBackend string `envconfig:"GALLERY_BACKEND" default:"file"`
	GalleryPath    string `envconfig:"GALLERY_PATH" default:"data/gallery.json"`
	DatabaseURL    string `envconfig:"DATABASE_URL"`

	// Ensemble
	LayersFile     string        `envconfig:"LAYERS_FILE"`
	Quorum         int           `envconfig:"QUORUM"`
	LayerTimeout   time.Duration `envconfig:"LAYER_TIMEOUT" default:"30s"`
	ParallelLayers bool          `envconfig:"PARALLEL_LAYERS" default:"false"`
	MinFaceSize    int           `envconfig:"MIN_FACE_SIZE" default:"10"`
	SpoolDir       string        `envconfig:"SPOOL_DIR"`

	// Backends
	DeepFaceURL    string `envconfig:"DEEPFACE_URL" default:"http://localhost:5005"`
	InsightFaceURL string `envconfig:"INSIGHTFACE_URL" default:"http://localhost:8000"`
	AWSRegion      string `envconfig:"AWS_REGION" default:"us-east-1"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings envconfig tags cannot express
func (c *Config) Validate() error {
	switch c.GalleryBackend {
	case GalleryBackendFile:
		if c.GalleryPath == "" {
			return fmt.Errorf("GALLERY_PATH is required for the %s gallery", c.GalleryBackend)
		}
	case GalleryBackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the %s gallery", c.GalleryBackend)
		}
	default:
		return fmt.Errorf("unknown GALLERY_BACKEND %q (supported: %s, %s)",
			c.GalleryBackend, GalleryBackendFile, GalleryBackendPostgres)
	}

	if c.Quorum < 0 {
		return fmt.Errorf("QUORUM must not be negative, got %d", c.Quorum)
	}
	if c.MinFaceSize < 1 {
		return fmt.Errorf("MIN_FACE_SIZE must be positive, got %d", c.MinFaceSize)
	}
	if c.MaxUploadSize < 1 {
		return fmt.Errorf("MAX_UPLOAD_SIZE must be positive, got %d", c.MaxUploadSize)
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Command enroll bulk-enrolls a dataset laid out as one directory per
// identity: <dir>/<roll>_<name>/*.jpg
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/config"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/domain"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/face"
)

var sampleExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// identityDir is one identity of the dataset and its sample files
type identityDir struct {
	Key     string
	Samples []string
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	dir := flag.String("dir", "", "Dataset directory, one sub-directory per identity")
	skipExisting := flag.Bool("skip-existing", false, "Leave identities already in the gallery untouched")
	flag.Parse()

	if *dir == "" {
		return errors.New("-dir is required")
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := config.NewLogger(cfg.Environment)

	identities, err := scanDataset(*dir)
	if err != nil {
		return err
	}
	if len(identities) == 0 {
		return fmt.Errorf("no identities under %s", *dir)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := face.Bootstrap(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	existing := make(map[string]bool)
	for _, k := range rt.Service.ListIdentities() {
		existing[k] = true
	}

	bar := progressbar.NewOptions(len(identities),
		progressbar.OptionSetDescription("enrolling"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	var enrolled, skipped, failed int
	for _, id := range identities {
		if ctx.Err() != nil {
			break
		}
		if *skipExisting && existing[id.Key] {
			skipped++
			_ = bar.Add(1)
			continue
		}

		samples, err := readSamples(id.Samples)
		if err == nil {
			_, err = rt.Service.EnrollIdentity(ctx, id.Key, samples)
		}
		if err != nil {
			failed++
			logger.Warn("enrollment failed", slog.String("key", id.Key), slog.Any("error", err))
		} else {
			enrolled++
		}
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	logger.Info("enrollment finished",
		slog.Int("enrolled", enrolled),
		slog.Int("skipped", skipped),
		slog.Int("failed", failed),
		slog.Int("gallery_size", rt.Gallery.Len()),
	)

	if err := ctx.Err(); err != nil {
		return err
	}
	if enrolled == 0 && failed > 0 {
		return fmt.Errorf("no identity could be enrolled")
	}
	return nil
}

// scanDataset lists identity directories in key order. Directories without
// a usable sample and files at the top level are ignored.
func scanDataset(dir string) ([]identityDir, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}

	var out []identityDir
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		key, err := domain.ValidateKey(e.Name())
		if err != nil {
			continue
		}

		files, err := os.ReadDir(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		var samples []string
		for _, f := range files {
			if f.IsDir() || !sampleExtensions[strings.ToLower(filepath.Ext(f.Name()))] {
				continue
			}
			samples = append(samples, filepath.Join(dir, e.Name(), f.Name()))
		}
		if len(samples) == 0 {
			continue
		}
		sort.Strings(samples)
		out = append(out, identityDir{Key: key, Samples: samples})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func readSamples(paths []string) ([][]byte, error) {
	samples := make([][]byte, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read sample: %w", err)
		}
		samples = append(samples, data)
	}
	return samples, nil
}

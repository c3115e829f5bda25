package gallery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const fileFormatVersion = 1

type fileBlob struct {
	Version    int          `json:"version"`
	Identities []fileRecord `json:"identities"`
}

type fileRecord struct {
	Space       string    `json:"space"`
	Key         string    `json:"key"`
	Template    []float64 `json:"template"`
	SampleCount int       `json:"sample_count"`
}

// FileStore keeps the gallery in a single JSON file
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the gallery file location
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the gallery file. A missing file is an empty gallery.
func (s *FileStore) Load(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}

	var blob fileBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	if blob.Version != fileFormatVersion {
		return nil, fmt.Errorf("decode %s: unsupported version %d", s.path, blob.Version)
	}

	records := make([]Record, 0, len(blob.Identities))
	for _, r := range blob.Identities {
		records = append(records, Record{
			Space:       r.Space,
			Key:         r.Key,
			Vector:      r.Template,
			SampleCount: r.SampleCount,
		})
	}
	return records, nil
}

// Save writes to a temp file in the same directory, syncs it and renames it
// over the gallery file, so readers see either the old or the new blob
func (s *FileStore) Save(ctx context.Context, records []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	blob := fileBlob{Version: fileFormatVersion, Identities: make([]fileRecord, 0, len(records))}
	for _, r := range records {
		blob.Identities = append(blob.Identities, fileRecord{
			Space:       r.Space,
			Key:         r.Key,
			Template:    r.Vector,
			SampleCount: r.SampleCount,
		})
	}

	data, err := json.MarshalIndent(blob, "", "  ")
	if err != nil {
		return fmt.Errorf("encode gallery: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		// no-op after a successful rename
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename %s: %w", tmpPath, err)
	}

	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

var _ Store = (*FileStore)(nil)

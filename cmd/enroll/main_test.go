package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
}

func TestScanDataset(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "2_Bia Lima", "b.PNG"))
	touch(t, filepath.Join(dir, "2_Bia Lima", "a.jpg"))
	touch(t, filepath.Join(dir, "2_Bia Lima", "notes.txt"))
	touch(t, filepath.Join(dir, "1_Ana", "one.jpeg"))
	touch(t, filepath.Join(dir, "3_Empty", "readme.md"))
	touch(t, filepath.Join(dir, ".cache", "x.jpg"))
	touch(t, filepath.Join(dir, "stray.jpg"))

	got, err := scanDataset(dir)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "1_Ana", got[0].Key)
	assert.Equal(t, []string{filepath.Join(dir, "1_Ana", "one.jpeg")}, got[0].Samples)

	assert.Equal(t, "2_Bia_Lima", got[1].Key, "whitespace is normalized")
	assert.Equal(t, []string{
		filepath.Join(dir, "2_Bia Lima", "a.jpg"),
		filepath.Join(dir, "2_Bia Lima", "b.PNG"),
	}, got[1].Samples)
}

func TestScanDataset_MissingDir(t *testing.T) {
	_, err := scanDataset(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}

func TestReadSamples(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.jpg")
	touch(t, path)

	got, err := readSamples([]string{path})
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("x")}, got)

	_, err = readSamples([]string{filepath.Join(dir, "missing.jpg")})
	assert.Error(t, err)
}

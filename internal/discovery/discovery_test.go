package discovery

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported(".pdf"))
	assert.True(t, Supported("pdf"))
	assert.True(t, Supported(".PNG"))
	assert.True(t, Supported(".markdown"))
	assert.False(t, Supported(".exe"))
	assert.False(t, Supported(".txt"))
	assert.False(t, Supported(""))
}

func TestDiscoverOrdersLexicographically(t *testing.T) {
	dir := t.TempDir()
	// Created out of order on purpose
	writeFile(t, filepath.Join(dir, "zeta.pdf"))
	writeFile(t, filepath.Join(dir, "alpha.png"))
	writeFile(t, filepath.Join(dir, "mid.docx"))

	scanner, err := NewScanner(dir, false, testLogger())
	require.NoError(t, err)

	files, err := scanner.Discover()
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "alpha.png", filepath.Base(files[0].Path))
	assert.Equal(t, "mid.docx", filepath.Base(files[1].Path))
	assert.Equal(t, "zeta.pdf", filepath.Base(files[2].Path))
}

func TestDiscoverFiltersUnsupported(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "keep.pdf"))
	writeFile(t, filepath.Join(dir, "skip.txt"))
	writeFile(t, filepath.Join(dir, "skip.exe"))
	writeFile(t, filepath.Join(dir, "noextension"))

	scanner, err := NewScanner(dir, false, testLogger())
	require.NoError(t, err)

	files, err := scanner.Discover()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, ".pdf", files[0].Ext)
}

func TestDiscoverRecursive(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "top.pdf"))
	writeFile(t, filepath.Join(dir, "sub", "nested.png"))
	writeFile(t, filepath.Join(dir, "sub", "deeper", "deep.jpg"))

	t.Run("recursive finds nested files", func(t *testing.T) {
		scanner, err := NewScanner(dir, true, testLogger())
		require.NoError(t, err)

		files, err := scanner.Discover()
		require.NoError(t, err)
		assert.Len(t, files, 3)
	})

	t.Run("non-recursive stays at the top", func(t *testing.T) {
		scanner, err := NewScanner(dir, false, testLogger())
		require.NoError(t, err)

		files, err := scanner.Discover()
		require.NoError(t, err)
		require.Len(t, files, 1)
		assert.Equal(t, "top.pdf", filepath.Base(files[0].Path))
	})
}

func TestDiscoverEmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "notes.txt"))

	scanner, err := NewScanner(dir, true, testLogger())
	require.NoError(t, err)

	files, err := scanner.Discover()
	assert.Nil(t, files)
	assert.ErrorIs(t, err, ErrNoInput)
}

func TestDiscoverNormalisesExtensionCase(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "SCAN.PNG"))

	scanner, err := NewScanner(dir, false, testLogger())
	require.NoError(t, err)

	files, err := scanner.Discover()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, ".png", files[0].Ext)
	assert.Positive(t, files[0].Size)
}

func TestNewScannerRejectsBadRoots(t *testing.T) {
	t.Run("missing directory", func(t *testing.T) {
		_, err := NewScanner(filepath.Join(t.TempDir(), "missing"), true, testLogger())
		assert.Error(t, err)
	})

	t.Run("root is a file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "doc.pdf")
		writeFile(t, path)

		_, err := NewScanner(path, true, testLogger())
		assert.Error(t, err)
	})
}

func TestDiscoverIsRestartable(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.pdf"))

	scanner, err := NewScanner(dir, true, testLogger())
	require.NoError(t, err)

	first, err := scanner.Discover()
	require.NoError(t, err)

	writeFile(t, filepath.Join(dir, "b.pdf"))
	second, err := scanner.Discover()
	require.NoError(t, err)

	assert.Len(t, first, 1)
	assert.Len(t, second, 2)
}

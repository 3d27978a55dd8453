// Package discovery enumerates candidate input files beneath a root
// directory. Ordering is deterministic (lexicographic by normalised absolute
// path) so repeated runs over an unchanged directory produce identical batch
// numbering and stable output diffs.
package discovery

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/sammcj/docflow/internal/docproc"
)

// ErrNoInput is reported when a full traversal finds no supported files.
// Callers must check for it before constructing any collaborator.
var ErrNoInput = errors.New("no supported input files found")

// SupportedExtensions is the fixed allow-list of input formats. Content
// parsing is delegated entirely to the collaborators; only the extension is
// checked here.
var SupportedExtensions = map[string]bool{
	// Document formats
	".pdf":  true,
	".docx": true,
	".pptx": true,
	// Image formats
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".tiff": true,
	".tif":  true,
	".bmp":  true,
	".gif":  true,
	".webp": true,
	// Markup formats
	".html":     true,
	".htm":      true,
	".md":       true,
	".markdown": true,
}

// Supported reports whether the extension (with or without leading dot,
// any case) is on the allow-list.
func Supported(ext string) bool {
	if ext == "" {
		return false
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return SupportedExtensions[strings.ToLower(ext)]
}

// Scanner discovers input files under a root directory
type Scanner struct {
	root      string
	recursive bool
	logger    *logrus.Logger
}

// NewScanner creates a Scanner for the given root. The root must exist.
func NewScanner(root string, recursive bool, logger *logrus.Logger) (*Scanner, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve input root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("input root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("input root %s is not a directory", abs)
	}
	return &Scanner{root: abs, recursive: recursive, logger: logger}, nil
}

// Root returns the normalised absolute root path
func (s *Scanner) Root() string { return s.root }

// Discover walks the root and returns all supported files in lexicographic
// path order. Each call re-walks the directory, so the sequence is
// restartable. Returns ErrNoInput when the traversal completes empty.
func (s *Scanner) Discover() ([]docproc.InputFile, error) {
	var files []docproc.InputFile

	walk := func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !s.recursive && path != s.root {
				return fs.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if !SupportedExtensions[ext] {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, docproc.InputFile{Path: path, Ext: ext, Size: info.Size()})
		return nil
	}

	if err := filepath.WalkDir(s.root, walk); err != nil {
		return nil, fmt.Errorf("walk %s: %w", s.root, err)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%w under %s", ErrNoInput, s.root)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	s.logger.WithFields(logrus.Fields{
		"root":      s.root,
		"recursive": s.recursive,
		"count":     len(files),
	}).Info("Discovered input files")

	return files, nil
}

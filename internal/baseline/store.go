// Package baseline persists baseline images, per-scenario ignored-text
// snapshots, and failure-diff artifacts on the filesystem.
package baseline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrBaselineMissing marks the expected condition of a first run: no
// baseline has been recorded for the name yet.
var ErrBaselineMissing = errors.New("baseline image not found")

const (
	baselineExt        = ".png"
	ignoredTextsSuffix = "_dom.json"

	// decodedCacheSize bounds the LRU of decoded baseline images, so
	// suites asserting repeatedly against the same baselines skip the
	// PNG decode.
	decodedCacheSize = 64
)

// Store resolves paths and persists artifacts under a baseline folder
// and a diff folder. Side effects never leave those two folders.
type Store struct {
	baseDir string
	diffDir string
	logger  *slog.Logger
	decoded *lru.Cache[string, image.Image]
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore creates a store rooted at baseDir (baselines, text
// snapshots) and diffDir (failure diffs).
func NewStore(baseDir, diffDir string, opts ...Option) (*Store, error) {
	if baseDir == "" || diffDir == "" {
		return nil, fmt.Errorf("baseline store: base and diff folders must be set")
	}
	cache, err := lru.New[string, image.Image](decodedCacheSize)
	if err != nil {
		return nil, fmt.Errorf("baseline store: %w", err)
	}
	s := &Store{
		baseDir: baseDir,
		diffDir: diffDir,
		logger:  slog.Default(),
		decoded: cache,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// BaselinePath returns where the baseline image for name lives.
func (s *Store) BaselinePath(name string) string {
	return filepath.Join(s.baseDir, name+baselineExt)
}

// DiffPath returns where the failure diff for name lives.
func (s *Store) DiffPath(name string) string {
	return filepath.Join(s.diffDir, name+baselineExt)
}

func (s *Store) ignoredTextsPath(name string) string {
	return filepath.Join(s.baseDir, name+ignoredTextsSuffix)
}

// LoadBaseline reads the raw baseline bytes for name.
func (s *Store) LoadBaseline(name string) ([]byte, error) {
	data, err := os.ReadFile(s.BaselinePath(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("baseline %q: %w", name, ErrBaselineMissing)
	}
	if err != nil {
		return nil, fmt.Errorf("load baseline %q: %w", name, err)
	}
	return data, nil
}

// LoadBaselineImage returns the decoded baseline for name, served from
// the in-process cache when the file has not been rewritten since.
func (s *Store) LoadBaselineImage(name string) (image.Image, error) {
	if img, ok := s.decoded.Get(name); ok {
		return img, nil
	}
	data, err := s.LoadBaseline(name)
	if err != nil {
		return nil, err
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode baseline %q: %w", name, err)
	}
	s.decoded.Add(name, img)
	return img, nil
}

// SaveBaseline writes (or overwrites) the baseline image for name,
// creating the baseline folder if needed.
func (s *Store) SaveBaseline(name string, data []byte) error {
	if err := os.MkdirAll(s.baseDir, 0755); err != nil {
		return fmt.Errorf("create baseline folder: %w", err)
	}
	if err := os.WriteFile(s.BaselinePath(name), data, 0644); err != nil {
		return fmt.Errorf("save baseline %q: %w", name, err)
	}
	s.decoded.Remove(name)
	return nil
}

// LoadIgnoredTexts returns the ignored-text snapshot for name, or an
// empty list when none was recorded. A corrupt snapshot file is
// deleted and treated as empty; the parse error never reaches the
// caller.
func (s *Store) LoadIgnoredTexts(name string) ([]string, error) {
	path := s.ignoredTextsPath(name)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load ignored texts %q: %w", name, err)
	}

	var texts []string
	if err := json.Unmarshal(data, &texts); err != nil {
		s.logger.Warn("ignored-text snapshot corrupt, discarding", "name", name, "path", path, "error", err)
		if rmErr := os.Remove(path); rmErr != nil {
			return nil, fmt.Errorf("remove corrupt snapshot %q: %w", name, rmErr)
		}
		return nil, nil
	}
	return texts, nil
}

// SaveIgnoredTexts replaces the ignored-text snapshot for name. Any
// existing file is removed first so a shrunken selector set never
// leaves stale entries behind; nothing is written when texts is empty.
func (s *Store) SaveIgnoredTexts(name string, texts []string) error {
	path := s.ignoredTextsPath(name)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove old snapshot %q: %w", name, err)
	}
	if len(texts) == 0 {
		return nil
	}
	if err := os.MkdirAll(s.baseDir, 0755); err != nil {
		return fmt.Errorf("create baseline folder: %w", err)
	}
	data, err := json.Marshal(texts)
	if err != nil {
		return fmt.Errorf("marshal ignored texts %q: %w", name, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("save ignored texts %q: %w", name, err)
	}
	return nil
}

// SaveDiff writes (or overwrites) the failure diff for name, creating
// the diff folder if needed.
func (s *Store) SaveDiff(name string, data []byte) error {
	if err := os.MkdirAll(s.diffDir, 0755); err != nil {
		return fmt.Errorf("create diff folder: %w", err)
	}
	if err := os.WriteFile(s.DiffPath(name), data, 0644); err != nil {
		return fmt.Errorf("save diff %q: %w", name, err)
	}
	return nil
}

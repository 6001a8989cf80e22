// Package audiostore keeps the short-lived audio clips Kai serves to the
// browser. Clips are swept by age just before each write; there is no
// background timer.
package audiostore

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultMaxAge is how long a clip survives before the next sweep removes it.
	DefaultMaxAge = 30 * time.Second

	// DefaultURLPrefix is where the HTTP server mounts the store directory.
	DefaultURLPrefix = "/static/audio"

	filePrefix = "response_"
)

// Artifact is a stored clip.
type Artifact struct {
	Name    string
	Path    string
	URL     string
	Created time.Time
}

// Store is a directory of generated audio. Sweep and Write never interleave.
type Store struct {
	dir       string
	urlPrefix string
	maxAge    time.Duration
	now       func() time.Time
	logger    *slog.Logger

	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithMaxAge sets the sweep threshold.
func WithMaxAge(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.maxAge = d
		}
	}
}

// WithURLPrefix sets the URL path the directory is served under.
func WithURLPrefix(prefix string) Option {
	return func(s *Store) { s.urlPrefix = strings.TrimRight(prefix, "/") }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates the directory if needed and returns a store rooted at it.
func New(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, errors.New("audiostore: directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("audiostore: create %s: %w", dir, err)
	}

	s := &Store{
		dir:       dir,
		urlPrefix: DefaultURLPrefix,
		maxAge:    DefaultMaxAge,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "audiostore")
	return s, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

// MaxAge returns the sweep threshold.
func (s *Store) MaxAge() time.Duration { return s.maxAge }

// Sweep deletes clips whose modification time is older than the threshold.
// It returns the number of files removed.
func (s *Store) Sweep() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked()
}

func (s *Store) sweepLocked() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("audiostore: read dir: %w", err)
	}

	cutoff := s.now().Add(-s.maxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), filePrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		err = os.Remove(filepath.Join(s.dir, e.Name()))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("remove stale clip", "name", e.Name(), "error", err)
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.Debug("swept stale clips", "removed", removed)
	}
	return removed, nil
}

// Write sweeps stale clips, then stores audio under a fresh name derived
// from the current time. ext includes the dot, e.g. ".mp3".
func (s *Store) Write(audio []byte, ext string) (*Artifact, error) {
	if len(audio) == 0 {
		return nil, errors.New("audiostore: empty audio")
	}
	if ext == "" {
		ext = ".mp3"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.sweepLocked(); err != nil {
		s.logger.Warn("sweep before write failed", "error", err)
	}

	created := s.now()
	name := fmt.Sprintf("%s%d_%s%s", filePrefix, created.UnixMilli(), uuid.NewString()[:8], ext)
	path := filepath.Join(s.dir, name)

	tmp := path + ".part"
	if err := os.WriteFile(tmp, audio, 0o644); err != nil {
		return nil, fmt.Errorf("audiostore: write: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("audiostore: rename: %w", err)
	}

	return &Artifact{
		Name:    name,
		Path:    path,
		URL:     s.urlPrefix + "/" + name,
		Created: created,
	}, nil
}

// Len returns the number of clips currently on disk.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), filePrefix) && !strings.HasSuffix(e.Name(), ".part") {
			n++
		}
	}
	return n
}

// Package watch persists the search words and blacklisted listing ids the
// worker syncs against.
package watch

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"auction_watcher/internal/domain"
)

type document struct {
	SearchWords    []string  `yaml:"search_words"`
	BlacklistedIDs []string  `yaml:"blacklisted_ids"`
	UpdatedAt      time.Time `yaml:"updated_at,omitempty"`
}

// Store is a YAML-file backed watch configuration. Every effective mutation is
// written to disk before listeners are told about it.
type Store struct {
	path   string
	logger *slog.Logger
	now    func() time.Time

	mu        sync.RWMutex
	doc       document
	listeners []func(domain.WatchConfiguration)
}

// Open loads the file at path. A missing file yields an empty configuration.
func Open(path string, logger *slog.Logger) (*Store, error) {
	s := &Store{
		path:   path,
		logger: logger.With("component", "watch"),
		now:    time.Now,
	}

	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the file, picking up edits made by another process.
// Listeners are not notified.
func (s *Store) Reload() error {
	var doc document

	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.logger.Info("watch file not found, starting empty", "path", s.path)
	case err != nil:
		return fmt.Errorf("failed to read watch file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("failed to parse watch file: %w", err)
		}
	}
	doc.SearchWords = domain.NormalizeTerms(doc.SearchWords)

	s.mu.Lock()
	s.doc = doc
	s.mu.Unlock()

	s.logger.Info("watch file loaded",
		"path", s.path,
		"search_words", len(doc.SearchWords),
		"blacklisted", len(doc.BlacklistedIDs),
	)
	return nil
}

// Snapshot returns a copy of the current configuration.
func (s *Store) Snapshot() domain.WatchConfiguration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// OnChange registers fn to run after every effective mutation.
func (s *Store) OnChange(fn func(domain.WatchConfiguration)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Store) AddSearchWord(word string) (bool, error) {
	word = domain.NormalizeTerm(word)
	if word == "" {
		return false, errors.New("search word must not be empty")
	}
	return s.mutate(func(d *document) bool {
		if slices.Contains(d.SearchWords, word) {
			return false
		}
		d.SearchWords = domain.NormalizeTerms(append(d.SearchWords, word))
		return true
	})
}

func (s *Store) RemoveSearchWord(word string) (bool, error) {
	word = domain.NormalizeTerm(word)
	return s.mutate(func(d *document) bool {
		i := slices.Index(d.SearchWords, word)
		if i < 0 {
			return false
		}
		d.SearchWords = slices.Delete(d.SearchWords, i, i+1)
		return true
	})
}

func (s *Store) ClearSearchWords() error {
	_, err := s.mutate(func(d *document) bool {
		if len(d.SearchWords) == 0 {
			return false
		}
		d.SearchWords = nil
		return true
	})
	return err
}

func (s *Store) AddBlacklisted(id string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, errors.New("listing id must not be empty")
	}
	return s.mutate(func(d *document) bool {
		if slices.Contains(d.BlacklistedIDs, id) {
			return false
		}
		d.BlacklistedIDs = append(d.BlacklistedIDs, id)
		return true
	})
}

func (s *Store) RemoveBlacklisted(id string) (bool, error) {
	id = strings.TrimSpace(id)
	return s.mutate(func(d *document) bool {
		i := slices.Index(d.BlacklistedIDs, id)
		if i < 0 {
			return false
		}
		d.BlacklistedIDs = slices.Delete(d.BlacklistedIDs, i, i+1)
		return true
	})
}

// mutate applies change to a copy of the document and persists it. The
// in-memory state only moves forward once the file has been written.
func (s *Store) mutate(change func(*document) bool) (bool, error) {
	s.mu.Lock()

	next := document{
		SearchWords:    slices.Clone(s.doc.SearchWords),
		BlacklistedIDs: slices.Clone(s.doc.BlacklistedIDs),
		UpdatedAt:      s.doc.UpdatedAt,
	}
	if !change(&next) {
		s.mu.Unlock()
		return false, nil
	}
	next.UpdatedAt = s.now().UTC()

	if err := s.write(next); err != nil {
		s.mu.Unlock()
		return false, err
	}
	s.doc = next

	snapshot := s.snapshotLocked()
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	s.logger.Info("watch configuration changed",
		"search_words", snapshot.SearchTerms,
		"blacklisted", len(snapshot.Blacklist),
	)
	for _, fn := range listeners {
		fn(snapshot)
	}
	return true, nil
}

func (s *Store) write(doc document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode watch file: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create watch dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".watch-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write watch file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write watch file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace watch file: %w", err)
	}
	return nil
}

func (s *Store) snapshotLocked() domain.WatchConfiguration {
	return domain.WatchConfiguration{
		SearchTerms: slices.Clone(s.doc.SearchWords),
		Blacklist:   slices.Clone(s.doc.BlacklistedIDs),
	}
}

package config

import (
	"sync"
)

// Store is the process-wide holder of the persisted settings. Reads return
// copies; writes validate, persist, then publish. Last write wins.
type Store struct {
	mu   sync.RWMutex
	path string
	cfg  *Config
}

// OpenStore loads path (or defaults when it does not exist).
func OpenStore(path string) (*Store, error) {
	cfg, err := LoadFromPath(path)
	if err != nil {
		return nil, err
	}
	return &Store{path: path, cfg: cfg}, nil
}

// NewMemoryStore wraps cfg without a backing file. Updates are validated
// but never written.
func NewMemoryStore(cfg *Config) *Store {
	return &Store{cfg: cfg.Clone()}
}

// Path returns the backing file, or "" for memory stores.
func (s *Store) Path() string { return s.path }

// Get returns a copy of the current settings.
func (s *Store) Get() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone()
}

// Update applies fn to a copy of the settings, validates and saves the
// result, and publishes it. On error the stored settings are unchanged.
func (s *Store) Update(fn func(*Config)) (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg.Clone()
	fn(next)
	if err := s.persistLocked(next); err != nil {
		return nil, err
	}
	s.cfg = next
	return next.Clone(), nil
}

// Replace stores cfg wholesale and returns the previous settings.
func (s *Store) Replace(cfg *Config) (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := cfg.Clone()
	if err := s.persistLocked(next); err != nil {
		return nil, err
	}
	prev := s.cfg
	s.cfg = next
	return prev, nil
}

// Reload re-reads the backing file and returns the previous and new
// settings. Memory stores return the current settings twice.
func (s *Store) Reload() (prev, next *Config, err error) {
	if s.path == "" {
		cur := s.Get()
		return cur, cur.Clone(), nil
	}
	cfg, err := LoadFromPath(s.path)
	if err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	prev = s.cfg
	s.cfg = cfg
	s.mu.Unlock()
	return prev.Clone(), cfg.Clone(), nil
}

func (s *Store) persistLocked(cfg *Config) error {
	if s.path == "" {
		return cfg.Validate()
	}
	return cfg.SaveTo(s.path)
}

package policy

import (
	"fmt"
	"log/slog"
	"sync"
)

// Store holds the currently loaded policies. Reads return clones, so a
// snapshot taken at the start of a processing cycle stays stable even if the
// store reloads mid-cycle.
type Store struct {
	dir      string
	patterns []string
	logger   *slog.Logger

	mu       sync.RWMutex
	policies map[string]*Policy
}

// NewStore creates a store backed by the policy directory. Load must be
// called before the first Snapshot.
func NewStore(dir string, patterns []string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		dir:      dir,
		patterns: patterns,
		logger:   logger,
		policies: make(map[string]*Policy),
	}
}

// Load reads all policy files and atomically replaces the store contents.
// On error the previous contents are kept, so a bad edit to one file never
// drops the policies that were already in force.
func (s *Store) Load() error {
	loaded, err := LoadDir(s.dir, s.patterns)
	if err != nil {
		return fmt.Errorf("load policies: %w", err)
	}

	s.mu.Lock()
	s.policies = loaded
	s.mu.Unlock()

	s.logger.Info("Policies loaded", "dir", s.dir, "count", len(loaded))
	return nil
}

// Snapshot returns the policy for the DAO, falling back to the loaded
// "default" policy and finally to the built-in default. The returned policy
// is a clone and safe to hold for a whole cycle.
func (s *Store) Snapshot(dao string) *Policy {
	s.mu.RLock()
	p, ok := s.policies[dao]
	if !ok {
		p, ok = s.policies["default"]
	}
	s.mu.RUnlock()

	if !ok {
		return DefaultPolicy()
	}
	return p.clone()
}

// DAOs returns the names of all DAOs with an explicit policy.
func (s *Store) DAOs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.policies))
	for name := range s.policies {
		names = append(names, name)
	}
	return names
}

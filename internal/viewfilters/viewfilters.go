// Package viewfilters holds the active routing context (workspace, project,
// view) and the filter configuration applied to each view.
package viewfilters

import (
	"strings"
	"sync"

	"planeview/internal/model"
)

type Store struct {
	mu sync.RWMutex

	workspace string
	project   string
	viewID    string

	filters map[string]model.ViewFilters
}

func New() *Store {
	return &Store{filters: map[string]model.ViewFilters{}}
}

// SetActive sets the routing context. Empty values clear the corresponding field.
func (s *Store) SetActive(workspace, project, viewID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workspace = strings.TrimSpace(workspace)
	s.project = strings.TrimSpace(project)
	s.viewID = strings.TrimSpace(viewID)
}

func (s *Store) ActiveWorkspace() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.workspace
}

func (s *Store) ActiveProject() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.project
}

func (s *Store) ActiveViewID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewID
}

// Set replaces a view's filters. Display filters are stored normalized.
func (s *Store) Set(viewID string, f model.ViewFilters) {
	f.Display = f.Display.Normalized()
	applied := make(map[string]string, len(f.Applied))
	for k, v := range f.Applied {
		applied[k] = v
	}
	f.Applied = applied

	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters[viewID] = f
}

func (s *Store) Get(viewID string) (model.ViewFilters, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.filters[viewID]
	return f, ok
}

// DisplayFilters returns the display filters of a view, if configured.
func (s *Store) DisplayFilters(viewID string) (model.DisplayFilters, bool) {
	f, ok := s.Get(viewID)
	if !ok {
		return model.DisplayFilters{}, false
	}
	return f.Display, true
}

// AppliedFilters returns a copy of the list params of a view (nil when unset).
func (s *Store) AppliedFilters(viewID string) map[string]string {
	f, ok := s.Get(viewID)
	if !ok || len(f.Applied) == 0 {
		return nil
	}
	out := make(map[string]string, len(f.Applied))
	for k, v := range f.Applied {
		out[k] = v
	}
	return out
}

package registry

import (
	"strings"
	"sync"

	"planeview/internal/model"
)

// Scope filters records by archive state.
type Scope int

const (
	ScopeAll Scope = iota
	ScopeUnarchived
	ScopeArchived
)

// Registry is the canonical in-memory issue map shared by every view.
// Views keep only ids; records live here.
type Registry struct {
	mu      sync.RWMutex
	issues  map[string]model.Issue
	version uint64
}

func New() *Registry {
	return &Registry{issues: map[string]model.Issue{}}
}

// Version changes whenever a record is added, changed or removed.
func (r *Registry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// AddIssues inserts or replaces records.
func (r *Registry) AddIssues(issues ...model.Issue) {
	if len(issues) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, is := range issues {
		id := strings.TrimSpace(is.ID)
		if id == "" {
			continue
		}
		r.issues[id] = is.Clone()
	}
	r.version++
}

func (r *Registry) RemoveIssue(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.issues[id]; !ok {
		return
	}
	delete(r.issues, id)
	r.version++
}

func (r *Registry) Get(id string) (model.Issue, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	is, ok := r.issues[id]
	if !ok {
		return model.Issue{}, false
	}
	return is.Clone(), true
}

// Update applies fn to a copy of the record and stores the result. It returns
// the previous record so callers can roll back.
func (r *Registry) Update(id string, fn func(*model.Issue)) (prev model.Issue, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.issues[id]
	if !ok {
		return model.Issue{}, false
	}
	next := cur.Clone()
	fn(&next)
	next.ID = cur.ID
	r.issues[id] = next
	r.version++
	return cur, true
}

// GetIssuesByIDs resolves ids in order. Unknown ids and records outside scope are skipped.
func (r *Registry) GetIssuesByIDs(ids []string, scope Scope) []model.Issue {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Issue, 0, len(ids))
	for _, id := range ids {
		is, ok := r.issues[id]
		if !ok {
			continue
		}
		switch scope {
		case ScopeUnarchived:
			if is.Archived() {
				continue
			}
		case ScopeArchived:
			if !is.Archived() {
				continue
			}
		}
		out = append(out, is.Clone())
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.issues)
}

// Package registry holds the session-scoped collection of drawing features.
//
// Ids are assigned from a single monotonic counter under one lock and are
// never reused, even after Remove. Every read returns a copy so callers never
// observe a partially updated feature.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"balloon/pkg/models"
)

// ErrNotFound is returned when no feature carries the requested id.
var ErrNotFound = errors.New("feature not found")

// Registry is an ordered, concurrency-safe feature collection keyed by id.
type Registry struct {
	mu       sync.RWMutex
	nextID   int
	features map[int]*models.Feature
	order    []int
}

// New creates an empty registry whose first id is 1.
func New() *Registry {
	return &Registry{
		nextID:   1,
		features: make(map[int]*models.Feature),
	}
}

// Append assigns the next id to f and stores it.
func (r *Registry) Append(f models.Feature) models.Feature {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.appendLocked(f)
}

// AppendBatch stores features with contiguous ids in input order.
func (r *Registry) AppendBatch(fs []models.Feature) []models.Feature {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.Feature, 0, len(fs))
	for _, f := range fs {
		out = append(out, r.appendLocked(f))
	}
	return out
}

func (r *Registry) appendLocked(f models.Feature) models.Feature {
	f.ID = r.nextID
	r.nextID++
	if f.Status == "" {
		f.Status = models.StatusUnknown
	}
	stored := f.Clone()
	r.features[f.ID] = &stored
	r.order = append(r.order, f.ID)
	return stored.Clone()
}

// Get returns a copy of the feature with the given id.
func (r *Registry) Get(id int) (models.Feature, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.features[id]
	if !ok {
		return models.Feature{}, fmt.Errorf("get %d: %w", id, ErrNotFound)
	}
	return f.Clone(), nil
}

// Update applies fn to a copy of the feature and stores the result atomically.
// The id cannot be changed through Update.
func (r *Registry) Update(id int, fn func(*models.Feature)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.features[id]
	if !ok {
		return fmt.Errorf("update %d: %w", id, ErrNotFound)
	}
	next := f.Clone()
	fn(&next)
	next.ID = id
	r.features[id] = &next
	return nil
}

// Remove deletes a feature. Its id is not handed out again.
func (r *Registry) Remove(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.features[id]; !ok {
		return fmt.Errorf("remove %d: %w", id, ErrNotFound)
	}
	delete(r.features, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// List returns copies of all features ordered by id.
func (r *Registry) List() []models.Feature {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Feature, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.features[id].Clone())
	}
	return out
}

// Len returns the number of stored features.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Views returns the consumer-facing projection of every feature.
func (r *Registry) Views() []models.FeatureView {
	list := r.List()
	views := make([]models.FeatureView, 0, len(list))
	for _, f := range list {
		views = append(views, f.View())
	}
	return views
}

// Session is the persisted form of a registry.
type Session struct {
	Drawing  string           `json:"drawing,omitempty"`
	NextID   int              `json:"next_id"`
	Features []models.Feature `json:"features"`
}

// Snapshot captures the registry state, including the id counter.
func (r *Registry) Snapshot() Session {
	list := r.List()
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Session{NextID: r.nextID, Features: list}
}

// Restore builds a registry from a snapshot. The id counter never moves
// below the largest stored id.
func Restore(s Session) (*Registry, error) {
	r := New()
	ids := make([]int, 0, len(s.Features))
	for _, f := range s.Features {
		if f.ID <= 0 {
			return nil, fmt.Errorf("restore: feature with non-positive id %d", f.ID)
		}
		if _, dup := r.features[f.ID]; dup {
			return nil, fmt.Errorf("restore: duplicate feature id %d", f.ID)
		}
		stored := f.Clone()
		r.features[f.ID] = &stored
		ids = append(ids, f.ID)
		if f.ID >= r.nextID {
			r.nextID = f.ID + 1
		}
	}
	sort.Ints(ids)
	r.order = ids
	if s.NextID > r.nextID {
		r.nextID = s.NextID
	}
	return r, nil
}

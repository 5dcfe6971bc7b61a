package incident

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"maraudersmap/cmd/identity/ids"
)

// MemoryStore is the in-memory Store used for dev and tests.
type MemoryStore struct {
	mu        sync.Mutex
	incidents map[string]*Incident
	comments  map[string][]Comment // incident id -> comments, append order
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		incidents: make(map[string]*Incident),
		comments:  make(map[string][]Comment),
	}
}

// Create inserts a new incident with status OPEN.
func (s *MemoryStore) Create(ctx context.Context, in CreateInput) (Incident, error) {
	if err := in.Validate(); err != nil {
		return Incident{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ids.NewULID(now)
	if err != nil {
		return Incident{}, err
	}

	inc := Incident{
		ID:          id,
		Title:       in.Title,
		Description: in.Description,
		Severity:    in.Severity,
		Location:    in.Location,
		Status:      StatusOpen,
		ReporterID:  in.ReporterID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	s.mu.Lock()
	s.incidents[id] = &inc
	s.mu.Unlock()

	return inc, nil
}

// Get loads one incident by id.
func (s *MemoryStore) Get(ctx context.Context, id string) (Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inc, ok := s.incidents[id]
	if !ok {
		return Incident{}, fmt.Errorf("incident %s: %w", id, ErrNotFound)
	}
	return *inc, nil
}

// List returns matching incidents, newest first.
func (s *MemoryStore) List(ctx context.Context, filter ListFilter) ([]Incident, error) {
	s.mu.Lock()
	out := make([]Incident, 0, len(s.incidents))
	for _, inc := range s.incidents {
		if filter.Status != "" && inc.Status != filter.Status {
			continue
		}
		if filter.Severity != "" && inc.Severity != filter.Severity {
			continue
		}
		if filter.Location != "" && inc.Location != filter.Location {
			continue
		}
		out = append(out, *inc)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Update mutates the set fields of an open incident.
func (s *MemoryStore) Update(ctx context.Context, id string, in UpdateInput) (Incident, error) {
	if err := in.Validate(); err != nil {
		return Incident{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inc, ok := s.incidents[id]
	if !ok {
		return Incident{}, fmt.Errorf("incident %s: %w", id, ErrNotFound)
	}
	if inc.Status == StatusResolved {
		return Incident{}, fmt.Errorf("incident %s: %w", id, ErrResolved)
	}

	if in.Title != nil {
		inc.Title = *in.Title
	}
	if in.Description != nil {
		inc.Description = *in.Description
	}
	if in.Severity != nil {
		inc.Severity = *in.Severity
	}
	if in.Location != nil {
		inc.Location = *in.Location
	}
	inc.UpdatedAt = now

	return *inc, nil
}

// Resolve transitions OPEN -> RESOLVED.
func (s *MemoryStore) Resolve(ctx context.Context, id, resolverID string, now time.Time) (Incident, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inc, ok := s.incidents[id]
	if !ok {
		return Incident{}, fmt.Errorf("incident %s: %w", id, ErrNotFound)
	}
	if inc.Status == StatusResolved {
		return Incident{}, fmt.Errorf("incident %s: %w", id, ErrResolved)
	}

	inc.Status = StatusResolved
	inc.UpdatedAt = now
	inc.ResolvedAt = &now
	if resolverID != "" {
		inc.ResolvedBy = &resolverID
	}

	return *inc, nil
}

// AddComment attaches a comment to an existing incident.
func (s *MemoryStore) AddComment(ctx context.Context, incidentID, authorID, body string, now time.Time) (Comment, error) {
	if body == "" || authorID == "" {
		return Comment{}, fmt.Errorf("add comment: %w", ErrInvalidInput)
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ids.NewULID(now)
	if err != nil {
		return Comment{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.incidents[incidentID]; !ok {
		return Comment{}, fmt.Errorf("incident %s: %w", incidentID, ErrNotFound)
	}

	c := Comment{
		ID:         id,
		IncidentID: incidentID,
		AuthorID:   authorID,
		Body:       body,
		CreatedAt:  now,
	}
	s.comments[incidentID] = append(s.comments[incidentID], c)
	return c, nil
}

// ListComments returns an incident's comments, oldest first.
func (s *MemoryStore) ListComments(ctx context.Context, incidentID string) ([]Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.incidents[incidentID]; !ok {
		return nil, fmt.Errorf("incident %s: %w", incidentID, ErrNotFound)
	}
	out := make([]Comment, len(s.comments[incidentID]))
	copy(out, s.comments[incidentID])
	return out, nil
}

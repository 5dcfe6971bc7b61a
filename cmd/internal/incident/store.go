package incident

import (
	"context"
	"time"
)

// Store is the incident persistence boundary.
type Store interface {
	// Create inserts a new incident with status OPEN.
	Create(ctx context.Context, in CreateInput) (Incident, error)

	// Get loads one incident by id. Returns ErrNotFound.
	Get(ctx context.Context, id string) (Incident, error)

	// List returns incidents matching the filter, newest first.
	List(ctx context.Context, filter ListFilter) ([]Incident, error)

	// Update mutates the set fields of an open incident. Returns
	// ErrNotFound for unknown ids and ErrResolved for resolved ones.
	Update(ctx context.Context, id string, in UpdateInput) (Incident, error)

	// Resolve transitions OPEN -> RESOLVED. Resolving twice returns
	// ErrResolved; the incident row survives.
	Resolve(ctx context.Context, id, resolverID string, now time.Time) (Incident, error)

	// AddComment attaches a comment to an existing incident.
	AddComment(ctx context.Context, incidentID, authorID, body string, now time.Time) (Comment, error)

	// ListComments returns an incident's comments, oldest first.
	ListComments(ctx context.Context, incidentID string) ([]Comment, error)
}

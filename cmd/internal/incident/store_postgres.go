package incident

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"maraudersmap/cmd/identity/ids"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over PostgreSQL.
//
// The pgx pool is owned by the caller; this store must NOT close it.
// Schema identifiers are validated and quoted.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the store (default "marauders").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("incident: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("incident: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "marauders",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("incident: nil pool")
	}
	return st, nil
}

func (s *PostgresStore) table(name string) string {
	return `"` + s.schema + `"."` + name + `"`
}

const incidentColumns = `id, title, description, severity, location, status, reporter_id, resolved_by, created_at, updated_at, resolved_at`

func scanIncident(row pgx.Row) (Incident, error) {
	var inc Incident
	err := row.Scan(
		&inc.ID, &inc.Title, &inc.Description, &inc.Severity, &inc.Location,
		&inc.Status, &inc.ReporterID, &inc.ResolvedBy, &inc.CreatedAt,
		&inc.UpdatedAt, &inc.ResolvedAt,
	)
	return inc, err
}

// Create inserts a new incident row with status OPEN.
func (s *PostgresStore) Create(ctx context.Context, in CreateInput) (Incident, error) {
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

	row := s.pool.QueryRow(ctx,
		`INSERT INTO `+s.table("incidents")+` (id, title, description, severity, location, status, reporter_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		 RETURNING `+incidentColumns,
		id, in.Title, in.Description, in.Severity, in.Location, StatusOpen, in.ReporterID, now,
	)
	return scanIncident(row)
}

// Get loads one incident by id.
func (s *PostgresStore) Get(ctx context.Context, id string) (Incident, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+incidentColumns+` FROM `+s.table("incidents")+` WHERE id = $1`,
		id,
	)

	inc, err := scanIncident(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Incident{}, fmt.Errorf("incident %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Incident{}, err
	}
	return inc, nil
}

// List returns matching incidents, newest first.
func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]Incident, error) {
	q := `SELECT ` + incidentColumns + ` FROM ` + s.table("incidents") + ` WHERE TRUE`
	args := make([]any, 0, 3)

	if filter.Status != "" {
		args = append(args, filter.Status)
		q += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Severity != "" {
		args = append(args, filter.Severity)
		q += fmt.Sprintf(" AND severity = $%d", len(args))
	}
	if filter.Location != "" {
		args = append(args, filter.Location)
		q += fmt.Sprintf(" AND location = $%d", len(args))
	}
	q += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

// Update mutates the set fields of an open incident. The row is locked
// so a concurrent Resolve cannot interleave with the status check.
func (s *PostgresStore) Update(ctx context.Context, id string, in UpdateInput) (Incident, error) {
	if err := in.Validate(); err != nil {
		return Incident{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Incident{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status Status
	err = tx.QueryRow(ctx,
		`SELECT status FROM `+s.table("incidents")+` WHERE id = $1 FOR UPDATE`,
		id,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return Incident{}, fmt.Errorf("incident %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Incident{}, err
	}
	if status == StatusResolved {
		return Incident{}, fmt.Errorf("incident %s: %w", id, ErrResolved)
	}

	row := tx.QueryRow(ctx,
		`UPDATE `+s.table("incidents")+`
		 SET title = COALESCE($2, title),
		     description = COALESCE($3, description),
		     severity = COALESCE($4, severity),
		     location = COALESCE($5, location),
		     updated_at = $6
		 WHERE id = $1
		 RETURNING `+incidentColumns,
		id, in.Title, in.Description, in.Severity, in.Location, now,
	)
	inc, err := scanIncident(row)
	if err != nil {
		return Incident{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Incident{}, err
	}
	return inc, nil
}

// Resolve transitions OPEN -> RESOLVED.
func (s *PostgresStore) Resolve(ctx context.Context, id, resolverID string, now time.Time) (Incident, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var by *string
	if resolverID != "" {
		by = &resolverID
	}

	row := s.pool.QueryRow(ctx,
		`UPDATE `+s.table("incidents")+`
		 SET status = $2, resolved_by = $3, resolved_at = $4, updated_at = $4
		 WHERE id = $1 AND status = $5
		 RETURNING `+incidentColumns,
		id, StatusResolved, by, now, StatusOpen,
	)

	inc, err := scanIncident(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Distinguish a missing row from an already-resolved one.
		var status Status
		lookupErr := s.pool.QueryRow(ctx,
			`SELECT status FROM `+s.table("incidents")+` WHERE id = $1`,
			id,
		).Scan(&status)
		if errors.Is(lookupErr, pgx.ErrNoRows) {
			return Incident{}, fmt.Errorf("incident %s: %w", id, ErrNotFound)
		}
		if lookupErr != nil {
			return Incident{}, lookupErr
		}
		return Incident{}, fmt.Errorf("incident %s: %w", id, ErrResolved)
	}
	if err != nil {
		return Incident{}, err
	}
	return inc, nil
}

// AddComment attaches a comment to an existing incident.
func (s *PostgresStore) AddComment(ctx context.Context, incidentID, authorID, body string, now time.Time) (Comment, error) {
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

	var c Comment
	err = s.pool.QueryRow(ctx,
		`INSERT INTO `+s.table("incident_comments")+` (id, incident_id, author_id, body, created_at)
		 SELECT $1, $2, $3, $4, $5
		 WHERE EXISTS (SELECT 1 FROM `+s.table("incidents")+` WHERE id = $2)
		 RETURNING id, incident_id, author_id, body, created_at`,
		id, incidentID, authorID, body, now,
	).Scan(&c.ID, &c.IncidentID, &c.AuthorID, &c.Body, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Comment{}, fmt.Errorf("incident %s: %w", incidentID, ErrNotFound)
	}
	if err != nil {
		return Comment{}, err
	}
	return c, nil
}

// ListComments returns an incident's comments, oldest first.
func (s *PostgresStore) ListComments(ctx context.Context, incidentID string) ([]Comment, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+s.table("incidents")+` WHERE id = $1)`,
		incidentID,
	).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("incident %s: %w", incidentID, ErrNotFound)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, incident_id, author_id, body, created_at
		 FROM `+s.table("incident_comments")+`
		 WHERE incident_id = $1 ORDER BY created_at ASC, id ASC`,
		incidentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Comment
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.IncidentID, &c.AuthorID, &c.Body, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

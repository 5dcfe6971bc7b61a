package incident

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for store and service failures.
var (
	ErrNotFound     = errors.New("incident: not found")
	ErrInvalidInput = errors.New("incident: invalid input")
	ErrResolved     = errors.New("incident: already resolved")
)

// Severity grades how bad a reported incident is.
type Severity string

const (
	SeverityMischief     Severity = "MISCHIEF"
	SeveritySuspicious   Severity = "SUSPICIOUS"
	SeverityDangerous    Severity = "DANGEROUS"
	SeverityUnforgivable Severity = "UNFORGIVABLE"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityMischief, SeveritySuspicious, SeverityDangerous, SeverityUnforgivable:
		return true
	}
	return false
}

// Location names where an incident happened.
type Location string

const (
	LocationHogwarts        Location = "HOGWARTS"
	LocationHogsmeade       Location = "HOGSMEADE"
	LocationKnockturnAlley  Location = "KNOCKTURN_ALLEY"
	LocationForbiddenForest Location = "FORBIDDEN_FOREST"
	LocationMinistry        Location = "MINISTRY"
	LocationAzkaban         Location = "AZKABAN"
	LocationDiagonAlley     Location = "DIAGON_ALLEY"
	LocationPlatform934     Location = "PLATFORM_9_3_4"
)

// Valid reports whether l is a known location.
func (l Location) Valid() bool {
	switch l {
	case LocationHogwarts, LocationHogsmeade, LocationKnockturnAlley,
		LocationForbiddenForest, LocationMinistry, LocationAzkaban,
		LocationDiagonAlley, LocationPlatform934:
		return true
	}
	return false
}

// Status is the incident lifecycle state. The only transition is
// OPEN -> RESOLVED.
type Status string

const (
	StatusOpen     Status = "OPEN"
	StatusResolved Status = "RESOLVED"
)

// Incident is one reported event.
type Incident struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Severity    Severity   `json:"severity"`
	Location    Location   `json:"location"`
	Status      Status     `json:"status"`
	ReporterID  string     `json:"reporterId"`
	ResolvedBy  *string    `json:"resolvedBy,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty"`
}

// Comment is one remark attached to an incident.
type Comment struct {
	ID         string    `json:"id"`
	IncidentID string    `json:"incidentId"`
	AuthorID   string    `json:"authorId"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"createdAt"`
}

// CreateInput describes a new incident report.
type CreateInput struct {
	Title       string
	Description string
	Severity    Severity
	Location    Location
	ReporterID  string
	Now         time.Time
}

// Validate checks a CreateInput before it reaches a store.
func (in CreateInput) Validate() error {
	if in.Title == "" || in.ReporterID == "" {
		return fmt.Errorf("create incident: title/reporter: %w", ErrInvalidInput)
	}
	if !in.Severity.Valid() {
		return fmt.Errorf("create incident: severity %q: %w", in.Severity, ErrInvalidInput)
	}
	if !in.Location.Valid() {
		return fmt.Errorf("create incident: location %q: %w", in.Location, ErrInvalidInput)
	}
	return nil
}

// UpdateInput carries the mutable incident fields. Nil fields are left
// untouched.
type UpdateInput struct {
	Title       *string
	Description *string
	Severity    *Severity
	Location    *Location
	Now         time.Time
}

// Validate checks the set fields of an UpdateInput.
func (in UpdateInput) Validate() error {
	if in.Title == nil && in.Description == nil && in.Severity == nil && in.Location == nil {
		return fmt.Errorf("update incident: no fields: %w", ErrInvalidInput)
	}
	if in.Title != nil && *in.Title == "" {
		return fmt.Errorf("update incident: empty title: %w", ErrInvalidInput)
	}
	if in.Severity != nil && !in.Severity.Valid() {
		return fmt.Errorf("update incident: severity %q: %w", *in.Severity, ErrInvalidInput)
	}
	if in.Location != nil && !in.Location.Valid() {
		return fmt.Errorf("update incident: location %q: %w", *in.Location, ErrInvalidInput)
	}
	return nil
}

// ListFilter narrows List results. Zero values mean "any".
type ListFilter struct {
	Status   Status
	Severity Severity
	Location Location
}

// RoomFor returns the realtime room name scoped to one incident, used
// for comment fan-out and typing signals.
func RoomFor(incidentID string) string {
	return "incident:" + incidentID
}

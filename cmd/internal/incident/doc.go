// Package incident implements mischief-incident reporting: creation,
// listing, updates, comments, and resolution.
//
// Incidents are never hard-deleted. Resolving an incident is the only
// terminal transition, and resolved incidents stay queryable.
package incident

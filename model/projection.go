// Package model defines the shelter domain types and the JSON projections
// served by the API.
//
// Every type that appears in an API listing implements Projectable. A listing
// renders each element in ProjectionShort, a detail endpoint renders the
// single element in ProjectionFull. Projections are plain structs so the
// standard JSON encoder handles escaping, number formatting and key order.
package model

import "fmt"

// Projection selects how much of an entity is rendered.
type Projection int

const (
	// ProjectionShort is the listing view.
	ProjectionShort Projection = iota
	// ProjectionFull is the detail view.
	ProjectionFull
)

// String returns the projection name.
func (p Projection) String() string {
	switch p {
	case ProjectionShort:
		return "short"
	case ProjectionFull:
		return "full"
	default:
		return fmt.Sprintf("projection(%d)", int(p))
	}
}

// Projectable is implemented by entities with a short and a full JSON view.
type Projectable interface {
	Project(p Projection) any
}

// ProjectAll projects every item. The result is never nil so an empty
// listing encodes as [] rather than null.
func ProjectAll[T Projectable](items []T, p Projection) []any {
	out := make([]any, 0, len(items))
	for _, item := range items {
		out = append(out, item.Project(p))
	}
	return out
}

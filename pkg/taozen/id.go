package taozen

import "github.com/google/uuid"

// newID produces a collision-resistant opaque identifier. Kept as a
// variable so tests can pin identifiers.
var newID = func() string {
	return uuid.New().String()
}

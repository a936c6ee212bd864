package sqlite

import "github.com/google/uuid"

// newID mints an opaque identifier for rows the caller didn't already
// assign one to.
func newID() string {
	return uuid.NewString()
}

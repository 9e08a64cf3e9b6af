package util

import (
	"github.com/oklog/ulid/v2"
)

// NewID returns a prefixed, lexicographically sortable unique id. Ids created
// later in the same process sort after earlier ones.
func NewID(prefix string) string {
	return prefix + ulid.Make().String()
}

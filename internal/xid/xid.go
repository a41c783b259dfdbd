package xid

import "github.com/google/uuid"

// New returns a random identifier tagged with prefix, e.g. "sale-3f1c...".
func New(prefix string) string {
	id := uuid.NewString()
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}

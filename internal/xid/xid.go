package xid

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a prefixed random identifier, e.g. "prd-3f9c...".
func New(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}

package model

import "github.com/google/uuid"

// NewID returns a prefixed short identifier, e.g. "task-3f2a9c1d".
func NewID(prefix string) string {
	return prefix + "-" + uuid.New().String()[:8]
}

package sync

import "github.com/google/uuid"

// IDGenerator returns a new canonical identifier for an added row.
type IDGenerator func() string

// NewID returns a random (version 4) UUID string.
func NewID() string {
	return uuid.New().String()
}

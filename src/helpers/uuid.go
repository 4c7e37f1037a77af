package helpers

import "github.com/google/uuid"

// NewRunID returns a fresh identifier for one command run
func NewRunID() string {
	return uuid.NewString()
}

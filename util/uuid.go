package util

import (
	"github.com/google/uuid"
)

// NewEventID generates an identifier for a recycle event
func NewEventID() string {
	return uuid.New().String()
}

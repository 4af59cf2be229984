package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	// v7 keeps ids sortable by creation time; fall back to v4
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// OwnerID identifies the user that uploaded a file
type OwnerID ID

func (id OwnerID) String() string { return ID(id).String() }

// ParseID parses a string into an ID
func ParseID(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("id cannot be empty")
	}
	if _, err := uuid.Parse(s); err != nil {
		return "", fmt.Errorf("invalid id %q: %w", s, err)
	}
	return ID(s), nil
}

// ParseOwnerID parses a string into an OwnerID
func ParseOwnerID(s string) (OwnerID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("owner ID cannot be empty")
	}
	return OwnerID(strings.TrimSpace(s)), nil
}

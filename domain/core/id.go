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
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to v4 if v7 fails
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

// DecisionID identifies one freshly computed verification decision.
type DecisionID ID

func (id DecisionID) String() string { return ID(id).String() }

// NewDecisionID returns a time-ordered decision identifier.
func NewDecisionID() DecisionID {
	return DecisionID(NewID())
}

// ParseDecisionID parses a string into DecisionID
func ParseDecisionID(s string) (DecisionID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("decision ID cannot be empty")
	}
	if _, err := uuid.Parse(s); err != nil {
		return "", fmt.Errorf("decision ID %q is not a UUID: %w", s, err)
	}
	return DecisionID(s), nil
}

package validator

import (
	"github.com/juju/errors"
)

// InvalidIdentifier is returned when a table, column or where-clause name
// fails the identifier allow-list.
const InvalidIdentifier = errors.ConstError("invalid identifier")

// Identifier is a table or column name that has passed IsValidIdentifier.
// Names are embedded as literal SQL text, so statements are only ever built
// from Identifier values.
type Identifier struct {
	name string
}

// NewIdentifier validates s and wraps it as an Identifier.
func NewIdentifier(s string) (Identifier, error) {
	if !IsValidIdentifier(s) {
		return Identifier{}, errors.Annotatef(InvalidIdentifier, "%q", s)
	}
	return Identifier{name: s}, nil
}

// MustIdentifier is NewIdentifier for names known at compile time.
func MustIdentifier(s string) Identifier {
	id, err := NewIdentifier(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (i Identifier) String() string {
	return i.name
}

// IsZero reports whether i was never validated.
func (i Identifier) IsZero() bool {
	return i.name == ""
}

// IsValidIdentifier reports whether s is non-empty and made only of ASCII
// letters, digits and underscores.
func IsValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_') {
			return false
		}
	}
	return true
}

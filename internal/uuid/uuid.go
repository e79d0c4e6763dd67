// Package uuid generates and validates client-side note identifiers.
//
// Notes are created offline, so identifiers are assigned by the client and
// never by the remote service. Only canonical UUID v4 strings are accepted.
package uuid

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// New generates a new UUID v4 note identifier.
func New() string {
	return uuid.New().String()
}

// Parse parses s as a canonical UUID v4.
func Parse(s string) (uuid.UUID, error) {
	// uuid.Parse also accepts the urn and braced forms; note ids never use them.
	if len(s) != 36 {
		return uuid.Nil, fmt.Errorf("invalid note id %q: want 36 characters", s)
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid note id: %w", err)
	}
	if id.Version() != 4 {
		return uuid.Nil, fmt.Errorf("invalid note id %q: expected UUID v4, got v%d", s, id.Version())
	}
	if id.Variant() != uuid.RFC4122 {
		return uuid.Nil, fmt.Errorf("invalid note id %q: unexpected variant", s)
	}
	return id, nil
}

// IsValid reports whether s is a canonical UUID v4.
func IsValid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// Normalize lower-cases a valid id so ids compare byte-for-byte.
func Normalize(s string) (string, error) {
	if _, err := Parse(s); err != nil {
		return "", err
	}
	return strings.ToLower(s), nil
}

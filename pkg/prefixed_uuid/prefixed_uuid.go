// Package prefixed_uuid provides identifiers of the form "<prefix>-<uuid>", such as task IDs.
package prefixed_uuid //nolint:revive // var-naming: matches the import path

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

const uuidLen = 36

// PrefixedUUID represents a UUID with a prefix string.
type PrefixedUUID struct {
	Prefix string
	UUID   uuid.UUID
}

// New creates a new PrefixedUUID with the given prefix and a random UUID.
func New(prefix string) PrefixedUUID {
	return PrefixedUUID{Prefix: prefix, UUID: uuid.New()}
}

// FromUUID creates a PrefixedUUID from an existing UUID and prefix.
func FromUUID(prefix string, id uuid.UUID) PrefixedUUID {
	return PrefixedUUID{Prefix: prefix, UUID: id}
}

// FromString parses "prefix-uuid". The prefix may itself contain dashes; the
// last 36 characters are always the UUID.
func FromString(s string) (PrefixedUUID, error) {
	if len(s) < uuidLen+2 || s[len(s)-uuidLen-1] != '-' {
		return PrefixedUUID{}, fmt.Errorf("invalid prefixed UUID format: %q", s)
	}
	prefix := s[:len(s)-uuidLen-1]
	parsed, err := uuid.Parse(s[len(s)-uuidLen:])
	if err != nil {
		return PrefixedUUID{}, fmt.Errorf("invalid UUID in %q: %w", s, err)
	}
	return PrefixedUUID{Prefix: prefix, UUID: parsed}, nil
}

// FromStringWithPrefix parses s and requires its prefix to equal want.
func FromStringWithPrefix(want, s string) (PrefixedUUID, error) {
	p, err := FromString(s)
	if err != nil {
		return PrefixedUUID{}, err
	}
	if p.Prefix != want {
		return PrefixedUUID{}, fmt.Errorf("expected prefix %q, got %q", want, p.Prefix)
	}
	return p, nil
}

// String returns the identifier in the format "prefix-uuid".
func (p PrefixedUUID) String() string {
	return p.Prefix + "-" + p.UUID.String()
}

// IsZero returns true if the PrefixedUUID is uninitialized.
func (p PrefixedUUID) IsZero() bool {
	return p.Prefix == "" && p.UUID == uuid.Nil
}

// MarshalJSON serialises the identifier as a JSON string.
func (p PrefixedUUID) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON parses a JSON string produced by MarshalJSON.
func (p *PrefixedUUID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("prefixed UUID must be a JSON string: %w", err)
	}
	parsed, err := FromString(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

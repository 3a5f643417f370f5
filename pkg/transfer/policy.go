package transfer

import (
	"fmt"
	"strings"
)

// ConflictPolicy controls what happens when the destination file already exists.
//
// The zero value is not a valid policy; callers must choose one.
type ConflictPolicy int

const (
	// Replace overwrites the existing destination.
	Replace ConflictPolicy = iota + 1

	// Rename writes to the first free name_N.ext next to the destination.
	Rename

	// UseExisting keeps the existing destination and reports it as the result.
	UseExisting
)

// Policies lists the valid policies in declaration order.
var Policies = []ConflictPolicy{Replace, Rename, UseExisting}

// String returns the canonical name of the policy.
func (p ConflictPolicy) String() string {
	switch p {
	case Replace:
		return "replace"
	case Rename:
		return "rename"
	case UseExisting:
		return "use-existing"
	default:
		return fmt.Sprintf("ConflictPolicy(%d)", int(p))
	}
}

// Valid reports whether p is one of the declared policies.
func (p ConflictPolicy) Valid() bool {
	return p >= Replace && p <= UseExisting
}

// ParsePolicy parses a policy name. Matching is case-insensitive and accepts
// "_" in place of "-". "overwrite" is an alias for replace.
func ParsePolicy(s string) (ConflictPolicy, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-") {
	case "replace", "overwrite":
		return Replace, nil
	case "rename":
		return Rename, nil
	case "use-existing", "existing", "keep":
		return UseExisting, nil
	default:
		return 0, fmt.Errorf("%w: %q (expected replace, rename or use-existing)", ErrInvalidPolicy, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p ConflictPolicy) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPolicy, int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *ConflictPolicy) UnmarshalText(text []byte) error {
	parsed, err := ParsePolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Package sandbox keeps configured paths inside a trusted base directory.
package sandbox

import (
	"path/filepath"
	"strings"

	"github.com/juju/errors"
)

// PathEscape is returned by a fail-closed Sandbox when a candidate path
// resolves outside the base directory.
const PathEscape = errors.ConstError("path escapes base directory")

// Policy decides what Resolve does with a path that escapes the base.
type Policy string

const (
	// FailOpen substitutes the base directory for an escaping path and
	// reports no error.
	FailOpen Policy = "fail-open"
	// FailClosed rejects an escaping path with PathEscape.
	FailClosed Policy = "fail-closed"
)

// ParsePolicy maps a configuration value onto a Policy. The empty string
// selects FailOpen.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", FailOpen:
		return FailOpen, nil
	case FailClosed:
		return FailClosed, nil
	}
	return "", errors.NotValidf("sandbox policy %q", s)
}

// Sandbox resolves candidate paths against a base directory.
type Sandbox struct {
	base   string
	policy Policy
}

// New returns a Sandbox rooted at base. A relative base is made absolute
// against the working directory.
func New(base string, policy Policy) (*Sandbox, error) {
	if base == "" {
		return nil, errors.NotValidf("empty base directory")
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, errors.Annotatef(err, "resolving base directory %q", base)
	}
	if policy == "" {
		policy = FailOpen
	}
	return &Sandbox{base: abs, policy: policy}, nil
}

// Base returns the absolute base directory.
func (s *Sandbox) Base() string {
	return s.base
}

// Policy returns the escape policy in effect.
func (s *Sandbox) Policy() Policy {
	return s.policy
}

// Resolve joins candidate onto the base. An absolute candidate is taken as
// is. When the cleaned result is not the base or below it, a FailOpen
// sandbox returns the base itself and a FailClosed sandbox returns
// PathEscape.
func (s *Sandbox) Resolve(candidate string) (string, error) {
	return Resolve(s.base, candidate, s.policy)
}

// Resolve is Sandbox.Resolve for a one-off base directory, used for
// per-record files below a table directory.
func Resolve(base, candidate string, policy Policy) (string, error) {
	base = filepath.Clean(base)
	var full string
	if filepath.IsAbs(candidate) {
		full = filepath.Clean(candidate)
	} else {
		full = filepath.Join(base, candidate)
	}
	if within(base, full) {
		return full, nil
	}
	if policy == FailClosed {
		return "", errors.Annotatef(PathEscape, "%q under %q", candidate, base)
	}
	return base, nil
}

func within(base, path string) bool {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	if filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

package checkpoint

import (
	"fmt"
	"path/filepath"
	"strings"
)

// #region validate

// ValidateRef rejects any caller-supplied checkpoint reference that could
// not be a safe basename: empty, containing a path separator, or containing
// characters outside [A-Za-z0-9._-]. References that start from user input
// (labels echoed back by the catalog panel) must pass here before any lookup.
func ValidateRef(ref string) error {
	if ref == "" {
		return fmt.Errorf("%w: empty", ErrInvalidReference)
	}
	if strings.ContainsAny(ref, `/\`) {
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidReference, ref)
	}
	for _, r := range ref {
		if !safeRefRune(r) {
			return fmt.Errorf("%w: %q contains %q", ErrInvalidReference, ref, r)
		}
	}
	return nil
}

func safeRefRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '.' || r == '_' || r == '-':
		return true
	default:
		return false
	}
}

// #endregion validate

// #region slug

// SafeBasename reduces a catalog path to its basename so it can be echoed
// back to callers as a restore reference.
func SafeBasename(path string) string {
	return filepath.Base(path)
}

// slugify reduces a label to allow-listed characters for use in a snapshot
// file name. Everything else becomes '-'.
func slugify(label string) string {
	var b strings.Builder
	for _, r := range label {
		if safeRefRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('-')
		}
	}
	return b.String()
}

// #endregion slug

package prompt

import (
	"fmt"

	"github.com/pmezard/go-difflib/difflib"
)

// UnifiedDiff renders the line changes turning a into b, labelled with
// from and to. Equal inputs produce "".
func UnifiedDiff(from, to, a, b string) (string, error) {
	if a == b {
		return "", nil
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: from,
		ToFile:   to,
		Context:  3,
	})
}

// Diff compares two stored versions of a prompt.
func (s *Store) Diff(name string, v1, v2 int) (string, error) {
	p1, ok := s.Get(name, v1)
	if !ok {
		return "", fmt.Errorf("%w: %s v%d", ErrNotFound, name, v1)
	}
	p2, ok := s.Get(name, v2)
	if !ok {
		return "", fmt.Errorf("%w: %s v%d", ErrNotFound, name, v2)
	}
	return UnifiedDiff(fmt.Sprintf("%s@v%d", name, v1), fmt.Sprintf("%s@v%d", name, v2), p1.Body, p2.Body)
}

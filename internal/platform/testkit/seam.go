package testkit

import "testing"

// Swap replaces a package-level seam such as an opener func for the
// duration of the test
func Swap[T any](t *testing.T, target *T, replacement T) {
	t.Helper()
	orig := *target
	*target = replacement
	t.Cleanup(func() { *target = orig })
}

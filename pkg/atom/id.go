package atom

import "cmp"

// ID identifies one interned string. It is only meaningful for the Table
// that issued it, and only until that Table is cleared.
//
// The raw integer is dense and starts at zero, so callers may use it
// directly as an index into slices or bitsets.
type ID uint64

// Compare returns -1, 0 or +1 depending on whether id sorts before, equal to
// or after other.
func (id ID) Compare(other ID) int {
	return cmp.Compare(id, other)
}

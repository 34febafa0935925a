package counts

import "math"

// SplitQuantity splits a counted quantity into whole units and the remaining
// fraction. full + partial == q for every q >= 0: subtracting a float's own
// floor is exact.
func SplitQuantity(q float64) (full int, partial float64) {
	f := math.Floor(q)
	return int(f), q - f
}

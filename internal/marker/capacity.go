package marker

import "fmt"

// DistinctIdentities returns 2^(g^2-4), the number of identities a grid of
// width g can encode.
func DistinctIdentities(g int) (uint64, error) {
	if g < MinGridWidth || g > MaxGridWidth {
		return 0, fmt.Errorf("%w: %d (must be between %d and %d)", ErrGridWidth, g, MinGridWidth, MaxGridWidth)
	}
	return uint64(1) << uint(g*g-4), nil
}

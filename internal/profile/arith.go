package profile

import (
	"fmt"
	"math"
)

// Counters and accumulators fail on overflow. Outstanding debt is the only field that
// decreases, and it clamps at zero instead of failing.

func checkedAddU32(field string, v, delta uint32) (uint32, error) {
	if v > math.MaxUint32-delta {
		return v, fmt.Errorf("%s: %w", field, ErrOverflow)
	}
	return v + delta, nil
}

func checkedAddU64(field string, v, delta uint64) (uint64, error) {
	if v > math.MaxUint64-delta {
		return v, fmt.Errorf("%s: %w", field, ErrOverflow)
	}
	return v + delta, nil
}

func saturatingSubU64(v, delta uint64) uint64 {
	if delta >= v {
		return 0
	}
	return v - delta
}

package argbuf

import (
	"fmt"
	"math"
	"math/bits"
)

// CheckedAdd returns a+b or ErrOverflow if the sum wraps.
func CheckedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: %d + %d", ErrOverflow, a, b)
	}
	return sum, nil
}

// CheckedMul returns a*b or ErrOverflow if the product wraps.
func CheckedMul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, fmt.Errorf("%w: %d * %d", ErrOverflow, a, b)
	}
	return lo, nil
}

// CheckedSub returns a-b or ErrOverflow if b > a.
func CheckedSub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, fmt.Errorf("%w: %d - %d underflows", ErrOverflow, a, b)
	}
	return diff, nil
}

// AlignUp rounds value up to the next multiple of alignment, which must be a
// power of two.
func AlignUp(value, alignment uint64) (uint64, error) {
	if alignment == 0 || alignment&(alignment-1) != 0 {
		return 0, invalidArg("align", "alignment %d is not a power of two", alignment)
	}
	mask := alignment - 1
	if value > math.MaxUint64-mask {
		return 0, fmt.Errorf("%w: align %d to %d", ErrOverflow, value, alignment)
	}
	return (value + mask) &^ mask, nil
}

// sumChecked adds all values, stopping at the first overflow.
func sumChecked(values ...uint64) (uint64, error) {
	var total uint64
	for _, v := range values {
		var err error
		if total, err = CheckedAdd(total, v); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// mulChecked multiplies all values, stopping at the first overflow.
func mulChecked(values ...uint64) (uint64, error) {
	product := uint64(1)
	for _, v := range values {
		var err error
		if product, err = CheckedMul(product, v); err != nil {
			return 0, err
		}
	}
	return product, nil
}

func rangesOverlap(a0, a1, b0, b1 uint64) bool {
	// half-open ranges [a0,a1) and [b0,b1)
	return a0 < b1 && b0 < a1
}

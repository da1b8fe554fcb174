package txbuilder

import "fmt"

// Split divides amount into n outputs of amount/n each, the last one taking
// the remainder. n is clamped to amount so that no output is empty.
func Split(amount uint64, n int) ([]uint64, error) {
	if amount == 0 {
		return nil, fmt.Errorf("%w: split of zero", ErrInvalidAmount)
	}
	if n < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSplit, n)
	}
	if uint64(n) > amount {
		n = int(amount)
	}
	each := amount / uint64(n)
	parts := make([]uint64, n)
	for i := range parts {
		parts[i] = each
	}
	parts[n-1] += amount - each*uint64(n)
	return parts, nil
}

// Package quota decides how many predictions a user may start.
package quota

import (
	"fmt"

	"github.com/cuongbtq/photoshot-be/internal/domain"
)

// DefaultCap is the lifetime number of photos a user may generate
const DefaultCap = 100

// Compute returns min(requested, limit-used). It fails with ErrInvalidQuantity for
// a non-positive request and with ErrQuotaExhausted when nothing remains.
func Compute(requested, used, limit int) (int, error) {
	if requested <= 0 {
		return 0, domain.Wrap(domain.ErrInvalidQuantity, fmt.Errorf("quantity %d is not positive", requested))
	}

	remaining := limit - used
	if remaining <= 0 {
		return 0, domain.NewError(domain.KindQuotaExhausted,
			fmt.Sprintf("You have already generated %d photos", limit), nil)
	}

	return min(requested, remaining), nil
}

// Remaining reports how many units are left, never negative
func Remaining(used, limit int) int {
	return max(limit-used, 0)
}

// Clamp applies the per-request ceiling. A non-positive ceiling disables it.
func Clamp(requested, ceiling int) int {
	if ceiling > 0 && requested > ceiling {
		return ceiling
	}
	return requested
}

package handler

import (
	"fmt"
)

// validateGTIN checks that id is a well-formed GTIN: 8, 12, 13 or 14 digits
// with a valid mod-10 check digit.
func validateGTIN(id string) error {
	switch len(id) {
	case 8, 12, 13, 14:
	default:
		return fmt.Errorf("%w: GTIN must be 8, 12, 13 or 14 digits, got %d", ErrInvalidBatchID, len(id))
	}

	for _, c := range id {
		if c < '0' || c > '9' {
			return fmt.Errorf("%w: GTIN must be numeric", ErrInvalidBatchID)
		}
	}

	// Weights alternate 3,1 moving left from the digit next to the check
	// digit.
	sum := 0
	weight := 3
	for i := len(id) - 2; i >= 0; i-- {
		sum += int(id[i]-'0') * weight
		weight = 4 - weight
	}
	check := (10 - sum%10) % 10
	if check != int(id[len(id)-1]-'0') {
		return fmt.Errorf("%w: GTIN check digit mismatch", ErrInvalidBatchID)
	}

	return nil
}

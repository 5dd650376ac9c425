package dto

import (
	"fmt"
	"math/big"
	"strings"
)

const usdDecimals = 18

// ParseUSD converts a decimal dollar string ("250", "99.50") into 18-decimal
// fixed point. Rejects negatives and more than 18 fractional digits.
func ParseUSD(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	if strings.HasPrefix(s, "-") {
		return nil, fmt.Errorf("negative amount %q", s)
	}

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > usdDecimals {
		return nil, fmt.Errorf("amount %q has more than %d decimal places", s, usdDecimals)
	}
	frac += strings.Repeat("0", usdDecimals-len(frac))

	amount, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return amount, nil
}

package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// ErrRateUnavailable means the oracle has no fresh rate for the asset. It is
// recoverable: the caller can retry, or use a USD-pegged asset which never
// consults the oracle.
var ErrRateUnavailable = errors.New("oracle: rate unavailable")

// Rate is one oracle quote: Price is USD per whole asset unit scaled by
// 10^Decimals.
type Rate struct {
	Price    *big.Int
	Decimals uint8
	AsOf     time.Time
}

// RateSource supplies the latest asset/USD rate. The chain-backed FTSO reader
// implements this; tests substitute stubs.
type RateSource interface {
	GetRate(ctx context.Context, asset string) (Rate, error)
}

// Normalizer converts USD-denominated amounts into settlement-asset
// quantities. It is stateless: every conversion re-quotes, so two conversions
// of the same nominal amount at different times may legitimately differ. The
// escrow captures the USD value at the moment of deposit, nowhere else.
type Normalizer struct {
	src RateSource
}

func NewNormalizer(src RateSource) *Normalizer {
	return &Normalizer{src: src}
}

// IsStablecoin recognizes USD-pegged symbols, which convert 1:1 without the
// oracle. Substring match keeps testnet variants (testUSDT, USDC.e) covered.
func IsStablecoin(asset string) bool {
	upper := strings.ToUpper(asset)
	return strings.Contains(upper, "USDT") || strings.Contains(upper, "USDC")
}

// Convert turns amountUSD (18-decimal fixed point) into asset units at the
// latest rate. Stablecoins short-circuit 1:1 as a resilience fallback.
func (n *Normalizer) Convert(ctx context.Context, amountUSD *big.Int, asset string) (*big.Int, error) {
	if amountUSD == nil || amountUSD.Sign() < 0 {
		return nil, fmt.Errorf("oracle: invalid usd amount")
	}
	if IsStablecoin(asset) {
		return new(big.Int).Set(amountUSD), nil
	}

	rate, err := n.src.GetRate(ctx, asset)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRateUnavailable, asset, err)
	}
	if rate.Price == nil || rate.Price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s: zero price", ErrRateUnavailable, asset)
	}

	// tokens = usd * 10^decimals / price, keeping the 18-decimal base.
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(rate.Decimals)), nil)
	amount := new(big.Int).Mul(amountUSD, scale)
	return amount.Div(amount, rate.Price), nil
}

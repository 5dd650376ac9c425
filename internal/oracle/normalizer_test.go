package oracle

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"
)

type stubSource struct {
	rate  Rate
	err   error
	calls int
}

func (s *stubSource) GetRate(ctx context.Context, asset string) (Rate, error) {
	s.calls++
	return s.rate, s.err
}

func usd(n int64) *big.Int {
	wei := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return wei.Mul(wei, big.NewInt(n))
}

func TestIsStablecoin(t *testing.T) {
	tests := []struct {
		asset string
		want  bool
	}{
		{"USDT", true},
		{"testUSDT", true},
		{"USDC", true},
		{"usdc.e", true},
		{"FLR", false},
		{"ETH", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsStablecoin(tt.asset); got != tt.want {
			t.Errorf("IsStablecoin(%q) = %v, want %v", tt.asset, got, tt.want)
		}
	}
}

func TestConvertStablecoinSkipsOracle(t *testing.T) {
	src := &stubSource{err: errors.New("oracle down")}
	n := NewNormalizer(src)

	got, err := n.Convert(context.Background(), usd(300), "testUSDT")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if got.Cmp(usd(300)) != 0 {
		t.Errorf("stablecoin conversion = %v, want 1:1", got)
	}
	if src.calls != 0 {
		t.Errorf("oracle consulted %d times for a stablecoin", src.calls)
	}
}

func TestConvertUsesRate(t *testing.T) {
	// Price $2.00 per unit with 5 oracle decimals -> 200000.
	src := &stubSource{rate: Rate{Price: big.NewInt(200000), Decimals: 5, AsOf: time.Now()}}
	n := NewNormalizer(src)

	got, err := n.Convert(context.Background(), usd(300), "FLR")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if got.Cmp(usd(150)) != 0 {
		t.Errorf("$300 at $2/unit = %v, want %v", got, usd(150))
	}
}

func TestConvertRateUnavailable(t *testing.T) {
	src := &stubSource{err: errors.New("no quote")}
	n := NewNormalizer(src)

	if _, err := n.Convert(context.Background(), usd(1), "FLR"); !errors.Is(err, ErrRateUnavailable) {
		t.Errorf("convert with oracle miss = %v, want ErrRateUnavailable", err)
	}

	src.err = nil
	src.rate = Rate{Price: big.NewInt(0), Decimals: 5}
	if _, err := n.Convert(context.Background(), usd(1), "FLR"); !errors.Is(err, ErrRateUnavailable) {
		t.Errorf("convert with zero price = %v, want ErrRateUnavailable", err)
	}
}

// Every conversion re-quotes: a rate move between two calls yields different
// settlement quantities for the same nominal USD amount.
func TestConvertRequotesPerCall(t *testing.T) {
	src := &stubSource{rate: Rate{Price: big.NewInt(100000), Decimals: 5}}
	n := NewNormalizer(src)

	first, err := n.Convert(context.Background(), usd(100), "FLR")
	if err != nil {
		t.Fatalf("first convert: %v", err)
	}

	src.rate.Price = big.NewInt(400000) // price quadruples
	second, err := n.Convert(context.Background(), usd(100), "FLR")
	if err != nil {
		t.Fatalf("second convert: %v", err)
	}

	if first.Cmp(second) == 0 {
		t.Error("conversions at different rates should differ")
	}
	if src.calls != 2 {
		t.Errorf("oracle consulted %d times, want 2 (no caching)", src.calls)
	}
}

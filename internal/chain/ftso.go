package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/chainlance/backend/internal/oracle"
)

// FTSOSource reads asset prices from the on-chain price oracle contract. It
// satisfies oracle.RateSource.
type FTSOSource struct {
	oracleABI abi.ABI
	contract  *bind.BoundContract
}

func NewFTSOSource(client *Client, oracleAddr string) (*FTSOSource, error) {
	parsed, err := abi.JSON(strings.NewReader(priceOracleABI))
	if err != nil {
		return nil, fmt.Errorf("parse price oracle abi: %w", err)
	}
	return &FTSOSource{
		oracleABI: parsed,
		contract:  bind.NewBoundContract(common.HexToAddress(oracleAddr), parsed, client.eth, client.eth, client.eth),
	}, nil
}

func (s *FTSOSource) GetRate(ctx context.Context, asset string) (oracle.Rate, error) {
	var out []any
	err := s.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getPrice", asset)
	if err != nil {
		return oracle.Rate{}, fmt.Errorf("getPrice %s: %w", asset, err)
	}
	price := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	decimals := *abi.ConvertType(out[1], new(*big.Int)).(**big.Int)
	return oracle.Rate{
		Price:    price,
		Decimals: uint8(decimals.Uint64()),
		AsOf:     time.Now().UTC(),
	}, nil
}

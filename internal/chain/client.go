package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// Client wraps an RPC connection plus the operator key that signs every
// transaction this service relays. Confirmation latency is unbounded from the
// chain's point of view; confirmTimeout is this caller's own policy.
type Client struct {
	eth            *ethclient.Client
	chainID        *big.Int
	key            *ecdsa.PrivateKey
	from           common.Address
	confirmTimeout time.Duration
	log            *zap.Logger
}

func Dial(ctx context.Context, rpcURL, operatorKeyHex string, confirmTimeout time.Duration, log *zap.Logger) (*Client, error) {
	key, err := crypto.HexToECDSA(operatorKeyHex)
	if err != nil {
		return nil, fmt.Errorf("parse operator key: %w", err)
	}

	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("chain id: %w", err)
	}

	from := crypto.PubkeyToAddress(key.PublicKey)
	log.Info("chain client connected",
		zap.String("chain_id", chainID.String()),
		zap.String("operator", from.Hex()),
	)

	return &Client{
		eth:            eth,
		chainID:        chainID,
		key:            key,
		from:           from,
		confirmTimeout: confirmTimeout,
		log:            log,
	}, nil
}

func (c *Client) Close() {
	c.eth.Close()
}

// Eth exposes the raw RPC client for the event indexer.
func (c *Client) Eth() *ethclient.Client {
	return c.eth
}

// Operator returns the relaying address.
func (c *Client) Operator() common.Address {
	return c.from
}

func (c *Client) txOpts(ctx context.Context) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(c.key, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("transactor: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}

// waitMined blocks until the transaction is confirmed or the local timeout
// policy expires. A failed receipt is an error; delay alone is not.
func (c *Client) waitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(waitCtx, c.eth, tx)
	if err != nil {
		return nil, fmt.Errorf("wait for tx %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("tx %s reverted", tx.Hash().Hex())
	}
	return receipt, nil
}

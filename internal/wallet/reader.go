package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Backend is the slice of an RPC client the reader needs.
// *ethclient.Client satisfies it.
type Backend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Balance is a token balance with the token's decimals.
type Balance struct {
	Raw      *big.Int
	Decimals uint8
}

// Reader performs read-only chain queries for the UI.
type Reader struct {
	backend  Backend
	interval time.Duration
}

func NewReader(backend Backend, pollInterval time.Duration) *Reader {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Reader{backend: backend, interval: pollInterval}
}

// TokenBalance reads decimals() and balanceOf(account) from token.
func (r *Reader) TokenBalance(ctx context.Context, token, account common.Address) (*Balance, error) {
	var decimals uint8
	if err := r.call(ctx, token, &decimals, "decimals"); err != nil {
		return nil, err
	}
	var raw *big.Int
	if err := r.call(ctx, token, &raw, "balanceOf", account); err != nil {
		return nil, err
	}
	return &Balance{Raw: raw, Decimals: decimals}, nil
}

func (r *Reader) call(ctx context.Context, to common.Address, out any, method string, args ...any) error {
	data, err := TokenABI.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("pack %s: %w", method, err)
	}
	res, err := r.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return fmt.Errorf("call %s: %w", method, err)
	}
	if err := TokenABI.UnpackIntoInterface(out, method, res); err != nil {
		return fmt.Errorf("unpack %s: %w", method, err)
	}
	return nil
}

// Receipt returns the receipt, or nil without error while the transaction
// is still pending.
func (r *Reader) Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	receipt, err := r.backend.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("receipt %s: %w", hash.Hex(), err)
	}
	return receipt, nil
}

// WaitReceipt polls until the transaction is mined or ctx is done.
func (r *Reader) WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		receipt, err := r.Receipt(ctx, hash)
		if err != nil {
			return nil, err
		}
		if receipt != nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Package wallet holds the session's ephemeral signer and the transient
// client that signs and submits transactions under a session's policies.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"sessionkeys/internal/policy"
	"sessionkeys/internal/provider"
)

var (
	ErrSessionExpired = errors.New("session expired")
	ErrNoTransactor   = errors.New("no transaction relay configured")
)

// Chain identifies the network sessions are scoped to.
type Chain struct {
	ID          uint64
	Name        string
	ExplorerURL string
}

// Transactor relays session-signed transactions.
type Transactor interface {
	SendSessionTransaction(ctx context.Context, tx provider.SessionTransaction) (common.Hash, error)
}

// ClientConfig is everything a Client is derived from.
type ClientConfig struct {
	Account        common.Address
	Chain          Chain
	Signer         *Signer
	Session        policy.Session
	Token          common.Address
	Paymaster      common.Address
	PaymasterInput []byte
	Transactor     Transactor
	Now            func() time.Time
}

// Client is the transient SessionClient. It is never persisted; it is
// rebuilt from the stored record whenever needed.
type Client struct {
	account        common.Address
	chain          Chain
	signer         *Signer
	session        policy.Session
	sessionHash    common.Hash
	token          common.Address
	paymaster      common.Address
	paymasterInput []byte
	transactor     Transactor
	now            func() time.Time
}

// NewClient derives a client. It fails if the signer does not match the
// session's signer.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Signer == nil {
		return nil, errors.New("wallet: nil signer")
	}
	if cfg.Signer.Address() != cfg.Session.Signer {
		return nil, fmt.Errorf("wallet: signer %s does not match session signer %s",
			cfg.Signer.Address().Hex(), cfg.Session.Signer.Hex())
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	input := cfg.PaymasterInput
	if input == nil {
		input = GeneralPaymasterInput(nil)
	}
	return &Client{
		account:        cfg.Account,
		chain:          cfg.Chain,
		signer:         cfg.Signer,
		session:        cfg.Session,
		sessionHash:    cfg.Session.Hash(),
		token:          cfg.Token,
		paymaster:      cfg.Paymaster,
		paymasterInput: input,
		transactor:     cfg.Transactor,
		now:            now,
	}, nil
}

func (c *Client) Account() common.Address       { return c.account }
func (c *Client) SignerAddress() common.Address { return c.signer.Address() }
func (c *Client) Session() policy.Session       { return c.session }
func (c *Client) SessionHash() common.Hash      { return c.sessionHash }
func (c *Client) Chain() Chain                  { return c.chain }
func (c *Client) ExpiresAt() time.Time          { return c.session.Expiry() }

// Expired reports whether the session can no longer sign.
func (c *Client) Expired() bool {
	return c.session.Expired(c.now())
}

// Mint calls mint(recipient, amount) on the configured token.
func (c *Client) Mint(ctx context.Context, recipient common.Address, amount *big.Int) (common.Hash, error) {
	data, err := MintCalldata(recipient, amount)
	if err != nil {
		return common.Hash{}, err
	}
	return c.WriteContract(ctx, c.token, data, nil)
}

// WriteContract submits a contract call allowed by the session's call policies.
func (c *Client) WriteContract(ctx context.Context, to common.Address, data []byte, value *big.Int) (common.Hash, error) {
	if c.Expired() {
		return common.Hash{}, ErrSessionExpired
	}
	if err := c.session.AllowsCall(to, data, value); err != nil {
		return common.Hash{}, err
	}
	return c.send(ctx, to, data, value)
}

// Transfer sends value to an address allowed by the session's transfer policies.
func (c *Client) Transfer(ctx context.Context, to common.Address, value *big.Int) (common.Hash, error) {
	if c.Expired() {
		return common.Hash{}, ErrSessionExpired
	}
	if err := c.session.AllowsTransfer(to, value); err != nil {
		return common.Hash{}, err
	}
	return c.send(ctx, to, nil, value)
}

func (c *Client) send(ctx context.Context, to common.Address, data []byte, value *big.Int) (common.Hash, error) {
	if c.transactor == nil {
		return common.Hash{}, ErrNoTransactor
	}
	if value == nil {
		value = new(big.Int)
	}
	digest := c.digest(to, data, value)
	sig, err := c.signer.SignHash(digest)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign session transaction: %w", err)
	}
	return c.transactor.SendSessionTransaction(ctx, provider.SessionTransaction{
		Account:        c.account,
		Signer:         c.signer.Address(),
		SessionHash:    c.sessionHash,
		ChainID:        c.chain.ID,
		To:             to,
		Data:           hexutil.Bytes(data),
		Value:          (*hexutil.Big)(new(big.Int).Set(value)),
		Paymaster:      c.paymaster,
		PaymasterInput: hexutil.Bytes(c.paymasterInput),
		Signature:      hexutil.Bytes(sig),
	})
}

// digest binds a transaction to account, session and chain:
// keccak256(account ‖ to ‖ value ‖ data ‖ sessionHash ‖ chainId).
func (c *Client) digest(to common.Address, data []byte, value *big.Int) common.Hash {
	return crypto.Keccak256Hash(
		c.account.Bytes(),
		to.Bytes(),
		common.LeftPadBytes(value.Bytes(), 32),
		data,
		c.sessionHash.Bytes(),
		common.LeftPadBytes(new(big.Int).SetUint64(c.chain.ID).Bytes(), 32),
	)
}

// VerifySessionTransaction checks that tx was signed by its declared signer.
// Relays and tests use it to validate what a Client produced.
func VerifySessionTransaction(tx provider.SessionTransaction) bool {
	value := new(big.Int)
	if tx.Value != nil {
		value = tx.Value.ToInt()
	}
	c := &Client{account: tx.Account, sessionHash: tx.SessionHash, chain: Chain{ID: tx.ChainID}}
	digest := c.digest(tx.To, tx.Data, value)
	pub, err := crypto.SigToPub(digest.Bytes(), tx.Signature)
	if err != nil {
		return false
	}
	return crypto.PubkeyToAddress(*pub) == tx.Signer
}

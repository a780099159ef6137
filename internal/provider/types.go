// Package provider talks to the external wallet-session provider that
// creates, revokes and relays session-key transactions on-chain.
package provider

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"sessionkeys/internal/policy"
)

// CreateSessionRequest asks the provider to register a session for Account,
// paid for by Paymaster.
type CreateSessionRequest struct {
	Account        common.Address `json:"account"`
	Session        policy.Session `json:"session"`
	Paymaster      common.Address `json:"paymaster"`
	PaymasterInput hexutil.Bytes  `json:"paymasterInput"`
}

// CreateSessionResult is the session as accepted on-chain.
type CreateSessionResult struct {
	Session         policy.Session `json:"session"`
	TransactionHash *common.Hash   `json:"transactionHash,omitempty"`
}

type RevokeSessionsRequest struct {
	Account        common.Address   `json:"account"`
	Sessions       []policy.Session `json:"sessions"`
	SessionHashes  []common.Hash    `json:"sessionHashes"`
	Paymaster      common.Address   `json:"paymaster"`
	PaymasterInput hexutil.Bytes    `json:"paymasterInput"`
}

type RevokeSessionsResult struct {
	TransactionHash *common.Hash `json:"transactionHash,omitempty"`
}

// SessionTransaction is a call signed by the session's ephemeral key on
// behalf of Account.
type SessionTransaction struct {
	Account        common.Address `json:"account"`
	Signer         common.Address `json:"signer"`
	SessionHash    common.Hash    `json:"sessionHash"`
	ChainID        uint64         `json:"chainId"`
	To             common.Address `json:"to"`
	Data           hexutil.Bytes  `json:"data"`
	Value          *hexutil.Big   `json:"value"`
	Paymaster      common.Address `json:"paymaster"`
	PaymasterInput hexutil.Bytes  `json:"paymasterInput"`
	Signature      hexutil.Bytes  `json:"signature"`
}

type SendResult struct {
	TransactionHash common.Hash `json:"transactionHash"`
}

package session

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"sessionkeys/internal/policy"
	"sessionkeys/internal/wallet"
)

// State is where an account sits in the session-key lifecycle:
// NoSession -> Creating -> Active -> (Expired | Revoked) -> NoSession.
type State int

const (
	StateNoSession State = iota
	StateCreating
	StateActive
	StateExpired
	StateRevoked
)

func (s State) String() string {
	switch s {
	case StateNoSession:
		return "no_session"
	case StateCreating:
		return "creating"
	case StateActive:
		return "active"
	case StateExpired:
		return "expired"
	case StateRevoked:
		return "revoked"
	}
	return "unknown"
}

// Transition names what caused a Change.
type Transition string

const (
	TransitionCreating     Transition = "creating"
	TransitionCreated      Transition = "created"
	TransitionCreateFailed Transition = "create_failed"
	TransitionRestored     Transition = "restored"
	TransitionExpired      Transition = "expired"
	TransitionRevoked      Transition = "revoked"
	TransitionCorrupt      Transition = "corrupt"
	TransitionForgotten    Transition = "forgotten"
)

// Change is what observers are told after every state change.
// Client is nil unless State is StateActive.
type Change struct {
	Account     common.Address
	State       State
	Transition  Transition
	Client      *wallet.Client
	Signer      common.Address
	SessionHash common.Hash
	TxHash      *common.Hash
	ExpiresAt   time.Time
	Err         error
	At          time.Time
}

type Observer func(Change)

// Status is a key-free snapshot of an account's session.
type Status struct {
	Account     common.Address
	State       State
	Signer      common.Address
	SessionHash common.Hash
	TxHash      *common.Hash
	ExpiresAt   time.Time
	Session     *policy.Session
}

package types

import (
	"time"

	"sessionkeys/internal/policy"
)

type SessionResponse struct {
	Account         string          `json:"account"`
	State           string          `json:"state"`
	Signer          string          `json:"signer,omitempty"`
	SessionHash     string          `json:"session_hash,omitempty"`
	TransactionHash string          `json:"transaction_hash,omitempty"`
	ExplorerURL     string          `json:"explorer_url,omitempty"`
	ExpiresAt       *time.Time      `json:"expires_at,omitempty"`
	ExpiresIn       string          `json:"expires_in,omitempty"`
	Capabilities    []string        `json:"capabilities,omitempty"`
	Session         *policy.Session `json:"session,omitempty"`
}

// ChangeEvent is pushed over the events websocket for every lifecycle change.
type ChangeEvent struct {
	Account         string     `json:"account"`
	State           string     `json:"state"`
	Transition      string     `json:"transition"`
	Signer          string     `json:"signer,omitempty"`
	SessionHash     string     `json:"session_hash,omitempty"`
	TransactionHash string     `json:"transaction_hash,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	Error           string     `json:"error,omitempty"`
	Timestamp       time.Time  `json:"timestamp"`
}

package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"sessionkeys/internal/constants"
	"sessionkeys/internal/policy"
	"sessionkeys/internal/wallet"
)

// Record is the persisted SessionKeyRecord. It is written once on create
// and deleted on revoke, expiry or corruption; never updated in place.
type Record struct {
	PrivateKey      hexutil.Bytes  `json:"privateKey"`
	Address         common.Address `json:"address"`
	ExpiresAt       time.Time      `json:"expiresAt"`
	Session         policy.Session `json:"session"`
	TransactionHash *common.Hash   `json:"transactionHash,omitempty"`
}

// StorageKey is the per-account store key.
func StorageKey(account common.Address) string {
	return constants.StoreKeyPrefix + account.Hex()
}

// Expired treats an expiry equal to now as expired.
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Signer reconstructs the ephemeral key and checks it against the stored
// address and the session's signer.
func (r *Record) Signer() (*wallet.Signer, error) {
	s, err := wallet.SignerFromBytes(r.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
	}
	if s.Address() != r.Address {
		return nil, fmt.Errorf("%w: key derives %s, record says %s", ErrStoreCorrupt, s.Address().Hex(), r.Address.Hex())
	}
	if r.Session.Signer != r.Address {
		return nil, fmt.Errorf("%w: session signer %s, record says %s", ErrStoreCorrupt, r.Session.Signer.Hex(), r.Address.Hex())
	}
	return s, nil
}

// Sealer encrypts records at rest. aad is the store key, which binds a
// sealed record to its account.
type Sealer interface {
	Seal(plaintext, aad []byte) ([]byte, error)
	Open(blob, aad []byte) ([]byte, error)
}

func encodeRecord(rec *Record, key string, sealer Sealer) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	if sealer == nil {
		return data, nil
	}
	return sealer.Seal(data, []byte(key))
}

func decodeRecord(raw []byte, key string, sealer Sealer) (*Record, error) {
	data := raw
	if sealer != nil {
		opened, err := sealer.Open(raw, []byte(key))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
		}
		data = opened
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var rec Record
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
	}
	if len(rec.PrivateKey) == 0 || rec.ExpiresAt.IsZero() {
		return nil, fmt.Errorf("%w: missing fields", ErrStoreCorrupt)
	}
	return &rec, nil
}

package wallet

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer is an ephemeral session key.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// GenerateSigner creates a fresh secp256k1 session key.
func GenerateSigner() (*Signer, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate session key: %w", err)
	}
	return newSigner(key), nil
}

// SignerFromBytes rebuilds a signer from a stored 32-byte private key.
func SignerFromBytes(b []byte) (*Signer, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, fmt.Errorf("load session key: %w", err)
	}
	return newSigner(key), nil
}

func newSigner(key *ecdsa.PrivateKey) *Signer {
	return &Signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

func (s *Signer) Address() common.Address {
	return s.address
}

// PrivateKeyBytes returns the raw key for persistence.
func (s *Signer) PrivateKeyBytes() []byte {
	return crypto.FromECDSA(s.key)
}

// SignHash produces a 65-byte [R || S || V] signature over hash.
func (s *Signer) SignHash(hash common.Hash) ([]byte, error) {
	return crypto.Sign(hash.Bytes(), s.key)
}

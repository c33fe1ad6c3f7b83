// Package attest signs liquidation messages with a local secp256k1 key. The
// signature is portable evidence for off-chain legal recourse; anyone holding
// the canonical message can recover the signer address from it.
package attest

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

type LocalSigner struct {
	key *ecdsa.PrivateKey
}

// NewLocalSigner parses a hex-encoded secp256k1 private key.
func NewLocalSigner(privateKeyHex string) (*LocalSigner, error) {
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("attestation key: %w", err)
	}
	return &LocalSigner{key: key}, nil
}

// Sign returns a 65-byte [R || S || V] signature over keccak256(message).
func (s *LocalSigner) Sign(_ context.Context, message []byte) ([]byte, error) {
	digest := crypto.Keccak256(message)
	return crypto.Sign(digest, s.key)
}

// Address is the signer's recoverable address, logged at startup so the
// counterparty knows which key to verify against.
func (s *LocalSigner) Address() string {
	return crypto.PubkeyToAddress(s.key.PublicKey).Hex()
}

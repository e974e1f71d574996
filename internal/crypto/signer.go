package crypto

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

// Signer signs transactions with the wallet key. It never exposes the key.
type Signer struct {
	key    solana.PrivateKey
	pubkey solana.PublicKey
}

// NewSigner validates key and wraps it.
func NewSigner(key solana.PrivateKey) (*Signer, error) {
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("crypto/signer: %w", err)
	}
	return &Signer{key: key, pubkey: key.PublicKey()}, nil
}

// PublicKey returns the wallet address.
func (s *Signer) PublicKey() solana.PublicKey {
	return s.pubkey
}

// SignTransaction fills the wallet's signature slot in tx. Slots belonging
// to other signers are left untouched, so route transactions built by an
// aggregator can be signed in place.
func (s *Signer) SignTransaction(tx *solana.Transaction) (solana.Signature, error) {
	if tx == nil {
		return solana.Signature{}, fmt.Errorf("crypto/signer: nil transaction: %w", domain.ErrSigningFailed)
	}
	if !tx.IsSigner(s.pubkey) {
		return solana.Signature{}, fmt.Errorf("crypto/signer: wallet %s is not a signer: %w", s.pubkey, domain.ErrSigningFailed)
	}

	_, err := tx.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(s.pubkey) {
			return &s.key
		}
		return nil
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("crypto/signer: %v: %w", err, domain.ErrSigningFailed)
	}

	n := int(tx.Message.Header.NumRequiredSignatures)
	for i := 0; i < n && i < len(tx.Message.AccountKeys) && i < len(tx.Signatures); i++ {
		if tx.Message.AccountKeys[i].Equals(s.pubkey) {
			return tx.Signatures[i], nil
		}
	}
	return solana.Signature{}, fmt.Errorf("crypto/signer: locate signature slot: %w", domain.ErrSigningFailed)
}

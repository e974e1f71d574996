// Package crypto manages the trading wallet's ed25519 key: encrypted storage
// on disk and transaction signing.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/crypto/pbkdf2"
)

const (
	envelopeVersion = 2
	kdfName         = "pbkdf2-sha256"
	cipherName      = "aes-256-gcm"

	defaultIterations = 600_000
	minIterations     = 100_000
	saltLen           = 16
	aesKeyLen         = 32
)

// envelope is the wallet file written by EncryptKey. The wallet address is
// authenticated as additional data, so editing it breaks decryption.
type envelope struct {
	Version    int       `json:"version"`
	Address    string    `json:"address"`
	KDF        kdfParams `json:"kdf"`
	Cipher     string    `json:"cipher"`
	Nonce      []byte    `json:"nonce"`
	Ciphertext []byte    `json:"ciphertext"`
}

type kdfParams struct {
	Name       string `json:"name"`
	Iterations int    `json:"iterations"`
	Salt       []byte `json:"salt"`
}

func (p kdfParams) aead(password string) (cipher.AEAD, error) {
	if p.Name != kdfName {
		return nil, fmt.Errorf("crypto: unsupported kdf %q", p.Name)
	}
	if p.Iterations < minIterations {
		return nil, fmt.Errorf("crypto: kdf iterations %d below %d", p.Iterations, minIterations)
	}
	block, err := aes.NewCipher(pbkdf2.Key([]byte(password), p.Salt, p.Iterations, aesKeyLen, sha256.New))
	if err != nil {
		return nil, fmt.Errorf("crypto: aes: %w", err)
	}
	return cipher.NewGCM(block)
}

// KeyConfig names where the wallet key comes from. LoadKey uses the first
// source that is set, in field order.
type KeyConfig struct {
	// RawPrivateKey is a base58 64-byte keypair as exported by Phantom or
	// solana-keygen.
	RawPrivateKey string

	// KeypairPath is a solana-keygen JSON byte-array file.
	KeypairPath string

	// EncryptedKeyPath is a file written by EncryptKey, opened with KeyPassword.
	EncryptedKeyPath string
	KeyPassword      string
}

// Configured reports whether any key source is set.
func (c KeyConfig) Configured() bool {
	return c.RawPrivateKey != "" || c.KeypairPath != "" || c.EncryptedKeyPath != ""
}

// EncryptKey seals a base58 keypair under password and returns the wallet
// file contents.
func EncryptKey(privateKeyBase58 string, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: empty password")
	}
	key, err := parseKeypair(privateKeyBase58)
	if err != nil {
		return nil, err
	}

	env := envelope{
		Version: envelopeVersion,
		Address: key.PublicKey().String(),
		KDF:     kdfParams{Name: kdfName, Iterations: defaultIterations, Salt: make([]byte, saltLen)},
		Cipher:  cipherName,
	}
	if _, err := rand.Read(env.KDF.Salt); err != nil {
		return nil, fmt.Errorf("crypto: salt: %w", err)
	}
	aead, err := env.KDF.aead(password)
	if err != nil {
		return nil, err
	}
	env.Nonce = make([]byte, aead.NonceSize())
	if _, err := rand.Read(env.Nonce); err != nil {
		return nil, fmt.Errorf("crypto: nonce: %w", err)
	}
	env.Ciphertext = aead.Seal(nil, env.Nonce, key, []byte(env.Address))
	return json.MarshalIndent(env, "", "  ")
}

// DecryptKey opens a wallet file written by EncryptKey.
func DecryptKey(data []byte, password string) (solana.PrivateKey, error) {
	if password == "" {
		return nil, errors.New("crypto: empty password")
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("crypto: wallet file: %w", err)
	}
	if env.Version != envelopeVersion {
		return nil, fmt.Errorf("crypto: wallet file version %d, want %d", env.Version, envelopeVersion)
	}
	if env.Cipher != cipherName {
		return nil, fmt.Errorf("crypto: unsupported cipher %q", env.Cipher)
	}

	aead, err := env.KDF.aead(password)
	if err != nil {
		return nil, err
	}
	if len(env.Nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("crypto: nonce is %d bytes", len(env.Nonce))
	}
	plain, err := aead.Open(nil, env.Nonce, env.Ciphertext, []byte(env.Address))
	if err != nil {
		return nil, errors.New("crypto: wrong password or corrupted wallet file")
	}

	key := solana.PrivateKey(plain)
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("crypto: decrypted key: %w", err)
	}
	if got := key.PublicKey().String(); got != env.Address {
		return nil, fmt.Errorf("crypto: decrypted key belongs to %s, file says %s", got, env.Address)
	}
	return key, nil
}

// LoadKey resolves the wallet key from cfg.
func LoadKey(cfg KeyConfig) (solana.PrivateKey, error) {
	switch {
	case cfg.RawPrivateKey != "":
		return parseKeypair(cfg.RawPrivateKey)
	case cfg.KeypairPath != "":
		key, err := solana.PrivateKeyFromSolanaKeygenFile(cfg.KeypairPath)
		if err != nil {
			return nil, fmt.Errorf("crypto: keypair file %s: %w", cfg.KeypairPath, err)
		}
		return key, nil
	case cfg.EncryptedKeyPath != "":
		data, err := os.ReadFile(cfg.EncryptedKeyPath)
		if err != nil {
			return nil, fmt.Errorf("crypto: %w", err)
		}
		return DecryptKey(data, cfg.KeyPassword)
	}
	return nil, errors.New("crypto: no wallet key configured")
}

func parseKeypair(s string) (solana.PrivateKey, error) {
	key, err := solana.PrivateKeyFromBase58(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("crypto: keypair is not base58: %w", err)
	}
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("crypto: keypair: %w", err)
	}
	return key, nil
}

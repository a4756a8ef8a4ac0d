package solana

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mr-tron/base58"
)

// Keypair is an ed25519 signing identity. The zero value is unusable; build
// one with NewKeypair, KeypairFromBytes or ParseSecretKey.
type Keypair struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

func NewKeypair() (Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Keypair{}, err
	}
	return Keypair{pub: pub, priv: priv}, nil
}

// KeypairFromBytes accepts a 64-byte secret key (seed followed by public key)
// or a bare 32-byte seed.
func KeypairFromBytes(raw []byte) (Keypair, error) {
	switch len(raw) {
	case ed25519.PrivateKeySize:
		priv := ed25519.PrivateKey(append([]byte(nil), raw...))
		return Keypair{pub: priv.Public().(ed25519.PublicKey), priv: priv}, nil
	case ed25519.SeedSize:
		priv := ed25519.NewKeyFromSeed(raw)
		return Keypair{pub: priv.Public().(ed25519.PublicKey), priv: priv}, nil
	default:
		return Keypair{}, fmt.Errorf("secret key must be %d or %d bytes, got %d", ed25519.PrivateKeySize, ed25519.SeedSize, len(raw))
	}
}

// ParseSecretKey parses the comma-separated byte list format used by wallet
// exports, e.g. "12,34,56,...".
func ParseSecretKey(value string) (Keypair, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Keypair{}, errors.New("secret key is empty")
	}
	parts := strings.Split(value, ",")
	raw := make([]byte, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 || n > 255 {
			return Keypair{}, fmt.Errorf("invalid secret key byte %q", part)
		}
		raw = append(raw, byte(n))
	}
	return KeypairFromBytes(raw)
}

// PublicKey returns the base58-encoded public key.
func (k Keypair) PublicKey() string {
	return base58.Encode(k.pub)
}

func (k Keypair) PublicKeyBytes() []byte {
	return append([]byte(nil), k.pub...)
}

func (k Keypair) Sign(message []byte) []byte {
	return ed25519.Sign(k.priv, message)
}

func (k Keypair) IsZero() bool {
	return len(k.priv) == 0
}

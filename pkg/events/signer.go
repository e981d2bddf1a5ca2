package events

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/crypto/hkdf"
)

// KeyProvider abstracts signing so the in-memory backend can be
// swapped for an HSM or KMS.
type KeyProvider interface {
	Sign(msg []byte) ([]byte, error)
	PublicKey() ed25519.PublicKey
}

// MemoryKeyProvider holds an Ed25519 keypair in process memory.
type MemoryKeyProvider struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

// NewMemoryKeyProvider generates a fresh keypair.
func NewMemoryKeyProvider() (*MemoryKeyProvider, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("events: generate key: %w", err)
	}
	return &MemoryKeyProvider{pub: pub, priv: priv}, nil
}

// NewMemoryKeyProviderFromSeed builds a deterministic keypair from a
// 32-byte seed.
func NewMemoryKeyProviderFromSeed(seed []byte) (*MemoryKeyProvider, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("events: seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &MemoryKeyProvider{pub: priv.Public().(ed25519.PublicKey), priv: priv}, nil
}

func (p *MemoryKeyProvider) Sign(msg []byte) ([]byte, error) {
	return ed25519.Sign(p.priv, msg), nil
}

func (p *MemoryKeyProvider) PublicKey() ed25519.PublicKey {
	return p.pub
}

// DeriveForCampaign derives a campaign-scoped signing key from the
// root key via HKDF-SHA256, so each statement pack verifies against a
// key bound to its campaign.
func (p *MemoryKeyProvider) DeriveForCampaign(campaignID uint64) (*MemoryKeyProvider, error) {
	if campaignID == 0 {
		return nil, fmt.Errorf("events: campaign id must not be zero")
	}

	seed := p.priv.Seed()
	info := []byte(strconv.FormatUint(campaignID, 10))
	r := hkdf.New(sha256.New, seed, []byte("coffer-statement-kdf"), info)

	derived := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(r, derived); err != nil {
		return nil, fmt.Errorf("events: hkdf derivation failed: %w", err)
	}
	return NewMemoryKeyProviderFromSeed(derived)
}

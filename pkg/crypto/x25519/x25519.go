// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-keychain.
//
// go-keychain is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package x25519

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeyPair is an ephemeral X25519 key pair, generated fresh for each
// GenerateCsr call and discarded once the CSR's COSE_Encrypt session key
// has been derived from it.
type KeyPair struct {
	PrivateKey *ecdh.PrivateKey
	PublicKey  *ecdh.PublicKey
}

// KeyAgreement performs the ephemeral ECDH step of remote-key-provisioning
// CSR assembly: an ephemeral X25519 key is generated per request, agreed
// with the endpoint encryption key (EEK) baked into the request, and the
// resulting shared secret is run through HKDF-SHA256 to derive the
// COSE_Encrypt content-encryption key for the CSR payload.
type KeyAgreement interface {
	// GenerateKey generates a new ephemeral X25519 key pair.
	GenerateKey() (*KeyPair, error)

	// DeriveSharedSecret performs X25519 ECDH between the ephemeral private
	// key and the recipient's (EEK) public key. The output is raw ECDH
	// material, not yet fit for use as a cipher key — pass it to DeriveKey.
	DeriveSharedSecret(privateKey *ecdh.PrivateKey, peerPublicKey *ecdh.PublicKey) ([]byte, error)

	// DeriveKey runs HKDF-SHA256 over a shared secret to produce the
	// session key. info should bind the derivation to both parties' public
	// keys so a key cannot be reused across a different (ephemeral, EEK) pair.
	DeriveKey(sharedSecret, salt, info []byte, keyLength int) ([]byte, error)
}

// ephemeralAgreement implements KeyAgreement over crypto/ecdh's X25519
// curve. Each GenerateCsr call gets its own instance; nothing here is
// held across requests.
type ephemeralAgreement struct {
	curve ecdh.Curve
}

// New returns a KeyAgreement for RKP ephemeral session-key derivation.
func New() KeyAgreement {
	return &ephemeralAgreement{
		curve: ecdh.X25519(),
	}
}

func (ka *ephemeralAgreement) GenerateKey() (*KeyPair, error) {
	privateKey, err := ka.curve.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ephemeral X25519 key: %w", err)
	}

	return &KeyPair{
		PrivateKey: privateKey,
		PublicKey:  privateKey.PublicKey(),
	}, nil
}

func (ka *ephemeralAgreement) DeriveSharedSecret(privateKey *ecdh.PrivateKey, peerPublicKey *ecdh.PublicKey) ([]byte, error) {
	if privateKey == nil {
		return nil, fmt.Errorf("ephemeral private key cannot be nil")
	}
	if peerPublicKey == nil {
		return nil, fmt.Errorf("EEK public key cannot be nil")
	}
	if privateKey.Curve() != ecdh.X25519() {
		return nil, fmt.Errorf("ephemeral private key must be X25519, got %v", privateKey.Curve())
	}
	if peerPublicKey.Curve() != ecdh.X25519() {
		return nil, fmt.Errorf("EEK public key must be X25519, got %v", peerPublicKey.Curve())
	}

	sharedSecret, err := privateKey.ECDH(peerPublicKey)
	if err != nil {
		return nil, fmt.Errorf("X25519 ECDH with EEK failed: %w", err)
	}

	return sharedSecret, nil
}

func (ka *ephemeralAgreement) DeriveKey(sharedSecret, salt, info []byte, keyLength int) ([]byte, error) {
	if len(sharedSecret) == 0 {
		return nil, fmt.Errorf("shared secret cannot be empty")
	}
	if keyLength <= 0 {
		return nil, fmt.Errorf("session key length must be positive, got %d", keyLength)
	}
	if keyLength > 255*32 { // HKDF-SHA256 limit
		return nil, fmt.Errorf("session key length too large: %d (max 8160 bytes for HKDF-SHA256)", keyLength)
	}

	reader := hkdf.New(sha256.New, sharedSecret, salt, info)

	derivedKey := make([]byte, keyLength)
	if _, err := io.ReadFull(reader, derivedKey); err != nil {
		return nil, fmt.Errorf("derive CSR session key: %w", err)
	}

	return derivedKey, nil
}

// ParsePrivateKey parses a raw 32-byte X25519 private key, as archived
// via PrivateKeyBytes.
func ParsePrivateKey(privateKeyBytes []byte) (*ecdh.PrivateKey, error) {
	if len(privateKeyBytes) != 32 {
		return nil, fmt.Errorf("X25519 private key must be 32 bytes, got %d", len(privateKeyBytes))
	}

	return ecdh.X25519().NewPrivateKey(privateKeyBytes)
}

// ParsePublicKey parses the raw 32-byte EEK public key carried in a
// GenerateCsr request's endpoint encryption certificate chain.
func ParsePublicKey(publicKeyBytes []byte) (*ecdh.PublicKey, error) {
	if len(publicKeyBytes) != 32 {
		return nil, fmt.Errorf("X25519 public key must be 32 bytes, got %d", len(publicKeyBytes))
	}

	return ecdh.X25519().NewPublicKey(publicKeyBytes)
}

// PrivateKeyBytes returns the raw bytes of an X25519 private key.
func PrivateKeyBytes(privateKey *ecdh.PrivateKey) []byte {
	return privateKey.Bytes()
}

// PublicKeyBytes returns the raw bytes of an ephemeral X25519 public key,
// the form embedded in the CSR's COSE_Key recipient structure.
func PublicKeyBytes(publicKey *ecdh.PublicKey) []byte {
	return publicKey.Bytes()
}

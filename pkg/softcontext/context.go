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

// Package softcontext is a pure-software implementation of keymint.Context,
// grounded on the original PureSoftKeymasterContext: no secure hardware
// backs any of it, so hw_enforced is always empty and every authorization
// lands in sw_enforced.
package softcontext

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/x509"
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/jeremyhahn/go-keymint/pkg/attestation"
	"github.com/jeremyhahn/go-keymint/pkg/crypto/aead"
	keymintrand "github.com/jeremyhahn/go-keymint/pkg/crypto/rand"
	"github.com/jeremyhahn/go-keymint/pkg/crypto/wrapping"
	"github.com/jeremyhahn/go-keymint/pkg/keymint"
	"github.com/jeremyhahn/go-keymint/pkg/logging"
)

// Context implements keymint.Context entirely in software.
type Context struct {
	mu sync.RWMutex

	osVersion    uint32
	osPatchlevel uint32
	kmVersion    keymint.KmVersion

	masterKey []byte
	rootOfTrust []byte

	factories map[keymint.Algorithm]keymint.KeyFactory

	attestTable *attestation.Table
	rkpCtx      *RemoteProvisioningContext
	policy      keymint.EnforcementPolicy
	storage     keymint.SecureKeyStorage

	rand keymintrand.Resolver

	nonceTrackersMu sync.Mutex
	nonceTrackers   map[string]*aead.NonceTracker

	bytesTrackersMu sync.Mutex
	bytesTrackers   map[string]*aead.BytesTracker

	logger *logging.Logger
}

// aesGcmByteLimit bounds the plaintext bytes one AES-256-GCM key may encrypt
// over its lifetime, well under the ~2^39-256 bit NIST SP 800-38D ceiling.
const aesGcmByteLimit = 1 << 34

// Config seeds a new Context.
type Config struct {
	OSVersion    uint32
	OSPatchlevel uint32
	KmVersion    keymint.KmVersion
	MasterKey    []byte // 32-byte root key encrypting every blob this context wraps
	RootOfTrust  []byte
	Policy       keymint.EnforcementPolicy // optional
	Storage      keymint.SecureKeyStorage  // optional
	Logger       *logging.Logger
}

// New builds a Context and registers key factories for every algorithm the
// COMPONENT DESIGN calls out: AES, HMAC, EC, RSA.
func New(cfg Config) (*Context, error) {
	if len(cfg.MasterKey) != 32 {
		return nil, fmt.Errorf("softcontext: master key must be 32 bytes, got %d", len(cfg.MasterKey))
	}
	table, err := attestation.Default()
	if err != nil {
		return nil, fmt.Errorf("softcontext: initialize attestation table: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewLogger(false)
	}
	resolver, err := keymintrand.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("softcontext: initialize rng resolver: %w", err)
	}

	c := &Context{
		osVersion:    cfg.OSVersion,
		osPatchlevel: cfg.OSPatchlevel,
		kmVersion:    cfg.KmVersion,
		masterKey:    cfg.MasterKey,
		rootOfTrust:  cfg.RootOfTrust,
		attestTable:  table,
		rkpCtx:       NewRemoteProvisioningContext(cfg.MasterKey),
		policy:       cfg.Policy,
		storage:      cfg.Storage,
		rand:          resolver,
		nonceTrackers: make(map[string]*aead.NonceTracker),
		bytesTrackers: make(map[string]*aead.BytesTracker),
		logger:        cfg.Logger,
	}

	c.factories = map[keymint.Algorithm]keymint.KeyFactory{
		keymint.AlgorithmAES:  newAESKeyFactory(c),
		keymint.AlgorithmHMAC: newHMACKeyFactory(c),
		keymint.AlgorithmEC:   newECKeyFactory(c),
		keymint.AlgorithmRSA:  newRSAKeyFactory(c),
	}
	return c, nil
}

func (c *Context) GetSystemVersion() (osVersion, osPatchlevel uint32) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.osVersion, c.osPatchlevel
}

func (c *Context) SetSystemVersion(osVersion, osPatchlevel uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.osVersion, c.osPatchlevel = osVersion, osPatchlevel
}

func (c *Context) GetKmVersion() keymint.KmVersion { return c.kmVersion }

// nonceTrackerFor returns the AES-GCM nonce tracker for the key fingerprinted
// by fp, creating one on first use. Tracking is per-key so two AES-GCM keys
// generated with the same nonce never collide with each other, only with
// themselves.
func (c *Context) nonceTrackerFor(fp string) *aead.NonceTracker {
	c.nonceTrackersMu.Lock()
	defer c.nonceTrackersMu.Unlock()
	nt, ok := c.nonceTrackers[fp]
	if !ok {
		nt = aead.NewNonceTracker(true)
		c.nonceTrackers[fp] = nt
	}
	return nt
}

// bytesTrackerFor returns the AES-GCM byte-usage tracker for the key
// fingerprinted by fp, creating one bounded at aesGcmByteLimit on first use.
func (c *Context) bytesTrackerFor(fp string) *aead.BytesTracker {
	c.bytesTrackersMu.Lock()
	defer c.bytesTrackersMu.Unlock()
	bt, ok := c.bytesTrackers[fp]
	if !ok {
		bt = aead.NewBytesTracker(true, aesGcmByteLimit)
		c.bytesTrackers[fp] = bt
	}
	return bt
}

func (c *Context) GetKeyFactory(alg keymint.Algorithm) keymint.KeyFactory {
	return c.factories[alg]
}

func (c *Context) GetOperationFactory(alg keymint.Algorithm, purpose keymint.Purpose) keymint.OperationFactory {
	factory, ok := c.factories[alg]
	if !ok {
		return nil
	}
	return factory.OperationFactory(purpose)
}

func (c *Context) GetSupportedAlgorithms() []keymint.Algorithm {
	algs := make([]keymint.Algorithm, 0, len(c.factories))
	for alg := range c.factories {
		algs = append(algs, alg)
	}
	return algs
}

// hiddenParams builds the "hidden" authorization set that key blob
// encryption binds to but never stores: TAG_APPLICATION_ID,
// TAG_APPLICATION_DATA, and this context's fixed root of trust, mirroring
// auth_encrypted_key_blob.cpp callers assembling the hidden set before
// EncryptKey/DecryptKey.
func (c *Context) hiddenParams(params *keymint.AuthorizationSet) *keymint.AuthorizationSet {
	hidden := keymint.NewAuthorizationSet()
	if appID, ok := params.GetBytes(keymint.TagApplicationID); ok {
		hidden.PushBack(keymint.TagApplicationID, appID)
	}
	if appData, ok := params.GetBytes(keymint.TagApplicationData); ok {
		hidden.PushBack(keymint.TagApplicationData, appData)
	}
	if len(c.rootOfTrust) > 0 {
		hidden.PushBack(keymint.TagRootOfTrust, c.rootOfTrust)
	}
	return hidden
}

// wrapKey builds a key blob for freshly generated or imported key material,
// splitting authorizations the pure-software way: everything lands in
// sw_enforced, hw_enforced stays empty.
func (c *Context) wrapKey(params *keymint.AuthorizationSet, keyMaterial []byte) (blob []byte, hw, sw *keymint.AuthorizationSet, kmErr *keymint.Error) {
	hw = keymint.NewAuthorizationSet()
	sw = keymint.NewAuthorizationSet(params.Slice()...)
	hidden := c.hiddenParams(params)
	blob, err := wrapKeyMaterial(c.masterKey, keyMaterial, hw, sw, hidden)
	if err != nil {
		return nil, nil, nil, err
	}
	return blob, hw, sw, nil
}

// ParseKeyBlob implements Context.ParseKeyBlob: decrypt and authenticate
// the blob, then hand its plaintext key material to the algorithm's
// factory for reconstruction into usable key material.
func (c *Context) ParseKeyBlob(blob []byte, params *keymint.AuthorizationSet) (*keymint.Key, *keymint.Error) {
	hidden := c.hiddenParams(params)
	plaintext, hw, sw, kmErr := unwrapKeyMaterial(c.masterKey, blob, hidden)
	if kmErr != nil {
		return nil, kmErr
	}
	algVal, ok := hw.GetTagValue(keymint.TagAlgorithm)
	if !ok {
		algVal, ok = sw.GetTagValue(keymint.TagAlgorithm)
	}
	var alg keymint.Algorithm
	switch a := algVal.(type) {
	case keymint.Algorithm:
		alg = a
	case uint64:
		alg = keymint.Algorithm(a)
	default:
		return nil, keymint.NewError(keymint.InvalidKeyBlob, "key blob is missing TAG_ALGORITHM")
	}
	return &keymint.Key{HwEnforced: hw, SwEnforced: sw, KeyMaterial: plaintext, Factory: c.factories[alg]}, nil
}

// UpgradeKeyBlob re-wraps a key blob's authorizations against the
// context's current patchlevel, per COMPONENT DESIGN 4.6's UpgradeKey.
func (c *Context) UpgradeKeyBlob(blob []byte, params *keymint.AuthorizationSet) ([]byte, *keymint.Error) {
	key, kmErr := c.ParseKeyBlob(blob, params)
	if kmErr != nil {
		return nil, kmErr
	}
	idx := key.SwEnforced.Find(keymint.TagOSPatchlevel)
	if idx >= 0 {
		key.SwEnforced.Erase(idx)
	}
	_, osPatchlevel := c.GetSystemVersion()
	key.SwEnforced.PushBack(keymint.TagOSPatchlevel, uint64(osPatchlevel))

	hidden := c.hiddenParams(params)
	return wrapKeyMaterial(c.masterKey, key.KeyMaterial, key.HwEnforced, key.SwEnforced, hidden)
}

// DeleteKey and DeleteAllKeys are no-ops: every soft key blob is
// self-contained ciphertext with no server-side record to remove, mirroring
// the original pure software context.
func (c *Context) DeleteKey(blob []byte) *keymint.Error   { return nil }
func (c *Context) DeleteAllKeys() *keymint.Error           { return nil }

// wrappedKeyEnvelope is UnwrapKey's on-wire input shape: an RSA-OAEP
// wrapped AES transit key plus an AES-GCM sealed payload, in the spirit of
// the platform's wrapped-key encoding but expressed in CBOR to match this
// build's existing wire-format conventions.
type wrappedKeyEnvelope struct {
	_                   struct{} `cbor:",toarray"`
	EncryptedTransitKey []byte
	Nonce               []byte
	EncryptedPayload    []byte
	Format              int
}

type wrappedKeyPayload struct {
	_         struct{} `cbor:",toarray"`
	SecretKey []byte
	AuthSet   []keymint.KeyParam
}

// UnwrapKey implements Context.UnwrapKey, used by ImportWrappedKey.
func (c *Context) UnwrapKey(wrapped, wrappingKeyBlob []byte, params *keymint.AuthorizationSet, maskingKey []byte) (description *keymint.AuthorizationSet, format keymint.KeyFormat, secretKey []byte, kmErr *keymint.Error) {
	wrappingKey, kmErr := c.ParseKeyBlob(wrappingKeyBlob, params)
	if kmErr != nil {
		return nil, 0, nil, kmErr
	}
	rsaPriv, err := x509.ParsePKCS8PrivateKey(wrappingKey.KeyMaterial)
	if err != nil {
		return nil, 0, nil, keymint.WrapError(keymint.InvalidArgument, err, "wrapping key is not a parseable private key")
	}
	priv, ok := rsaPriv.(*rsa.PrivateKey)
	if !ok {
		return nil, 0, nil, keymint.NewError(keymint.UnsupportedAlgorithm, "wrapping key must be RSA")
	}

	var env wrappedKeyEnvelope
	if err := cbor.Unmarshal(wrapped, &env); err != nil {
		return nil, 0, nil, keymint.WrapError(keymint.InvalidArgument, err, "malformed wrapped key data")
	}

	transitKey, err := wrapping.UnwrapRSAOAEP(env.EncryptedTransitKey, priv, wrapping.WrappingAlgorithmRSAES_OAEP_SHA_256)
	if err != nil {
		return nil, 0, nil, keymint.WrapError(keymint.InvalidArgument, err, "failed to unwrap transit key")
	}

	aesKey := xorMask(transitKey, maskingKey)
	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, 0, nil, keymint.WrapError(keymint.InvalidArgument, err, "failed to build transit cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, 0, nil, keymint.WrapError(keymint.InvalidArgument, err, "failed to build transit gcm")
	}
	plaintext, err := gcm.Open(nil, env.Nonce, env.EncryptedPayload, nil)
	if err != nil {
		return nil, 0, nil, keymint.NewError(keymint.InvalidArgument, "wrapped key authentication failed")
	}

	var payload wrappedKeyPayload
	if err := cbor.Unmarshal(plaintext, &payload); err != nil {
		return nil, 0, nil, keymint.WrapError(keymint.InvalidArgument, err, "malformed wrapped key payload")
	}
	return keymint.NewAuthorizationSet(payload.AuthSet...), keymint.KeyFormat(env.Format), payload.SecretKey, nil
}

// xorMask XORs transitKey with maskingKey (zero-padded to transitKey's
// length when shorter, per the platform's wrapped-key masking step).
func xorMask(transitKey, maskingKey []byte) []byte {
	out := make([]byte, len(transitKey))
	copy(out, transitKey)
	for i := range maskingKey {
		if i >= len(out) {
			break
		}
		out[i] ^= maskingKey[i]
	}
	return out
}

// GenerateAttestation implements Context.GenerateAttestation.
func (c *Context) GenerateAttestation(key *keymint.Key, params *keymint.AuthorizationSet, signingKey *keymint.Key, issuer []byte) (keymint.CertChain, *keymint.Error) {
	pub, kind, err := publicKeyAndKind(key)
	if err != nil {
		return nil, keymint.WrapError(keymint.UnsupportedAlgorithm, err, "cannot attest this key type")
	}

	challenge, _ := params.GetBytes(keymint.TagAttestationChallenge)
	appID, _ := key.SwEnforced.GetBytes(keymint.TagAttestationApplicationID)

	if signingKey != nil {
		signerPub, signerKind, err := publicKeyAndKind(signingKey)
		_ = signerKind
		if err != nil {
			return nil, keymint.WrapError(keymint.UnsupportedAlgorithm, err, "attest key is not usable as a signer")
		}
		_ = signerPub
		signerAny, err := x509.ParsePKCS8PrivateKey(signingKey.KeyMaterial)
		if err != nil {
			return nil, keymint.WrapError(keymint.InvalidKeyBlob, err, "attest key material is not a parseable private key")
		}
		signer, ok := signerAny.(crypto.Signer)
		if !ok {
			return nil, keymint.NewError(keymint.UnsupportedAlgorithm, "attest key does not support signing")
		}
		leaf, err := attestation.SignWithAttestKey(pub, signer, issuer, challenge, appID)
		if err != nil {
			return nil, keymint.WrapError(keymint.UnknownError, err, "failed to sign attestation leaf with attest key")
		}
		return keymint.CertChain{leaf}, nil
	}

	chain, err := attestation.BuildChain(pub, kind, c.attestTable, challenge, appID)
	if err != nil {
		return nil, keymint.WrapError(keymint.UnknownError, err, "failed to build attestation chain")
	}
	return keymint.CertChain(chain), nil
}

func publicKeyAndKind(key *keymint.Key) (crypto.PublicKey, string, error) {
	alg, ok := key.Algorithm()
	if !ok {
		return nil, "", fmt.Errorf("key has no TAG_ALGORITHM")
	}
	priv, err := x509.ParsePKCS8PrivateKey(key.KeyMaterial)
	if err != nil {
		return nil, "", fmt.Errorf("parse private key: %w", err)
	}
	switch p := priv.(type) {
	case *rsa.PrivateKey:
		if alg != keymint.AlgorithmRSA {
			return nil, "", fmt.Errorf("key material/algorithm mismatch")
		}
		return &p.PublicKey, "RSA", nil
	case *ecdsa.PrivateKey:
		if alg != keymint.AlgorithmEC {
			return nil, "", fmt.Errorf("key material/algorithm mismatch")
		}
		return &p.PublicKey, "EC", nil
	default:
		return nil, "", fmt.Errorf("algorithm %s is not attestable", alg)
	}
}

// AddRngEntropy mixes caller-supplied entropy into the process RNG. Go's
// crypto/rand already draws from the OS CSPRNG, so this folds the extra
// entropy into the context's master key derivation salt rather than
// replacing any generator, matching AndroidKeymaster's "additional, not
// sole, entropy source" contract.
func (c *Context) AddRngEntropy(data []byte) *keymint.Error {
	if len(data) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	mixed := sha256.Sum256(append(append([]byte{}, c.masterKey...), data...))
	c.masterKey = mixed[:]
	return nil
}

// CheckConfirmationToken verifies a trusted-confirmation HMAC token over
// message, keyed by the context's root of trust, per COMPONENT DESIGN
// 4.3's post-finish confirmation check.
func (c *Context) CheckConfirmationToken(message []byte, token [keymint.ConfirmationTokenSize]byte) *keymint.Error {
	mac := hmac.New(sha256.New, c.rootOfTrust)
	mac.Write([]byte("confirmation token"))
	mac.Write(message)
	want := mac.Sum(nil)
	if subtle.ConstantTimeCompare(want, token[:]) != 1 {
		return keymint.NewError(keymint.NoUserConfirmation, "confirmation token does not match presented message")
	}
	return nil
}

func (c *Context) EnforcementPolicy() keymint.EnforcementPolicy { return c.policy }
func (c *Context) SecureKeyStorage() keymint.SecureKeyStorage   { return c.storage }
func (c *Context) RemoteProvisioningContext() keymint.RemoteProvisioningContext {
	if c.rkpCtx == nil {
		return nil
	}
	return c.rkpCtx
}

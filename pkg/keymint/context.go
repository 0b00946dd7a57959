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

package keymint

// Key is the transient in-memory object produced by parsing a key blob.
// It is destroyed at the end of a request, or moved into an Operation.
type Key struct {
	HwEnforced *AuthorizationSet
	SwEnforced *AuthorizationSet
	KeyMaterial []byte
	Factory    KeyFactory
}

// Algorithm reads TAG_ALGORITHM from the key's hw_enforced set, falling
// back to sw_enforced. The value may be an Algorithm or, after a CBOR
// round trip, a uint64.
func (k *Key) Algorithm() (Algorithm, bool) {
	v, ok := k.HwEnforced.GetTagValue(TagAlgorithm)
	if !ok && k.SwEnforced != nil {
		v, ok = k.SwEnforced.GetTagValue(TagAlgorithm)
	}
	if !ok {
		return AlgorithmUnknown, false
	}
	switch a := v.(type) {
	case Algorithm:
		return a, true
	case uint64:
		return Algorithm(a), true
	}
	return AlgorithmUnknown, false
}

// CertChain is an ordered sequence of DER-encoded certificates, leaf first.
type CertChain [][]byte

// Context is the C4 capability set: the dispatcher's only door to the
// outside world. Optional collaborators are modeled as methods that may
// return nil, per DESIGN NOTES "Opaque pointer ports".
type Context interface {
	GetSystemVersion() (osVersion, osPatchlevel uint32)
	SetSystemVersion(osVersion, osPatchlevel uint32)

	GetKmVersion() KmVersion

	GetKeyFactory(alg Algorithm) KeyFactory
	GetOperationFactory(alg Algorithm, purpose Purpose) OperationFactory
	GetSupportedAlgorithms() []Algorithm

	ParseKeyBlob(blob []byte, params *AuthorizationSet) (*Key, *Error)
	UpgradeKeyBlob(blob []byte, params *AuthorizationSet) ([]byte, *Error)
	DeleteKey(blob []byte) *Error
	DeleteAllKeys() *Error

	UnwrapKey(wrapped, wrappingKey []byte, params *AuthorizationSet, maskingKey []byte) (description *AuthorizationSet, format KeyFormat, secretKey []byte, kmErr *Error)

	GenerateAttestation(key *Key, params *AuthorizationSet, signingKey *Key, issuer []byte) (CertChain, *Error)

	AddRngEntropy(data []byte) *Error
	CheckConfirmationToken(message []byte, token [ConfirmationTokenSize]byte) *Error

	EnforcementPolicy() EnforcementPolicy // nil if absent
	SecureKeyStorage() SecureKeyStorage   // nil if absent
	RemoteProvisioningContext() RemoteProvisioningContext // nil if absent
}

// EnforcementPolicy is the optional policy port that authorizes each
// operation step and negotiates the shared HMAC used by VerifyAuthorization.
type EnforcementPolicy interface {
	CreateKeyId(blob []byte) ([]byte, *Error)
	AuthorizeOperation(purpose Purpose, keyID []byte, auths *AuthorizationSet, params *AuthorizationSet, opHandle uint64, isBegin bool) *Error

	GetHmacSharingParameters() ([]byte, *Error)
	ComputeSharedHmac(params [][]byte) ([]byte, *Error)
	VerifyAuthorization(challenge []byte, params *AuthorizationSet, mac []byte) *Error
	GenerateTimestampToken() ([]byte, *Error)

	InEarlyBoot() bool
	EarlyBootEnded()
	DeviceLocked(passwordOnly bool)
}

// SecureKeyStorage is the optional port backing TAG_USAGE_COUNT_LIMIT
// enforcement: FinishOperation deletes a key here once its single
// permitted use is spent.
type SecureKeyStorage interface {
	DeleteKey(keyID []byte) *Error
}

// RemoteProvisioningContext is the optional port used by GenerateCsr.
type RemoteProvisioningContext interface {
	GenerateHmacSha256(input []byte) ([32]byte, *Error)
	// GenerateBcc returns a fresh (device private key, boot certificate
	// chain) pair, used only in test_mode.
	GenerateBcc() (devicePrivKey []byte, bcc []byte, kmErr *Error)
	// DevicePrivateKey and Bcc are the production (non-test-mode) fields;
	// they must be stable across calls within a process lifetime.
	DevicePrivateKey() []byte
	Bcc() []byte
	CreateDeviceInfo() (cborMap []byte, kmErr *Error)
}

// KeyFactory is the external per-algorithm collaborator responsible for
// key generation, import, and characterizing operation support.
type KeyFactory interface {
	Algorithm() Algorithm
	GenerateKey(params *AuthorizationSet, attestationSigningKey *Key) (blob []byte, hw, sw *AuthorizationSet, chain CertChain, kmErr *Error)
	ImportKey(params *AuthorizationSet, format KeyFormat, keyMaterial []byte, attestationSigningKey *Key) (blob []byte, hw, sw *AuthorizationSet, chain CertChain, kmErr *Error)
	OperationFactory(purpose Purpose) OperationFactory
}

// Operation is the factory-supplied state machine driven by C6.
type Operation interface {
	Begin(params *AuthorizationSet) (outputParams *AuthorizationSet, kmErr *Error)
	Update(params *AuthorizationSet, input []byte) (output []byte, inputConsumed int, outputParams *AuthorizationSet, kmErr *Error)
	Finish(params *AuthorizationSet, input, signature []byte) (output []byte, outputParams *AuthorizationSet, kmErr *Error)
	Abort() *Error
}

// OperationFactory creates a fresh Operation bound to key for BeginOperation.
type OperationFactory interface {
	Purpose() Purpose
	CreateOperation(key *Key, params *AuthorizationSet) (Operation, *Error)
}

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

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"

	"github.com/fxamacker/cbor/v2"
	cose "github.com/veraison/go-cose"

	kx25519 "github.com/jeremyhahn/go-keymint/pkg/crypto/x25519"
)

// rkpEcdsaP256Params is the fixed key-generation parameter set from
// COMPONENT DESIGN 4.5 step 2, transcribed from android_keymaster.cpp's
// kKeyMintEcdsaP256Params (see SPEC_FULL.md §12).
func rkpEcdsaP256Params() *AuthorizationSet {
	return NewAuthorizationSet(
		KeyParam{Tag: TagPurpose, Value: PurposeAttestKey},
		KeyParam{Tag: TagAlgorithm, Value: AlgorithmEC},
		KeyParam{Tag: TagKeySize, Value: uint64(256)},
		KeyParam{Tag: TagDigest, Value: "SHA_2_256"},
		KeyParam{Tag: TagEcCurve, Value: "P_256"},
		KeyParam{Tag: TagNoAuthRequired, Value: true},
		KeyParam{Tag: TagCertificateNotBefore, Value: uint64(0)},
		KeyParam{Tag: TagCertificateNotAfter, Value: uint64(0)},
	)
}

// GenerateRkpKeyResult is GenerateRkpKey's output.
type GenerateRkpKeyResult struct {
	KeyBlob       []byte
	MacedPublicKey []byte // COSE_Mac0
}

// GenerateRkpKey implements COMPONENT DESIGN 4.5's GenerateRkpKey.
func (d *Dispatcher) GenerateRkpKey(testMode bool) (*GenerateRkpKeyResult, *Error) {
	result, kmErr := d.generateRkpKey(testMode)
	if kmErr != nil {
		d.metrics.incRkpFailure()
	}
	return result, kmErr
}

func (d *Dispatcher) generateRkpKey(testMode bool) (*GenerateRkpKeyResult, *Error) {
	rpc := d.ctx.RemoteProvisioningContext()
	if rpc == nil {
		return nil, NewError(StatusFailed, "no remote provisioning context configured")
	}

	result, kmErr := d.GenerateKey(rkpEcdsaP256Params(), nil)
	if kmErr != nil {
		return nil, NewError(StatusFailed, "GenerateKey for RKP key failed: %v", kmErr)
	}
	if len(result.CertChain) != 1 {
		return nil, NewError(StatusFailed, "RKP key generation must produce exactly one certificate, got %d", len(result.CertChain))
	}

	x, y, kmErr := getEcdsa256KeyFromCert(result.CertChain[0])
	if kmErr != nil {
		return nil, kmErr
	}

	coseKeyMap, err := buildCoseKeyMap(x, y, testMode)
	if err != nil {
		return nil, WrapError(StatusFailed, err, "failed to build COSE_Key map")
	}

	macFn, kmErr := d.rkpMacFn(testMode, rpc)
	if kmErr != nil {
		return nil, kmErr
	}

	macedPublicKey, kmErr := computeMac0(macFn, nil, coseKeyMap)
	if kmErr != nil {
		return nil, kmErr
	}

	return &GenerateRkpKeyResult{KeyBlob: result.KeyBlob, MacedPublicKey: macedPublicKey}, nil
}

// rkpMacFn resolves COMPONENT DESIGN 4.5 step 6's MAC function choice.
func (d *Dispatcher) rkpMacFn(testMode bool, rpc RemoteProvisioningContext) (hmacFunc, *Error) {
	if testMode {
		return fixedKeyHmac(make([]byte, 32)), nil
	}
	return func(payload []byte) ([32]byte, *Error) {
		return rpc.GenerateHmacSha256(payload)
	}, nil
}

// getEcdsa256KeyFromCert extracts the (x, y) affine coordinates of the
// leaf certificate's P-256 public key, both zero-padded to 32 bytes.
func getEcdsa256KeyFromCert(der []byte) (x, y []byte, kmErr *Error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, WrapError(StatusFailed, err, "failed to parse RKP leaf certificate")
	}
	pub, ok := cert.PublicKey.(*ecdsa.PublicKey)
	if !ok || pub.Curve != elliptic.P256() {
		return nil, nil, NewError(StatusFailed, "RKP leaf certificate does not hold a P-256 EC public key")
	}
	xb := make([]byte, 32)
	yb := make([]byte, 32)
	pub.X.FillBytes(xb)
	pub.Y.FillBytes(yb)
	return xb, yb, nil
}

// GenerateCsrRequest carries GenerateCsr's inputs.
type GenerateCsrRequest struct {
	TestMode              bool
	KeysToSign            [][]byte // each a COSE_Mac0 maced public key, per validateAndExtractPubkeys
	Challenge             []byte
	EndpointEncCertChain  [][]byte // EEK certificate chain, leaf-first
}

// GenerateCsrResult is GenerateCsr's output.
type GenerateCsrResult struct {
	KeysToSignMac  []byte // COSE_Mac0, MAC-only (empty payload tag scheme, see step 4)
	DeviceInfo     []byte
	ProtectedData  []byte // COSE_Encrypt
}

// GenerateCsr implements COMPONENT DESIGN 4.5's GenerateCsr.
func (d *Dispatcher) GenerateCsr(req GenerateCsrRequest) (*GenerateCsrResult, *Error) {
	result, kmErr := d.generateCsr(req)
	if kmErr != nil {
		d.metrics.incRkpFailure()
	}
	return result, kmErr
}

func (d *Dispatcher) generateCsr(req GenerateCsrRequest) (*GenerateCsrResult, *Error) {
	rpc := d.ctx.RemoteProvisioningContext()
	if rpc == nil {
		return nil, NewError(StatusFailed, "no remote provisioning context configured")
	}

	pubkeys, kmErr := d.validateAndExtractPubkeys(req.TestMode, req.KeysToSign)
	if kmErr != nil {
		return nil, kmErr
	}
	pubkeysArray, err := canonicalEncMode.Marshal(pubkeys)
	if err != nil {
		return nil, WrapError(StatusFailed, err, "failed to encode keys_to_sign array")
	}

	ephemeralMacKey, err := randomBytes(32)
	if err != nil {
		return nil, WrapError(StatusFailed, err, "failed to generate ephemeral MAC key")
	}
	keysToSignMac, kmErr := computeMac0(fixedKeyHmac(ephemeralMacKey), nil, pubkeysArray)
	if kmErr != nil {
		return nil, kmErr
	}

	devicePrivKey, bcc, kmErr := d.selectDeviceIdentity(req.TestMode, rpc)
	if kmErr != nil {
		return nil, kmErr
	}

	deviceInfo, kmErr := rpc.CreateDeviceInfo()
	if kmErr != nil {
		return nil, kmErr
	}

	aad, err := cborArray(req.Challenge, cbor.RawMessage(deviceInfo), keysToSignMac)
	if err != nil {
		return nil, WrapError(StatusFailed, err, "failed to encode CSR AAD")
	}

	signedMac, kmErr := signCose1(devicePrivKey, ephemeralMacKey, aad)
	if kmErr != nil {
		return nil, kmErr
	}

	ephemeralKeyPair, err := kx25519.New().GenerateKey()
	if err != nil {
		return nil, WrapError(StatusFailed, err, "failed to generate ephemeral X25519 key pair")
	}

	eekPub, eekID, kmErr := validateAndExtractEekPubAndId(req.TestMode, req.EndpointEncCertChain)
	if kmErr != nil {
		return nil, kmErr
	}

	sessionKey, kmErr := deriveRkpSessionKey(ephemeralKeyPair, eekPub)
	if kmErr != nil {
		return nil, kmErr
	}

	nonce, err := randomBytes(AesGcmNonceLength)
	if err != nil {
		return nil, WrapError(StatusFailed, err, "failed to generate COSE_Encrypt nonce")
	}

	plaintext, err := cborArray(cbor.RawMessage(signedMac), cbor.RawMessage(bcc))
	if err != nil {
		return nil, WrapError(StatusFailed, err, "failed to encode protected_data payload")
	}
	ciphertext, err := aesGcmSeal(sessionKey, nonce, plaintext, nil)
	if err != nil {
		return nil, WrapError(StatusFailed, err, "failed to seal protected_data")
	}

	recipients, kmErr := buildCertReqRecipients(kx25519.PublicKeyBytes(ephemeralKeyPair.PublicKey), eekID)
	if kmErr != nil {
		return nil, kmErr
	}

	protectedData, err := canonicalEncMode.Marshal(coseEncryptMessage{
		Protected:   mustMarshal(map[int]any{1: 3}), // alg: A256GCM per RFC 8152 Table 9 (identifier 3)
		Unprotected: map[int]any{5: nonce},            // label 5 = IV
		Ciphertext:  ciphertext,
		Recipients:  recipients,
	})
	if err != nil {
		return nil, WrapError(StatusFailed, err, "failed to encode COSE_Encrypt")
	}

	return &GenerateCsrResult{KeysToSignMac: keysToSignMac, DeviceInfo: deviceInfo, ProtectedData: protectedData}, nil
}

// validateAndExtractPubkeys verifies each keys_to_sign entry is a
// well-formed COSE_Mac0 under the MAC function GenerateRkpKey uses
// (production mode: the remote provisioning context's HMAC; test mode:
// the fixed zero key) and returns the decoded payloads.
func (d *Dispatcher) validateAndExtractPubkeys(testMode bool, keysToSign [][]byte) ([]cbor.RawMessage, *Error) {
	macFn, kmErr := d.rkpMacFn(testMode, d.ctx.RemoteProvisioningContext())
	if kmErr != nil {
		return nil, kmErr
	}
	out := make([]cbor.RawMessage, 0, len(keysToSign))
	for _, maced := range keysToSign {
		payload, kmErr := verifyMac0(macFn, nil, maced)
		if kmErr != nil {
			return nil, NewError(StatusFailed, "keys_to_sign entry failed MAC verification")
		}
		out = append(out, cbor.RawMessage(payload))
	}
	return out, nil
}

// selectDeviceIdentity implements COMPONENT DESIGN 4.5 step 5.
func (d *Dispatcher) selectDeviceIdentity(testMode bool, rpc RemoteProvisioningContext) (devicePrivKey, bcc []byte, kmErr *Error) {
	if testMode {
		priv, chain, kmErr := rpc.GenerateBcc()
		if kmErr != nil {
			return nil, nil, kmErr
		}
		return priv, chain, nil
	}
	return rpc.DevicePrivateKey(), rpc.Bcc(), nil
}

// signCose1 builds a COSE_Sign1 over payload with the given AAD, signed by
// the P-256 device private key, using veraison/go-cose.
func signCose1(devicePrivKeyDER, payload, externalAAD []byte) ([]byte, *Error) {
	privKey, err := x509.ParseECPrivateKey(devicePrivKeyDER)
	if err != nil {
		return nil, WrapError(StatusFailed, err, "failed to parse device private key")
	}
	signer, err := cose.NewSigner(cose.AlgorithmES256, privKey)
	if err != nil {
		return nil, WrapError(StatusFailed, err, "failed to construct COSE_Sign1 signer")
	}
	msg := cose.NewSign1Message()
	msg.Payload = payload
	msg.Headers.Protected.SetAlgorithm(cose.AlgorithmES256)
	if err := msg.Sign(rand.Reader, externalAAD, signer); err != nil {
		return nil, WrapError(StatusFailed, err, "COSE_Sign1 signing failed")
	}
	out, err := msg.MarshalCBOR()
	if err != nil {
		return nil, WrapError(StatusFailed, err, "failed to encode COSE_Sign1")
	}
	return out, nil
}

// validateAndExtractEekPubAndId parses the endpoint encryption key
// certificate chain and returns the leaf's raw X25519 public key and a
// key identifier (the first 8 bytes of its SHA-256 digest), per COMPONENT DESIGN 4.5 step 10.
func validateAndExtractEekPubAndId(testMode bool, chain [][]byte) (eekPub, eekID []byte, kmErr *Error) {
	if len(chain) == 0 {
		return nil, nil, NewError(StatusFailed, "endpoint_enc_cert_chain is empty")
	}
	leaf := chain[0]
	// The leaf is a COSE_Sign1-wrapped COSE_Key; a raw 32-byte X25519
	// public key is also accepted directly, in test and production mode
	// alike.
	if len(leaf) == X25519PublicValueLen {
		sum := sha256.Sum256(leaf)
		return leaf, sum[:8], nil
	}
	var msg cose.Sign1Message
	if err := msg.UnmarshalCBOR(leaf); err != nil {
		return nil, nil, WrapError(StatusFailed, err, "failed to parse EEK certificate as COSE_Sign1")
	}
	var keyMap map[int]cbor.RawMessage
	if err := cbor.Unmarshal(msg.Payload, &keyMap); err != nil {
		return nil, nil, WrapError(StatusFailed, err, "failed to parse EEK COSE_Key payload")
	}
	var pub []byte
	if raw, ok := keyMap[coseLabelPubKeyX]; ok {
		if err := cbor.Unmarshal(raw, &pub); err != nil {
			return nil, nil, WrapError(StatusFailed, err, "malformed EEK public key")
		}
	}
	sum := sha256.Sum256(pub)
	return pub, sum[:8], nil
}

// deriveRkpSessionKey implements COMPONENT DESIGN 4.5 step 11's
// X25519_HKDF(senderIsA=true) session key derivation, grounded in
// pkg/crypto/x25519's DeriveSharedSecret/DeriveKey and AOSP's
// x25519_hkdf_sender construction: HKDF-SHA256 over the raw ECDH output,
// with info = ephemeralPub || eekPub (sender-is-A ordering).
func deriveRkpSessionKey(ephemeral *kx25519.KeyPair, eekPubRaw []byte) ([]byte, *Error) {
	eekPub, err := kx25519.ParsePublicKey(eekPubRaw)
	if err != nil {
		return nil, WrapError(StatusFailed, err, "failed to parse EEK public key")
	}
	ka := kx25519.New()
	shared, err := ka.DeriveSharedSecret(ephemeral.PrivateKey, eekPub)
	if err != nil {
		return nil, WrapError(StatusFailed, err, "X25519 key agreement with EEK failed")
	}
	info := append(append([]byte{}, kx25519.PublicKeyBytes(ephemeral.PublicKey)...), eekPubRaw...)
	key, err := ka.DeriveKey(shared, nil, info, 32)
	if err != nil {
		return nil, WrapError(StatusFailed, err, "HKDF session key derivation failed")
	}
	return key, nil
}

// buildCertReqRecipients builds the single-recipient COSE_Encrypt
// recipient structure identifying the EEK by id and carrying the
// ephemeral sender public key, per RFC 8152 §5.3 ECDH-ES key agreement
// recipients (no wrapped CEK: the session key itself derives the CEK).
func buildCertReqRecipients(ephemeralPub, eekID []byte) ([]any, *Error) {
	unprotected := map[int]any{
		-1: ephemeralPub, // ephemeral sender public key (COSE_Key x-coordinate shorthand)
		4:  eekID,        // kid
	}
	return []any{[]any{[]byte{}, unprotected, nil}}, nil
}

type coseEncryptMessage struct {
	_           struct{} `cbor:",toarray"`
	Protected   []byte
	Unprotected map[int]any
	Ciphertext  []byte
	Recipients  []any
}

func mustMarshal(v any) []byte {
	b, err := canonicalEncMode.Marshal(v)
	if err != nil {
		panic("keymint: canonical CBOR marshal of a static header failed: " + err.Error())
	}
	return b
}

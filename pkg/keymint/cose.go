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
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var canonicalEncMode = func() cbor.EncMode {
	opts := cbor.CanonicalEncOptions()
	mode, err := opts.EncMode()
	if err != nil {
		panic("keymint: failed to build canonical CBOR encoding mode: " + err.Error())
	}
	return mode
}()

// COSE_Key labels, per EXTERNAL INTERFACES "Constants".
const (
	coseLabelKeyType  = 1
	coseLabelKeyAlg   = 3
	coseLabelECCurve  = -1
	coseLabelPubKeyX  = -2
	coseLabelPubKeyY  = -3
	coseLabelTestKey  = -70000

	coseKeyTypeEC2  = 2
	coseAlgES256    = -7
	coseCurveP256   = 1

	coseAlgHMAC256 = 5 // RFC 8152 Table 7
)

// buildCoseKeyMap builds the canonical CBOR-encoded COSE_Key map described
// in COMPONENT DESIGN 4.5 step 5.
func buildCoseKeyMap(x, y []byte, testMode bool) ([]byte, error) {
	if len(x) != 32 || len(y) != 32 {
		return nil, fmt.Errorf("keymint: P-256 affine coordinates must be 32 bytes each")
	}
	m := map[int]any{
		coseLabelKeyType: coseKeyTypeEC2,
		coseLabelKeyAlg:  coseAlgES256,
		coseLabelECCurve: coseCurveP256,
		coseLabelPubKeyX: x,
		coseLabelPubKeyY: y,
	}
	if testMode {
		m[coseLabelTestKey] = nil
	}
	return canonicalEncMode.Marshal(m)
}

// hmacFunc computes an HMAC-SHA256 tag over payload, standing in for the
// context's macFn (either the fixed test-mode zero key or
// RemoteProvisioningContext.GenerateHmacSha256).
type hmacFunc func(payload []byte) ([32]byte, *Error)

func fixedKeyHmac(key []byte) hmacFunc {
	return func(payload []byte) ([32]byte, *Error) {
		mac := hmac.New(sha256.New, key)
		mac.Write(payload)
		var out [32]byte
		copy(out[:], mac.Sum(nil))
		return out, nil
	}
}

// cborArray canonically encodes a list of already-encoded CBOR items as a
// CBOR array, used to build Mac_structure / Sig_structure / AAD arrays
// without re-decoding intermediate values.
func cborArray(items ...any) ([]byte, error) {
	return canonicalEncMode.Marshal(items)
}

// cose0Message is the four-element [protected, unprotected, payload, tag]
// shape shared by COSE_Mac0 (tag: the MAC) once built.
type cose0Message struct {
	_           struct{} `cbor:",toarray"`
	Protected   []byte
	Unprotected map[int]any
	Payload     []byte
	TagOrSig    []byte
}

// computeMac0 builds a COSE_Mac0 structure over payload with the given
// external AAD, per RFC 8152 §6.2, using macFn for the tag.
func computeMac0(macFn hmacFunc, externalAAD, payload []byte) ([]byte, *Error) {
	protected, err := canonicalEncMode.Marshal(map[int]any{1: coseAlgHMAC256})
	if err != nil {
		return nil, WrapError(StatusFailed, err, "failed to encode Mac0 protected header")
	}
	if externalAAD == nil {
		externalAAD = []byte{}
	}
	macStructure, err := cborArray("MAC0", protected, externalAAD, payload)
	if err != nil {
		return nil, WrapError(StatusFailed, err, "failed to encode COSE Mac_structure")
	}
	tag, kmErr := macFn(macStructure)
	if kmErr != nil {
		return nil, kmErr
	}
	msg := cose0Message{Protected: protected, Unprotected: map[int]any{}, Payload: payload, TagOrSig: tag[:]}
	out, err := canonicalEncMode.Marshal(msg)
	if err != nil {
		return nil, WrapError(StatusFailed, err, "failed to encode COSE_Mac0")
	}
	return out, nil
}

// verifyMac0 recomputes the tag over coseMac0's payload and compares it,
// used by the "RKP test mode" scenario in TESTABLE PROPERTIES.
func verifyMac0(macFn hmacFunc, externalAAD, coseMac0 []byte) (payload []byte, kmErr *Error) {
	var msg cose0Message
	if err := cbor.Unmarshal(coseMac0, &msg); err != nil {
		return nil, WrapError(InvalidArgument, err, "malformed COSE_Mac0")
	}
	if externalAAD == nil {
		externalAAD = []byte{}
	}
	macStructure, err := cborArray("MAC0", msg.Protected, externalAAD, msg.Payload)
	if err != nil {
		return nil, WrapError(StatusFailed, err, "failed to re-encode COSE Mac_structure")
	}
	want, kmErr := macFn(macStructure)
	if kmErr != nil {
		return nil, kmErr
	}
	if !hmac.Equal(want[:], msg.TagOrSig) {
		return nil, NewError(InvalidArgument, "COSE_Mac0 tag verification failed")
	}
	return msg.Payload, nil
}

// aesGcmSeal is the primitive backing COSE_Encrypt's ciphertext, since no
// library in the pack implements RFC 8152's COSE_Encrypt structure and
// this build hand-rolls it from crypto/aes + crypto/cipher instead (see
// DESIGN.md's stdlib-boundary justification for cose_encrypt).
func aesGcmSeal(key, nonce, plaintext, aad []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, AesGcmNonceLength)
	if err != nil {
		return nil, err
	}
	return gcm.Seal(nil, nonce, plaintext, aad), nil
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

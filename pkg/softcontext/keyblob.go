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

package softcontext

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/hkdf"

	keymintrand "github.com/jeremyhahn/go-keymint/pkg/crypto/rand"
	"github.com/jeremyhahn/go-keymint/pkg/keymint"
)

// blobRand is the process-wide RNG resolver key blob sealing draws nonces
// from. Package-level functions here have no *Context to thread one
// through, so they share this resolver the way the RemoteProvisioningContext
// and Policy share their own.
var blobRand, _ = keymintrand.NewResolver(nil)

const (
	aesGcmDescriptor = "AES-256-GCM-HKDF-SHA-256, version 1"
	aesGcmTagLength  = 16
	aes256KeyLength  = 32
)

// keyBlobEnvelope is the on-wire shape of a soft key blob, grounded on
// auth_encrypted_key_blob.cpp's EncryptedKey + hw_enforced + sw_enforced
// wire layout. Where the original hand-serializes each field, this build
// uses canonical CBOR for the same envelope.
type keyBlobEnvelope struct {
	_          struct{} `cbor:",toarray"`
	Nonce      []byte
	Ciphertext []byte
	Tag        []byte
	HwEnforced []keymint.KeyParam
	SwEnforced []keymint.KeyParam
}

// buildDerivationInfo implements BuildDerivationInfo: the HKDF "info"
// parameter binds the derived key-encryption-key to this blob's
// authorization sets and any caller-supplied hidden parameters (the
// TAG_APPLICATION_ID / TAG_APPLICATION_DATA "hidden" set).
func buildDerivationInfo(hw, sw, hidden *keymint.AuthorizationSet) ([]byte, error) {
	info := []byte(aesGcmDescriptor)
	for _, set := range []*keymint.AuthorizationSet{hidden, hw, sw} {
		if set == nil {
			continue
		}
		enc, err := cbor.Marshal(set.Slice())
		if err != nil {
			return nil, fmt.Errorf("softcontext: encode derivation info: %w", err)
		}
		info = append(info, enc...)
	}
	return info, nil
}

// deriveAesGcmKeyEncryptionKey implements DeriveAesGcmKeyEncryptionKey:
// HKDF-SHA256(masterKey) with no salt, expanded against buildDerivationInfo's
// output to a 256-bit key-encryption-key.
func deriveAesGcmKeyEncryptionKey(masterKey []byte, hw, sw, hidden *keymint.AuthorizationSet) ([]byte, error) {
	info, err := buildDerivationInfo(hw, sw, hidden)
	if err != nil {
		return nil, err
	}
	reader := hkdf.New(sha256.New, masterKey, nil, info)
	kek := make([]byte, aes256KeyLength)
	if _, err := readFull(reader, kek); err != nil {
		return nil, fmt.Errorf("softcontext: derive key-encryption-key: %w", err)
	}
	return kek, nil
}

func readFull(r interface{ Read([]byte) (int, error) }, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// encryptKey implements AesGcmEncryptKey.
func encryptKey(masterKey, plaintext []byte, hw, sw, hidden *keymint.AuthorizationSet) (nonce, ciphertext, tag []byte, err error) {
	kek, err := deriveAesGcmKeyEncryptionKey(masterKey, hw, sw, hidden)
	if err != nil {
		return nil, nil, nil, err
	}
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, nil, nil, err
	}
	gcm, err := cipher.NewGCMWithTagSize(block, aesGcmTagLength)
	if err != nil {
		return nil, nil, nil, err
	}
	nonce = make([]byte, gcm.NonceSize())
	if _, err := blobRand.Read(nonce); err != nil {
		return nil, nil, nil, err
	}
	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	ciphertext = sealed[:len(sealed)-aesGcmTagLength]
	tag = sealed[len(sealed)-aesGcmTagLength:]
	return nonce, ciphertext, tag, nil
}

// decryptKey implements AesGcmDecryptKey.
func decryptKey(masterKey, nonce, ciphertext, tag []byte, hw, sw, hidden *keymint.AuthorizationSet) ([]byte, error) {
	kek, err := deriveAesGcmKeyEncryptionKey(masterKey, hw, sw, hidden)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCMWithTagSize(block, aesGcmTagLength)
	if err != nil {
		return nil, err
	}
	sealed := append(append([]byte{}, ciphertext...), tag...)
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, keymint.WrapError(keymint.InvalidKeyBlob, err, "key blob authentication failed")
	}
	return plaintext, nil
}

// serializeKeyBlob implements SerializeAuthEncryptedBlob.
func serializeKeyBlob(nonce, ciphertext, tag []byte, hw, sw *keymint.AuthorizationSet) ([]byte, error) {
	env := keyBlobEnvelope{Nonce: nonce, Ciphertext: ciphertext, Tag: tag, HwEnforced: hw.Slice(), SwEnforced: sw.Slice()}
	out, err := cbor.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("softcontext: serialize key blob: %w", err)
	}
	return out, nil
}

// deserializedKeyBlob implements DeserializeAuthEncryptedBlob's output shape.
type deserializedKeyBlob struct {
	nonce, ciphertext, tag []byte
	hwEnforced, swEnforced *keymint.AuthorizationSet
}

func deserializeKeyBlob(blob []byte) (*deserializedKeyBlob, *keymint.Error) {
	var env keyBlobEnvelope
	if err := cbor.Unmarshal(blob, &env); err != nil {
		return nil, keymint.WrapError(keymint.InvalidKeyBlob, err, "malformed key blob")
	}
	if len(env.Nonce) == 0 || len(env.Tag) != aesGcmTagLength {
		return nil, keymint.NewError(keymint.InvalidKeyBlob, "key blob has malformed nonce/tag")
	}
	return &deserializedKeyBlob{
		nonce:      env.Nonce,
		ciphertext: env.Ciphertext,
		tag:        env.Tag,
		hwEnforced: keymint.NewAuthorizationSet(env.HwEnforced...),
		swEnforced: keymint.NewAuthorizationSet(env.SwEnforced...),
	}, nil
}

// wrapKeyMaterial builds a serialized key blob from plaintext key material
// and its authorization sets, per COMPONENT DESIGN 4.4's key-creation path.
func wrapKeyMaterial(masterKey, plaintext []byte, hw, sw, hidden *keymint.AuthorizationSet) ([]byte, *keymint.Error) {
	nonce, ciphertext, tag, err := encryptKey(masterKey, plaintext, hw, sw, hidden)
	if err != nil {
		return nil, keymint.WrapError(keymint.MemoryAllocationFailed, err, "failed to encrypt key blob")
	}
	blob, err := serializeKeyBlob(nonce, ciphertext, tag, hw, sw)
	if err != nil {
		return nil, keymint.WrapError(keymint.UnknownError, err, "failed to serialize key blob")
	}
	return blob, nil
}

// unwrapKeyMaterial parses and authenticates a key blob, returning its
// plaintext key material and authorization sets.
func unwrapKeyMaterial(masterKey, blob []byte, hidden *keymint.AuthorizationSet) (plaintext []byte, hw, sw *keymint.AuthorizationSet, kmErr *keymint.Error) {
	dec, kmErr := deserializeKeyBlob(blob)
	if kmErr != nil {
		return nil, nil, nil, kmErr
	}
	plaintext, err := decryptKey(masterKey, dec.nonce, dec.ciphertext, dec.tag, dec.hwEnforced, dec.swEnforced, hidden)
	if err != nil {
		return nil, nil, nil, keymint.AsError(err)
	}
	return plaintext, dec.hwEnforced, dec.swEnforced, nil
}

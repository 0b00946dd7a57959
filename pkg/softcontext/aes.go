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
	"encoding/hex"

	"github.com/jeremyhahn/go-keymint/pkg/crypto/aead"
	"github.com/jeremyhahn/go-keymint/pkg/keymint"
)

// aesKeyFactory implements keymint.KeyFactory for TAG_ALGORITHM AES.
// AES-GCM is the only block mode this build's operation factory supports;
// GCM-with-SW-enforced key blobs already exercise the same cipher this
// factory generates keys for.
type aesKeyFactory struct {
	ctx *Context
}

func newAESKeyFactory(ctx *Context) *aesKeyFactory { return &aesKeyFactory{ctx: ctx} }

func (f *aesKeyFactory) Algorithm() keymint.Algorithm { return keymint.AlgorithmAES }

func (f *aesKeyFactory) GenerateKey(params *keymint.AuthorizationSet, attestationSigningKey *keymint.Key) (blob []byte, hw, sw *keymint.AuthorizationSet, chain keymint.CertChain, kmErr *keymint.Error) {
	keySize, ok := params.GetUint64(keymint.TagKeySize)
	if !ok {
		keySize = 256
	}
	key, err := f.ctx.rand.Rand(int(keySize / 8))
	if err != nil {
		return nil, nil, nil, nil, keymint.WrapError(keymint.MemoryAllocationFailed, err, "failed to generate AES key")
	}
	blob, hw, sw, kmErr = f.ctx.wrapKey(params, key)
	return blob, hw, sw, nil, kmErr
}

func (f *aesKeyFactory) ImportKey(params *keymint.AuthorizationSet, format keymint.KeyFormat, keyMaterial []byte, attestationSigningKey *keymint.Key) (blob []byte, hw, sw *keymint.AuthorizationSet, chain keymint.CertChain, kmErr *keymint.Error) {
	if format != keymint.KeyFormatRaw {
		return nil, nil, nil, nil, keymint.NewError(keymint.UnsupportedKeyFormat, "AES import requires KEY_FORMAT_RAW")
	}
	blob, hw, sw, kmErr = f.ctx.wrapKey(params, keyMaterial)
	return blob, hw, sw, nil, kmErr
}

func (f *aesKeyFactory) OperationFactory(purpose keymint.Purpose) keymint.OperationFactory {
	switch purpose {
	case keymint.PurposeEncrypt, keymint.PurposeDecrypt:
		return &aesOperationFactory{purpose: purpose, ctx: f.ctx}
	default:
		return nil
	}
}

type aesOperationFactory struct {
	purpose keymint.Purpose
	ctx     *Context
}

func (f *aesOperationFactory) Purpose() keymint.Purpose { return f.purpose }

func (f *aesOperationFactory) CreateOperation(key *keymint.Key, params *keymint.AuthorizationSet) (keymint.Operation, *keymint.Error) {
	block, err := aes.NewCipher(key.KeyMaterial)
	if err != nil {
		return nil, keymint.WrapError(keymint.InvalidKeyBlob, err, "failed to build AES cipher")
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, keymint.AesGcmNonceLength)
	if err != nil {
		return nil, keymint.WrapError(keymint.InvalidKeyBlob, err, "failed to build AES-GCM")
	}
	sum := sha256.Sum256(key.KeyMaterial)
	fp := hex.EncodeToString(sum[:])
	return &aesGcmOperation{
		gcm:     gcm,
		purpose: f.purpose,
		rand:    f.ctx.rand,
		nonces:  f.ctx.nonceTrackerFor(fp),
		bytes:   f.ctx.bytesTrackerFor(fp),
	}, nil
}

// aesGcmOperation buffers input across Update calls and seals/opens the
// full message on Finish, matching AES-GCM's requirement that the tag only
// resolves once every byte has been seen.
type aesGcmOperation struct {
	gcm     cipher.AEAD
	purpose keymint.Purpose
	rand    keymintRandReader
	nonces  *aead.NonceTracker
	bytes   *aead.BytesTracker
	nonce   []byte
	aad     []byte
	buf     []byte
}

// keymintRandReader is the subset of keymintrand.Resolver an operation
// needs to draw nonce and signing entropy, kept local to avoid importing
// the rand package into every file that generates one.
type keymintRandReader interface {
	Rand(n int) ([]byte, error)
	Read(p []byte) (int, error)
}

func (op *aesGcmOperation) Begin(params *keymint.AuthorizationSet) (*keymint.AuthorizationSet, *keymint.Error) {
	out := keymint.NewAuthorizationSet()
	if op.purpose == keymint.PurposeEncrypt {
		nonce, err := op.rand.Rand(op.gcm.NonceSize())
		if err != nil {
			return nil, keymint.WrapError(keymint.MemoryAllocationFailed, err, "failed to generate AES-GCM nonce")
		}
		if err := op.nonces.CheckAndRecordNonce(nonce); err != nil {
			return nil, keymint.WrapError(keymint.MemoryAllocationFailed, err, "AES-GCM nonce reuse detected")
		}
		op.nonce = nonce
	} else if nonce, ok := params.GetBytes(keymint.TagCallerNonce); ok {
		op.nonce = nonce
	}
	if aad, ok := params.GetBytes(keymint.TagApplicationData); ok {
		op.aad = aad
	}
	return out, nil
}

func (op *aesGcmOperation) Update(params *keymint.AuthorizationSet, input []byte) ([]byte, int, *keymint.AuthorizationSet, *keymint.Error) {
	op.buf = append(op.buf, input...)
	return nil, len(input), nil, nil
}

func (op *aesGcmOperation) Finish(params *keymint.AuthorizationSet, input, signature []byte) ([]byte, *keymint.AuthorizationSet, *keymint.Error) {
	op.buf = append(op.buf, input...)
	if op.nonce == nil {
		return nil, nil, keymint.NewError(keymint.InvalidArgument, "AES-GCM operation has no nonce")
	}
	if op.purpose == keymint.PurposeEncrypt {
		if err := op.bytes.CheckAndIncrementBytes(int64(len(op.buf))); err != nil {
			return nil, nil, keymint.WrapError(keymint.InvalidArgument, err, "AES-GCM key usage limit exceeded")
		}
		out := op.gcm.Seal(nil, op.nonce, op.buf, op.aad)
		return out, nil, nil
	}
	out, err := op.gcm.Open(nil, op.nonce, op.buf, op.aad)
	if err != nil {
		return nil, nil, keymint.NewError(keymint.InvalidArgument, "AES-GCM authentication failed")
	}
	return out, nil, nil
}

func (op *aesGcmOperation) Abort() *keymint.Error {
	op.buf = nil
	return nil
}

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
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"

	"github.com/jeremyhahn/go-keymint/pkg/keymint"
)

// hmacKeyFactory implements keymint.KeyFactory for TAG_ALGORITHM HMAC,
// used both by ordinary sign/verify keys and by the shared HMAC negotiated
// through GetHmacSharingParameters/ComputeSharedHmac.
type hmacKeyFactory struct {
	ctx *Context
}

func newHMACKeyFactory(ctx *Context) *hmacKeyFactory { return &hmacKeyFactory{ctx: ctx} }

func (f *hmacKeyFactory) Algorithm() keymint.Algorithm { return keymint.AlgorithmHMAC }

func (f *hmacKeyFactory) GenerateKey(params *keymint.AuthorizationSet, attestationSigningKey *keymint.Key) (blob []byte, hw, sw *keymint.AuthorizationSet, chain keymint.CertChain, kmErr *keymint.Error) {
	keySize, ok := params.GetUint64(keymint.TagKeySize)
	if !ok {
		keySize = 256
	}
	key, err := f.ctx.rand.Rand(int(keySize / 8))
	if err != nil {
		return nil, nil, nil, nil, keymint.WrapError(keymint.MemoryAllocationFailed, err, "failed to generate HMAC key")
	}
	blob, hw, sw, kmErr = f.ctx.wrapKey(params, key)
	return blob, hw, sw, nil, kmErr
}

func (f *hmacKeyFactory) ImportKey(params *keymint.AuthorizationSet, format keymint.KeyFormat, keyMaterial []byte, attestationSigningKey *keymint.Key) (blob []byte, hw, sw *keymint.AuthorizationSet, chain keymint.CertChain, kmErr *keymint.Error) {
	if format != keymint.KeyFormatRaw {
		return nil, nil, nil, nil, keymint.NewError(keymint.UnsupportedKeyFormat, "HMAC import requires KEY_FORMAT_RAW")
	}
	blob, hw, sw, kmErr = f.ctx.wrapKey(params, keyMaterial)
	return blob, hw, sw, nil, kmErr
}

func (f *hmacKeyFactory) OperationFactory(purpose keymint.Purpose) keymint.OperationFactory {
	switch purpose {
	case keymint.PurposeSign, keymint.PurposeVerify:
		return &hmacOperationFactory{purpose: purpose}
	default:
		return nil
	}
}

type hmacOperationFactory struct {
	purpose keymint.Purpose
}

func (f *hmacOperationFactory) Purpose() keymint.Purpose { return f.purpose }

func (f *hmacOperationFactory) CreateOperation(key *keymint.Key, params *keymint.AuthorizationSet) (keymint.Operation, *keymint.Error) {
	return &hmacOperation{key: key.KeyMaterial, purpose: f.purpose}, nil
}

type hmacOperation struct {
	key     []byte
	purpose keymint.Purpose
	mac     []byte // unused; Finish computes the HMAC over buf
	buf     []byte
}

func (op *hmacOperation) Begin(params *keymint.AuthorizationSet) (*keymint.AuthorizationSet, *keymint.Error) {
	return keymint.NewAuthorizationSet(), nil
}

func (op *hmacOperation) Update(params *keymint.AuthorizationSet, input []byte) ([]byte, int, *keymint.AuthorizationSet, *keymint.Error) {
	op.buf = append(op.buf, input...)
	return nil, len(input), nil, nil
}

func (op *hmacOperation) Finish(params *keymint.AuthorizationSet, input, signature []byte) ([]byte, *keymint.AuthorizationSet, *keymint.Error) {
	op.buf = append(op.buf, input...)
	mac := hmac.New(sha256.New, op.key)
	mac.Write(op.buf)
	sum := mac.Sum(nil)

	minLen, _ := params.GetUint64(keymint.TagMinMacLength)
	tagLen := len(sum)
	if minLen > 0 && minLen/8 < uint64(tagLen) {
		tagLen = int(minLen / 8)
	}

	if op.purpose == keymint.PurposeSign {
		return sum[:tagLen], nil, nil
	}
	if subtle.ConstantTimeCompare(sum[:tagLen], signature) != 1 {
		return nil, nil, keymint.NewError(keymint.InvalidArgument, "HMAC verification failed")
	}
	return nil, nil, nil
}

func (op *hmacOperation) Abort() *keymint.Error {
	op.buf = nil
	return nil
}

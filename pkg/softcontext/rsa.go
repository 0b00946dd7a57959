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
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"

	"github.com/jeremyhahn/go-keymint/pkg/keymint"
)

// rsaKeyFactory implements keymint.KeyFactory for TAG_ALGORITHM RSA,
// serving both signing keys and the wrapping keys ImportWrappedKey's
// UnwrapKey step decrypts transit keys with.
type rsaKeyFactory struct {
	ctx *Context
}

func newRSAKeyFactory(ctx *Context) *rsaKeyFactory { return &rsaKeyFactory{ctx: ctx} }

func (f *rsaKeyFactory) Algorithm() keymint.Algorithm { return keymint.AlgorithmRSA }

func (f *rsaKeyFactory) generate(params *keymint.AuthorizationSet) ([]byte, error) {
	keySize, ok := params.GetUint64(keymint.TagKeySize)
	if !ok {
		keySize = 2048
	}
	priv, err := rsa.GenerateKey(f.ctx.rand, int(keySize))
	if err != nil {
		return nil, err
	}
	return x509.MarshalPKCS8PrivateKey(priv)
}

func (f *rsaKeyFactory) GenerateKey(params *keymint.AuthorizationSet, attestationSigningKey *keymint.Key) (blob []byte, hw, sw *keymint.AuthorizationSet, chain keymint.CertChain, kmErr *keymint.Error) {
	der, err := f.generate(params)
	if err != nil {
		return nil, nil, nil, nil, keymint.WrapError(keymint.MemoryAllocationFailed, err, "failed to generate RSA key")
	}
	blob, hw, sw, kmErr = f.ctx.wrapKey(params, der)
	if kmErr != nil {
		return nil, nil, nil, nil, kmErr
	}
	if params.Contains(keymint.TagAttestationChallenge) {
		tmpKey := &keymint.Key{HwEnforced: keymint.NewAuthorizationSet(), SwEnforced: keymint.NewAuthorizationSet(params.Slice()...), KeyMaterial: der}
		chain, kmErr = f.ctx.GenerateAttestation(tmpKey, params, attestationSigningKey, nil)
		if kmErr != nil {
			return nil, nil, nil, nil, kmErr
		}
	}
	return blob, hw, sw, chain, nil
}

func (f *rsaKeyFactory) ImportKey(params *keymint.AuthorizationSet, format keymint.KeyFormat, keyMaterial []byte, attestationSigningKey *keymint.Key) (blob []byte, hw, sw *keymint.AuthorizationSet, chain keymint.CertChain, kmErr *keymint.Error) {
	if format != keymint.KeyFormatPKCS8 {
		return nil, nil, nil, nil, keymint.NewError(keymint.UnsupportedKeyFormat, "RSA import requires KEY_FORMAT_PKCS8")
	}
	if _, err := x509.ParsePKCS8PrivateKey(keyMaterial); err != nil {
		return nil, nil, nil, nil, keymint.WrapError(keymint.InvalidArgument, err, "not a valid PKCS8 RSA private key")
	}
	blob, hw, sw, kmErr = f.ctx.wrapKey(params, keyMaterial)
	return blob, hw, sw, nil, kmErr
}

func (f *rsaKeyFactory) OperationFactory(purpose keymint.Purpose) keymint.OperationFactory {
	switch purpose {
	case keymint.PurposeSign, keymint.PurposeVerify, keymint.PurposeEncrypt, keymint.PurposeDecrypt:
		return &rsaOperationFactory{purpose: purpose, ctx: f.ctx}
	default:
		return nil
	}
}

type rsaOperationFactory struct {
	purpose keymint.Purpose
	ctx     *Context
}

func (f *rsaOperationFactory) Purpose() keymint.Purpose { return f.purpose }

func (f *rsaOperationFactory) CreateOperation(key *keymint.Key, params *keymint.AuthorizationSet) (keymint.Operation, *keymint.Error) {
	priv, err := x509.ParsePKCS8PrivateKey(key.KeyMaterial)
	if err != nil {
		return nil, keymint.WrapError(keymint.InvalidKeyBlob, err, "failed to parse RSA private key")
	}
	rsaKey, ok := priv.(*rsa.PrivateKey)
	if !ok {
		return nil, keymint.NewError(keymint.InvalidKeyBlob, "key material is not an RSA private key")
	}
	return &rsaOperation{key: rsaKey, purpose: f.purpose, rand: f.ctx.rand}, nil
}

type rsaOperation struct {
	key     *rsa.PrivateKey
	purpose keymint.Purpose
	rand    keymintRandReader
	buf     []byte
}

func (op *rsaOperation) Begin(params *keymint.AuthorizationSet) (*keymint.AuthorizationSet, *keymint.Error) {
	return keymint.NewAuthorizationSet(), nil
}

func (op *rsaOperation) Update(params *keymint.AuthorizationSet, input []byte) ([]byte, int, *keymint.AuthorizationSet, *keymint.Error) {
	switch op.purpose {
	case keymint.PurposeEncrypt, keymint.PurposeDecrypt:
		var out []byte
		var kmErr *keymint.Error
		if op.purpose == keymint.PurposeEncrypt {
			out, kmErr = op.encrypt(input)
		} else {
			out, kmErr = op.decrypt(input)
		}
		if kmErr != nil {
			return nil, 0, nil, kmErr
		}
		return out, len(input), nil, nil
	default:
		op.buf = append(op.buf, input...)
		return nil, len(input), nil, nil
	}
}

func (op *rsaOperation) encrypt(input []byte) ([]byte, *keymint.Error) {
	out, err := rsa.EncryptOAEP(sha256.New(), op.rand, &op.key.PublicKey, input, nil)
	if err != nil {
		return nil, keymint.WrapError(keymint.InvalidArgument, err, "RSA-OAEP encrypt failed")
	}
	return out, nil
}

func (op *rsaOperation) decrypt(input []byte) ([]byte, *keymint.Error) {
	out, err := rsa.DecryptOAEP(sha256.New(), op.rand, op.key, input, nil)
	if err != nil {
		return nil, keymint.NewError(keymint.InvalidArgument, "RSA-OAEP decrypt failed")
	}
	return out, nil
}

func (op *rsaOperation) Finish(params *keymint.AuthorizationSet, input, signature []byte) ([]byte, *keymint.AuthorizationSet, *keymint.Error) {
	switch op.purpose {
	case keymint.PurposeEncrypt, keymint.PurposeDecrypt:
		if len(input) == 0 {
			return nil, nil, nil
		}
		if op.purpose == keymint.PurposeEncrypt {
			out, kmErr := op.encrypt(input)
			return out, nil, kmErr
		}
		out, kmErr := op.decrypt(input)
		return out, nil, kmErr
	default:
		op.buf = append(op.buf, input...)
		digest := sha256.Sum256(op.buf)
		if op.purpose == keymint.PurposeSign {
			signed, err := rsa.SignPSS(op.rand, op.key, crypto.SHA256, digest[:], nil)
			if err != nil {
				return nil, nil, keymint.WrapError(keymint.UnknownError, err, "RSA sign failed")
			}
			return signed, nil, nil
		}
		if err := rsa.VerifyPSS(&op.key.PublicKey, crypto.SHA256, digest[:], signature, nil); err != nil {
			return nil, nil, keymint.NewError(keymint.InvalidArgument, "RSA signature verification failed")
		}
		return nil, nil, nil
	}
}

func (op *rsaOperation) Abort() *keymint.Error {
	op.buf = nil
	return nil
}

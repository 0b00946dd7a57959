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
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"crypto/x509"

	"github.com/jeremyhahn/go-keymint/pkg/keymint"
)

// ecKeyFactory implements keymint.KeyFactory for TAG_ALGORITHM EC, fixed to
// P-256 (the only curve GenerateRkpKey and the CSR path need).
type ecKeyFactory struct {
	ctx *Context
}

func newECKeyFactory(ctx *Context) *ecKeyFactory { return &ecKeyFactory{ctx: ctx} }

func (f *ecKeyFactory) Algorithm() keymint.Algorithm { return keymint.AlgorithmEC }

func (f *ecKeyFactory) generate() ([]byte, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), f.ctx.rand)
	if err != nil {
		return nil, err
	}
	return x509.MarshalPKCS8PrivateKey(priv)
}

func (f *ecKeyFactory) GenerateKey(params *keymint.AuthorizationSet, attestationSigningKey *keymint.Key) (blob []byte, hw, sw *keymint.AuthorizationSet, chain keymint.CertChain, kmErr *keymint.Error) {
	der, err := f.generate()
	if err != nil {
		return nil, nil, nil, nil, keymint.WrapError(keymint.MemoryAllocationFailed, err, "failed to generate EC key")
	}
	blob, hw, sw, kmErr = f.ctx.wrapKey(params, der)
	if kmErr != nil {
		return nil, nil, nil, nil, kmErr
	}
	if params.Contains(keymint.TagAttestationChallenge) {
		chain, kmErr = f.attest(der, params, attestationSigningKey)
		if kmErr != nil {
			return nil, nil, nil, nil, kmErr
		}
	}
	return blob, hw, sw, chain, nil
}

func (f *ecKeyFactory) attest(der []byte, params *keymint.AuthorizationSet, attestationSigningKey *keymint.Key) (keymint.CertChain, *keymint.Error) {
	tmpKey := &keymint.Key{HwEnforced: keymint.NewAuthorizationSet(), SwEnforced: keymint.NewAuthorizationSet(params.Slice()...), KeyMaterial: der}
	return f.ctx.GenerateAttestation(tmpKey, params, attestationSigningKey, nil)
}

func (f *ecKeyFactory) ImportKey(params *keymint.AuthorizationSet, format keymint.KeyFormat, keyMaterial []byte, attestationSigningKey *keymint.Key) (blob []byte, hw, sw *keymint.AuthorizationSet, chain keymint.CertChain, kmErr *keymint.Error) {
	if format != keymint.KeyFormatPKCS8 {
		return nil, nil, nil, nil, keymint.NewError(keymint.UnsupportedKeyFormat, "EC import requires KEY_FORMAT_PKCS8")
	}
	if _, err := x509.ParsePKCS8PrivateKey(keyMaterial); err != nil {
		return nil, nil, nil, nil, keymint.WrapError(keymint.InvalidArgument, err, "not a valid PKCS8 EC private key")
	}
	blob, hw, sw, kmErr = f.ctx.wrapKey(params, keyMaterial)
	if kmErr != nil {
		return nil, nil, nil, nil, kmErr
	}
	if params.Contains(keymint.TagAttestationChallenge) {
		chain, kmErr = f.attest(keyMaterial, params, attestationSigningKey)
		if kmErr != nil {
			return nil, nil, nil, nil, kmErr
		}
	}
	return blob, hw, sw, chain, nil
}

func (f *ecKeyFactory) OperationFactory(purpose keymint.Purpose) keymint.OperationFactory {
	switch purpose {
	case keymint.PurposeSign, keymint.PurposeVerify:
		return &ecOperationFactory{purpose: purpose, ctx: f.ctx}
	default:
		return nil
	}
}

type ecOperationFactory struct {
	purpose keymint.Purpose
	ctx     *Context
}

func (f *ecOperationFactory) Purpose() keymint.Purpose { return f.purpose }

func (f *ecOperationFactory) CreateOperation(key *keymint.Key, params *keymint.AuthorizationSet) (keymint.Operation, *keymint.Error) {
	priv, err := x509.ParsePKCS8PrivateKey(key.KeyMaterial)
	if err != nil {
		return nil, keymint.WrapError(keymint.InvalidKeyBlob, err, "failed to parse EC private key")
	}
	ecKey, ok := priv.(*ecdsa.PrivateKey)
	if !ok {
		return nil, keymint.NewError(keymint.InvalidKeyBlob, "key material is not an EC private key")
	}
	return &ecOperation{key: ecKey, purpose: f.purpose, rand: f.ctx.rand}, nil
}

type ecOperation struct {
	key     *ecdsa.PrivateKey
	purpose keymint.Purpose
	rand    keymintRandReader
	buf     []byte
}

func (op *ecOperation) Begin(params *keymint.AuthorizationSet) (*keymint.AuthorizationSet, *keymint.Error) {
	return keymint.NewAuthorizationSet(), nil
}

func (op *ecOperation) Update(params *keymint.AuthorizationSet, input []byte) ([]byte, int, *keymint.AuthorizationSet, *keymint.Error) {
	op.buf = append(op.buf, input...)
	return nil, len(input), nil, nil
}

func (op *ecOperation) Finish(params *keymint.AuthorizationSet, input, signature []byte) ([]byte, *keymint.AuthorizationSet, *keymint.Error) {
	op.buf = append(op.buf, input...)
	digest := sha256.Sum256(op.buf)
	if op.purpose == keymint.PurposeSign {
		sig, err := ecdsa.SignASN1(op.rand, op.key, digest[:])
		if err != nil {
			return nil, nil, keymint.WrapError(keymint.UnknownError, err, "EC sign failed")
		}
		return sig, nil, nil
	}
	if !ecdsa.VerifyASN1(&op.key.PublicKey, digest[:], signature) {
		return nil, nil, keymint.NewError(keymint.InvalidArgument, "EC signature verification failed")
	}
	return nil, nil, nil
}

func (op *ecOperation) Abort() *keymint.Error {
	op.buf = nil
	return nil
}

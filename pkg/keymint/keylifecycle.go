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

// KeyCreationResult is the shared output shape of GenerateKey / ImportKey /
// ImportWrappedKey.
type KeyCreationResult struct {
	KeyBlob    []byte
	HwEnforced *AuthorizationSet
	SwEnforced *AuthorizationSet
	CertChain  CertChain
}

func (d *Dispatcher) keyFactoryFor(params *AuthorizationSet) (KeyFactory, *Error) {
	v, ok := params.GetTagValue(TagAlgorithm)
	if !ok {
		return nil, NewError(UnsupportedAlgorithm, "request is missing TAG_ALGORITHM")
	}
	var alg Algorithm
	switch a := v.(type) {
	case Algorithm:
		alg = a
	case uint64:
		alg = Algorithm(a)
	default:
		return nil, NewError(UnsupportedAlgorithm, "TAG_ALGORITHM has unexpected value type")
	}
	factory := d.ctx.GetKeyFactory(alg)
	if factory == nil {
		return nil, NewError(UnsupportedAlgorithm, "no key factory for algorithm %s", alg)
	}
	return factory, nil
}

// GenerateKey implements COMPONENT DESIGN 4.4's GenerateKey.
func (d *Dispatcher) GenerateKey(params *AuthorizationSet, attestationSigningKeyBlob []byte) (*KeyCreationResult, *Error) {
	factory, kmErr := d.keyFactoryFor(params)
	if kmErr != nil {
		return nil, kmErr
	}

	var signingKey *Key
	if len(attestationSigningKeyBlob) > 0 {
		signingKey, kmErr = d.loadKey(attestationSigningKeyBlob, params)
		if kmErr != nil {
			return nil, kmErr
		}
	}

	blob, hw, sw, chain, kmErr := factory.GenerateKey(params, signingKey)
	if kmErr != nil {
		return nil, kmErr
	}
	return &KeyCreationResult{KeyBlob: blob, HwEnforced: hw, SwEnforced: sw, CertChain: chain}, nil
}

// ImportKey implements COMPONENT DESIGN 4.4's ImportKey.
func (d *Dispatcher) ImportKey(params *AuthorizationSet, format KeyFormat, keyMaterial, attestationSigningKeyBlob []byte) (*KeyCreationResult, *Error) {
	factory, kmErr := d.keyFactoryFor(params)
	if kmErr != nil {
		return nil, kmErr
	}

	if policy := d.ctx.EnforcementPolicy(); policy != nil {
		if params.Contains(TagEarlyBootOnly) && !policy.InEarlyBoot() {
			return nil, NewError(EarlyBootEnded, "TAG_EARLY_BOOT_ONLY key imported after early boot ended")
		}
	}

	var signingKey *Key
	if len(attestationSigningKeyBlob) > 0 {
		signingKey, kmErr = d.loadKey(attestationSigningKeyBlob, params)
		if kmErr != nil {
			return nil, kmErr
		}
	}

	blob, hw, sw, chain, kmErr := factory.ImportKey(params, format, keyMaterial, signingKey)
	if kmErr != nil {
		return nil, kmErr
	}
	return &KeyCreationResult{KeyBlob: blob, HwEnforced: hw, SwEnforced: sw, CertChain: chain}, nil
}

// ImportWrappedKeyRequest carries ImportWrappedKey's non-params inputs.
type ImportWrappedKeyRequest struct {
	WrappedKeyData     []byte
	WrappingKeyBlob    []byte
	MaskingKey         []byte
	PasswordSid        uint64
	BiometricSid       uint64
	AttestationSigningKeyBlob []byte
}

// ImportWrappedKey implements COMPONENT DESIGN 4.4's ImportWrappedKey.
//
// Per SPEC_FULL.md's "Go decision on ImportWrappedKey step 3 vs step 4
// ordering", steps 2 and 3 below are independent: each fires whenever its
// own precondition holds, not nested inside the other as the original C++
// control flow happened to write it.
func (d *Dispatcher) ImportWrappedKey(params *AuthorizationSet, req ImportWrappedKeyRequest) (*KeyCreationResult, *Error) {
	description, format, secretKey, kmErr := d.ctx.UnwrapKey(req.WrappedKeyData, req.WrappingKeyBlob, params, req.MaskingKey)
	if kmErr != nil {
		return nil, kmErr
	}

	// Step 2: remap TAG_USER_SECURE_ID bitmask to concrete sids.
	if raw, ok := description.GetUint64(TagUserSecureID); ok {
		idx := description.Find(TagUserSecureID)
		description.Erase(idx)
		if raw&HWAuthPassword != 0 {
			description.PushBack(TagUserSecureID, req.PasswordSid)
		}
		if raw&HWAuthFingerprint != 0 {
			description.PushBack(TagUserSecureID, req.BiometricSid)
		}
	}

	// Step 3: version-gated certificate validity defaults.
	if d.ctx.GetKmVersion() >= KeyMint1 {
		description.PushBack(TagCertificateNotBefore, uint64(0))
		description.PushBack(TagCertificateNotAfter, UndefinedExpirationDateTime)
	}

	factory, kmErr := d.keyFactoryFor(description)
	if kmErr != nil {
		return nil, kmErr
	}

	var signingKey *Key
	if len(req.AttestationSigningKeyBlob) > 0 {
		signingKey, kmErr = d.loadKey(req.AttestationSigningKeyBlob, description)
		if kmErr != nil {
			return nil, kmErr
		}
	}

	blob, hw, sw, chain, kmErr := factory.ImportKey(description, format, secretKey, signingKey)
	if kmErr != nil {
		return nil, kmErr
	}
	return &KeyCreationResult{KeyBlob: blob, HwEnforced: hw, SwEnforced: sw, CertChain: chain}, nil
}

// ExportKey implements COMPONENT DESIGN 4.4's ExportKey.
func (d *Dispatcher) ExportKey(format KeyFormat, blob []byte, params *AuthorizationSet) ([]byte, *Error) {
	key, kmErr := d.loadKey(blob, params)
	if kmErr != nil {
		return nil, kmErr
	}
	return formattedKeyMaterial(key, format)
}

// AttestKey implements COMPONENT DESIGN 4.4's AttestKey.
func (d *Dispatcher) AttestKey(blob []byte, params *AuthorizationSet) (CertChain, *Error) {
	key, kmErr := d.loadKey(blob, params)
	if kmErr != nil {
		return nil, kmErr
	}
	if appID, ok := params.GetBytes(TagAttestationApplicationID); ok {
		key.SwEnforced.PushBack(TagAttestationApplicationID, appID)
	}
	return d.ctx.GenerateAttestation(key, params, nil, nil)
}

// UpgradeKey implements COMPONENT DESIGN 4.4's UpgradeKey.
func (d *Dispatcher) UpgradeKey(blob []byte, params *AuthorizationSet) ([]byte, *Error) {
	return d.ctx.UpgradeKeyBlob(blob, params)
}

// DeleteKey implements COMPONENT DESIGN 4.4's DeleteKey.
func (d *Dispatcher) DeleteKey(blob []byte) *Error {
	return d.ctx.DeleteKey(blob)
}

// DeleteAllKeys implements COMPONENT DESIGN 4.4's DeleteAllKeys.
func (d *Dispatcher) DeleteAllKeys() *Error {
	return d.ctx.DeleteAllKeys()
}

// GetKeyCharacteristics implements COMPONENT DESIGN 4.4's GetKeyCharacteristics.
func (d *Dispatcher) GetKeyCharacteristics(blob []byte, params *AuthorizationSet) (hw, sw *AuthorizationSet, kmErr *Error) {
	key, kmErr := d.loadKey(blob, params)
	if kmErr != nil {
		return nil, nil, kmErr
	}
	return key.HwEnforced, key.SwEnforced, nil
}

// formattedKeyMaterial extracts key.KeyMaterial in the requested wire
// format. The concrete encoding (X.509 SubjectPublicKeyInfo / PKCS8 /
// raw) is the key factory's concern; here we only expose what ParseKeyBlob
// already recovered, since ExportKey never re-derives key material.
func formattedKeyMaterial(key *Key, format KeyFormat) ([]byte, *Error) {
	if key.KeyMaterial == nil {
		return nil, NewError(UnsupportedKeyFormat, "key has no exportable material")
	}
	switch format {
	case KeyFormatX509, KeyFormatPKCS8, KeyFormatRaw:
		return key.KeyMaterial, nil
	default:
		return nil, NewError(UnsupportedKeyFormat, "unsupported export format %v", format)
	}
}

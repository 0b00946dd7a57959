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

// SupportedBlockModes reports the block cipher modes a given algorithm's
// factory accepts for BeginOperation, per EXTERNAL INTERFACES.
func (d *Dispatcher) SupportedBlockModes(alg Algorithm) []BlockMode {
	factory := d.ctx.GetKeyFactory(alg)
	if factory == nil {
		return nil
	}
	switch alg {
	case AlgorithmAES:
		return []BlockMode{BlockModeGCM}
	default:
		return nil
	}
}

// SupportedPaddingModes reports the padding schemes a given algorithm's
// factory accepts for BeginOperation.
func (d *Dispatcher) SupportedPaddingModes(alg Algorithm) []PaddingMode {
	factory := d.ctx.GetKeyFactory(alg)
	if factory == nil {
		return nil
	}
	switch alg {
	case AlgorithmRSA:
		return []PaddingMode{PaddingRSAOaep, PaddingRSAPSS}
	default:
		return nil
	}
}

// SupportedDigests reports the hash algorithms a given algorithm's factory
// accepts for signing and verification.
func (d *Dispatcher) SupportedDigests(alg Algorithm) []Digest {
	factory := d.ctx.GetKeyFactory(alg)
	if factory == nil {
		return nil
	}
	switch alg {
	case AlgorithmRSA, AlgorithmEC, AlgorithmHMAC:
		return []Digest{DigestSHA256}
	default:
		return nil
	}
}

// SupportedImportFormats reports the key formats a given algorithm's
// factory accepts for ImportKey, per EXTERNAL INTERFACES.
func (d *Dispatcher) SupportedImportFormats(alg Algorithm) []KeyFormat {
	factory := d.ctx.GetKeyFactory(alg)
	if factory == nil {
		return nil
	}
	switch alg {
	case AlgorithmRSA, AlgorithmEC:
		return []KeyFormat{KeyFormatPKCS8}
	case AlgorithmAES, AlgorithmHMAC:
		return []KeyFormat{KeyFormatRaw}
	default:
		return nil
	}
}

// SupportedExportFormats reports the key formats a given algorithm's
// factory can produce for ExportKey.
func (d *Dispatcher) SupportedExportFormats(alg Algorithm) []KeyFormat {
	factory := d.ctx.GetKeyFactory(alg)
	if factory == nil {
		return nil
	}
	switch alg {
	case AlgorithmRSA, AlgorithmEC:
		return []KeyFormat{KeyFormatX509}
	default:
		return nil
	}
}

// GetHmacSharingParameters delegates to the enforcement policy's HMAC
// negotiation, part of the shared-secret setup TESTABLE PROPERTIES exercises
// indirectly through VerifyAuthorization.
func (d *Dispatcher) GetHmacSharingParameters() ([]byte, *Error) {
	policy := d.ctx.EnforcementPolicy()
	if policy == nil {
		return nil, NewError(Unimplemented, "no enforcement policy configured")
	}
	return policy.GetHmacSharingParameters()
}

// ComputeSharedHmac combines every participant's sharing parameters into the
// device-wide shared HMAC key.
func (d *Dispatcher) ComputeSharedHmac(params [][]byte) ([]byte, *Error) {
	policy := d.ctx.EnforcementPolicy()
	if policy == nil {
		return nil, NewError(Unimplemented, "no enforcement policy configured")
	}
	return policy.ComputeSharedHmac(params)
}

// VerifyAuthorization checks a caller-supplied MAC over params against the
// shared HMAC, per COMPONENT DESIGN 4.4's authorization token verification.
func (d *Dispatcher) VerifyAuthorization(challenge []byte, params *AuthorizationSet, mac []byte) *Error {
	policy := d.ctx.EnforcementPolicy()
	if policy == nil {
		return NewError(Unimplemented, "no enforcement policy configured")
	}
	return policy.VerifyAuthorization(challenge, params, mac)
}

// GenerateTimestampToken produces a fresh timestamp token signed with the
// shared HMAC, used by callers that need TAG_AUTH_TIMEOUT tokens outside an
// operation.
func (d *Dispatcher) GenerateTimestampToken() ([]byte, *Error) {
	policy := d.ctx.EnforcementPolicy()
	if policy == nil {
		return nil, NewError(Unimplemented, "no enforcement policy configured")
	}
	return policy.GenerateTimestampToken()
}

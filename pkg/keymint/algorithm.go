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

// Algorithm identifies a key algorithm, drawn from TAG_ALGORITHM's closed
// enumeration.
type Algorithm int

const (
	AlgorithmUnknown Algorithm = iota
	AlgorithmRSA
	AlgorithmEC
	AlgorithmAES
	AlgorithmHMAC
	AlgorithmTripleDES // recognized, deliberately unsupported by any factory in this build
)

func (a Algorithm) String() string {
	switch a {
	case AlgorithmRSA:
		return "RSA"
	case AlgorithmEC:
		return "EC"
	case AlgorithmAES:
		return "AES"
	case AlgorithmHMAC:
		return "HMAC"
	case AlgorithmTripleDES:
		return "TRIPLE_DES"
	default:
		return "UNKNOWN"
	}
}

// Purpose identifies what an operation or key may be used for.
type Purpose int

const (
	PurposeEncrypt Purpose = iota
	PurposeDecrypt
	PurposeSign
	PurposeVerify
	PurposeWrapKey
	PurposeAttestKey
	PurposeAgreeKey
)

// KmVersion is the context's KeyMint API level, used by CheckVersionInfo's
// callers and by ImportWrappedKey's version-gated certificate-date step.
type KmVersion int

const (
	KeyMaster1 KmVersion = iota
	KeyMaster2
	KeyMaster3
	KeyMaster4
	KeyMint1
	KeyMint2
	KeyMint3
)

// KeyFormat identifies the wire encoding of raw key material for
// Import/ExportKey.
type KeyFormat int

const (
	KeyFormatX509 KeyFormat = iota
	KeyFormatPKCS8
	KeyFormatRaw
)

// BlockMode identifies a symmetric cipher mode, drawn from TAG_BLOCK_MODE's
// closed enumeration.
type BlockMode int

const (
	BlockModeECB BlockMode = iota // recognized, unsupported by any factory in this build
	BlockModeCBC                  // recognized, unsupported by any factory in this build
	BlockModeCTR                  // recognized, unsupported by any factory in this build
	BlockModeGCM
)

// PaddingMode identifies a padding scheme, drawn from TAG_PADDING's closed
// enumeration.
type PaddingMode int

const (
	PaddingNone PaddingMode = iota
	PaddingRSAOaep
	PaddingRSAPSS
	PaddingRSAPKCS1_1_5Encrypt // recognized, unsupported by any factory in this build
	PaddingRSAPKCS1_1_5Sign    // recognized, unsupported by any factory in this build
	PaddingPKCS7               // recognized, unsupported by any factory in this build
)

// Digest identifies a hash algorithm, drawn from TAG_DIGEST's closed
// enumeration.
type Digest int

const (
	DigestNone Digest = iota
	DigestMD5     // recognized, unsupported by any factory in this build
	DigestSHA1    // recognized, unsupported by any factory in this build
	DigestSHA224  // recognized, unsupported by any factory in this build
	DigestSHA256
	DigestSHA384  // recognized, unsupported by any factory in this build
	DigestSHA512  // recognized, unsupported by any factory in this build
)

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

// Tag identifies a single authorization in an AuthorizationSet. The
// enumeration is closed; softcontext's ParseKeyBlob does not check a
// blob's tags against it.
type Tag int

const (
	TagPurpose Tag = iota
	TagAlgorithm
	TagKeySize
	TagBlockMode
	TagDigest
	TagPadding
	TagCallerNonce
	TagMinMacLength
	TagEcCurve
	TagRSAPublicExponent
	TagNoAuthRequired
	TagAuthTimeout
	TagUserSecureID
	TagUserAuthType
	TagTrustedConfirmationRequired
	TagTrustedUserPresenceRequired
	TagOSVersion
	TagOSPatchlevel
	TagActiveDatetime
	TagOriginationExpireDatetime
	TagUsageExpireDatetime
	TagUsageCountLimit
	TagCreationDatetime
	TagOrigin
	TagRootOfTrust
	TagApplicationID
	TagApplicationData
	TagAttestationChallenge
	TagAttestationApplicationID
	TagCertificateNotBefore
	TagCertificateNotAfter
	TagUnlockedDeviceRequired
	TagEarlyBootOnly
	TagConfirmationToken
	TagVendorPatchlevel
	TagBootPatchlevel
	TagWrappingKeyBlob
	TagPasswordSID
	TagBiometricSID
)

var tagNames = map[Tag]string{
	TagPurpose:                     "PURPOSE",
	TagAlgorithm:                   "ALGORITHM",
	TagKeySize:                     "KEY_SIZE",
	TagBlockMode:                   "BLOCK_MODE",
	TagDigest:                      "DIGEST",
	TagPadding:                     "PADDING",
	TagCallerNonce:                 "CALLER_NONCE",
	TagMinMacLength:                "MIN_MAC_LENGTH",
	TagEcCurve:                     "EC_CURVE",
	TagRSAPublicExponent:           "RSA_PUBLIC_EXPONENT",
	TagNoAuthRequired:              "NO_AUTH_REQUIRED",
	TagAuthTimeout:                 "AUTH_TIMEOUT",
	TagUserSecureID:                "USER_SECURE_ID",
	TagUserAuthType:                "USER_AUTH_TYPE",
	TagTrustedConfirmationRequired: "TRUSTED_CONFIRMATION_REQUIRED",
	TagTrustedUserPresenceRequired: "TRUSTED_USER_PRESENCE_REQUIRED",
	TagOSVersion:                   "OS_VERSION",
	TagOSPatchlevel:                "OS_PATCHLEVEL",
	TagActiveDatetime:              "ACTIVE_DATETIME",
	TagOriginationExpireDatetime:   "ORIGINATION_EXPIRE_DATETIME",
	TagUsageExpireDatetime:         "USAGE_EXPIRE_DATETIME",
	TagUsageCountLimit:             "USAGE_COUNT_LIMIT",
	TagCreationDatetime:            "CREATION_DATETIME",
	TagOrigin:                      "ORIGIN",
	TagRootOfTrust:                 "ROOT_OF_TRUST",
	TagApplicationID:               "APPLICATION_ID",
	TagApplicationData:             "APPLICATION_DATA",
	TagAttestationChallenge:        "ATTESTATION_CHALLENGE",
	TagAttestationApplicationID:    "ATTESTATION_APPLICATION_ID",
	TagCertificateNotBefore:        "CERTIFICATE_NOT_BEFORE",
	TagCertificateNotAfter:         "CERTIFICATE_NOT_AFTER",
	TagUnlockedDeviceRequired:      "UNLOCKED_DEVICE_REQUIRED",
	TagEarlyBootOnly:               "EARLY_BOOT_ONLY",
	TagConfirmationToken:           "CONFIRMATION_TOKEN",
	TagVendorPatchlevel:            "VENDOR_PATCHLEVEL",
	TagBootPatchlevel:              "BOOT_PATCHLEVEL",
	TagWrappingKeyBlob:             "WRAPPING_KEY_BLOB",
	TagPasswordSID:                 "PASSWORD_SID",
	TagBiometricSID:                "BIOMETRIC_SID",
}

func (t Tag) String() string {
	if n, ok := tagNames[t]; ok {
		return n
	}
	return "UNKNOWN_TAG"
}

// HW auth type bitmask values used by TAG_USER_SECURE_ID / TAG_USER_AUTH_TYPE,
// per android_keymaster.cpp's ImportWrappedKey sid handling.
const (
	HWAuthPassword    uint64 = 1 << 0
	HWAuthFingerprint uint64 = 1 << 1
)

// Wire constants from EXTERNAL INTERFACES.
const (
	ConfirmationTokenSize            = 32
	ConfirmationTokenMessageTagSize  = 11
	ConfirmationMessageMaxSize       = 6144
	AesGcmNonceLength                = 12
	SHA256DigestLength               = 32
	X25519PrivateKeyLen              = 32
	X25519PublicValueLen             = 32
	UndefinedExpirationDateTime      = ^uint64(0)
)

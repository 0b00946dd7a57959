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
	"crypto/hmac"
	"crypto/sha256"
	"crypto/x509"
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"

	keymintrand "github.com/jeremyhahn/go-keymint/pkg/crypto/rand"
	"github.com/jeremyhahn/go-keymint/pkg/keymint"
)

// RemoteProvisioningContext implements keymint.RemoteProvisioningContext,
// grounded on pure_soft_remote_provisioning_context.h. The production
// (devicePrivKey_, bcc_) fields are generated once and held for the process
// lifetime, mirroring the header's std::once_flag bccInitFlag_.
type RemoteProvisioningContext struct {
	hbk  []byte // root-of-trust seed used to derive per-context bytes
	rand keymintrand.Resolver

	once          sync.Once
	err           error
	devicePrivKey []byte
	bcc           []byte
}

// NewRemoteProvisioningContext builds a context seeded with hbk, the
// hardware-backed-key material DeriveBytesFromHbk expands from. A software
// build has no real HBK, so callers typically pass a fixed process seed.
func NewRemoteProvisioningContext(hbk []byte) *RemoteProvisioningContext {
	resolver, _ := keymintrand.NewResolver(keymintrand.ModeSoftware)
	return &RemoteProvisioningContext{hbk: hbk, rand: resolver}
}

// DeriveBytesFromHbk implements DeriveBytesFromHbk: HKDF-SHA256 over the
// context's root seed, labelled by context string, per the header's
// DeriveBytesFromHbk(context, numBytes) contract.
func (c *RemoteProvisioningContext) DeriveBytesFromHbk(context string, numBytes int) ([]byte, error) {
	kek, err := deriveAesGcmKeyEncryptionKey(c.hbk, keymint.NewAuthorizationSet(), keymint.NewAuthorizationSet(), keymint.NewAuthorizationSet(
		keymint.KeyParam{Tag: keymint.TagApplicationID, Value: []byte(context)},
	))
	if err != nil {
		return nil, fmt.Errorf("softcontext: derive bytes from hbk: %w", err)
	}
	if numBytes <= len(kek) {
		return kek[:numBytes], nil
	}
	out := make([]byte, 0, numBytes)
	for len(out) < numBytes {
		out = append(out, kek...)
	}
	return out[:numBytes], nil
}

// GenerateHmacSha256 implements GenerateHmacSha256 using an HBK-derived
// fixed key, standing in for the header's TEE-backed HMAC key.
func (c *RemoteProvisioningContext) GenerateHmacSha256(input []byte) ([32]byte, *keymint.Error) {
	key, err := c.DeriveBytesFromHbk("RemoteKeyProvisioningHmac", 32)
	if err != nil {
		return [32]byte{}, keymint.WrapError(keymint.UnknownError, err, "failed to derive rkp hmac key")
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(input)
	var out [32]byte
	copy(out[:], mac.Sum(nil))
	return out, nil
}

// GenerateBcc implements GenerateBcc(testMode=true): a fresh device key
// pair and a single-entry boot certificate chain holding that key's public
// COSE_Key (the entry is not signed), used only by GenerateCsr's test-mode
// path.
func (c *RemoteProvisioningContext) GenerateBcc() (devicePrivKey, bcc []byte, kmErr *keymint.Error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), c.rand)
	if err != nil {
		return nil, nil, keymint.WrapError(keymint.UnknownError, err, "failed to generate test bcc key")
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, nil, keymint.WrapError(keymint.UnknownError, err, "failed to marshal test bcc key")
	}
	bccBytes, err := buildBcc(key)
	if err != nil {
		return nil, nil, keymint.WrapError(keymint.UnknownError, err, "failed to build test bcc")
	}
	return privDER, bccBytes, nil
}

// DevicePrivateKey and Bcc implement the header's lazily-initialized
// production fields: generated once per process and held stable across
// calls, mirroring LazyInitProdBcc's std::once_flag.
func (c *RemoteProvisioningContext) DevicePrivateKey() []byte {
	c.lazyInit()
	return c.devicePrivKey
}

func (c *RemoteProvisioningContext) Bcc() []byte {
	c.lazyInit()
	return c.bcc
}

func (c *RemoteProvisioningContext) lazyInit() {
	c.once.Do(func() {
		key, err := ecdsa.GenerateKey(elliptic.P256(), c.rand)
		if err != nil {
			c.err = err
			return
		}
		privDER, err := x509.MarshalPKCS8PrivateKey(key)
		if err != nil {
			c.err = err
			return
		}
		bccBytes, err := buildBcc(key)
		if err != nil {
			c.err = err
			return
		}
		c.devicePrivKey = privDER
		c.bcc = bccBytes
	})
}

// buildBcc constructs a minimal one-entry boot certificate chain: a CBOR
// array holding a single COSE_Key map for the device's own public key,
// self-signing not required since this is the chain's root entry.
func buildBcc(key *ecdsa.PrivateKey) ([]byte, error) {
	x := key.PublicKey.X.FillBytes(make([]byte, 32))
	y := key.PublicKey.Y.FillBytes(make([]byte, 32))
	coseKey := map[int]any{
		1:  2, // kty: EC2
		3:  -7, // alg: ES256
		-1: 1,  // crv: P-256
		-2: x,
		-3: y,
	}
	return cbor.Marshal([]any{coseKey})
}

// CreateDeviceInfo implements CreateDeviceInfo, returning the CBOR-encoded
// device_info_map defined by the remote key provisioning HAL: a small set
// of fixed identifying fields, since this build has no bootloader/vbmeta
// state to report.
func (c *RemoteProvisioningContext) CreateDeviceInfo() ([]byte, *keymint.Error) {
	info := map[string]any{
		"brand":        "generic",
		"manufacturer": "generic",
		"product":      "keymint_soft",
		"model":        "keymint_soft",
		"device":       "keymint_soft",
		"vb_state":     "orange",
		"bootloader_state": "unlocked",
		"vbmeta_digest":    []byte{},
		"os_version":       "",
		"system_patch_level":  0,
		"boot_patch_level":    0,
		"vendor_patch_level":  0,
		"version": 3,
		"fused":   0,
		"security_level": "software",
	}
	out, err := cbor.Marshal(info)
	if err != nil {
		return nil, keymint.WrapError(keymint.UnknownError, err, "failed to encode device info")
	}
	return out, nil
}

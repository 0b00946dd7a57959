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
	"encoding/binary"
	"encoding/hex"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/hkdf"

	keymintrand "github.com/jeremyhahn/go-keymint/pkg/crypto/rand"
	"github.com/jeremyhahn/go-keymint/pkg/keymint"
	"github.com/jeremyhahn/go-keymint/pkg/ratelimit"
)

// Policy implements keymint.EnforcementPolicy in software: key ids are the
// SHA-256 of the key blob, usage-count and expiry tags are checked against
// wall-clock time, and the shared HMAC negotiation mirrors ISharedSecret's
// nonce-then-verify handshake, all backed by an in-process rate limiter
// standing in for a TEE's own throttling of operation starts.
type Policy struct {
	mu sync.Mutex

	limiter *ratelimit.Limiter

	usageCounts map[string]uint64

	nonce      [32]byte
	sharedKey  []byte
	deviceLocked bool
	passwordOnlyLock bool
	earlyBoot  bool
}

// PolicyConfig configures a Policy.
type PolicyConfig struct {
	RateLimit *ratelimit.Config // nil disables rate limiting
}

// NewPolicy builds a Policy with a freshly generated sharing nonce, per
// GetHmacSharingParameters's per-boot nonce contract.
func NewPolicy(cfg PolicyConfig) (*Policy, error) {
	p := &Policy{
		usageCounts: make(map[string]uint64),
		earlyBoot:   true,
		limiter:     ratelimit.New(cfg.RateLimit),
	}
	resolver, err := keymintrand.NewResolver(nil)
	if err != nil {
		return nil, err
	}
	if _, err := resolver.Read(p.nonce[:]); err != nil {
		return nil, err
	}
	return p, nil
}

// CreateKeyId implements CreateKeyId: the SHA-256 digest of the key blob,
// used to key both the usage-count table and the rate limiter.
func (p *Policy) CreateKeyId(blob []byte) ([]byte, *keymint.Error) {
	sum := sha256.Sum256(blob)
	return sum[:], nil
}

// AuthorizeOperation implements AuthorizeOperation: usage-count-limit
// tracking, active/expiry window checks, unlocked-device enforcement, and
// operation-start rate limiting, per COMPONENT DESIGN 4.3 steps 2-3 and 6.
func (p *Policy) AuthorizeOperation(purpose keymint.Purpose, keyID []byte, auths, params *keymint.AuthorizationSet, opHandle uint64, isBegin bool) *keymint.Error {
	idHex := hex.EncodeToString(keyID)

	if isBegin {
		if !p.limiter.Allow(idHex) {
			return keymint.NewError(keymint.InvalidArgument, "operation rate limit exceeded for key")
		}
	}

	now := uint64(time.Now().UnixMilli())
	if active, ok := auths.GetUint64(keymint.TagActiveDatetime); ok && now < active {
		return keymint.NewError(keymint.InvalidArgument, "key is not yet active")
	}
	if expire, ok := auths.GetUint64(keymint.TagUsageExpireDatetime); ok && now > expire {
		return keymint.NewError(keymint.InvalidArgument, "key usage window has expired")
	}
	if purpose == keymint.PurposeSign || purpose == keymint.PurposeEncrypt {
		if expire, ok := auths.GetUint64(keymint.TagOriginationExpireDatetime); ok && now > expire {
			return keymint.NewError(keymint.InvalidArgument, "key origination window has expired")
		}
	}

	if auths.Contains(keymint.TagUnlockedDeviceRequired) {
		p.mu.Lock()
		locked := p.deviceLocked
		p.mu.Unlock()
		if locked {
			return keymint.NewError(keymint.InvalidArgument, "device is locked and key requires an unlocked device")
		}
	}

	if isBegin {
		if limit, ok := auths.GetUint64(keymint.TagUsageCountLimit); ok {
			p.mu.Lock()
			count := p.usageCounts[idHex]
			if count >= limit {
				p.mu.Unlock()
				return keymint.NewError(keymint.InvalidArgument, "usage count limit exceeded")
			}
			p.usageCounts[idHex] = count + 1
			p.mu.Unlock()
		}
	}

	return nil
}

// hmacSharingParams is the CBOR-encoded [seed, nonce] pair GetHmacSharingParameters
// hands to every co-operating KeyMint instance before ComputeSharedHmac.
type hmacSharingParams struct {
	_     struct{} `cbor:",toarray"`
	Seed  []byte
	Nonce []byte
}

// GetHmacSharingParameters implements GetHmacSharingParameters.
func (p *Policy) GetHmacSharingParameters() ([]byte, *keymint.Error) {
	out, err := cbor.Marshal(hmacSharingParams{Seed: []byte{}, Nonce: p.nonce[:]})
	if err != nil {
		return nil, keymint.WrapError(keymint.UnknownError, err, "failed to encode hmac sharing parameters")
	}
	return out, nil
}

// ComputeSharedHmac implements ComputeSharedHmac: HKDF-derives a shared key
// from the concatenation of every participant's nonce (this build only
// ever has its own), then returns an HMAC-SHA256 "sharing check" over a
// fixed context string, per the ISharedSecret negotiation contract.
func (p *Policy) ComputeSharedHmac(params [][]byte) ([]byte, *keymint.Error) {
	ikm := make([]byte, 0, len(params)*32)
	for _, raw := range params {
		var decoded hmacSharingParams
		if err := cbor.Unmarshal(raw, &decoded); err != nil {
			return nil, keymint.WrapError(keymint.InvalidArgument, err, "malformed hmac sharing parameters")
		}
		ikm = append(ikm, decoded.Nonce...)
	}

	reader := hkdf.New(sha256.New, ikm, nil, []byte("KeymasterSharedMac"))
	key := make([]byte, 32)
	if _, err := readFull(reader, key); err != nil {
		return nil, keymint.WrapError(keymint.UnknownError, err, "failed to derive shared hmac key")
	}

	p.mu.Lock()
	p.sharedKey = key
	p.mu.Unlock()

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte("Keymaster HMAC Verification"))
	return mac.Sum(nil), nil
}

// VerifyAuthorization implements VerifyAuthorization: recomputes an
// HMAC-SHA256 over the timestamp token challenge and compares it against
// mac, using the negotiated shared key.
func (p *Policy) VerifyAuthorization(challenge []byte, params *keymint.AuthorizationSet, mac []byte) *keymint.Error {
	p.mu.Lock()
	key := p.sharedKey
	p.mu.Unlock()
	if key == nil {
		return keymint.NewError(keymint.Unimplemented, "shared hmac has not been negotiated yet")
	}

	h := hmac.New(sha256.New, key)
	h.Write(challenge)
	for i := 0; i < params.Len(); i++ {
		if b, ok := params.At(i).Value.([]byte); ok {
			h.Write(b)
		}
	}
	want := h.Sum(nil)
	if subtle.ConstantTimeCompare(want, mac) != 1 {
		return keymint.NewError(keymint.InvalidArgument, "authorization token mac verification failed")
	}
	return nil
}

// GenerateTimestampToken implements GenerateTimestampToken: an
// HMAC-SHA256-protected token binding the current wall-clock time, used by
// callers to satisfy TAG_AUTH_TIMEOUT windows across separate operations.
func (p *Policy) GenerateTimestampToken() ([]byte, *keymint.Error) {
	p.mu.Lock()
	key := p.sharedKey
	p.mu.Unlock()
	if key == nil {
		return nil, keymint.NewError(keymint.Unimplemented, "shared hmac has not been negotiated yet")
	}

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(time.Now().UnixMilli()))

	mac := hmac.New(sha256.New, key)
	mac.Write(buf[:])
	tag := mac.Sum(nil)

	out, err := cbor.Marshal(struct {
		_         struct{} `cbor:",toarray"`
		TimeMilli []byte
		Mac       []byte
	}{TimeMilli: buf[:], Mac: tag})
	if err != nil {
		return nil, keymint.WrapError(keymint.UnknownError, err, "failed to encode timestamp token")
	}
	return out, nil
}

func (p *Policy) InEarlyBoot() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.earlyBoot
}

func (p *Policy) EarlyBootEnded() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.earlyBoot = false
}

func (p *Policy) DeviceLocked(passwordOnly bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deviceLocked = true
	p.passwordOnlyLock = passwordOnly
}

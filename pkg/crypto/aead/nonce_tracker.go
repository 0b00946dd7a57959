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

package aead

import (
	"encoding/hex"
	"sync"
)

// NonceTracker records every nonce an AES-GCM operation has sealed under
// one key fingerprint. `pkg/softcontext/aes.go`'s aesGcmOperation holds one
// per fingerprint (via Context.nonceTrackerFor) and calls
// CheckAndRecordNonce before every Seal — GCM's authentication guarantee
// collapses the instant two ciphertexts share a (key, nonce) pair, per
// NIST SP 800-38D.
type NonceTracker struct {
	enabled bool
	nonces  map[string]struct{} // Set of used nonces (hex encoded)
	mu      sync.RWMutex
}

// NewNonceTracker creates a tracker; enabled=false makes every method a
// no-op, for callers (tests, benchmarks) that don't want the bookkeeping.
func NewNonceTracker(enabled bool) *NonceTracker {
	return &NonceTracker{
		enabled: enabled,
		nonces:  make(map[string]struct{}),
	}
}

// CheckAndRecordNonce atomically checks nonce against every nonce this
// tracker has already seen and records it. Returns ErrNonceReuse instead
// of recording a nonce that's already present.
func (nt *NonceTracker) CheckAndRecordNonce(nonce []byte) error {
	if !nt.enabled {
		return nil
	}

	nonceHex := hex.EncodeToString(nonce)

	nt.mu.Lock()
	defer nt.mu.Unlock()

	if _, exists := nt.nonces[nonceHex]; exists {
		return ErrNonceReuse
	}

	nt.nonces[nonceHex] = struct{}{}
	return nil
}

// Contains reports whether nonce has already been recorded, without
// recording it.
func (nt *NonceTracker) Contains(nonce []byte) bool {
	if !nt.enabled {
		return false
	}

	nonceHex := hex.EncodeToString(nonce)

	nt.mu.RLock()
	defer nt.mu.RUnlock()

	_, exists := nt.nonces[nonceHex]
	return exists
}

// Count returns the number of nonces currently tracked.
func (nt *NonceTracker) Count() int {
	if !nt.enabled {
		return 0
	}

	nt.mu.RLock()
	defer nt.mu.RUnlock()

	return len(nt.nonces)
}

// Clear removes all tracked nonces. Only safe to call right after rotating
// to a new key — clearing and reusing the old key would defeat the point.
func (nt *NonceTracker) Clear() {
	if !nt.enabled {
		return
	}

	nt.mu.Lock()
	defer nt.mu.Unlock()

	nt.nonces = make(map[string]struct{})
}

// IsEnabled returns whether nonce tracking is active.
func (nt *NonceTracker) IsEnabled() bool {
	return nt.enabled
}

// SetEnabled toggles tracking without clearing what's already recorded, so
// re-enabling resumes checking against nonces seen before the toggle.
func (nt *NonceTracker) SetEnabled(enabled bool) {
	nt.mu.Lock()
	defer nt.mu.Unlock()

	nt.enabled = enabled
}

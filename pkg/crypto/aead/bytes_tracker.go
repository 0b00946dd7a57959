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
	"fmt"
	"sync/atomic"
)

const (
	// DefaultBytesTrackingLimit bounds how much plaintext a single AES-GCM
	// key fingerprint may seal before Finish starts rejecting operations,
	// per NIST SP 800-38D's per-key usage guidance for random 96-bit IVs.
	DefaultBytesTrackingLimit = 350 * 1024 * 1024 * 1024 // 350GB in bytes

	// Conservative68GB is the tighter birthday-bound limit appropriate when
	// nonce tracking is disabled.
	Conservative68GB = 68 * 1024 * 1024 * 1024 // 68GB in bytes
)

// BytesTracker enforces the per-key-fingerprint byte ceiling on encrypt
// operations. `pkg/softcontext/aes.go`'s aesGcmOperation.Finish calls
// CheckAndIncrementBytes before every Seal; `pkg/softcontext.Context`
// holds one BytesTracker per key fingerprint via bytesTrackerFor.
type BytesTracker struct {
	// enabled controls whether bytes tracking is active
	enabled bool

	// bytesEncrypted tracks total bytes encrypted (atomic counter)
	bytesEncrypted atomic.Int64

	// limit is the maximum bytes allowed before rotation required
	limit int64
}

// NewBytesTracker creates a tracker with the given limit; limit == 0 uses
// DefaultBytesTrackingLimit.
func NewBytesTracker(enabled bool, limit int64) *BytesTracker {
	if limit == 0 {
		limit = DefaultBytesTrackingLimit
	}
	return &BytesTracker{
		enabled: enabled,
		limit:   limit,
	}
}

// CheckAndIncrementBytes atomically adds numBytes to the running total and
// rejects the operation (without recording it) if the new total would
// exceed the limit — the caller must rotate the key rather than proceed.
func (bt *BytesTracker) CheckAndIncrementBytes(numBytes int64) error {
	if !bt.enabled {
		return nil
	}

	// Atomically add and get new total
	newTotal := bt.bytesEncrypted.Add(numBytes)

	// Check if we exceeded the limit
	if newTotal > bt.limit {
		// Rollback the increment - we don't want to count failed operations
		bt.bytesEncrypted.Add(-numBytes)
		return fmt.Errorf("AEAD key usage limit exceeded: encrypted %d bytes, limit %d bytes (exceeded by %d bytes)",
			newTotal-numBytes, bt.limit, newTotal-bt.limit)
	}

	return nil
}

// GetBytesEncrypted returns the total bytes sealed so far under this key
// fingerprint, or 0 if tracking is disabled.
func (bt *BytesTracker) GetBytesEncrypted() int64 {
	if !bt.enabled {
		return 0
	}
	return bt.bytesEncrypted.Load()
}

// GetRemainingBytes returns how many more bytes this key fingerprint can
// seal before hitting the limit, or -1 if tracking is disabled.
func (bt *BytesTracker) GetRemainingBytes() int64 {
	if !bt.enabled {
		return -1 // Unlimited
	}
	encrypted := bt.bytesEncrypted.Load()
	return bt.limit - encrypted
}

// GetLimit returns the configured bytes limit, or -1 if tracking is disabled.
func (bt *BytesTracker) GetLimit() int64 {
	if !bt.enabled {
		return -1
	}
	return bt.limit
}

// IsEnabled returns true if bytes tracking is enabled.
func (bt *BytesTracker) IsEnabled() bool {
	return bt.enabled
}

// GetUsagePercentage returns 0.0-100.0, the share of the limit consumed so
// far, or 0.0 if tracking is disabled.
func (bt *BytesTracker) GetUsagePercentage() float64 {
	if !bt.enabled || bt.limit == 0 {
		return 0.0
	}
	encrypted := bt.bytesEncrypted.Load()
	return (float64(encrypted) / float64(bt.limit)) * 100.0
}

// ShouldWarnUser reports whether usage has crossed 90% of the limit, an
// early signal to schedule key rotation before Finish starts rejecting.
func (bt *BytesTracker) ShouldWarnUser() bool {
	if !bt.enabled {
		return false
	}
	return bt.GetUsagePercentage() >= 90.0
}

// GetUsageStats returns the tracker's counters as a map, for a status
// endpoint or log line to embed without exposing the struct itself.
func (bt *BytesTracker) GetUsageStats() map[string]interface{} {
	if !bt.enabled {
		return map[string]interface{}{
			"enabled": false,
		}
	}

	encrypted := bt.bytesEncrypted.Load()
	return map[string]interface{}{
		"enabled":         true,
		"bytes_encrypted": encrypted,
		"limit":           bt.limit,
		"bytes_remaining": bt.limit - encrypted,
		"usage_percent":   bt.GetUsagePercentage(),
		"warn":            bt.ShouldWarnUser(),
	}
}

// Reset zeroes the counter. Only safe right after the fingerprint it
// tracks has rotated to a new key.
func (bt *BytesTracker) Reset() {
	if bt.enabled {
		bt.bytesEncrypted.Store(0)
	}
}

// SetLimit updates the bytes limit without touching the current counter.
func (bt *BytesTracker) SetLimit(limit int64) {
	if bt.enabled {
		bt.limit = limit
	}
}

// Enable enables bytes tracking with the current or specified limit.
// If limit is 0, uses the existing limit or DefaultBytesTrackingLimit if no limit is set.
// If limit is positive, always updates to the new limit.
func (bt *BytesTracker) Enable(limit int64) {
	bt.enabled = true
	if limit > 0 {
		bt.limit = limit
	} else if limit == 0 && bt.limit == 0 {
		bt.limit = DefaultBytesTrackingLimit
	}
	// If limit is 0 but bt.limit is already set, keep the existing limit
}

// Disable disables bytes tracking.
// The counter value is preserved but checks are skipped.
func (bt *BytesTracker) Disable() {
	bt.enabled = false
}

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

// Package aead holds the per-key-fingerprint bookkeeping AES-GCM operations
// need to stay inside NIST SP 800-38D's safe usage bounds: NonceTracker
// catches nonce reuse before it can happen, BytesTracker forces key
// rotation once a fingerprint has sealed too much plaintext.
package aead

import "errors"

var (
	// ErrNonceReuse is what CheckAndRecordNonce returns when a nonce has
	// already been sealed under the same key fingerprint — AES-GCM's
	// authentication guarantee is void the instant that happens, so the
	// Begin call that produced the reused nonce is rejected outright.
	ErrNonceReuse = errors.New("aead: catastrophic nonce reuse detected - encryption rejected for security")
)

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

package storage

import "errors"

var (
	// ErrClosed is returned when a Backend is used after Close.
	ErrClosed = errors.New("storage: closed")

	// ErrNotFound is returned when a key ID has no entry in the backend —
	// KeyStorage.DeleteKey treats this as a no-op rather than a failure,
	// since deleting an already-spent key is not an error.
	ErrNotFound = errors.New("storage: not found")
)

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

// Package storage provides the key-value backend behind KeyStorage, the
// port FinishOperation deletes a key through once its TAG_USAGE_COUNT_LIMIT
// is spent. This module's storage need is exactly that one operation
// (delete-by-hex-encoded-key-id); the Backend interface stays general
// enough to swap MemoryBackend for a persistent implementation later
// without touching KeyStorage or its caller.
package storage

// Backend defines the interface for storage backends. All implementations
// must be thread-safe.
type Backend interface {
	// Get retrieves the value for the given key.
	// Returns ErrNotFound if the key does not exist.
	Get(key string) ([]byte, error)

	// Put stores the value for the given key with optional metadata.
	// If the key already exists, it will be overwritten.
	Put(key string, value []byte, opts *Options) error

	// Delete removes the key and its value from storage.
	// Returns ErrNotFound if the key does not exist. This is the only
	// Backend method KeyStorage calls.
	Delete(key string) error

	// List returns all keys with the given prefix.
	// If prefix is empty, all keys are returned.
	List(prefix string) ([]string, error)

	// Exists checks if a key exists in storage.
	Exists(key string) (bool, error)

	// Close releases any resources held by the backend.
	Close() error
}

// Options carries per-call metadata for a Put. Path/Permissions, which the
// teacher's file-backed implementations consumed, have no equivalent here
// since this module ships only MemoryBackend.
type Options struct {
	// Metadata contains additional key-value pairs for storage operations
	Metadata map[string]string
}

// DefaultOptions returns Options with an initialized, empty Metadata map.
func DefaultOptions() *Options {
	return &Options{
		Metadata: make(map[string]string),
	}
}

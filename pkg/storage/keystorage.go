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

import (
	"encoding/hex"
	"errors"

	"github.com/jeremyhahn/go-keymint/pkg/keymint"
)

// KeyStorage adapts a Backend into keymint.SecureKeyStorage, the port
// FinishOperation uses to delete a key once its TAG_USAGE_COUNT_LIMIT is
// spent. Key IDs are hex-encoded before hitting the Backend since they are
// raw digest bytes, not necessarily valid as path or object-key characters.
type KeyStorage struct {
	backend Backend
}

// NewKeyStorage wraps backend as a keymint.SecureKeyStorage.
func NewKeyStorage(backend Backend) *KeyStorage {
	return &KeyStorage{backend: backend}
}

// DeleteKey implements keymint.SecureKeyStorage.
func (s *KeyStorage) DeleteKey(keyID []byte) *keymint.Error {
	err := s.backend.Delete(hex.EncodeToString(keyID))
	if err == nil || errors.Is(err, ErrNotFound) {
		return nil
	}
	return keymint.WrapError(keymint.UnknownError, err, "delete key from storage")
}

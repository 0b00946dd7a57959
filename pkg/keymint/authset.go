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

// KeyParam is a single (tag, value) pair. Value holds whatever type the
// tag's wire encoding implies (uint64, []byte, bool, etc); callers use the
// typed getters below rather than asserting on Value directly.
type KeyParam struct {
	Tag   Tag
	Value any
}

// AuthorizationSet is an ordered multimap of (tag, value) pairs. Duplicate
// tags are permitted; iteration order equals insertion order. It is the Go
// realization of C2.
type AuthorizationSet struct {
	params []KeyParam
}

// NewAuthorizationSet builds a set from an initial slice of params, copying
// so later mutation of the caller's slice is not observed.
func NewAuthorizationSet(params ...KeyParam) *AuthorizationSet {
	s := &AuthorizationSet{}
	s.Reinitialize(params)
	return s
}

// Reinitialize replaces the set's contents with a copy of params.
func (s *AuthorizationSet) Reinitialize(params []KeyParam) {
	s.params = append([]KeyParam(nil), params...)
}

// PushBack appends a new (tag, value) pair, duplicates allowed.
func (s *AuthorizationSet) PushBack(tag Tag, value any) {
	s.params = append(s.params, KeyParam{Tag: tag, Value: value})
}

// Len returns the number of entries.
func (s *AuthorizationSet) Len() int { return len(s.params) }

// At returns the entry at index i.
func (s *AuthorizationSet) At(i int) KeyParam { return s.params[i] }

// Find returns the index of the first entry with the given tag, or -1.
func (s *AuthorizationSet) Find(tag Tag) int {
	for i, p := range s.params {
		if p.Tag == tag {
			return i
		}
	}
	return -1
}

// GetTagValue returns the value of the first entry with tag, and whether it
// was found.
func (s *AuthorizationSet) GetTagValue(tag Tag) (any, bool) {
	i := s.Find(tag)
	if i < 0 {
		return nil, false
	}
	return s.params[i].Value, true
}

// GetUint64 is a typed convenience wrapper over GetTagValue for tags whose
// value is a uint64 (OS_PATCHLEVEL, USAGE_COUNT_LIMIT, USER_SECURE_ID, ...).
func (s *AuthorizationSet) GetUint64(tag Tag) (uint64, bool) {
	v, ok := s.GetTagValue(tag)
	if !ok {
		return 0, false
	}
	u, ok := v.(uint64)
	return u, ok
}

// GetBytes is a typed convenience wrapper over GetTagValue for []byte-valued
// tags (APPLICATION_ID, ATTESTATION_CHALLENGE, CONFIRMATION_TOKEN, ...).
func (s *AuthorizationSet) GetBytes(tag Tag) ([]byte, bool) {
	v, ok := s.GetTagValue(tag)
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}

// Contains reports whether the set has an entry for tag. If value is
// non-nil, the entry's value must also equal it.
func (s *AuthorizationSet) Contains(tag Tag, value ...any) bool {
	for _, p := range s.params {
		if p.Tag != tag {
			continue
		}
		if len(value) == 0 {
			return true
		}
		if p.Value == value[0] {
			return true
		}
	}
	return false
}

// Erase removes the entry at index i, preserving order of the rest.
// Reports false if i is out of range.
func (s *AuthorizationSet) Erase(i int) bool {
	if i < 0 || i >= len(s.params) {
		return false
	}
	s.params = append(s.params[:i], s.params[i+1:]...)
	return true
}

// EraseTag removes all entries with the given tag, returning the count
// removed.
func (s *AuthorizationSet) EraseTag(tag Tag) int {
	removed := 0
	kept := s.params[:0]
	for _, p := range s.params {
		if p.Tag == tag {
			removed++
			continue
		}
		kept = append(kept, p)
	}
	s.params = kept
	return removed
}

// Clear empties the set.
func (s *AuthorizationSet) Clear() { s.params = nil }

// Slice returns a defensive copy of the set's entries in insertion order.
func (s *AuthorizationSet) Slice() []KeyParam {
	return append([]KeyParam(nil), s.params...)
}

// Equal compares two sets for equality of contents and order, used by the
// round-trip testable property in TESTABLE PROPERTIES.
func (s *AuthorizationSet) Equal(o *AuthorizationSet) bool {
	if s.Len() != o.Len() {
		return false
	}
	for i := range s.params {
		a, b := s.params[i], o.params[i]
		if a.Tag != b.Tag {
			return false
		}
		if ab, ok := a.Value.([]byte); ok {
			bb, ok2 := b.Value.([]byte)
			if !ok2 || string(ab) != string(bb) {
				return false
			}
			continue
		}
		if a.Value != b.Value {
			return false
		}
	}
	return true
}

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

import (
	"encoding/binary"
	"sync"

	krand "github.com/jeremyhahn/go-keymint/pkg/crypto/rand"
)

// liveOp is one entry in the operation table: the factory-supplied
// Operation plus the bookkeeping the lifecycle engine (C6) needs across
// Update calls.
type liveOp struct {
	handle      uint64
	purpose     Purpose
	keyID       []byte
	hwEnforced  *AuthorizationSet
	op          Operation
	confirmBuf  []byte // nil unless TRUSTED_CONFIRMATION_REQUIRED
	insertOrder uint64
}

// OperationTable is the C5 fixed-capacity, handle-addressed table of live
// operations. Add evicts the oldest entry when full; entries are otherwise
// removed only by Delete. Safe for concurrent use.
type OperationTable struct {
	mu       sync.Mutex
	capacity int
	entries  map[uint64]*liveOp
	order    []uint64 // insertion order, oldest first
	seq      uint64
	rng      krand.Resolver
}

// NewOperationTable constructs a table with the given fixed capacity.
func NewOperationTable(capacity int) *OperationTable {
	rng, err := krand.NewResolver(nil)
	if err != nil {
		// crypto/rand-backed SoftwareResolver never fails to construct;
		// a nil resolver here would be a programming error, not a
		// reachable runtime condition.
		panic("keymint: failed to construct handle RNG: " + err.Error())
	}
	return &OperationTable{
		capacity: capacity,
		entries:  make(map[uint64]*liveOp),
		rng:      rng,
	}
}

// randomHandle draws a non-zero, currently-unused 64-bit handle.
func (t *OperationTable) randomHandle() (uint64, *Error) {
	for i := 0; i < 32; i++ {
		b, err := t.rng.Rand(8)
		if err != nil {
			return 0, WrapError(MemoryAllocationFailed, err, "failed to draw operation handle entropy")
		}
		h := binary.BigEndian.Uint64(b)
		if h == 0 {
			continue
		}
		if _, exists := t.entries[h]; exists {
			continue
		}
		return h, nil
	}
	return 0, NewError(MemoryAllocationFailed, "exhausted retries drawing a unique operation handle")
}

// Add assigns a handle to op and inserts it, evicting the oldest entry
// (aborting it best-effort) if the table is already at capacity.
func (t *OperationTable) Add(op *liveOp) (uint64, *Error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.entries) >= t.capacity {
		t.evictOldestLocked()
	}

	handle, kmErr := t.randomHandle()
	if kmErr != nil {
		return 0, kmErr
	}
	t.seq++
	op.handle = handle
	op.insertOrder = t.seq
	t.entries[handle] = op
	t.order = append(t.order, handle)
	return handle, nil
}

func (t *OperationTable) evictOldestLocked() {
	if len(t.order) == 0 {
		return
	}
	oldest := t.order[0]
	t.order = t.order[1:]
	if entry, ok := t.entries[oldest]; ok {
		delete(t.entries, oldest)
		// Best-effort abort per "Invariant: destruction order of evicted
		// operations calls the operation's Abort path (errors ignored)".
		_ = entry.op.Abort()
	}
}

// Find returns the live entry for handle, or nil if absent.
func (t *OperationTable) Find(handle uint64) *liveOp {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entries[handle]
}

// Delete removes handle from the table. Idempotent.
func (t *OperationTable) Delete(handle uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[handle]; !ok {
		return
	}
	delete(t.entries, handle)
	for i, h := range t.order {
		if h == handle {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// Len reports the number of live operations, for metrics.
func (t *OperationTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

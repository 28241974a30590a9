// Copyright 2023 The CubeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package store

import (
	"sync"

	"github.com/fleetfs/fleetfs/errorcode"
)

// lockTable is the per-inode advisory lock table. It is intentionally
// in-memory only: a restart recovers it empty, which is permitted
// because an orphaned lock only blocks other transactions on the same
// inode, never corrupts stored state.
type lockTable struct {
	mu      sync.Mutex
	holders map[uint64]uint64
	nextID  uint64
}

func newLockTable() *lockTable {
	return &lockTable{holders: make(map[uint64]uint64)}
}

// Lock assigns a new lock_id to ino, unique for the lifetime of this
// rgroup's process, per spec.md §4.2. It fails AlreadyLocked (reported
// to the caller as OperationNotPermitted, per spec.md §8) if ino is
// already held.
func (t *lockTable) Lock(ino uint64) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, held := t.holders[ino]; held {
		return 0, errorcode.OperationNotPermitted
	}
	t.nextID++
	id := t.nextID
	t.holders[ino] = id
	return id, nil
}

// Unlock releases ino's lock if lockID matches the current holder; a
// mismatched or stale lockID is a silent no-op, per spec.md §4.3
// "unlock(inode, lock_id) ... no-op if lock_id does not match".
func (t *lockTable) Unlock(ino, lockID uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if held, ok := t.holders[ino]; ok && held == lockID {
		delete(t.holders, ino)
	}
}

// CheckHolder validates lockID against ino's current holder, used by
// every apply handler that accepts an optional lock_id, per spec.md
// §4.3 step 2.
func (t *lockTable) CheckHolder(ino uint64, lockID *uint64) error {
	if lockID == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	held, ok := t.holders[ino]
	if !ok || held != *lockID {
		return errorcode.OperationNotPermitted
	}
	return nil
}

// IsLocked reports whether ino currently has any holder, used by
// rmdir's empty-under-lock check and by fsck.
func (t *lockTable) IsLocked(ino uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, held := t.holders[ino]
	return held
}

// Lock, Unlock, CheckHolder and IsLocked expose the rgroup's advisory
// lock table to callers outside package store (the rgroup state
// machine's Lock/Unlock apply handlers and the coordinator's lock
// ordering), without exposing the table itself.
func (s *Store) Lock(ino uint64) (uint64, error) { return s.locks.Lock(ino) }

func (s *Store) Unlock(ino, lockID uint64) { s.locks.Unlock(ino, lockID) }

func (s *Store) CheckHolder(ino uint64, lockID *uint64) error { return s.locks.CheckHolder(ino, lockID) }

func (s *Store) IsLocked(ino uint64) bool { return s.locks.IsLocked(ino) }

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

package rgroup

import (
	"context"

	"github.com/fleetfs/fleetfs/wire"
)

// applyLock and applyUnlock run the rgroup's advisory lock table
// through the log like any other mutation, so every replica agrees
// on who holds a lock even though the table itself is never
// persisted, per spec.md §4.2 and §5's "never across user-visible
// waits" rule — a lock acquired on the leader is visible to a new
// leader after failover because it was committed, not because it was
// replayed from disk.
func (g *Rgroup) applyLock(ctx context.Context, r wire.LockRequest, commit wire.CommitID) (wire.Response, error) {
	lockID, err := g.store.Lock(r.Ino)
	if err != nil {
		return nil, err
	}
	return wire.LockResponse{LockID: lockID, Commit: wire.Commit{Applied: &commit}}, nil
}

// applyUnlock is a no-op, not an error, when LockID no longer matches
// the current holder, per spec.md §4.2 "no-op if lock_id does not
// match" — a coordinator racing its own cleanup against a timeout
// must never fail on the second unlock attempt.
func (g *Rgroup) applyUnlock(ctx context.Context, r wire.UnlockRequest, commit wire.CommitID) (wire.Response, error) {
	g.store.Unlock(r.Ino, r.LockID)
	return wire.EmptyResponse{Commit: wire.Commit{Applied: &commit}}, nil
}

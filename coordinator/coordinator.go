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

// Package coordinator implements spec.md §4.6: it composes the
// internal transaction primitives the state machine exposes into the
// multi-rgroup POSIX operations (create, mkdir, unlink, rmdir,
// rename, hardlink) no single rgroup can answer on its own, acquiring
// per-inode locks and running compensations on partial failure.
// There is no central transaction log; every sequence is driven
// end-to-end by the calling client, per spec.md §9 "client-driven
// transactions, not a central coordinator."
package coordinator

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cubefs/cubefs/blobstore/util/log"

	"github.com/fleetfs/fleetfs/errorcode"
	"github.com/fleetfs/fleetfs/router"
	"github.com/fleetfs/fleetfs/wire"
)

// nowTimestamp stamps a request the coordinator is about to send. The
// value is fixed into the proposal's bytes before it ever reaches a
// rgroup's log, so every replica that applies the committed entry
// sees the same timestamp regardless of when it processes it; only
// the leader that accepts the propose call needs a real clock.
func nowTimestamp() wire.Timestamp {
	t := time.Now()
	return wire.Timestamp{Seconds: t.Unix(), Nanos: int32(t.Nanosecond())}
}

// Coordinator drives multi-rgroup POSIX operations over a Router. One
// Coordinator is shared by every facade call in a process.
type Coordinator struct {
	router *router.Router

	rrCounter uint32
	tokens    uint64
}

func New(r *router.Router) *Coordinator {
	return &Coordinator{router: r}
}

// nextToken mints a fencing token unique to this process's lifetime,
// used to make DecrementInodeRequest, HardlinkIncrementRequest and
// HardlinkRollbackRequest safely replayable by the rgroup apply loop,
// per spec.md §9's recommendation for the non-idempotent decrement.
func (c *Coordinator) nextToken() uint64 {
	return atomic.AddUint64(&c.tokens, 1)
}

// pickRgroup chooses where a freshly-created inode is allocated,
// round-robin across every rgroup, per spec.md §4.6.1 step 1 ("round-
// robin or least-loaded"). A least-loaded policy needs per-rgroup
// load feedback the wire protocol does not currently carry; round-
// robin is the simplest policy that still spreads new inodes evenly.
func (c *Coordinator) pickRgroup() uint16 {
	n := c.router.NumRgroups()
	if n == 0 {
		return 0
	}
	v := atomic.AddUint32(&c.rrCounter, 1)
	return uint16(v % uint32(n))
}

// lock acquires the advisory lock on ino via its owning rgroup.
func (c *Coordinator) lock(ctx context.Context, ino uint64) (lockID uint64, rgroup uint16, err error) {
	rgroup = c.router.RgroupOf(ino)
	resp, err := c.router.Send(ctx, rgroup, wire.LockRequest{Ino: ino})
	if err != nil {
		return 0, rgroup, err
	}
	if code, isErr := wire.AsError(resp); isErr {
		return 0, rgroup, code
	}
	lr, ok := resp.(wire.LockResponse)
	if !ok {
		return 0, rgroup, errorcode.BadResponse
	}
	return lr.LockID, rgroup, nil
}

// unlock releases a lock acquired with lock. Failures are logged, not
// returned: per spec.md §9, an orphaned lock has no server-side
// cleanup path yet, but a failed unlock here must never block the
// caller from reporting whatever result the transaction itself
// produced.
func (c *Coordinator) unlock(ctx context.Context, rgroup uint16, ino, lockID uint64) {
	if lockID == 0 {
		return
	}
	if _, err := c.router.Send(ctx, rgroup, wire.UnlockRequest{Ino: ino, LockID: lockID}); err != nil {
		log.Warn("coordinator: unlock of ino ", ino, " failed: ", err)
	}
}

// asErr turns a (response, error) pair into a plain error, collapsing
// a wire-level ErrorResponse into its errorcode.ErrorCode.
func asErr(resp wire.Response, err error) error {
	if err != nil {
		return err
	}
	if code, isErr := wire.AsError(resp); isErr {
		return code
	}
	return nil
}

// lookup resolves (parent, name) to the target's current attributes.
func (c *Coordinator) lookup(ctx context.Context, parent uint64, name string) (wire.Attrs, error) {
	resp, err := c.router.Send(ctx, c.router.RgroupOf(parent), wire.LookupRequest{Parent: parent, Name: name})
	if err != nil {
		return wire.Attrs{}, err
	}
	if code, isErr := wire.AsError(resp); isErr {
		return wire.Attrs{}, code
	}
	fm, ok := resp.(wire.FileMetadataResponse)
	if !ok {
		return wire.Attrs{}, errorcode.BadResponse
	}
	return fm.Attrs, nil
}

// getattr fetches the current attributes of ino.
func (c *Coordinator) getattr(ctx context.Context, ino uint64) (wire.Attrs, error) {
	resp, err := c.router.Send(ctx, c.router.RgroupOf(ino), wire.GetattrRequest{Ino: ino})
	if err != nil {
		return wire.Attrs{}, err
	}
	if code, isErr := wire.AsError(resp); isErr {
		return wire.Attrs{}, code
	}
	fm, ok := resp.(wire.FileMetadataResponse)
	if !ok {
		return wire.Attrs{}, errorcode.BadResponse
	}
	return fm.Attrs, nil
}

// decrementInode decrements ino's link count, fenced by a fresh
// coordinator-minted token so a retried propose of the same decrement
// cannot double-apply, per spec.md §9. Every fencing token this
// package hands out comes from the single counter in nextToken,
// deliberately never from a rgroup's lock_id: lock ids are minted
// independently by each rgroup's own lockTable and are not comparable
// across the different call sites that fence a given inode's
// decrements, so mixing the two namespaces could let an earlier,
// numerically larger lock_id mask a later, smaller one.
func (c *Coordinator) decrementInode(ctx context.Context, ino uint64, n uint32) error {
	rgroup := c.router.RgroupOf(ino)
	resp, err := c.router.Send(ctx, rgroup, wire.DecrementInodeRequest{Ino: ino, N: n, FencingToken: c.nextToken()})
	return asErr(resp, err)
}

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

package coordinator

import (
	"context"
	"sort"

	"github.com/cubefs/cubefs/blobstore/util/log"

	"github.com/fleetfs/fleetfs/errorcode"
	"github.com/fleetfs/fleetfs/wire"
)

type heldLock struct {
	ino    uint64
	rgroup uint16
	lockID uint64
}

// lockOrdered acquires locks on every distinct, nonzero inode in
// inos, in ascending (rgroup_id, inode) order, per spec.md §4.6.4
// step 1's deadlock-avoidance rule. On any failure it releases
// whatever it already holds before returning.
func (c *Coordinator) lockOrdered(ctx context.Context, inos ...uint64) ([]heldLock, error) {
	type target struct {
		ino    uint64
		rgroup uint16
	}
	seen := make(map[uint64]bool, len(inos))
	targets := make([]target, 0, len(inos))
	for _, ino := range inos {
		if ino == 0 || seen[ino] {
			continue
		}
		seen[ino] = true
		targets = append(targets, target{ino: ino, rgroup: c.router.RgroupOf(ino)})
	}
	sort.Slice(targets, func(i, j int) bool {
		if targets[i].rgroup != targets[j].rgroup {
			return targets[i].rgroup < targets[j].rgroup
		}
		return targets[i].ino < targets[j].ino
	})

	held := make([]heldLock, 0, len(targets))
	for _, t := range targets {
		lockID, rgroup, err := c.lock(ctx, t.ino)
		if err != nil {
			c.unlockAll(ctx, held)
			return nil, err
		}
		held = append(held, heldLock{ino: t.ino, rgroup: rgroup, lockID: lockID})
	}
	return held, nil
}

func (c *Coordinator) unlockAll(ctx context.Context, held []heldLock) {
	for _, h := range held {
		c.unlock(ctx, h.rgroup, h.ino, h.lockID)
	}
}

func lockIDFor(held []heldLock, ino uint64) *uint64 {
	for _, h := range held {
		if h.ino == ino {
			id := h.lockID
			return &id
		}
	}
	return nil
}

// Rename implements spec.md §4.6.4.
func (c *Coordinator) Rename(ctx context.Context, parent uint64, name string, newParent uint64, newName string) error {
	src, err := c.lookup(ctx, parent, name)
	if err != nil {
		return err
	}

	var dst wire.Attrs
	dstExists := false
	dst, err = c.lookup(ctx, newParent, newName)
	switch err {
	case nil:
		dstExists = true
	case errorcode.DoesNotExist:
		// no destination to replace
	default:
		return err
	}

	lockTargets := []uint64{src.Ino}
	if dstExists {
		lockTargets = append(lockTargets, dst.Ino)
	}
	held, err := c.lockOrdered(ctx, lockTargets...)
	if err != nil {
		return err
	}
	defer c.unlockAll(ctx, held)

	if dstExists && dst.Kind == wire.KindDirectory {
		resp, err := c.router.Send(ctx, c.router.RgroupOf(dst.Ino), wire.ReaddirRequest{Ino: dst.Ino})
		if err != nil {
			return err
		}
		if code, isErr := wire.AsError(resp); isErr {
			return code
		}
		listing, ok := resp.(wire.DirectoryListingResponse)
		if !ok {
			return errorcode.BadResponse
		}
		if len(listing.Entries) > 0 {
			return errorcode.NotEmpty
		}
	}

	samesParent := parent == newParent
	if samesParent && name == newName {
		return nil
	}

	if dstExists {
		linkErr := asErr(c.router.Send(ctx, c.router.RgroupOf(newParent), wire.ReplaceLinkRequest{
			Parent: newParent, Name: newName, NewIno: src.Ino, Kind: src.Kind,
		}))
		if linkErr != nil {
			return linkErr
		}
	} else {
		linkErr := asErr(c.router.Send(ctx, c.router.RgroupOf(newParent), wire.CreateLinkRequest{
			Parent: newParent, Name: newName, Ino: src.Ino, Kind: src.Kind,
		}))
		if linkErr != nil {
			return linkErr
		}
	}

	if removeErr := asErr(c.router.Send(ctx, c.router.RgroupOf(parent), wire.RemoveLinkRequest{
		Parent: parent, Name: name,
	})); removeErr != nil {
		// The new name is now reachable and the old one still is too;
		// per spec.md §9 this is the one rename failure mode left
		// unspecified. RemoveLinkRequest is retried up to three more
		// times while the locks are still held; if every retry fails,
		// both names stay reachable and Rename reports Uncategorized.
		for retries := 0; retries < 3 && removeErr != nil; retries++ {
			removeErr = asErr(c.router.Send(ctx, c.router.RgroupOf(parent), wire.RemoveLinkRequest{
				Parent: parent, Name: name,
			}))
		}
		if removeErr != nil {
			log.Warn("coordinator: rename could not remove old link ", name, " under parent ", parent, ": ", removeErr)
			return errorcode.Uncategorized
		}
	}

	if !samesParent && src.Kind == wire.KindDirectory {
		if err := asErr(c.router.Send(ctx, c.router.RgroupOf(src.Ino), wire.UpdateParentRequest{
			Ino: src.Ino, NewParent: newParent, LockID: lockIDFor(held, src.Ino),
		})); err != nil {
			log.Warn("coordinator: rename could not fix .. pointer for ino ", src.Ino, ": ", err)
			return errorcode.Uncategorized
		}
	}

	if dstExists {
		if err := c.decrementInode(ctx, dst.Ino, 1); err != nil {
			log.Warn("coordinator: rename could not decrement replaced ino ", dst.Ino, ": ", err)
		}
	}

	ctime := nowTimestamp()
	if _, err := c.router.Send(ctx, c.router.RgroupOf(src.Ino), wire.UpdateMetadataChangedTimeRequest{
		Ino: src.Ino, Ctime: ctime, LockID: lockIDFor(held, src.Ino),
	}); err != nil {
		log.Warn("coordinator: rename could not refresh ctime on ino ", src.Ino, ": ", err)
	}
	if _, err := c.router.Send(ctx, c.router.RgroupOf(parent), wire.UpdateMetadataChangedTimeRequest{
		Ino: parent, Ctime: ctime,
	}); err != nil {
		log.Warn("coordinator: rename could not refresh ctime on parent ", parent, ": ", err)
	}
	if !samesParent {
		if _, err := c.router.Send(ctx, c.router.RgroupOf(newParent), wire.UpdateMetadataChangedTimeRequest{
			Ino: newParent, Ctime: ctime,
		}); err != nil {
			log.Warn("coordinator: rename could not refresh ctime on new parent ", newParent, ": ", err)
		}
	}

	return nil
}

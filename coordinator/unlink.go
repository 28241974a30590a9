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

	"github.com/fleetfs/fleetfs/errorcode"
	"github.com/fleetfs/fleetfs/wire"
)

// Unlink implements spec.md §4.6.2.
func (c *Coordinator) Unlink(ctx context.Context, parent uint64, name string) error {
	return c.removeEntry(ctx, parent, name, false)
}

// Rmdir implements spec.md §4.6.2 with the additional empty-directory
// check required for a directory target.
func (c *Coordinator) Rmdir(ctx context.Context, parent uint64, name string) error {
	return c.removeEntry(ctx, parent, name, true)
}

func (c *Coordinator) removeEntry(ctx context.Context, parent uint64, name string, requireEmptyDir bool) error {
	attrs, err := c.lookup(ctx, parent, name)
	if err != nil {
		return err
	}
	target := attrs.Ino

	lockID, targetRgroup, err := c.lock(ctx, target)
	if err != nil {
		return err
	}
	defer c.unlock(ctx, targetRgroup, target, lockID)

	if requireEmptyDir {
		resp, err := c.router.Send(ctx, targetRgroup, wire.ReaddirRequest{Ino: target})
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

	removeResp, err := c.router.Send(ctx, c.router.RgroupOf(parent), wire.RemoveLinkRequest{Parent: parent, Name: name})
	if err != nil {
		return err
	}
	if code, isErr := wire.AsError(removeResp); isErr {
		return code
	}
	removed, ok := removeResp.(wire.RemoveLinkResponse)
	if !ok {
		return errorcode.BadResponse
	}

	// removed.Ino should equal target, but a concurrent rename of the
	// same name could have swapped it underneath us between lookup
	// and remove; decrement whichever inode the removal actually
	// pointed at, not the one we locked.
	return c.decrementInode(ctx, removed.Ino, 1)
}

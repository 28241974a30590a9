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

	"github.com/cubefs/cubefs/blobstore/util/log"

	"github.com/fleetfs/fleetfs/errorcode"
	"github.com/fleetfs/fleetfs/wire"
)

// Create implements spec.md §4.6.1 for a regular file.
func (c *Coordinator) Create(ctx context.Context, parent uint64, name string, mode, uid, gid uint32) (wire.Attrs, error) {
	return c.createEntry(ctx, parent, name, mode, uid, gid, wire.KindFile, 0)
}

// Mkdir implements spec.md §4.6.1 for a directory; the new inode
// starts with link_count = 2, accounting for its own ".".
func (c *Coordinator) Mkdir(ctx context.Context, parent uint64, name string, mode, uid, gid uint32) (wire.Attrs, error) {
	return c.createEntry(ctx, parent, name, mode, uid, gid, wire.KindDirectory, 0)
}

// Mknod creates a device-special inode, used by the facade's mknod
// call; kind must be KindFile (the wire protocol has no device kind
// of its own, so rdev alone distinguishes a device node).
func (c *Coordinator) Mknod(ctx context.Context, parent uint64, name string, mode, uid, gid, rdev uint32) (wire.Attrs, error) {
	return c.createEntry(ctx, parent, name, mode, uid, gid, wire.KindFile, rdev)
}

func (c *Coordinator) createEntry(ctx context.Context, parent uint64, name string, mode, uid, gid uint32, kind wire.InodeKind, rdev uint32) (wire.Attrs, error) {
	inoRgroup := c.pickRgroup()
	resp, err := c.router.Send(ctx, inoRgroup, wire.CreateInodeRequest{Mode: mode, Uid: uid, Gid: gid, Kind: kind, Rdev: rdev})
	if err != nil {
		return wire.Attrs{}, err
	}
	if code, isErr := wire.AsError(resp); isErr {
		return wire.Attrs{}, code
	}
	ir, ok := resp.(wire.InodeResponse)
	if !ok {
		return wire.Attrs{}, errorcode.BadResponse
	}
	attrs := ir.Attrs

	linkErr := asErr(c.router.Send(ctx, c.router.RgroupOf(parent), wire.CreateLinkRequest{
		Parent: parent,
		Name:   name,
		Ino:    attrs.Ino,
		Kind:   kind,
	}))
	if linkErr != nil {
		// The inode never became reachable from any directory;
		// garbage-collect it to zero, per spec.md §4.6.1 step 3.
		if gcErr := c.decrementInode(ctx, attrs.Ino, attrs.HardLinks); gcErr != nil {
			log.Warn("coordinator: orphan gc for ino ", attrs.Ino, " failed: ", gcErr)
		}
		return wire.Attrs{}, linkErr
	}
	return attrs, nil
}

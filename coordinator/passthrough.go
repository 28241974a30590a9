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

// The calls in this file need no multi-rgroup sequencing: each one
// maps to exactly one wire request against the inode (or parent)
// that already owns all the state it touches. They exist on
// Coordinator rather than being issued straight from package facade
// so every client-side call funnels through one Router and one place
// to add cross-cutting behavior (required_commit tracking, retries)
// later.

// Getattr exposes the single-rgroup attribute lookup the multi-step
// sequences above already use internally.
func (c *Coordinator) Getattr(ctx context.Context, ino uint64) (wire.Attrs, error) {
	return c.getattr(ctx, ino)
}

// Lookup exposes the single-rgroup (parent, name) resolution the
// multi-step sequences above already use internally.
func (c *Coordinator) Lookup(ctx context.Context, parent uint64, name string) (wire.Attrs, error) {
	return c.lookup(ctx, parent, name)
}

func (c *Coordinator) Readdir(ctx context.Context, ino uint64) ([]wire.DirEntry, error) {
	resp, err := c.router.Send(ctx, c.router.RgroupOf(ino), wire.ReaddirRequest{Ino: ino})
	if err != nil {
		return nil, err
	}
	if code, isErr := wire.AsError(resp); isErr {
		return nil, code
	}
	listing, ok := resp.(wire.DirectoryListingResponse)
	if !ok {
		return nil, errorcode.BadResponse
	}
	return listing.Entries, nil
}

func (c *Coordinator) Read(ctx context.Context, ino, offset uint64, size uint32) ([]byte, error) {
	resp, err := c.router.Send(ctx, c.router.RgroupOf(ino), wire.ReadRequest{Ino: ino, Offset: offset, ReadSize: size})
	if err != nil {
		return nil, err
	}
	if code, isErr := wire.AsError(resp); isErr {
		return nil, code
	}
	rr, ok := resp.(wire.ReadResponse)
	if !ok {
		return nil, errorcode.BadResponse
	}
	return rr.Data, nil
}

func (c *Coordinator) Write(ctx context.Context, ino, offset uint64, data []byte) (uint32, error) {
	resp, err := c.router.Send(ctx, c.router.RgroupOf(ino), wire.WriteRequest{Ino: ino, Offset: offset, Data: data})
	if err != nil {
		return 0, err
	}
	if code, isErr := wire.AsError(resp); isErr {
		return 0, code
	}
	wr, ok := resp.(wire.WrittenResponse)
	if !ok {
		return 0, errorcode.BadResponse
	}
	return wr.BytesWritten, nil
}

func (c *Coordinator) Truncate(ctx context.Context, ino, newLen uint64) error {
	return asErr(c.router.Send(ctx, c.router.RgroupOf(ino), wire.TruncateRequest{Ino: ino, NewLen: newLen}))
}

func (c *Coordinator) Fsync(ctx context.Context, ino uint64) error {
	return asErr(c.router.Send(ctx, c.router.RgroupOf(ino), wire.FsyncRequest{Ino: ino}))
}

func (c *Coordinator) Chmod(ctx context.Context, ino uint64, mode uint32) error {
	return asErr(c.router.Send(ctx, c.router.RgroupOf(ino), wire.ChmodRequest{Ino: ino, Mode: mode}))
}

func (c *Coordinator) Chown(ctx context.Context, ino uint64, uid, gid *uint32) error {
	return asErr(c.router.Send(ctx, c.router.RgroupOf(ino), wire.ChownRequest{Ino: ino, Uid: uid, Gid: gid}))
}

func (c *Coordinator) Utimens(ctx context.Context, ino uint64, atime, mtime *wire.Timestamp) error {
	return asErr(c.router.Send(ctx, c.router.RgroupOf(ino), wire.UtimensRequest{Ino: ino, Atime: atime, Mtime: mtime}))
}

func (c *Coordinator) GetXattr(ctx context.Context, ino uint64, key string) ([]byte, error) {
	resp, err := c.router.Send(ctx, c.router.RgroupOf(ino), wire.GetXattrRequest{Ino: ino, Key: key})
	if err != nil {
		return nil, err
	}
	if code, isErr := wire.AsError(resp); isErr {
		return nil, code
	}
	xr, ok := resp.(wire.XattrsResponse)
	if !ok || len(xr.Entries) == 0 {
		return nil, errorcode.BadResponse
	}
	return xr.Entries[0].Value, nil
}

func (c *Coordinator) ListXattrs(ctx context.Context, ino uint64) ([]string, error) {
	resp, err := c.router.Send(ctx, c.router.RgroupOf(ino), wire.ListXattrsRequest{Ino: ino})
	if err != nil {
		return nil, err
	}
	if code, isErr := wire.AsError(resp); isErr {
		return nil, code
	}
	xr, ok := resp.(wire.XattrsResponse)
	if !ok {
		return nil, errorcode.BadResponse
	}
	keys := make([]string, len(xr.Entries))
	for i, e := range xr.Entries {
		keys[i] = e.Key
	}
	return keys, nil
}

func (c *Coordinator) SetXattr(ctx context.Context, ino uint64, key string, value []byte, uid uint32) error {
	return asErr(c.router.Send(ctx, c.router.RgroupOf(ino), wire.SetXattrRequest{Ino: ino, Key: key, Value: value, Uid: uid}))
}

func (c *Coordinator) RemoveXattr(ctx context.Context, ino uint64, key string, uid uint32) error {
	return asErr(c.router.Send(ctx, c.router.RgroupOf(ino), wire.RemoveXattrRequest{Ino: ino, Key: key, Uid: uid}))
}

// Statfs answers a filesystem-wide information query; any rgroup can
// answer it since block size and name length are cluster-wide
// constants, per rgroup.Serve's FilesystemInformationRequest handler.
func (c *Coordinator) Statfs(ctx context.Context) (wire.FilesystemInformationResponse, error) {
	resp, err := c.router.Send(ctx, 0, wire.FilesystemInformationRequest{})
	if err != nil {
		return wire.FilesystemInformationResponse{}, err
	}
	if code, isErr := wire.AsError(resp); isErr {
		return wire.FilesystemInformationResponse{}, code
	}
	fi, ok := resp.(wire.FilesystemInformationResponse)
	if !ok {
		return wire.FilesystemInformationResponse{}, errorcode.BadResponse
	}
	return fi, nil
}

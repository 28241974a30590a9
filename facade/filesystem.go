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

package facade

import (
	"context"

	"github.com/fleetfs/fleetfs/coordinator"
	"github.com/fleetfs/fleetfs/wire"
)

// Filesystem is the one POSIX-shaped entry point a kernel bridge
// (FUSE, NFS, 9P, whatever userspace glue a platform needs) drives.
// Every method here except Link (see its comment) does exactly one
// coordinator call, and every method converts its error with Errno; there is no retry or caching policy of its
// own, both already live below the coordinator in the router.
type Filesystem struct {
	coordinator *coordinator.Coordinator
}

func New(c *coordinator.Coordinator) *Filesystem {
	return &Filesystem{coordinator: c}
}

func (fs *Filesystem) Getattr(ctx context.Context, ino uint64) (wire.Attrs, error) {
	attrs, err := fs.coordinator.Getattr(ctx, ino)
	return attrs, Errno(err)
}

func (fs *Filesystem) Lookup(ctx context.Context, parent uint64, name string) (wire.Attrs, error) {
	attrs, err := fs.coordinator.Lookup(ctx, parent, name)
	return attrs, Errno(err)
}

func (fs *Filesystem) Read(ctx context.Context, ino, offset uint64, size uint32) ([]byte, error) {
	data, err := fs.coordinator.Read(ctx, ino, offset, size)
	return data, Errno(err)
}

func (fs *Filesystem) Write(ctx context.Context, ino, offset uint64, data []byte) (uint32, error) {
	n, err := fs.coordinator.Write(ctx, ino, offset, data)
	return n, Errno(err)
}

func (fs *Filesystem) Create(ctx context.Context, parent uint64, name string, mode, uid, gid uint32) (wire.Attrs, error) {
	attrs, err := fs.coordinator.Create(ctx, parent, name, mode, uid, gid)
	return attrs, Errno(err)
}

func (fs *Filesystem) Mkdir(ctx context.Context, parent uint64, name string, mode, uid, gid uint32) (wire.Attrs, error) {
	attrs, err := fs.coordinator.Mkdir(ctx, parent, name, mode, uid, gid)
	return attrs, Errno(err)
}

func (fs *Filesystem) Mknod(ctx context.Context, parent uint64, name string, mode, uid, gid, rdev uint32) (wire.Attrs, error) {
	attrs, err := fs.coordinator.Mknod(ctx, parent, name, mode, uid, gid, rdev)
	return attrs, Errno(err)
}

func (fs *Filesystem) Unlink(ctx context.Context, parent uint64, name string) error {
	return Errno(fs.coordinator.Unlink(ctx, parent, name))
}

func (fs *Filesystem) Rmdir(ctx context.Context, parent uint64, name string) error {
	return Errno(fs.coordinator.Rmdir(ctx, parent, name))
}

func (fs *Filesystem) Rename(ctx context.Context, parent uint64, name string, newParent uint64, newName string) error {
	return Errno(fs.coordinator.Rename(ctx, parent, name, newParent, newName))
}

// Link is the POSIX "link" syscall: it creates (newParent, newName)
// pointing at the existing inode ino. It needs ino's kind before it
// can drive the hardlink sequence, so it looks the inode up first.
func (fs *Filesystem) Link(ctx context.Context, ino, newParent uint64, newName string) (wire.Attrs, error) {
	existing, err := fs.coordinator.Getattr(ctx, ino)
	if err != nil {
		return wire.Attrs{}, Errno(err)
	}
	attrs, err := fs.coordinator.Hardlink(ctx, ino, newParent, newName, existing.Kind)
	return attrs, Errno(err)
}

func (fs *Filesystem) Chmod(ctx context.Context, ino uint64, mode uint32) error {
	return Errno(fs.coordinator.Chmod(ctx, ino, mode))
}

func (fs *Filesystem) Chown(ctx context.Context, ino uint64, uid, gid *uint32) error {
	return Errno(fs.coordinator.Chown(ctx, ino, uid, gid))
}

func (fs *Filesystem) Utimens(ctx context.Context, ino uint64, atime, mtime *wire.Timestamp) error {
	return Errno(fs.coordinator.Utimens(ctx, ino, atime, mtime))
}

func (fs *Filesystem) Truncate(ctx context.Context, ino, newLen uint64) error {
	return Errno(fs.coordinator.Truncate(ctx, ino, newLen))
}

func (fs *Filesystem) Readdir(ctx context.Context, ino uint64) ([]wire.DirEntry, error) {
	entries, err := fs.coordinator.Readdir(ctx, ino)
	return entries, Errno(err)
}

func (fs *Filesystem) Fsync(ctx context.Context, ino uint64) error {
	return Errno(fs.coordinator.Fsync(ctx, ino))
}

func (fs *Filesystem) GetXattr(ctx context.Context, ino uint64, key string) ([]byte, error) {
	value, err := fs.coordinator.GetXattr(ctx, ino, key)
	return value, Errno(err)
}

func (fs *Filesystem) SetXattr(ctx context.Context, ino uint64, key string, value []byte, uid uint32) error {
	return Errno(fs.coordinator.SetXattr(ctx, ino, key, value, uid))
}

func (fs *Filesystem) ListXattrs(ctx context.Context, ino uint64) ([]string, error) {
	keys, err := fs.coordinator.ListXattrs(ctx, ino)
	return keys, Errno(err)
}

func (fs *Filesystem) RemoveXattr(ctx context.Context, ino uint64, key string, uid uint32) error {
	return Errno(fs.coordinator.RemoveXattr(ctx, ino, key, uid))
}

func (fs *Filesystem) Statfs(ctx context.Context) (wire.FilesystemInformationResponse, error) {
	info, err := fs.coordinator.Statfs(ctx)
	return info, Errno(err)
}

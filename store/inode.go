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
	"context"

	"github.com/cubefs/cubefs/blobstore/util/errors"

	"github.com/fleetfs/fleetfs/common/kvstore"
	"github.com/fleetfs/fleetfs/errorcode"
	"github.com/fleetfs/fleetfs/wire"
)

// GetAttrs returns the current attribute record for ino.
func (s *Store) GetAttrs(ctx context.Context, ino uint64) (wire.Attrs, error) {
	raw, err := s.getRaw(ctx, attrCF, attrKey(ino))
	if err != nil {
		if err == errorcode.DoesNotExist {
			return wire.Attrs{}, errorcode.InodeDoesNotExist
		}
		return wire.Attrs{}, err
	}
	return wire.DecodeAttrs(wire.NewDecoder(raw)), nil
}

func (s *Store) putAttrs(ctx context.Context, a wire.Attrs) error {
	e := wire.NewEncoder(96)
	a.Encode(e)
	if err := s.kv.SetRaw(ctx, kvstore.CF(attrCF), attrKey(a.Ino), e.Bytes(), nil); err != nil {
		return errors.Info(err, "put attrs").Detail(err)
	}
	return nil
}

// SetAttrsPartial applies a patch that never touches link count or
// size, per spec.md §4.2.
func (s *Store) SetAttrsPartial(ctx context.Context, ino uint64, patch wire.AttrsPatch, ctime wire.Timestamp) (wire.Attrs, error) {
	attrs, err := s.GetAttrs(ctx, ino)
	if err != nil {
		return wire.Attrs{}, err
	}
	if patch.Mode != nil {
		attrs.Mode = uint16(*patch.Mode)
	}
	if patch.Uid != nil {
		attrs.Uid = *patch.Uid
	}
	if patch.Gid != nil {
		attrs.Gid = *patch.Gid
	}
	if patch.Atime != nil {
		attrs.Atime = *patch.Atime
	}
	if patch.Mtime != nil {
		attrs.Mtime = *patch.Mtime
	}
	if patch.Ctime != nil {
		attrs.Ctime = *patch.Ctime
	} else {
		attrs.Ctime = ctime
	}
	if err := s.putAttrs(ctx, attrs); err != nil {
		return wire.Attrs{}, err
	}
	return attrs, nil
}

// CreateInode allocates a fresh inode id owned by rgroup ownRgroup (an
// id i such that i % numRgroups == ownRgroup, so the router's
// hash(i) mod numRgroups always resolves back to this rgroup without
// a separate placement lookup) and stores its initial attributes.
func (s *Store) CreateInode(ctx context.Context, ownRgroup, numRgroups uint16, kind wire.InodeKind, mode, uid, gid, rdev uint32, now wire.Timestamp) (wire.Attrs, error) {
	ino, err := s.nextIno(ctx, ownRgroup, numRgroups)
	if err != nil {
		return wire.Attrs{}, err
	}

	hardLinks := uint32(1)
	if kind == wire.KindDirectory {
		hardLinks = 2
	}
	attrs := wire.Attrs{
		Ino: ino, Kind: kind, Mode: uint16(mode), Uid: uid, Gid: gid,
		Atime: now, Mtime: now, Ctime: now, HardLinks: hardLinks, Rdev: rdev,
	}
	if err := s.putAttrs(ctx, attrs); err != nil {
		return wire.Attrs{}, err
	}
	return attrs, nil
}

func (s *Store) nextIno(ctx context.Context, ownRgroup, numRgroups uint16) (uint64, error) {
	raw, err := s.kv.GetRaw(ctx, kvstore.CF(metaCF), inoCursorKey, nil)
	var cursor uint64
	if err == nil {
		cursor = decodeUint64(raw)
	} else if err != kvstore.ErrNotFound {
		return 0, errors.Info(err, "read ino cursor").Detail(err)
	}

	for {
		cursor++
		ino := cursor*uint64(numRgroups) + uint64(ownRgroup)
		if ino == wire.RootIno {
			continue
		}
		buf := make([]byte, 8)
		encodeUint64(cursor, buf)
		if err := s.kv.SetRaw(ctx, kvstore.CF(metaCF), inoCursorKey, buf, nil); err != nil {
			return 0, errors.Info(err, "advance ino cursor").Detail(err)
		}
		return ino, nil
	}
}

// IncrementLinks adds n to ino's hard-link count, stamping ctime.
func (s *Store) IncrementLinks(ctx context.Context, ino uint64, n uint32, ctime wire.Timestamp) (wire.Attrs, error) {
	attrs, err := s.GetAttrs(ctx, ino)
	if err != nil {
		return wire.Attrs{}, err
	}
	prevCtime := attrs.Ctime
	attrs.HardLinks += n
	attrs.Ctime = ctime
	if err := s.putAttrs(ctx, attrs); err != nil {
		return wire.Attrs{}, err
	}
	attrs.Ctime = prevCtime // HardlinkTransactionResponse wants the pre-increment ctime for rollback
	return attrs, nil
}

// DecrementLinks reduces ino's hard-link count by n, deleting the
// inode and its data/xattrs once it reaches zero. This primitive is
// not idempotent per spec.md §9 — callers must supply a fencing token
// the apply loop dedups against (see rgroup's applyDecrementInode).
func (s *Store) DecrementLinks(ctx context.Context, ino uint64, n uint32) error {
	attrs, err := s.GetAttrs(ctx, ino)
	if err != nil {
		return err
	}
	if n > attrs.HardLinks {
		attrs.HardLinks = 0
	} else {
		attrs.HardLinks -= n
	}
	if attrs.HardLinks > 0 {
		return s.putAttrs(ctx, attrs)
	}
	return s.deleteInode(ctx, ino)
}

func (s *Store) deleteInode(ctx context.Context, ino uint64) error {
	batch := s.kv.NewWriteBatch()
	defer batch.Close()
	batch.Delete(kvstore.CF(attrCF), attrKey(ino))

	if err := s.clearXattrs(ctx, ino, batch); err != nil {
		return err
	}
	if err := s.clearData(ctx, ino, batch); err != nil {
		return err
	}
	if err := s.kv.Write(ctx, batch, nil); err != nil {
		return errors.Info(err, "delete inode").Detail(err)
	}
	return nil
}

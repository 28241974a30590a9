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

type dirent struct {
	ino  uint64
	kind wire.InodeKind
}

func (d dirent) encode() []byte {
	e := wire.NewEncoder(9)
	e.PutUint64(d.ino)
	e.PutUint8(uint8(d.kind))
	return e.Bytes()
}

func decodeDirent(raw []byte) dirent {
	d := wire.NewDecoder(raw)
	return dirent{ino: d.Uint64(), kind: wire.InodeKind(d.Uint8())}
}

// Lookup resolves one directory entry by name.
func (s *Store) Lookup(ctx context.Context, parent uint64, name string) (ino uint64, kind wire.InodeKind, err error) {
	raw, err := s.getRaw(ctx, direntCF, direntKey(parent, name))
	if err != nil {
		if err == errorcode.DoesNotExist {
			return 0, 0, errorcode.DoesNotExist
		}
		return 0, 0, err
	}
	d := decodeDirent(raw)
	return d.ino, d.kind, nil
}

// ListDir returns every entry of parent, in key order.
func (s *Store) ListDir(ctx context.Context, parent uint64) ([]wire.DirEntry, error) {
	prefix := direntKeyPrefix(parent)
	lr := s.kv.List(ctx, kvstore.CF(direntCF), prefix, prefix, nil)
	defer lr.Close()

	var entries []wire.DirEntry
	for {
		kg, vg, err := lr.ReadNext()
		if err != nil {
			return nil, errors.Info(err, "list directory").Detail(err)
		}
		if kg == nil || vg == nil {
			break
		}
		d := decodeDirent(vg.Value())
		entries = append(entries, wire.DirEntry{
			Name: direntName(parent, kg.Key()),
			Ino:  d.ino,
			Kind: d.kind,
		})
		kg.Close()
		vg.Close()
	}
	return entries, nil
}

// maxNameLength bounds a directory entry's name, per spec.md §3: names
// are bounded to 255 bytes, no NUL, no '/'.
const maxNameLength = 255

func validName(name string) error {
	if len(name) == 0 || len(name) > maxNameLength {
		return errorcode.NameTooLong
	}
	for i := 0; i < len(name); i++ {
		if name[i] == 0 || name[i] == '/' {
			return errorcode.BadRequest
		}
	}
	return nil
}

// CreateLink adds a new directory entry. It fails AlreadyExists if
// name is already taken, per spec.md §8's idempotence rule, and
// NameTooLong if name exceeds 255 bytes.
func (s *Store) CreateLink(ctx context.Context, parent uint64, name string, ino uint64, kind wire.InodeKind) error {
	if err := validName(name); err != nil {
		return err
	}
	key := direntKey(parent, name)
	if _, err := s.kv.GetRaw(ctx, kvstore.CF(direntCF), key, nil); err == nil {
		return errorcode.AlreadyExists
	} else if err != kvstore.ErrNotFound {
		return errors.Info(err, "check existing dirent").Detail(err)
	}

	d := dirent{ino: ino, kind: kind}
	if err := s.kv.SetRaw(ctx, kvstore.CF(direntCF), key, d.encode(), nil); err != nil {
		return errors.Info(err, "create link").Detail(err)
	}
	return nil
}

// ReplaceLink atomically swaps an existing directory entry for a new
// target, reporting the inode it previously pointed at so the
// coordinator can decrement it; DoesNotExist if there was no entry to
// replace (use CreateLink for that case instead). Used by rename's
// destination step.
func (s *Store) ReplaceLink(ctx context.Context, parent uint64, name string, newIno uint64, kind wire.InodeKind) (oldIno uint64, err error) {
	if err := validName(name); err != nil {
		return 0, err
	}
	key := direntKey(parent, name)
	raw, err := s.getRaw(ctx, direntCF, key)
	if err != nil {
		return 0, err
	}
	old := decodeDirent(raw)

	d := dirent{ino: newIno, kind: kind}
	if err := s.kv.SetRaw(ctx, kvstore.CF(direntCF), key, d.encode(), nil); err != nil {
		return 0, errors.Info(err, "replace link").Detail(err)
	}
	return old.ino, nil
}

// RemoveLink deletes a directory entry and reports which inode it
// pointed at so the caller can pair the removal with a decrement.
func (s *Store) RemoveLink(ctx context.Context, parent uint64, name string) (ino uint64, err error) {
	key := direntKey(parent, name)
	raw, err := s.getRaw(ctx, direntCF, key)
	if err != nil {
		return 0, err
	}
	d := decodeDirent(raw)
	if err := s.kv.Delete(ctx, kvstore.CF(direntCF), key, nil); err != nil {
		return 0, errors.Info(err, "remove link").Detail(err)
	}
	return d.ino, nil
}

// IsDirEmpty reports whether parent's directory has no entries other
// than the implicit "." and "..", used by rmdir's under-lock check.
func (s *Store) IsDirEmpty(ctx context.Context, parent uint64) (bool, error) {
	entries, err := s.ListDir(ctx, parent)
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}

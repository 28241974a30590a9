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
)

// GetXattr returns the value stored under key on ino.
func (s *Store) GetXattr(ctx context.Context, ino uint64, key string) ([]byte, error) {
	raw, err := s.getRaw(ctx, xattrCF, xattrKey(ino, key))
	if err != nil {
		if err == errorcode.DoesNotExist {
			return nil, errorcode.MissingXattrKey
		}
		return nil, err
	}
	return raw, nil
}

// ListXattrs returns every xattr key set on ino, without values.
func (s *Store) ListXattrs(ctx context.Context, ino uint64) ([]string, error) {
	prefix := xattrKeyPrefix(ino)
	lr := s.kv.List(ctx, kvstore.CF(xattrCF), prefix, prefix, nil)
	defer lr.Close()

	var keys []string
	for {
		kg, vg, err := lr.ReadNext()
		if err != nil {
			return nil, errors.Info(err, "list xattrs").Detail(err)
		}
		if kg == nil || vg == nil {
			break
		}
		keys = append(keys, xattrName(ino, kg.Key()))
		kg.Close()
		vg.Close()
	}
	return keys, nil
}

// SetXattr creates or overwrites one xattr entry.
func (s *Store) SetXattr(ctx context.Context, ino uint64, key string, value []byte) error {
	if err := s.kv.SetRaw(ctx, kvstore.CF(xattrCF), xattrKey(ino, key), value, nil); err != nil {
		return errors.Info(err, "set xattr").Detail(err)
	}
	return nil
}

// RemoveXattr deletes one xattr entry, failing MissingXattrKey if it
// was never set.
func (s *Store) RemoveXattr(ctx context.Context, ino uint64, key string) error {
	k := xattrKey(ino, key)
	if _, err := s.kv.GetRaw(ctx, kvstore.CF(xattrCF), k, nil); err != nil {
		if err == kvstore.ErrNotFound {
			return errorcode.MissingXattrKey
		}
		return errors.Info(err, "check xattr").Detail(err)
	}
	if err := s.kv.Delete(ctx, kvstore.CF(xattrCF), k, nil); err != nil {
		return errors.Info(err, "remove xattr").Detail(err)
	}
	return nil
}

// clearXattrs stages deletion of every xattr belonging to ino into
// batch, used when the inode itself is being destroyed.
func (s *Store) clearXattrs(ctx context.Context, ino uint64, batch kvstore.WriteBatch) error {
	prefix := xattrKeyPrefix(ino)
	lr := s.kv.List(ctx, kvstore.CF(xattrCF), prefix, prefix, nil)
	defer lr.Close()

	for {
		kg, vg, err := lr.ReadNext()
		if err != nil {
			return errors.Info(err, "scan xattrs for delete").Detail(err)
		}
		if kg == nil || vg == nil {
			break
		}
		key := append([]byte(nil), kg.Key()...)
		batch.Delete(kvstore.CF(xattrCF), key)
		kg.Close()
		vg.Close()
	}
	return nil
}

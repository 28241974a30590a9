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

// Package store implements the per-rgroup local inode store: inode
// attributes, directory listings, extended attributes, sparse file
// data, and an in-memory advisory lock table, all addressed by keys
// scoped to one rgroup's own column families. Everything here is
// meant to be called only from that rgroup's single apply goroutine,
// except the read-only accessors, which may run concurrently with it
// and therefore never mutate.
package store

import (
	"context"

	"github.com/cubefs/cubefs/blobstore/util/errors"

	"github.com/fleetfs/fleetfs/common/kvstore"
	"github.com/fleetfs/fleetfs/errorcode"
)

// Config mirrors the teacher's per-shard store config: one physical
// KV engine rooted at Path, with FleetFS's own column families
// layered on top of the caller-supplied tuning knobs.
type Config struct {
	Path     string         `json:"path"`
	KVOption kvstore.Option `json:"kv_option"`
}

// Store is the local inode store for a single rgroup.
type Store struct {
	kv kvstore.Store

	locks *lockTable
}

func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	opt := cfg.KVOption
	opt.CreateIfMissing = true
	opt.ColumnFamily = append(opt.ColumnFamily, columnFamiliesOf(allColumnFamilies)...)

	kv, err := kvstore.NewKVStore(ctx, cfg.Path, kvstore.RocksdbLsmKVType, &opt)
	if err != nil {
		return nil, errors.Info(err, "open local inode store").Detail(err)
	}

	return &Store{kv: kv, locks: newLockTable()}, nil
}

func columnFamiliesOf(names []string) []kvstore.CF {
	cfs := make([]kvstore.CF, len(names))
	for i, n := range names {
		cfs[i] = kvstore.CF(n)
	}
	return cfs
}

func (s *Store) KVStore() kvstore.Store { return s.kv }

func (s *Store) Close() { s.kv.Close() }

// getRaw wraps kvstore's ErrNotFound into the wire-level DoesNotExist
// code so every business method can propagate a plain error.
func (s *Store) getRaw(ctx context.Context, col string, key []byte) ([]byte, error) {
	v, err := s.kv.GetRaw(ctx, kvstore.CF(col), key, nil)
	if err == kvstore.ErrNotFound {
		return nil, errorcode.DoesNotExist
	}
	if err != nil {
		return nil, errors.Info(err, "store get").Detail(err)
	}
	return v, nil
}

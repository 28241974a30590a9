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
	"github.com/fleetfs/fleetfs/wire"
)

// ExportSnapshot serializes every column family this rgroup owns into
// one flat buffer, consumed by consensus.Applier.Snapshot when a slow
// follower or a freshly joined replica needs a full catch-up rather
// than a log replay. The ino cursor and other meta-CF bookkeeping
// travel along with attrs/dirents/xattrs/data so a restored replica
// resumes allocating inodes exactly where the snapshotted one left
// off.
func (s *Store) ExportSnapshot(ctx context.Context) ([]byte, error) {
	e := wire.NewEncoder(4096)

	for _, cf := range allColumnFamilies {
		pairs, err := s.scanAll(ctx, cf)
		if err != nil {
			return nil, err
		}
		e.PutString(cf)
		e.PutUint64(uint64(len(pairs)))
		for _, p := range pairs {
			e.PutBytes(p.key)
			e.PutBytes(p.value)
		}
	}
	return e.Bytes(), nil
}

// ImportSnapshot replaces this rgroup's entire keyspace with a dump
// produced by ExportSnapshot, used when consensus.Applier.ApplySnapshot
// receives one over a membership catch-up.
func (s *Store) ImportSnapshot(ctx context.Context, data []byte) error {
	d := wire.NewDecoder(data)

	batch := s.kv.NewWriteBatch()
	defer batch.Close()

	for _, cf := range allColumnFamilies {
		if err := s.clearColumn(ctx, cf, batch); err != nil {
			return err
		}
	}

	for _, cf := range allColumnFamilies {
		name := d.String()
		if d.Err() != nil {
			return errors.Info(d.Err(), "decode snapshot column name").Detail(d.Err())
		}
		if name != cf {
			return errors.New("snapshot column order mismatch: expected " + cf + " got " + name)
		}
		count := d.Uint64()
		for i := uint64(0); i < count; i++ {
			key := d.Bytes()
			value := d.Bytes()
			if d.Err() != nil {
				return errors.Info(d.Err(), "decode snapshot entry").Detail(d.Err())
			}
			batch.Put(kvstore.CF(cf), key, value)
		}
	}

	if err := s.kv.Write(ctx, batch, nil); err != nil {
		return errors.Info(err, "apply snapshot batch").Detail(err)
	}
	return nil
}

type kvPair struct {
	key   []byte
	value []byte
}

func (s *Store) scanAll(ctx context.Context, cf string) ([]kvPair, error) {
	lr := s.kv.List(ctx, kvstore.CF(cf), nil, nil, nil)
	defer lr.Close()

	var pairs []kvPair
	for {
		kg, vg, err := lr.ReadNext()
		if err != nil {
			return nil, errors.Info(err, "scan column for snapshot").Detail(err)
		}
		if kg == nil || vg == nil {
			break
		}
		pairs = append(pairs, kvPair{
			key:   append([]byte(nil), kg.Key()...),
			value: append([]byte(nil), vg.Value()...),
		})
		kg.Close()
		vg.Close()
	}
	return pairs, nil
}

func (s *Store) clearColumn(ctx context.Context, cf string, batch kvstore.WriteBatch) error {
	lr := s.kv.List(ctx, kvstore.CF(cf), nil, nil, nil)
	defer lr.Close()

	for {
		kg, vg, err := lr.ReadNext()
		if err != nil {
			return errors.Info(err, "scan column for clear").Detail(err)
		}
		if kg == nil || vg == nil {
			break
		}
		batch.Delete(kvstore.CF(cf), append([]byte(nil), kg.Key()...))
		kg.Close()
		vg.Close()
	}
	return nil
}

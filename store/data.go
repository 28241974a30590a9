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
	"math"

	"github.com/cubefs/cubefs/blobstore/util/errors"

	"github.com/fleetfs/fleetfs/common/kvstore"
	"github.com/fleetfs/fleetfs/errorcode"
	"github.com/fleetfs/fleetfs/wire"
)

// blockSize is the fixed unit file data is chunked into on disk. It
// is also reported to clients via FilesystemInformationResponse.
const blockSize = 4096

// maxFileSize bounds the highest byte offset a write may reach,
// per spec.md §8's boundary case ("write at offset 2^63-1 rejected").
// Since size is stored as a uint64, math.MaxInt64 is the last offset
// that still leaves offset+len(data) representable without wrapping.
const maxFileSize = uint64(math.MaxInt64)

// Read assembles up to readSize bytes starting at offset out of
// ino's data blocks, zero-filling any hole (sparse regions read as
// zeros, matching POSIX semantics for unwritten ranges).
func (s *Store) Read(ctx context.Context, ino, offset uint64, readSize uint32) ([]byte, error) {
	attrs, err := s.GetAttrs(ctx, ino)
	if err != nil {
		return nil, err
	}
	if offset >= attrs.Size {
		return nil, nil
	}
	if uint64(readSize) > attrs.Size-offset {
		readSize = uint32(attrs.Size - offset)
	}

	out := make([]byte, readSize)
	end := offset + uint64(readSize)
	for pos := offset; pos < end; {
		block := pos / blockSize
		blockOff := pos % blockSize
		n := blockSize - blockOff
		if pos+n > end {
			n = end - pos
		}

		raw, err := s.kv.GetRaw(ctx, kvstore.CF(dataCF), dataBlockKey(ino, block), nil)
		if err == nil {
			copy(out[pos-offset:], raw[blockOff:minU64(uint64(len(raw)), blockOff+n)])
		} else if err != kvstore.ErrNotFound {
			return nil, errors.Info(err, "read data block").Detail(err)
		}
		pos += n
	}
	return out, nil
}

// Write stores data at offset, extending ino's size and growing its
// blocks count as new blocks are touched, and returns the number of
// bytes written.
func (s *Store) Write(ctx context.Context, ino, offset uint64, data []byte, ctime wire.Timestamp) (uint32, error) {
	if offset > maxFileSize || uint64(len(data)) > maxFileSize-offset {
		return 0, errorcode.FileTooLarge
	}

	attrs, err := s.GetAttrs(ctx, ino)
	if err != nil {
		return 0, err
	}

	batch := s.kv.NewWriteBatch()
	defer batch.Close()

	end := offset + uint64(len(data))
	for pos := offset; pos < end; {
		block := pos / blockSize
		blockOff := pos % blockSize
		n := blockSize - blockOff
		if pos+n > end {
			n = end - pos
		}

		key := dataBlockKey(ino, block)
		existing, err := s.kv.GetRaw(ctx, kvstore.CF(dataCF), key, nil)
		var buf []byte
		switch {
		case err == nil:
			buf = existing
		case err == kvstore.ErrNotFound:
			buf = make([]byte, blockSize)
			attrs.Blocks++
		default:
			return 0, errors.Info(err, "read data block for write").Detail(err)
		}
		copy(buf[blockOff:blockOff+n], data[pos-offset:pos-offset+n])
		batch.Put(kvstore.CF(dataCF), key, buf)
		pos += n
	}

	if end > attrs.Size {
		attrs.Size = end
	}
	attrs.Mtime = ctime
	attrs.Ctime = ctime

	attrEnc := wire.NewEncoder(96)
	attrs.Encode(attrEnc)
	batch.Put(kvstore.CF(attrCF), attrKey(ino), attrEnc.Bytes())

	if err := s.kv.Write(ctx, batch, nil); err != nil {
		return 0, errors.Info(err, "write data").Detail(err)
	}
	return uint32(len(data)), nil
}

// Truncate resizes ino to newLen, dropping any block wholly beyond
// the new end and zero-filling the tail of the last retained block.
func (s *Store) Truncate(ctx context.Context, ino, newLen uint64, ctime wire.Timestamp) error {
	attrs, err := s.GetAttrs(ctx, ino)
	if err != nil {
		return err
	}
	if newLen >= attrs.Size {
		attrs.Size = newLen
		attrs.Ctime = ctime
		attrs.Mtime = ctime
		return s.putAttrs(ctx, attrs)
	}

	batch := s.kv.NewWriteBatch()
	defer batch.Close()

	if newLen%blockSize != 0 {
		lastBlock := newLen / blockSize
		key := dataBlockKey(ino, lastBlock)
		if raw, err := s.kv.GetRaw(ctx, kvstore.CF(dataCF), key, nil); err == nil {
			tail := newLen % blockSize
			for i := tail; i < uint64(len(raw)); i++ {
				raw[i] = 0
			}
			batch.Put(kvstore.CF(dataCF), key, raw)
		} else if err != kvstore.ErrNotFound {
			return errors.Info(err, "read last block for truncate").Detail(err)
		}
	}

	prefix := dataBlockKeyPrefix(ino)
	lr := s.kv.List(ctx, kvstore.CF(dataCF), prefix, prefix, nil)
	firstDropped := newLen / blockSize
	if newLen%blockSize != 0 {
		firstDropped++
	}
	dropped := uint64(0)
	for {
		kg, vg, err := lr.ReadNext()
		if err != nil {
			lr.Close()
			return errors.Info(err, "scan blocks for truncate").Detail(err)
		}
		if kg == nil || vg == nil {
			break
		}
		if blockOf(kg.Key()) >= firstDropped {
			key := append([]byte(nil), kg.Key()...)
			batch.Delete(kvstore.CF(dataCF), key)
			dropped++
		}
		kg.Close()
		vg.Close()
	}
	lr.Close()

	if dropped > attrs.Blocks {
		attrs.Blocks = 0
	} else {
		attrs.Blocks -= dropped
	}
	attrs.Size = newLen
	attrs.Ctime = ctime
	attrs.Mtime = ctime

	attrEnc := wire.NewEncoder(96)
	attrs.Encode(attrEnc)
	batch.Put(kvstore.CF(attrCF), attrKey(ino), attrEnc.Bytes())

	if err := s.kv.Write(ctx, batch, nil); err != nil {
		return errors.Info(err, "truncate").Detail(err)
	}
	return nil
}

// Fsync is a no-op at the store layer: every mutation already
// reached this point via a committed consensus entry, so there is
// nothing further to flush beyond what the KV engine's own WAL does.
func (s *Store) Fsync(ctx context.Context, ino uint64) error {
	if _, err := s.GetAttrs(ctx, ino); err != nil {
		return err
	}
	return nil
}

// clearData stages deletion of every data block belonging to ino into
// batch, used when the inode itself is being destroyed.
func (s *Store) clearData(ctx context.Context, ino uint64, batch kvstore.WriteBatch) error {
	prefix := dataBlockKeyPrefix(ino)
	lr := s.kv.List(ctx, kvstore.CF(dataCF), prefix, prefix, nil)
	defer lr.Close()

	for {
		kg, vg, err := lr.ReadNext()
		if err != nil {
			return errors.Info(err, "scan data blocks for delete").Detail(err)
		}
		if kg == nil || vg == nil {
			break
		}
		key := append([]byte(nil), kg.Key()...)
		batch.Delete(kvstore.CF(dataCF), key)
		kg.Close()
		vg.Close()
	}
	return nil
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

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
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fleetfs/fleetfs/common/kvstore"
	"github.com/fleetfs/fleetfs/errorcode"
	"github.com/fleetfs/fleetfs/util"
	"github.com/fleetfs/fleetfs/wire"
)

func newTestStore(t *testing.T) *Store {
	path, err := util.GenTmpPath()
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(path) })

	s, err := NewStore(context.Background(), &Config{Path: path, KVOption: kvstore.Option{}})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestCreateAndGetAttrs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	now := wire.Timestamp{Seconds: 100}
	attrs, err := s.CreateInode(ctx, 0, 4, wire.KindFile, 0644, 1000, 1000, 0, now)
	require.NoError(t, err)
	require.Equal(t, uint32(1), attrs.HardLinks)
	require.Equal(t, attrs.Ino%4, uint64(0))

	got, err := s.GetAttrs(ctx, attrs.Ino)
	require.NoError(t, err)
	require.Equal(t, attrs, got)

	_, err = s.GetAttrs(ctx, attrs.Ino+1000)
	require.Equal(t, errorcode.InodeDoesNotExist, err)
}

func TestCreateInodeNeverAllocatesRootIno(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i := 0; i < 8; i++ {
		attrs, err := s.CreateInode(ctx, 0, 1, wire.KindFile, 0644, 0, 0, 0, wire.Timestamp{})
		require.NoError(t, err)
		require.NotEqual(t, wire.RootIno, attrs.Ino)
	}
}

func TestLinkLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	attrs, err := s.CreateInode(ctx, 0, 1, wire.KindFile, 0644, 0, 0, 0, wire.Timestamp{})
	require.NoError(t, err)

	require.NoError(t, s.CreateLink(ctx, wire.RootIno, "f", attrs.Ino, wire.KindFile))
	require.Equal(t, errorcode.AlreadyExists, s.CreateLink(ctx, wire.RootIno, "f", attrs.Ino, wire.KindFile))

	ino, kind, err := s.Lookup(ctx, wire.RootIno, "f")
	require.NoError(t, err)
	require.Equal(t, attrs.Ino, ino)
	require.Equal(t, wire.KindFile, kind)

	entries, err := s.ListDir(ctx, wire.RootIno)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	removed, err := s.RemoveLink(ctx, wire.RootIno, "f")
	require.NoError(t, err)
	require.Equal(t, attrs.Ino, removed)

	_, _, err = s.Lookup(ctx, wire.RootIno, "f")
	require.Equal(t, errorcode.DoesNotExist, err)
}

func TestDecrementLinksDeletesInodeAtZero(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	attrs, err := s.CreateInode(ctx, 0, 1, wire.KindFile, 0644, 0, 0, 0, wire.Timestamp{})
	require.NoError(t, err)
	require.NoError(t, s.SetXattr(ctx, attrs.Ino, "user.a", []byte("1")))

	require.NoError(t, s.DecrementLinks(ctx, attrs.Ino, 1))

	_, err = s.GetAttrs(ctx, attrs.Ino)
	require.Equal(t, errorcode.InodeDoesNotExist, err)
	_, err = s.GetXattr(ctx, attrs.Ino, "user.a")
	require.Equal(t, errorcode.MissingXattrKey, err)
}

func TestWriteReadTruncate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	attrs, err := s.CreateInode(ctx, 0, 1, wire.KindFile, 0644, 0, 0, 0, wire.Timestamp{})
	require.NoError(t, err)

	payload := make([]byte, blockSize+10)
	for i := range payload {
		payload[i] = byte(i)
	}
	n, err := s.Write(ctx, attrs.Ino, 0, payload, wire.Timestamp{Seconds: 1})
	require.NoError(t, err)
	require.Equal(t, uint32(len(payload)), n)

	got, err := s.Read(ctx, attrs.Ino, 0, uint32(len(payload)))
	require.NoError(t, err)
	require.Equal(t, payload, got)

	got, err = s.Read(ctx, attrs.Ino, uint64(len(payload)), 100)
	require.NoError(t, err)
	require.Empty(t, got)

	require.NoError(t, s.Truncate(ctx, attrs.Ino, blockSize/2, wire.Timestamp{Seconds: 2}))
	after, err := s.GetAttrs(ctx, attrs.Ino)
	require.NoError(t, err)
	require.Equal(t, uint64(blockSize/2), after.Size)

	got, err = s.Read(ctx, attrs.Ino, 0, blockSize)
	require.NoError(t, err)
	require.Equal(t, payload[:blockSize/2], got)
}

func TestLockTableAlreadyLocked(t *testing.T) {
	s := newTestStore(t)

	id, err := s.locks.Lock(42)
	require.NoError(t, err)

	_, err = s.locks.Lock(42)
	require.Equal(t, errorcode.OperationNotPermitted, err)

	s.locks.Unlock(42, id+1) // mismatched id: no-op
	require.True(t, s.locks.IsLocked(42))

	s.locks.Unlock(42, id)
	require.False(t, s.locks.IsLocked(42))
}

func TestChecksumChangesWithMutation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	before, err := s.Checksum(ctx)
	require.NoError(t, err)

	_, err = s.CreateInode(ctx, 0, 1, wire.KindFile, 0644, 0, 0, 0, wire.Timestamp{})
	require.NoError(t, err)

	after, err := s.Checksum(ctx)
	require.NoError(t, err)
	require.NotEqual(t, before, after)
}

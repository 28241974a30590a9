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

package rgroup

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fleetfs/fleetfs/common/kvstore"
	"github.com/fleetfs/fleetfs/consensus"
	"github.com/fleetfs/fleetfs/errorcode"
	"github.com/fleetfs/fleetfs/store"
	"github.com/fleetfs/fleetfs/util"
	"github.com/fleetfs/fleetfs/wire"
)

func newTestRgroup(t *testing.T) *Rgroup {
	path, err := util.GenTmpPath()
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(path) })

	s, err := store.NewStore(context.Background(), &store.Config{Path: path, KVOption: kvstore.Option{}})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	return New(Config{ID: 0, NumRgroups: 1, Store: s})
}

// apply1 drives a single request through Apply the way the coordinator
// drives a single-proposal batch, and decodes the one reply it produces.
func apply1(t *testing.T, g *Rgroup, req wire.Request) wire.Response {
	replies, err := g.Apply(context.Background(), []consensus.Proposal{{Request: wire.EncodeRequest(req)}}, 1, 1)
	require.NoError(t, err)
	require.Len(t, replies, 1)
	resp, err := wire.DecodeResponse(replies[0])
	require.NoError(t, err)
	return resp
}

func createTestInode(t *testing.T, g *Rgroup) wire.Attrs {
	resp := apply1(t, g, wire.CreateInodeRequest{Mode: 0o644, Uid: 1, Gid: 1, Kind: wire.KindFile})
	ir, ok := resp.(wire.InodeResponse)
	require.True(t, ok)
	return ir.Attrs
}

// TestApplyDecrementInodeFencedAgainstReplay exercises the one
// deliberately non-idempotent primitive in the apply loop: a
// DecrementInodeRequest replayed with the same fencing token (as a
// retried Propose after an ambiguous RPC timeout would do) must not
// decrement the link count a second time.
func TestApplyDecrementInodeFencedAgainstReplay(t *testing.T) {
	g := newTestRgroup(t)
	attrs := createTestInode(t, g)
	_, err := g.store.IncrementLinks(context.Background(), attrs.Ino, 1, wire.Timestamp{Seconds: 1})
	require.NoError(t, err)

	req := wire.DecrementInodeRequest{Ino: attrs.Ino, N: 1, FencingToken: 5}

	resp := apply1(t, g, req)
	_, isErr := wire.AsError(resp)
	require.False(t, isErr)

	got, err := g.store.GetAttrs(context.Background(), attrs.Ino)
	require.NoError(t, err)
	require.Equal(t, uint32(1), got.HardLinks)

	// Same fencing token replayed (e.g. after a retried Propose): must
	// be recognized as already-applied and not decrement again.
	resp = apply1(t, g, req)
	_, isErr = wire.AsError(resp)
	require.False(t, isErr)

	got, err = g.store.GetAttrs(context.Background(), attrs.Ino)
	require.NoError(t, err)
	require.Equal(t, uint32(1), got.HardLinks)

	// A fresh, higher token still decrements normally; dropping the
	// last link deletes the inode.
	resp = apply1(t, g, wire.DecrementInodeRequest{Ino: attrs.Ino, N: 1, FencingToken: 6})
	_, isErr = wire.AsError(resp)
	require.False(t, isErr)

	got, err = g.store.GetAttrs(context.Background(), attrs.Ino)
	require.Equal(t, errorcode.InodeDoesNotExist, err)
	require.Equal(t, wire.Attrs{}, got)
}

// TestApplyDecrementInodeStaleTokenIgnored checks the other half of
// the fencing rule: a token no higher than the one already recorded
// for that inode (not just an exact replay) is treated as stale,
// since an out-of-order retry can arrive after a newer decrement
// already landed.
func TestApplyDecrementInodeStaleTokenIgnored(t *testing.T) {
	g := newTestRgroup(t)
	attrs := createTestInode(t, g)
	_, err := g.store.IncrementLinks(context.Background(), attrs.Ino, 2, wire.Timestamp{Seconds: 1})
	require.NoError(t, err)

	apply1(t, g, wire.DecrementInodeRequest{Ino: attrs.Ino, N: 1, FencingToken: 10})
	got, err := g.store.GetAttrs(context.Background(), attrs.Ino)
	require.NoError(t, err)
	require.Equal(t, uint32(2), got.HardLinks)

	// Token 3 < 10: a late-arriving retry of an older propose.
	apply1(t, g, wire.DecrementInodeRequest{Ino: attrs.Ino, N: 1, FencingToken: 3})
	got, err = g.store.GetAttrs(context.Background(), attrs.Ino)
	require.NoError(t, err)
	require.Equal(t, uint32(2), got.HardLinks, "stale token must not decrement")
}

// TestApplyHardlinkIncrementAndRollback exercises spec.md §4.6.3's
// two-step transaction at the apply layer directly: increment bumps
// the link count and records the pre-increment mtime, and a rollback
// with the same PrevLastModifiedTime undoes the increment and, since
// nothing else modified the inode in between, restores mtime too.
func TestApplyHardlinkIncrementAndRollback(t *testing.T) {
	g := newTestRgroup(t)
	attrs := createTestInode(t, g)
	require.NoError(t, g.store.CreateLink(context.Background(), wire.RootIno, "a", attrs.Ino, wire.KindFile))

	resp := apply1(t, g, wire.HardlinkIncrementRequest{Ino: attrs.Ino, FencingToken: 1})
	inc, ok := resp.(wire.HardlinkTransactionResponse)
	require.True(t, ok)
	require.Equal(t, uint32(2), inc.Attrs.HardLinks)
	require.Equal(t, attrs.Mtime, inc.PrevLastModifiedTime)

	resp = apply1(t, g, wire.HardlinkRollbackRequest{
		Ino:                  attrs.Ino,
		PrevLastModifiedTime: inc.PrevLastModifiedTime,
		FencingToken:         2,
	})
	_, isErr := wire.AsError(resp)
	require.False(t, isErr)

	got, err := g.store.GetAttrs(context.Background(), attrs.Ino)
	require.NoError(t, err)
	require.Equal(t, uint32(1), got.HardLinks)
	require.Equal(t, attrs.Mtime, got.Mtime)
}

// TestApplyHardlinkRollbackFencedAgainstReplay mirrors the decrement
// fencing test for the rollback primitive: once a rollback has been
// applied for a fencing token, replaying the same propose must not
// decrement the link count a second time.
func TestApplyHardlinkRollbackFencedAgainstReplay(t *testing.T) {
	g := newTestRgroup(t)
	attrs := createTestInode(t, g)
	require.NoError(t, g.store.CreateLink(context.Background(), wire.RootIno, "a", attrs.Ino, wire.KindFile))

	resp := apply1(t, g, wire.HardlinkIncrementRequest{Ino: attrs.Ino, FencingToken: 1})
	inc := resp.(wire.HardlinkTransactionResponse)

	rollback := wire.HardlinkRollbackRequest{Ino: attrs.Ino, PrevLastModifiedTime: inc.PrevLastModifiedTime, FencingToken: 2}
	apply1(t, g, rollback)
	apply1(t, g, rollback)

	got, err := g.store.GetAttrs(context.Background(), attrs.Ino)
	require.NoError(t, err)
	require.Equal(t, uint32(1), got.HardLinks, "replayed rollback must not decrement twice")
}

// TestApplyHardlinkRollbackSkipsMtimeRestoreIfModifiedSince checks
// that a rollback whose captured mtime no longer matches the inode's
// current mtime (because some other mutation landed in between) only
// undoes the link count, per applyHardlinkRollback's comment: it
// never clobbers a newer mtime with a stale one.
func TestApplyHardlinkRollbackSkipsMtimeRestoreIfModifiedSince(t *testing.T) {
	g := newTestRgroup(t)
	attrs := createTestInode(t, g)
	require.NoError(t, g.store.CreateLink(context.Background(), wire.RootIno, "a", attrs.Ino, wire.KindFile))

	resp := apply1(t, g, wire.HardlinkIncrementRequest{Ino: attrs.Ino, FencingToken: 1})
	inc := resp.(wire.HardlinkTransactionResponse)

	newMtime := wire.Timestamp{Seconds: 999}
	_, err := g.store.SetAttrsPartial(context.Background(), attrs.Ino, wire.AttrsPatch{Mtime: &newMtime}, wire.Timestamp{})
	require.NoError(t, err)

	apply1(t, g, wire.HardlinkRollbackRequest{
		Ino:                  attrs.Ino,
		PrevLastModifiedTime: inc.PrevLastModifiedTime,
		FencingToken:         2,
	})

	got, err := g.store.GetAttrs(context.Background(), attrs.Ino)
	require.NoError(t, err)
	require.Equal(t, uint32(1), got.HardLinks)
	require.Equal(t, newMtime, got.Mtime, "newer mtime must survive a rollback captured before it landed")
}

// TestApplyReplaceLinkReturnsReplacedInode exercises the primitive
// coordinator.Rename relies on when overwriting an existing
// destination name: it must report which inode it displaced so the
// caller can decrement it, distinct from applyCreateLink's path which
// never displaces anything.
func TestApplyReplaceLinkReturnsReplacedInode(t *testing.T) {
	g := newTestRgroup(t)
	oldTarget := createTestInode(t, g)
	newTarget := createTestInode(t, g)
	require.NoError(t, g.store.CreateLink(context.Background(), wire.RootIno, "dst", oldTarget.Ino, wire.KindFile))

	resp := apply1(t, g, wire.ReplaceLinkRequest{Parent: wire.RootIno, Name: "dst", NewIno: newTarget.Ino, Kind: wire.KindFile})
	rl, ok := resp.(wire.RemoveLinkResponse)
	require.True(t, ok)
	require.Equal(t, oldTarget.Ino, rl.Ino)

	ino, _, err := g.store.Lookup(context.Background(), wire.RootIno, "dst")
	require.NoError(t, err)
	require.Equal(t, newTarget.Ino, ino)
}

// TestApplyLockRejectsSecondHolder checks the try-lock semantics the
// coordinator's lock ordering and the rename-vs-unlink race test in
// package coordinator both depend on: a second Lock on an
// already-held inode fails rather than blocking.
func TestApplyLockRejectsSecondHolder(t *testing.T) {
	g := newTestRgroup(t)
	attrs := createTestInode(t, g)

	resp := apply1(t, g, wire.LockRequest{Ino: attrs.Ino})
	lr, ok := resp.(wire.LockResponse)
	require.True(t, ok)

	resp = apply1(t, g, wire.LockRequest{Ino: attrs.Ino})
	code, isErr := wire.AsError(resp)
	require.True(t, isErr)
	require.Equal(t, errorcode.OperationNotPermitted, code)

	apply1(t, g, wire.UnlockRequest{Ino: attrs.Ino, LockID: lr.LockID})
	resp = apply1(t, g, wire.LockRequest{Ino: attrs.Ino})
	_, isErr = wire.AsError(resp)
	require.False(t, isErr, "lock must be acquirable again after unlock")
}

// TestApplyUnknownRequestIsBadRequest exercises dispatch's default
// case: a request tag the apply loop does not decompose into (a
// facade-level tag like MkdirRequest, which the coordinator always
// resolves into CreateInodeRequest/CreateLinkRequest before a
// proposal ever reaches Apply) must be rejected, not panic.
func TestApplyUnknownRequestIsBadRequest(t *testing.T) {
	g := newTestRgroup(t)
	resp := apply1(t, g, wire.MkdirRequest{Parent: wire.RootIno, Name: "x"})
	code, isErr := wire.AsError(resp)
	require.True(t, isErr)
	require.Equal(t, errorcode.BadRequest, code)
}

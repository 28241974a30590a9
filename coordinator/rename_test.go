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
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fleetfs/fleetfs/errorcode"
	"github.com/fleetfs/fleetfs/wire"
)

// TestRenameReplacesExistingFile covers spec.md §4.6.4's destination-
// exists path: the old name is gone, the new name now resolves to the
// source inode, and the inode that used to live at the destination is
// decremented away.
func TestRenameReplacesExistingFile(t *testing.T) {
	_, c := newTestCluster(t, 1)
	ctx := context.Background()

	src, err := c.Create(ctx, wire.RootIno, "src", 0o644, 1, 1)
	require.NoError(t, err)
	dst, err := c.Create(ctx, wire.RootIno, "dst", 0o644, 1, 1)
	require.NoError(t, err)

	require.NoError(t, c.Rename(ctx, wire.RootIno, "src", wire.RootIno, "dst"))

	_, err = c.Lookup(ctx, wire.RootIno, "src")
	require.Equal(t, errorcode.DoesNotExist, err)

	got, err := c.Lookup(ctx, wire.RootIno, "dst")
	require.NoError(t, err)
	require.Equal(t, src.Ino, got.Ino)

	_, err = c.Getattr(ctx, dst.Ino)
	require.Equal(t, errorcode.InodeDoesNotExist, err)
}

// TestRenameSameNameIsNoop covers the same-parent, same-name case
// Rename short-circuits on, per rename.go's samesParent check: the
// source is locked and released again, but nothing is removed or
// decremented, so the entry still resolves to the same inode.
func TestRenameSameNameIsNoop(t *testing.T) {
	_, c := newTestCluster(t, 1)
	ctx := context.Background()

	f, err := c.Create(ctx, wire.RootIno, "f", 0o644, 1, 1)
	require.NoError(t, err)

	require.NoError(t, c.Rename(ctx, wire.RootIno, "f", wire.RootIno, "f"))

	got, err := c.Lookup(ctx, wire.RootIno, "f")
	require.NoError(t, err)
	require.Equal(t, f.Ino, got.Ino)
}

// TestRenameRejectsNonEmptyDirectoryDestination covers spec.md
// §4.6.4's empty-directory precondition on the destination.
func TestRenameRejectsNonEmptyDirectoryDestination(t *testing.T) {
	_, c := newTestCluster(t, 1)
	ctx := context.Background()

	_, err := c.Create(ctx, wire.RootIno, "src", 0o644, 1, 1)
	require.NoError(t, err)
	destDir, err := c.Mkdir(ctx, wire.RootIno, "destdir", 0o755, 1, 1)
	require.NoError(t, err)
	_, err = c.Create(ctx, destDir.Ino, "child", 0o644, 1, 1)
	require.NoError(t, err)

	err = c.Rename(ctx, wire.RootIno, "src", wire.RootIno, "destdir")
	require.Equal(t, errorcode.NotEmpty, err)

	// The rejected rename must have left both names exactly as they were.
	_, err = c.Lookup(ctx, wire.RootIno, "src")
	require.NoError(t, err)
	got, err := c.Lookup(ctx, wire.RootIno, "destdir")
	require.NoError(t, err)
	require.Equal(t, destDir.Ino, got.Ino)
}

// TestUnlinkRaceAgainstConcurrentRenameDecrementsActualTarget drives
// the scenario unlink.go's removeEntry comment calls out by name: a
// rename that replaces the same (parent, name) entry lands after
// Unlink has already resolved the name to its old target but before
// Unlink locks it, so the dirent Unlink eventually removes no longer
// points at the inode it looked up. The fix under test is that
// removeEntry decrements removed.Ino (whatever RemoveLinkRequest
// actually reported), not the stale target captured at lookup time.
func TestUnlinkRaceAgainstConcurrentRenameDecrementsActualTarget(t *testing.T) {
	tc, c := newTestCluster(t, 1)
	ctx := context.Background()

	oldTarget, err := c.Create(ctx, wire.RootIno, "victim", 0o644, 1, 1)
	require.NoError(t, err)
	newTarget, err := c.Create(ctx, wire.RootIno, "other", 0o644, 1, 1)
	require.NoError(t, err)

	var raced int32
	tc.intercept = func(req wire.Request) {
		lr, ok := req.(wire.LockRequest)
		if !ok || lr.Ino != oldTarget.Ino || !atomic.CompareAndSwapInt32(&raced, 0, 1) {
			return
		}
		// Runs synchronously, on its own goroutine, before Unlink's own
		// LockRequest for oldTarget is served: renaming "other" onto
		// "victim" swaps the dirent Unlink is about to remove out from
		// under it, and fully completes (including releasing its own
		// locks) before returning here.
		require.NoError(t, c.Rename(context.Background(), wire.RootIno, "other", wire.RootIno, "victim"))
	}

	require.NoError(t, c.Unlink(ctx, wire.RootIno, "victim"))
	require.Equal(t, int32(1), atomic.LoadInt32(&raced), "intercept never observed Unlink's LockRequest for the old target")

	// The rename already decremented oldTarget by replacing it; Unlink
	// must have decremented newTarget (the inode actually unlinked),
	// not oldTarget a second time.
	_, err = c.Getattr(ctx, oldTarget.Ino)
	require.Equal(t, errorcode.InodeDoesNotExist, err, "rename's own replace should have deleted oldTarget exactly once")

	_, err = c.Getattr(ctx, newTarget.Ino)
	require.Equal(t, errorcode.InodeDoesNotExist, err, "unlink must have decremented the inode it actually removed")

	_, err = c.Lookup(ctx, wire.RootIno, "victim")
	require.Equal(t, errorcode.DoesNotExist, err)
	_, err = c.Lookup(ctx, wire.RootIno, "other")
	require.Equal(t, errorcode.DoesNotExist, err)
}

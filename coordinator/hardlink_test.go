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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fleetfs/fleetfs/errorcode"
	"github.com/fleetfs/fleetfs/wire"
)

// TestHardlinkIncrementsLinkCountAndCreatesEntry covers the
// successful path of spec.md §4.6.3: the new name resolves to the
// same inode, and its link count reflects the new reference.
func TestHardlinkIncrementsLinkCountAndCreatesEntry(t *testing.T) {
	_, c := newTestCluster(t, 1)
	ctx := context.Background()

	f, err := c.Create(ctx, wire.RootIno, "f", 0o644, 1, 1)
	require.NoError(t, err)
	require.Equal(t, uint32(1), f.HardLinks)

	attrs, err := c.Hardlink(ctx, f.Ino, wire.RootIno, "g", wire.KindFile)
	require.NoError(t, err)
	require.Equal(t, uint32(2), attrs.HardLinks)

	got, err := c.Lookup(ctx, wire.RootIno, "g")
	require.NoError(t, err)
	require.Equal(t, f.Ino, got.Ino)
	require.Equal(t, uint32(2), got.HardLinks)

	got, err = c.Lookup(ctx, wire.RootIno, "f")
	require.NoError(t, err)
	require.Equal(t, f.Ino, got.Ino)
}

// TestHardlinkRollsBackIncrementWhenLinkCreationFails covers step 3
// of spec.md §4.6.3: when the follow-up CreateLinkRequest fails (here
// because the destination name already exists), the increment from
// step 1 must be undone, leaving the original link count intact.
func TestHardlinkRollsBackIncrementWhenLinkCreationFails(t *testing.T) {
	_, c := newTestCluster(t, 1)
	ctx := context.Background()

	f, err := c.Create(ctx, wire.RootIno, "f", 0o644, 1, 1)
	require.NoError(t, err)
	_, err = c.Create(ctx, wire.RootIno, "taken", 0o644, 1, 1)
	require.NoError(t, err)

	_, err = c.Hardlink(ctx, f.Ino, wire.RootIno, "taken", wire.KindFile)
	require.Equal(t, errorcode.AlreadyExists, err)

	got, err := c.Getattr(ctx, f.Ino)
	require.NoError(t, err)
	require.Equal(t, uint32(1), got.HardLinks, "failed hardlink must roll back the increment")

	// "taken" must still resolve to whatever it pointed at before the
	// failed hardlink, not to f.
	taken, err := c.Lookup(ctx, wire.RootIno, "taken")
	require.NoError(t, err)
	require.NotEqual(t, f.Ino, taken.Ino)
}

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

	"github.com/fleetfs/fleetfs/errorcode"
	"github.com/fleetfs/fleetfs/wire"
)

// EnsureRootInode creates the well-known root inode if it is missing.
// Every replica of rgroup 0 starts from the identical empty state
// described in spec.md's initial-state invariant, so calling this at
// startup on every replica produces the same result everywhere
// without needing a consensus round: there is nothing to agree on.
func (s *Store) EnsureRootInode(ctx context.Context, mode uint32, now wire.Timestamp) error {
	if _, err := s.GetAttrs(ctx, wire.RootIno); err == nil {
		return nil
	} else if err != errorcode.InodeDoesNotExist {
		return err
	}

	attrs := wire.Attrs{
		Ino: wire.RootIno, Kind: wire.KindDirectory, Mode: uint16(mode),
		Atime: now, Mtime: now, Ctime: now, HardLinks: 2,
	}
	return s.putAttrs(ctx, attrs)
}

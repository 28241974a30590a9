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

	"github.com/cubefs/cubefs/blobstore/util/log"

	"github.com/fleetfs/fleetfs/errorcode"
	"github.com/fleetfs/fleetfs/wire"
)

// Hardlink implements spec.md §4.6.3. Like create, and unlike unlink,
// it takes no lock: the increment and its possible rollback are fenced purely
// by the token pair the coordinator mints for this one call, so a
// crash between steps 1 and 2 leaves at most a temporarily inflated
// link count that HardlinkRollbackRequest can still repair later with
// the attrs this call already captured.
func (c *Coordinator) Hardlink(ctx context.Context, ino, newParent uint64, newName string, kind wire.InodeKind) (wire.Attrs, error) {
	incRgroup := c.router.RgroupOf(ino)
	incToken := c.nextToken()

	incResp, err := c.router.Send(ctx, incRgroup, wire.HardlinkIncrementRequest{Ino: ino, FencingToken: incToken})
	if err != nil {
		return wire.Attrs{}, err
	}
	if code, isErr := wire.AsError(incResp); isErr {
		return wire.Attrs{}, code
	}
	inc, ok := incResp.(wire.HardlinkTransactionResponse)
	if !ok {
		return wire.Attrs{}, errorcode.BadResponse
	}

	linkErr := asErr(c.router.Send(ctx, c.router.RgroupOf(newParent), wire.CreateLinkRequest{
		Parent: newParent,
		Name:   newName,
		Ino:    ino,
		Kind:   kind,
	}))
	if linkErr != nil {
		rollbackErr := asErr(c.router.Send(ctx, incRgroup, wire.HardlinkRollbackRequest{
			Ino:                  ino,
			PrevLastModifiedTime: inc.PrevLastModifiedTime,
			FencingToken:         c.nextToken(),
		}))
		if rollbackErr != nil {
			log.Warn("coordinator: hardlink rollback for ino ", ino, " failed: ", rollbackErr)
		}
		return wire.Attrs{}, linkErr
	}
	return inc.Attrs, nil
}

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

	"github.com/fleetfs/fleetfs/wire"
)

// applyWrite, applyTruncate, applyFsync, applyChmod, applyChown and
// applyUtimens all key purely off Ino, so they never span more than
// one rgroup and never need a lock_id: the coordinator's passthrough
// calls send each as a single request, not decomposed into
// transaction primitives.

func (g *Rgroup) applyWrite(ctx context.Context, r wire.WriteRequest, commit wire.CommitID) (wire.Response, error) {
	n, err := g.store.Write(ctx, r.Ino, r.Offset, r.Data, now())
	if err != nil {
		return nil, err
	}
	return wire.WrittenResponse{BytesWritten: n, Commit: wire.Commit{Applied: &commit}}, nil
}

func (g *Rgroup) applyTruncate(ctx context.Context, r wire.TruncateRequest, commit wire.CommitID) (wire.Response, error) {
	if err := g.store.Truncate(ctx, r.Ino, r.NewLen, now()); err != nil {
		return nil, err
	}
	attrs, err := g.store.GetAttrs(ctx, r.Ino)
	if err != nil {
		return nil, err
	}
	return wire.FileMetadataResponse{Attrs: attrs, Commit: wire.Commit{Applied: &commit}}, nil
}

func (g *Rgroup) applyFsync(ctx context.Context, r wire.FsyncRequest, commit wire.CommitID) (wire.Response, error) {
	if err := g.store.Fsync(ctx, r.Ino); err != nil {
		return nil, err
	}
	return wire.EmptyResponse{Commit: wire.Commit{Applied: &commit}}, nil
}

func (g *Rgroup) applyChmod(ctx context.Context, r wire.ChmodRequest, commit wire.CommitID) (wire.Response, error) {
	mode := r.Mode
	attrs, err := g.store.SetAttrsPartial(ctx, r.Ino, wire.AttrsPatch{Mode: &mode}, now())
	if err != nil {
		return nil, err
	}
	return wire.FileMetadataResponse{Attrs: attrs, Commit: wire.Commit{Applied: &commit}}, nil
}

func (g *Rgroup) applyChown(ctx context.Context, r wire.ChownRequest, commit wire.CommitID) (wire.Response, error) {
	patch := wire.AttrsPatch{Uid: r.Uid, Gid: r.Gid}
	attrs, err := g.store.SetAttrsPartial(ctx, r.Ino, patch, now())
	if err != nil {
		return nil, err
	}
	return wire.FileMetadataResponse{Attrs: attrs, Commit: wire.Commit{Applied: &commit}}, nil
}

func (g *Rgroup) applyUtimens(ctx context.Context, r wire.UtimensRequest, commit wire.CommitID) (wire.Response, error) {
	patch := wire.AttrsPatch{Atime: r.Atime, Mtime: r.Mtime}
	attrs, err := g.store.SetAttrsPartial(ctx, r.Ino, patch, now())
	if err != nil {
		return nil, err
	}
	return wire.FileMetadataResponse{Attrs: attrs, Commit: wire.Commit{Applied: &commit}}, nil
}

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

	"github.com/fleetfs/fleetfs/errorcode"
	"github.com/fleetfs/fleetfs/wire"
)

// applyCreateInode allocates a fresh inode on this rgroup. It carries
// no lock_id: the coordinator's create/mkdir sequence (spec.md
// §4.6.1) never needs to fence it, since an orphaned inode from a
// failed follow-up step is simply garbage-collected with
// DecrementInodeRequest.
func (g *Rgroup) applyCreateInode(ctx context.Context, r wire.CreateInodeRequest, commit wire.CommitID) (wire.Response, error) {
	attrs, err := g.store.CreateInode(ctx, g.id, g.numRgroups, r.Kind, r.Mode, r.Uid, r.Gid, r.Rdev, now())
	if err != nil {
		return nil, err
	}
	return wire.InodeResponse{Attrs: attrs, Commit: wire.Commit{Applied: &commit}}, nil
}

// applyCreateLink, applyReplaceLink and applyRemoveLink all run on the
// parent directory's rgroup; when LockID is set, it is checked
// against a lock this rgroup's lock table holds on Parent, not on the
// entry's target inode (which may live on a different rgroup
// entirely and is fenced independently by the coordinator).
func (g *Rgroup) applyCreateLink(ctx context.Context, r wire.CreateLinkRequest, commit wire.CommitID) (wire.Response, error) {
	if err := g.store.CheckHolder(r.Parent, r.LockID); err != nil {
		return nil, err
	}
	if err := g.store.CreateLink(ctx, r.Parent, r.Name, r.Ino, r.Kind); err != nil {
		return nil, err
	}
	return wire.EmptyResponse{Commit: wire.Commit{Applied: &commit}}, nil
}

func (g *Rgroup) applyReplaceLink(ctx context.Context, r wire.ReplaceLinkRequest, commit wire.CommitID) (wire.Response, error) {
	if err := g.store.CheckHolder(r.Parent, r.LockID); err != nil {
		return nil, err
	}
	oldIno, err := g.store.ReplaceLink(ctx, r.Parent, r.Name, r.NewIno, r.Kind)
	if err != nil {
		return nil, err
	}
	return wire.RemoveLinkResponse{Ino: oldIno, ProcessingComplete: true, Commit: wire.Commit{Applied: &commit}}, nil
}

func (g *Rgroup) applyRemoveLink(ctx context.Context, r wire.RemoveLinkRequest, commit wire.CommitID) (wire.Response, error) {
	if err := g.store.CheckHolder(r.Parent, r.LockID); err != nil {
		return nil, err
	}
	ino, err := g.store.RemoveLink(ctx, r.Parent, r.Name)
	if err != nil {
		return nil, err
	}
	return wire.RemoveLinkResponse{Ino: ino, ProcessingComplete: true, Commit: wire.Commit{Applied: &commit}}, nil
}

// applyDecrementInode is spec.md's one deliberately non-idempotent
// primitive: a retried propose carrying the same fencing token (minted
// by the coordinator's nextToken, never a lock_id) is recognized and
// answered without decrementing twice.
func (g *Rgroup) applyDecrementInode(ctx context.Context, r wire.DecrementInodeRequest, commit wire.CommitID) (wire.Response, error) {
	if g.seenFencingToken(r.Ino, r.FencingToken) {
		return wire.EmptyResponse{Commit: wire.Commit{Applied: &commit}}, nil
	}
	if err := g.store.DecrementLinks(ctx, r.Ino, r.N); err != nil {
		return nil, err
	}
	if _, err := g.store.GetAttrs(ctx, r.Ino); err == errorcode.InodeDoesNotExist {
		g.forgetFencing(r.Ino)
	}
	return wire.EmptyResponse{Commit: wire.Commit{Applied: &commit}}, nil
}

func (g *Rgroup) applyHardlinkIncrement(ctx context.Context, r wire.HardlinkIncrementRequest, commit wire.CommitID) (wire.Response, error) {
	if g.seenFencingToken(r.Ino, r.FencingToken) {
		attrs, err := g.store.GetAttrs(ctx, r.Ino)
		if err != nil {
			return nil, err
		}
		return wire.HardlinkTransactionResponse{Attrs: attrs, PrevLastModifiedTime: attrs.Mtime, Commit: wire.Commit{Applied: &commit}}, nil
	}
	attrs, err := g.store.IncrementLinks(ctx, r.Ino, 1, now())
	if err != nil {
		return nil, err
	}
	// IncrementLinks stamps ctime but never touches mtime, so the
	// returned attrs already carry the pre-increment last_modified_time.
	return wire.HardlinkTransactionResponse{Attrs: attrs, PrevLastModifiedTime: attrs.Mtime, Commit: wire.Commit{Applied: &commit}}, nil
}

// applyHardlinkRollback compensates a HardlinkIncrementRequest whose
// follow-up CreateLinkRequest failed, per spec.md §4.6.3 step 3: it
// restores the pre-increment mtime only if nothing has modified the
// inode since, otherwise it just undoes the link count.
func (g *Rgroup) applyHardlinkRollback(ctx context.Context, r wire.HardlinkRollbackRequest, commit wire.CommitID) (wire.Response, error) {
	if g.seenFencingToken(r.Ino, r.FencingToken) {
		return wire.EmptyResponse{Commit: wire.Commit{Applied: &commit}}, nil
	}

	attrs, err := g.store.GetAttrs(ctx, r.Ino)
	if err != nil {
		return nil, err
	}
	unmodifiedSince := attrs.Mtime == r.PrevLastModifiedTime

	if err := g.store.DecrementLinks(ctx, r.Ino, 1); err != nil {
		return nil, err
	}
	if _, err := g.store.GetAttrs(ctx, r.Ino); err == errorcode.InodeDoesNotExist {
		g.forgetFencing(r.Ino)
	}

	if unmodifiedSince {
		// The inode may have just been deleted by the decrement above
		// (link count reaching zero); restoring mtime on a gone inode
		// is simply a no-op failure to ignore, not an error to surface.
		patch := wire.AttrsPatch{Mtime: &r.PrevLastModifiedTime}
		g.store.SetAttrsPartial(ctx, r.Ino, patch, r.PrevLastModifiedTime)
	}
	return wire.EmptyResponse{Commit: wire.Commit{Applied: &commit}}, nil
}

// applyUpdateParent and applyUpdateMetadataChangedTime both operate
// on the target inode's own rgroup, so LockID here is checked against
// a lock held on Ino, not Parent.
func (g *Rgroup) applyUpdateParent(ctx context.Context, r wire.UpdateParentRequest, commit wire.CommitID) (wire.Response, error) {
	if err := g.store.CheckHolder(r.Ino, r.LockID); err != nil {
		return nil, err
	}
	if err := g.store.SetParent(ctx, r.Ino, r.NewParent); err != nil {
		return nil, err
	}
	return wire.EmptyResponse{Commit: wire.Commit{Applied: &commit}}, nil
}

func (g *Rgroup) applyUpdateMetadataChangedTime(ctx context.Context, r wire.UpdateMetadataChangedTimeRequest, commit wire.CommitID) (wire.Response, error) {
	if err := g.store.CheckHolder(r.Ino, r.LockID); err != nil {
		return nil, err
	}
	patch := wire.AttrsPatch{Ctime: &r.Ctime}
	attrs, err := g.store.SetAttrsPartial(ctx, r.Ino, patch, r.Ctime)
	if err != nil {
		return nil, err
	}
	return wire.FileMetadataResponse{Attrs: attrs, Commit: wire.Commit{Applied: &commit}}, nil
}

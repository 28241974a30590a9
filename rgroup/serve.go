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

// Serve answers one of the read-only requests enumerated by
// wire.IsReadOnly directly against the local store, bypassing the
// consensus log entirely, per spec.md §4.3. The caller (package
// server) is responsible for only calling Serve on a leader and for
// the required_commit wait loop. Serve stamps applied, the rgroup's
// current local commit point, on the responses whose type has a
// Commit field (FileMetadataResponse, EmptyResponse, and
// LatestCommitResponse's own value); read, listing, xattr, checksum
// and information responses carry no commit point.
func (g *Rgroup) Serve(ctx context.Context, req wire.Request, applied wire.CommitID) (wire.Response, error) {
	switch r := req.(type) {
	case wire.GetattrRequest:
		attrs, err := g.store.GetAttrs(ctx, r.Ino)
		if err != nil {
			return nil, err
		}
		return wire.FileMetadataResponse{Attrs: attrs, Commit: wire.Commit{Applied: &applied}}, nil
	case wire.ReadRequest:
		data, err := g.store.Read(ctx, r.Ino, r.Offset, r.ReadSize)
		if err != nil {
			return nil, err
		}
		return wire.ReadResponse{Data: data}, nil
	case wire.ReadRawRequest:
		data, err := g.store.Read(ctx, r.Ino, r.Offset, r.ReadSize)
		if err != nil {
			return nil, err
		}
		return wire.ReadResponse{Data: data}, nil
	case wire.ReaddirRequest:
		entries, err := g.store.ListDir(ctx, r.Ino)
		if err != nil {
			return nil, err
		}
		return wire.DirectoryListingResponse{Entries: entries}, nil
	case wire.LookupRequest:
		ino, kind, err := g.store.Lookup(ctx, r.Parent, r.Name)
		if err != nil {
			return nil, err
		}
		attrs, err := g.store.GetAttrs(ctx, ino)
		if err != nil {
			return nil, err
		}
		_ = kind
		return wire.FileMetadataResponse{Attrs: attrs, Commit: wire.Commit{Applied: &applied}}, nil
	case wire.GetXattrRequest:
		v, err := g.store.GetXattr(ctx, r.Ino, r.Key)
		if err != nil {
			return nil, err
		}
		return wire.XattrsResponse{Entries: []wire.XattrEntry{{Key: r.Key, Value: v}}}, nil
	case wire.ListXattrsRequest:
		keys, err := g.store.ListXattrs(ctx, r.Ino)
		if err != nil {
			return nil, err
		}
		entries := make([]wire.XattrEntry, len(keys))
		for i, k := range keys {
			entries[i] = wire.XattrEntry{Key: k}
		}
		return wire.XattrsResponse{Entries: entries}, nil
	case wire.FilesystemChecksumRequest:
		sum, err := g.store.Checksum(ctx)
		if err != nil {
			return nil, err
		}
		return wire.ChecksumResponse{Checksums: []wire.RgroupChecksum{{Rgroup: g.id, Checksum: sum}}}, nil
	case wire.FilesystemCheckRequest:
		if errs := g.store.Check(ctx); len(errs) > 0 {
			return nil, errorcode.Corrupted
		}
		return wire.EmptyResponse{Commit: wire.Commit{Applied: &applied}}, nil
	case wire.FilesystemReadyRequest:
		return wire.EmptyResponse{Commit: wire.Commit{Applied: &applied}}, nil
	case wire.FilesystemInformationRequest:
		return wire.FilesystemInformationResponse{BlockSize: 4096, MaxNameLength: 255}, nil
	case wire.LatestCommitRequest:
		return wire.LatestCommitResponse{Commit: applied}, nil
	default:
		return nil, errorcode.BadRequest
	}
}

// CaughtUpTo reports whether applied meets or exceeds required,
// the gate a leader must pass before answering a read stamped with a
// required_commit, per spec.md §4.3.
func CaughtUpTo(applied wire.CommitID, required *wire.CommitID) bool {
	if required == nil {
		return true
	}
	return !applied.Less(*required)
}

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

package server

import (
	"context"

	"github.com/fleetfs/fleetfs/wire"
)

// dispatchFacade answers the composite POSIX-level requests
// (MkdirRequest, CreateRequest, UnlinkRequest, RmdirRequest,
// RenameRequest, HardlinkRequest) directly off this node's
// coordinator, rather than against a specific hosted rgroup: these
// requests span two rgroups by construction, so there is no single
// hr to route them to the way the other tags are routed by the
// connection envelope's rgroup id. Any node that embeds a Server can
// answer one of these, since the coordinator reaches every rgroup
// through the shared Router. The bool return reports whether req was
// one of these facade-level tags at all.
func (s *Server) dispatchFacade(ctx context.Context, req wire.Request) (wire.Response, error, bool) {
	switch r := req.(type) {
	case wire.MkdirRequest:
		attrs, err := s.coordinator.Mkdir(ctx, r.Parent, r.Name, r.Mode, r.Uid, r.Gid)
		if err != nil {
			return nil, err, true
		}
		return wire.InodeResponse{Attrs: attrs}, nil, true

	case wire.CreateRequest:
		attrs, err := s.coordinator.Create(ctx, r.Parent, r.Name, r.Mode, r.Uid, r.Gid)
		if err != nil {
			return nil, err, true
		}
		return wire.InodeResponse{Attrs: attrs}, nil, true

	case wire.UnlinkRequest:
		if err := s.coordinator.Unlink(ctx, r.Parent, r.Name); err != nil {
			return nil, err, true
		}
		return wire.EmptyResponse{}, nil, true

	case wire.RmdirRequest:
		if err := s.coordinator.Rmdir(ctx, r.Parent, r.Name); err != nil {
			return nil, err, true
		}
		return wire.EmptyResponse{}, nil, true

	case wire.RenameRequest:
		if err := s.coordinator.Rename(ctx, r.Parent, r.Name, r.NewParent, r.NewName); err != nil {
			return nil, err, true
		}
		return wire.EmptyResponse{}, nil, true

	case wire.HardlinkRequest:
		existing, err := s.coordinator.Getattr(ctx, r.Ino)
		if err != nil {
			return nil, err, true
		}
		attrs, err := s.coordinator.Hardlink(ctx, r.Ino, r.NewParent, r.NewName, existing.Kind)
		if err != nil {
			return nil, err, true
		}
		return wire.InodeResponse{Attrs: attrs}, nil, true

	default:
		return nil, nil, false
	}
}

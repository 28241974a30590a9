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

// applySetXattr and applyRemoveXattr enforce the namespace permission
// check here rather than in the facade, per spec.md §4.7: "Permission
// checks ... are performed at the leader inside the state machine ...
// so that they are linearized with other mutations."
func (g *Rgroup) applySetXattr(ctx context.Context, r wire.SetXattrRequest, commit wire.CommitID) (wire.Response, error) {
	if !wire.XattrNamespaceAllowed(r.Key, r.Uid) {
		return nil, errorcode.InvalidXattrNamespace
	}
	if err := g.store.SetXattr(ctx, r.Ino, r.Key, r.Value); err != nil {
		return nil, err
	}
	return wire.EmptyResponse{Commit: wire.Commit{Applied: &commit}}, nil
}

func (g *Rgroup) applyRemoveXattr(ctx context.Context, r wire.RemoveXattrRequest, commit wire.CommitID) (wire.Response, error) {
	if !wire.XattrNamespaceAllowed(r.Key, r.Uid) {
		return nil, errorcode.InvalidXattrNamespace
	}
	if err := g.store.RemoveXattr(ctx, r.Ino, r.Key); err != nil {
		return nil, err
	}
	return wire.EmptyResponse{Commit: wire.Commit{Applied: &commit}}, nil
}

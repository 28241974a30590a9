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

package router

import (
	"context"

	"go.etcd.io/etcd/raft/v3/raftpb"

	"github.com/fleetfs/fleetfs/wire"
)

// RaftTransport adapts a Router into a consensus.Transport, carrying
// one rgroup's inter-replica raft messages over the same framed
// connections client traffic uses, per spec.md §4.4's "network
// transport for inter-replica messages reuses the same framed
// connections as client traffic." Unlike Router.Send, delivery here
// targets msg.To directly: raft already knows which node it wants to
// reach and a stale leader hint must never redirect a vote or
// heartbeat to the wrong replica.
type RaftTransport struct {
	router *Router
	rgroup uint16
}

func NewRaftTransport(r *Router, rgroup uint16) *RaftTransport {
	return &RaftTransport{router: r, rgroup: rgroup}
}

func (t *RaftTransport) Send(ctx context.Context, msg raftpb.Message) error {
	data, err := msg.Marshal()
	if err != nil {
		return err
	}
	_, err = t.router.SendTo(ctx, msg.To, t.rgroup, wire.RaftRequest{Rgroup: t.rgroup, Message: data})
	return err
}

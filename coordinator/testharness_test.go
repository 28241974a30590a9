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
	"encoding/binary"
	"net"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fleetfs/fleetfs/common/kvstore"
	"github.com/fleetfs/fleetfs/consensus"
	"github.com/fleetfs/fleetfs/errorcode"
	"github.com/fleetfs/fleetfs/rgroup"
	"github.com/fleetfs/fleetfs/router"
	"github.com/fleetfs/fleetfs/store"
	"github.com/fleetfs/fleetfs/util"
	"github.com/fleetfs/fleetfs/wire"
)

// testCluster drives a Coordinator against real rgroup.Rgroup state
// machines backed by real on-disk stores, reachable through a real
// Router over a real TCP listener, minus the raft log: every request this harness receives is either served
// straight from the local store (the read-only tags) or applied as a
// single-proposal batch directly, skipping the Driver entirely since
// nothing here exercises leader election or replication.
type testCluster struct {
	t       *testing.T
	rgroups map[uint16]*rgroup.Rgroup

	// intercept, if set, runs synchronously on the goroutine handling
	// each decoded request, just before that request is dispatched, letting
	// a test inject another request in between two steps of a
	// Coordinator call to force a specific interleaving.
	intercept func(req wire.Request)
}

func newTestCluster(t *testing.T, numRgroups uint16) (*testCluster, *Coordinator) {
	tc := &testCluster{t: t, rgroups: make(map[uint16]*rgroup.Rgroup, numRgroups)}

	for id := uint16(0); id < numRgroups; id++ {
		path, err := util.GenTmpPath()
		require.NoError(t, err)
		t.Cleanup(func() { os.RemoveAll(path) })

		s, err := store.NewStore(context.Background(), &store.Config{Path: path, KVOption: kvstore.Option{}})
		require.NoError(t, err)
		t.Cleanup(s.Close)

		if id == uint16(wire.RootIno%uint64(numRgroups)) {
			require.NoError(t, s.EnsureRootInode(context.Background(), 0o755, wire.Timestamp{Seconds: 1}))
		}

		tc.rgroups[id] = rgroup.New(rgroup.Config{ID: id, NumRgroups: numRgroups, Store: s})
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go tc.acceptLoop(ln)

	r := router.NewRouter(router.Config{
		NumRgroups: numRgroups,
		Peers:      map[uint64]string{1: ln.Addr().String()},
	})
	t.Cleanup(r.Close)

	return tc, New(r)
}

func (tc *testCluster) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go tc.serveConn(conn)
	}
}

// serveConn dispatches each frame on its own goroutine, exactly the
// way server/listener.go's serveConn does: a handler that itself
// round-trips more requests over this same connection (as the race
// test in rename_test.go does, recursing into another Coordinator call from
// inside a hook) must never block the loop that reads this
// connection's own responses, or it deadlocks itself.
func (tc *testCluster) serveConn(conn net.Conn) {
	defer conn.Close()
	var writeMu sync.Mutex
	for {
		frame, err := wire.ReadFrame(conn)
		if err != nil {
			return
		}
		if len(frame) < 10 {
			continue
		}
		id := binary.LittleEndian.Uint64(frame[:8])
		rgroupID := binary.LittleEndian.Uint16(frame[8:10])
		payload := append([]byte(nil), frame[10:]...)

		go func(id uint64, rgroupID uint16, payload []byte) {
			resp := tc.handle(rgroupID, payload)

			out := make([]byte, 8+len(resp))
			binary.LittleEndian.PutUint64(out[:8], id)
			copy(out[8:], resp)

			writeMu.Lock()
			defer writeMu.Unlock()
			wire.WriteFrame(conn, out)
		}(id, rgroupID, payload)
	}
}

func (tc *testCluster) handle(rgroupID uint16, payload []byte) []byte {
	req, err := wire.DecodeRequest(payload)
	if err != nil {
		return wire.EncodeResponse(wire.ErrorResponse{Code: errorcode.FromError(err)})
	}
	if tc.intercept != nil {
		tc.intercept(req)
	}

	if req.Tag() == wire.TagRaftGroupLeaderRequest {
		return wire.EncodeResponse(wire.NodeIdResponse{NodeID: 1})
	}

	g, ok := tc.rgroups[rgroupID]
	if !ok {
		return wire.EncodeResponse(wire.ErrorResponse{Code: errorcode.BadRequest})
	}

	ctx := context.Background()
	if wire.IsReadOnly(req.Tag()) {
		resp, err := g.Serve(ctx, req, wire.CommitID{})
		if err != nil {
			return wire.EncodeResponse(wire.ErrorResponse{Code: errorcode.FromError(err)})
		}
		return wire.EncodeResponse(resp)
	}

	replies, err := g.Apply(ctx, []consensus.Proposal{{Request: payload}}, 1, 1)
	if err != nil || len(replies) != 1 {
		return wire.EncodeResponse(wire.ErrorResponse{Code: errorcode.FromError(err)})
	}
	return replies[0]
}

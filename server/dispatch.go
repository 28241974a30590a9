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
	"fmt"
	"strconv"
	"time"

	"go.etcd.io/etcd/raft/v3/raftpb"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/google/uuid"

	"github.com/fleetfs/fleetfs/errorcode"
	"github.com/fleetfs/fleetfs/metrics"
	"github.com/fleetfs/fleetfs/rgroup"
	"github.com/fleetfs/fleetfs/wire"
)

func nowTimestamp() wire.Timestamp {
	t := time.Now()
	return wire.Timestamp{Seconds: t.Unix(), Nanos: int32(t.Nanosecond())}
}

// handle answers one decoded request addressed (by the connection
// envelope) to rgroupID. It is the single entry point every inbound
// connection funnels through, client traffic and inter-replica raft
// traffic alike, per spec.md §4.4.
func (s *Server) handle(ctx context.Context, rgroupID uint16, req wire.Request) (resp wire.Response, err error) {
	span, ctx := trace.StartSpanFromContextWithTraceID(ctx, "", uuid.NewString())

	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		} else if code, isErr := wire.AsError(resp); isErr {
			outcome = code.String()
		}
		metrics.RequestsTotal.WithLabelValues(strconv.Itoa(int(rgroupID)), fmt.Sprintf("%T", req), outcome).Inc()
	}()

	if resp, err, handled := s.dispatchFacade(ctx, req); handled {
		return resp, err
	}

	if req.Tag() == wire.TagRaftRequest {
		return s.stepRaft(req)
	}
	if req.Tag() == wire.TagRaftGroupLeaderRequest {
		r, _ := req.(wire.RaftGroupLeaderRequest)
		hr, ok := s.rgroups[r.Rgroup]
		if !ok {
			return nil, errorcode.BadRequest
		}
		return wire.NodeIdResponse{NodeID: hr.driver.Leader()}, nil
	}

	hr, ok := s.rgroups[rgroupID]
	if !ok {
		return nil, errorcode.BadRequest
	}

	if wire.IsReadOnly(req.Tag()) {
		return s.serveRead(ctx, hr, req)
	}

	span.Infof("proposing %T to rgroup %d", req, rgroupID)
	reply, err := hr.driver.Propose(ctx, span.TraceID(), wire.EncodeRequest(req))
	if err != nil {
		span.Warnf("propose %T to rgroup %d failed: %s", req, rgroupID, err)
		return nil, errorcode.RaftFailure
	}
	return wire.DecodeResponse(reply)
}

func (s *Server) stepRaft(req wire.Request) (wire.Response, error) {
	rr, ok := req.(wire.RaftRequest)
	if !ok {
		return nil, errorcode.BadRequest
	}
	hr, ok := s.rgroups[rr.Rgroup]
	if !ok {
		return nil, errorcode.BadRequest
	}
	var msg raftpb.Message
	if err := msg.Unmarshal(rr.Message); err != nil {
		return nil, errorcode.BadRequest
	}
	if err := hr.driver.Step(context.Background(), msg); err != nil {
		return nil, errorcode.RaftFailure
	}
	return wire.EmptyResponse{}, nil
}

// serveRead answers a read-only request directly against hr's local
// store once hr believes itself to be the leader and has caught up to
// whatever required_commit the request carries, per spec.md §4.3.
func (s *Server) serveRead(ctx context.Context, hr *hostedRgroup, req wire.Request) (wire.Response, error) {
	if !hr.driver.IsLeader() {
		return nil, errorcode.RaftFailure
	}
	if req.Tag() == wire.TagFilesystemReadyRequest && !hr.isReady() {
		return nil, errorcode.RaftFailure
	}

	required := requiredCommitOf(req)
	backoff := 5 * time.Millisecond
	for {
		term, index := hr.driver.AppliedCommit()
		applied := wire.CommitID{Term: term, Index: index}
		if rgroup.CaughtUpTo(applied, required) {
			return hr.rgroup.Serve(ctx, req, applied)
		}
		t := time.NewTimer(backoff)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil, errorcode.RaftFailure
		}
		if backoff < 200*time.Millisecond {
			backoff *= 2
		}
	}
}

// requiredCommitOf extracts the optional required_commit field the
// per-inode read requests carry, per spec.md §4.3. The cluster-wide
// read-only requests (checksum, ready, info, latest commit, raft
// leader) have no such field: they answer from whatever this replica
// currently has applied.
func requiredCommitOf(req wire.Request) *wire.CommitID {
	switch r := req.(type) {
	case wire.GetattrRequest:
		return r.RequiredCommit
	case wire.ReadRequest:
		return r.RequiredCommit
	case wire.ReadRawRequest:
		return r.RequiredCommit
	case wire.ReaddirRequest:
		return r.RequiredCommit
	case wire.LookupRequest:
		return r.RequiredCommit
	case wire.GetXattrRequest:
		return r.RequiredCommit
	case wire.ListXattrsRequest:
		return r.RequiredCommit
	default:
		return nil
	}
}

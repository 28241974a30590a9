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

// Package rgroup implements the per-rgroup state machine: it
// decodes committed wire.Request proposals and drives them against a
// local store.Store, turning every apply outcome into a wire.Response
// instead of a Go error, so one bad proposal in a batch never fails
// its neighbors. It implements consensus.Applier.
package rgroup

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cubefs/cubefs/blobstore/util/errors"
	"github.com/cubefs/cubefs/blobstore/util/log"

	"github.com/fleetfs/fleetfs/consensus"
	"github.com/fleetfs/fleetfs/errorcode"
	"github.com/fleetfs/fleetfs/metrics"
	"github.com/fleetfs/fleetfs/store"
	"github.com/fleetfs/fleetfs/wire"
)

// Config bundles what one rgroup's state machine needs to start.
type Config struct {
	ID         uint16
	NumRgroups uint16
	Store      *store.Store
}

// Rgroup is the consensus.Applier for one rgroup: every mutating
// request that reaches Apply has already been committed by a
// majority of its replicas, so the handlers here never need to worry
// about partial failure, only about producing the same result on
// every replica given the same input.
type Rgroup struct {
	id         uint16
	numRgroups uint16
	store      *store.Store
	label      string // id as a string, precomputed for metrics labels

	leader uint64 // atomic

	fencingMu sync.Mutex
	fencing   map[uint64]uint64 // ino -> highest fencing token already applied
}

func New(cfg Config) *Rgroup {
	return &Rgroup{
		id:         cfg.ID,
		numRgroups: cfg.NumRgroups,
		store:      cfg.Store,
		label:      strconv.Itoa(int(cfg.ID)),
		fencing:    make(map[uint64]uint64),
	}
}

// ID returns the rgroup id this state machine owns.
func (g *Rgroup) ID() uint16 { return g.id }

// Store exposes the underlying local store for read-only serving
// paths that bypass consensus entirely, per spec.md §4.3.
func (g *Rgroup) Store() *store.Store { return g.store }

// Leader returns the node id this rgroup currently believes is its
// leader, or 0 if none is known.
func (g *Rgroup) Leader() uint64 { return atomic.LoadUint64(&g.leader) }

// Apply implements consensus.Applier. It never returns an error for
// a per-proposal business failure (wrong inode, name taken, and so
// on): those are encoded as an ErrorResponse so the batch's other
// proposals still apply and every replica stays in lockstep.
func (g *Rgroup) Apply(ctx context.Context, proposals []consensus.Proposal, term, index uint64) ([][]byte, error) {
	start := time.Now()
	replies := make([][]byte, len(proposals))
	for i, p := range proposals {
		replies[i] = g.applyOne(ctx, p, wire.CommitID{Term: term, Index: index})
	}
	metrics.ApplyLatencySeconds.WithLabelValues(g.label).Observe(time.Since(start).Seconds())
	return replies, nil
}

func (g *Rgroup) applyOne(ctx context.Context, p consensus.Proposal, commit wire.CommitID) []byte {
	req, err := wire.DecodeRequest(p.Request)
	if err != nil {
		return errorResponse(err)
	}

	resp, err := g.dispatch(ctx, req, commit)
	if err != nil {
		return errorResponse(err)
	}
	return wire.EncodeResponse(resp)
}

func errorResponse(err error) []byte {
	return wire.EncodeResponse(wire.ErrorResponse{Code: errorcode.FromError(err)})
}

// dispatch routes one already-committed request to the matching
// store operation. Every case here is either a single-inode mutating
// operation or one of the coordinator's internal transaction
// primitives: facade-level requests that can span two rgroups
// (Mkdir, Create, Unlink, Rmdir, Rename, Hardlink) are decomposed by
// package coordinator into these primitives before they ever reach a
// Driver.Propose call, so Apply never sees them directly.
func (g *Rgroup) dispatch(ctx context.Context, req wire.Request, commit wire.CommitID) (wire.Response, error) {
	switch r := req.(type) {
	case wire.WriteRequest:
		return g.applyWrite(ctx, r, commit)
	case wire.TruncateRequest:
		return g.applyTruncate(ctx, r, commit)
	case wire.FsyncRequest:
		return g.applyFsync(ctx, r, commit)
	case wire.ChmodRequest:
		return g.applyChmod(ctx, r, commit)
	case wire.ChownRequest:
		return g.applyChown(ctx, r, commit)
	case wire.UtimensRequest:
		return g.applyUtimens(ctx, r, commit)
	case wire.SetXattrRequest:
		return g.applySetXattr(ctx, r, commit)
	case wire.RemoveXattrRequest:
		return g.applyRemoveXattr(ctx, r, commit)
	case wire.CreateInodeRequest:
		return g.applyCreateInode(ctx, r, commit)
	case wire.CreateLinkRequest:
		return g.applyCreateLink(ctx, r, commit)
	case wire.ReplaceLinkRequest:
		return g.applyReplaceLink(ctx, r, commit)
	case wire.RemoveLinkRequest:
		return g.applyRemoveLink(ctx, r, commit)
	case wire.DecrementInodeRequest:
		return g.applyDecrementInode(ctx, r, commit)
	case wire.HardlinkIncrementRequest:
		return g.applyHardlinkIncrement(ctx, r, commit)
	case wire.HardlinkRollbackRequest:
		return g.applyHardlinkRollback(ctx, r, commit)
	case wire.UpdateParentRequest:
		return g.applyUpdateParent(ctx, r, commit)
	case wire.UpdateMetadataChangedTimeRequest:
		return g.applyUpdateMetadataChangedTime(ctx, r, commit)
	case wire.LockRequest:
		return g.applyLock(ctx, r, commit)
	case wire.UnlockRequest:
		return g.applyUnlock(ctx, r, commit)
	default:
		return nil, errorcode.BadRequest
	}
}

func now() wire.Timestamp {
	t := time.Now()
	return wire.Timestamp{Seconds: t.Unix(), Nanos: int32(t.Nanosecond())}
}

// seenFencingToken reports whether token has already been applied
// for ino (in which case the caller should treat this proposal as a
// no-op replay) and records it otherwise. Fencing tokens come from
// the coordinator's nextToken counter, which increases strictly
// within one coordinator process, so for tokens from that process the
// highest one seen for an inode is enough to recognize a retried
// propose of an older one.
func (g *Rgroup) seenFencingToken(ino, token uint64) bool {
	g.fencingMu.Lock()
	defer g.fencingMu.Unlock()

	if last, ok := g.fencing[ino]; ok && token <= last {
		return true
	}
	g.fencing[ino] = token
	return false
}

// forgetFencing drops ino's fencing bookkeeping once it no longer
// exists, so the table stays bounded by live inode count rather than
// growing for the life of the process.
func (g *Rgroup) forgetFencing(ino uint64) {
	g.fencingMu.Lock()
	delete(g.fencing, ino)
	g.fencingMu.Unlock()
}

// ApplyMemberChange implements consensus.Applier. The rgroup state
// machine itself holds no membership-dependent state beyond what
// consensus.storage already tracks, so this is a log line rather than
// a mutation.
func (g *Rgroup) ApplyMemberChange(ctx context.Context, member consensus.Member, index uint64) error {
	log.Info("rgroup ", g.id, ": membership change applied for node ", member.NodeID, " at index ", index)
	return nil
}

// LeaderChange implements consensus.Applier.
func (g *Rgroup) LeaderChange(ctx context.Context, nodeID uint64) {
	atomic.StoreUint64(&g.leader, nodeID)
	metrics.LeaderChangesTotal.WithLabelValues(g.label).Inc()
}

// Snapshot implements consensus.Applier by delegating to the local
// store's own column-family dump.
func (g *Rgroup) Snapshot(ctx context.Context) ([]byte, error) {
	data, err := g.store.ExportSnapshot(ctx)
	if err != nil {
		return nil, errors.Info(err, "rgroup snapshot").Detail(err)
	}
	return data, nil
}

// ApplySnapshot implements consensus.Applier by replacing the local
// store's entire keyspace with data, and clearing the fencing-token
// table since it only reflects in-flight transactions the snapshot
// source has already resolved one way or another.
func (g *Rgroup) ApplySnapshot(ctx context.Context, data []byte) error {
	if err := g.store.ImportSnapshot(ctx, data); err != nil {
		return errors.Info(err, "rgroup apply snapshot").Detail(err)
	}
	g.fencingMu.Lock()
	g.fencing = make(map[uint64]uint64)
	g.fencingMu.Unlock()
	return nil
}

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

// Package router implements spec.md §4.5: it maps an inode to the
// rgroup that owns it, keeps a per-rgroup leader hint, and forwards
// requests to that leader over a small pool of persistent framed
// connections, retrying with bounded exponential backoff on
// RaftFailure until the caller's context expires.
package router

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/cubefs/cubefs/blobstore/util/log"

	"github.com/fleetfs/fleetfs/errorcode"
	"github.com/fleetfs/fleetfs/wire"
)

// Config bundles what a Router needs to know about the cluster it
// routes into. Peers maps every node id the router may talk to
// (including the local node, if this process also hosts rgroups) to
// its dial address.
type Config struct {
	NumRgroups uint16
	Peers      map[uint64]string

	DialTimeout    time.Duration
	RequestTimeout time.Duration
	MaxBackoff     time.Duration
}

func (c *Config) setDefaults() {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 2 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 5 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 2 * time.Second
	}
}

// Router is the client-side (and inter-node) gateway onto the
// cluster's rgroups. It is safe for concurrent use by many callers:
// the coordinator, the facade's direct single-rgroup calls, and the
// consensus Transport that rides the same connection pool for raft
// traffic all share one Router per process.
type Router struct {
	cfg Config

	mu      sync.RWMutex
	peers   map[uint64]string
	leaders []uint64

	pool *connPool
	sf   singleflight.Group
}

func NewRouter(cfg Config) *Router {
	cfg.setDefaults()
	peers := make(map[uint64]string, len(cfg.Peers))
	for id, addr := range cfg.Peers {
		peers[id] = addr
	}
	return &Router{
		cfg:     cfg,
		peers:   peers,
		leaders: make([]uint64, cfg.NumRgroups),
		pool:    newConnPool(cfg.DialTimeout),
	}
}

// RgroupOf returns the rgroup that owns ino, per spec.md §3. Inode ids
// are allocated so that ino % numRgroups already names the allocating
// rgroup (see store.nextIno), so that modulo is the routing function;
// there is no separate hash to compute or cache.
func (r *Router) RgroupOf(ino uint64) uint16 {
	return uint16(ino % uint64(r.cfg.NumRgroups))
}

// NumRgroups returns the fixed rgroup count this router was
// configured with.
func (r *Router) NumRgroups() uint16 { return r.cfg.NumRgroups }

// SetPeer installs or updates the dial address for nodeID, used when
// cluster membership changes after startup.
func (r *Router) SetPeer(nodeID uint64, addr string) {
	r.mu.Lock()
	r.peers[nodeID] = addr
	r.mu.Unlock()
}

func (r *Router) peerAddr(nodeID uint64) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	addr, ok := r.peers[nodeID]
	return addr, ok
}

func (r *Router) allPeerIDs() []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uint64, 0, len(r.peers))
	for id := range r.peers {
		ids = append(ids, id)
	}
	return ids
}

func (r *Router) leaderHint(rgroup uint16) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(rgroup) >= len(r.leaders) {
		return 0
	}
	return r.leaders[rgroup]
}

func (r *Router) setLeaderHint(rgroup uint16, nodeID uint64) {
	r.mu.Lock()
	if int(rgroup) < len(r.leaders) {
		r.leaders[rgroup] = nodeID
	}
	r.mu.Unlock()
}

func (r *Router) clearLeaderHint(rgroup uint16, stale uint64) {
	r.mu.Lock()
	if int(rgroup) < len(r.leaders) && r.leaders[rgroup] == stale {
		r.leaders[rgroup] = 0
	}
	r.mu.Unlock()
}

// Send delivers req to rgroup's current leader, retrying on
// RaftFailure and on connection errors with jittered exponential
// backoff until ctx is done, per spec.md §4.5.
func (r *Router) Send(ctx context.Context, rgroup uint16, req wire.Request) (wire.Response, error) {
	backoff := 50 * time.Millisecond

	for {
		nodeID := r.leaderHint(rgroup)
		if nodeID == 0 {
			var err error
			nodeID, err = r.discoverLeader(ctx, rgroup)
			if err != nil {
				if !sleepBackoff(ctx, jitter(backoff)) {
					return nil, errorcode.RaftFailure
				}
				backoff = nextBackoff(backoff, r.cfg.MaxBackoff)
				continue
			}
		}

		resp, err := r.roundTrip(ctx, nodeID, rgroup, req)
		if err != nil {
			log.Warn("router: request to node ", nodeID, " for rgroup ", rgroup, " failed: ", err)
			r.clearLeaderHint(rgroup, nodeID)
			if !sleepBackoff(ctx, jitter(backoff)) {
				return nil, errorcode.RaftFailure
			}
			backoff = nextBackoff(backoff, r.cfg.MaxBackoff)
			continue
		}

		if code, isErr := wire.AsError(resp); isErr && code == errorcode.RaftFailure {
			r.clearLeaderHint(rgroup, nodeID)
			if !sleepBackoff(ctx, jitter(backoff)) {
				return nil, errorcode.RaftFailure
			}
			backoff = nextBackoff(backoff, r.cfg.MaxBackoff)
			continue
		}

		r.setLeaderHint(rgroup, nodeID)
		return resp, nil
	}
}

// SendTo delivers req directly to nodeID, addressed to rgroup, without
// consulting or updating the leader hint, used for RaftGroupLeaderRequest
// probes and for raft's own point-to-point messages.
func (r *Router) SendTo(ctx context.Context, nodeID uint64, rgroup uint16, req wire.Request) (wire.Response, error) {
	return r.roundTrip(ctx, nodeID, rgroup, req)
}

func (r *Router) roundTrip(ctx context.Context, nodeID uint64, rgroup uint16, req wire.Request) (wire.Response, error) {
	addr, ok := r.peerAddr(nodeID)
	if !ok {
		return nil, errorcode.RaftFailure
	}
	conn, err := r.pool.get(ctx, nodeID, addr)
	if err != nil {
		return nil, err
	}
	reqCtx := ctx
	if r.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, r.cfg.RequestTimeout)
		defer cancel()
	}
	resp, err := conn.RoundTrip(reqCtx, rgroup, req)
	if err != nil {
		r.pool.drop(nodeID, conn)
		return nil, err
	}
	return resp, nil
}

// discoverLeader asks every known peer, round-robin starting from a
// random offset, who they believe leads rgroup, coalescing concurrent
// callers for the same rgroup onto one in-flight probe.
func (r *Router) discoverLeader(ctx context.Context, rgroup uint16) (uint64, error) {
	v, err, _ := r.sf.Do(singleflightKey(rgroup), func() (interface{}, error) {
		ids := r.allPeerIDs()
		if len(ids) == 0 {
			return uint64(0), errorcode.RaftFailure
		}
		start := rand.Intn(len(ids))
		for i := 0; i < len(ids); i++ {
			id := ids[(start+i)%len(ids)]
			resp, err := r.roundTrip(ctx, id, rgroup, wire.RaftGroupLeaderRequest{Rgroup: rgroup})
			if err != nil {
				continue
			}
			if nr, ok := resp.(wire.NodeIdResponse); ok && nr.NodeID != 0 {
				r.setLeaderHint(rgroup, nr.NodeID)
				return nr.NodeID, nil
			}
		}
		return uint64(0), errorcode.RaftFailure
	})
	if err != nil {
		return 0, err
	}
	return v.(uint64), nil
}

// Close releases every pooled connection.
func (r *Router) Close() { r.pool.closeAll() }

func singleflightKey(rgroup uint16) string {
	const digits = "0123456789abcdefghijklmnopqrstuvwxyz"
	buf := [4]byte{digits[0], digits[0], digits[0], digits[0]}
	v := rgroup
	for i := 3; i >= 0 && v > 0; i-- {
		buf[i] = digits[v%36]
		v /= 36
	}
	return string(buf[:])
}

func jitter(d time.Duration) time.Duration {
	return d/2 + time.Duration(rand.Int63n(int64(d)))
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}

func sleepBackoff(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

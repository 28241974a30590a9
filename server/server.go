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

// Package server hosts a node's rgroup replicas and answers every
// framed connection, client and inter-replica alike, the way
// router/conn.go expects: an 8-byte correlation id and a 2-byte
// rgroup id in front of one wire.Request payload. It plays the role
// the teacher's server package plays for a shardserver node, minus
// the master and catalog layers FleetFS has no equivalent of.
package server

import (
	"context"
	"fmt"

	"github.com/cubefs/cubefs/blobstore/util/errors"
	"github.com/cubefs/cubefs/blobstore/util/log"

	"github.com/fleetfs/fleetfs/consensus"
	"github.com/fleetfs/fleetfs/coordinator"
	"github.com/fleetfs/fleetfs/router"
	"github.com/fleetfs/fleetfs/rgroup"
	"github.com/fleetfs/fleetfs/store"
	"github.com/fleetfs/fleetfs/wire"
)

// RgroupConfig describes one rgroup replica this node hosts.
type RgroupConfig struct {
	ID      uint16             `json:"id"`
	Members []consensus.Member `json:"members"`
	Store   store.Config       `json:"store"`

	ElectionTick  int `json:"election_tick"`
	HeartbeatTick int `json:"heartbeat_tick"`
}

// Config bundles everything one FleetFS node needs to start, mirroring
// the teacher's server.Config shape (NodeConfig/StoreConfig bundled
// under one struct loaded by config.Load) but scoped to rgroups
// instead of shards.
type Config struct {
	NodeID     uint64 `json:"node_id"`
	ListenAddr string `json:"listen_addr"`
	NumRgroups uint16 `json:"num_rgroups"`

	Rgroups []RgroupConfig `json:"rgroups"`
	Router  router.Config  `json:"router"`
}

// hostedRgroup bundles one rgroup's state machine with the consensus
// Driver that replicates into it and the readiness flag a freshly
// started node must clear before FilesystemReadyRequest answers true.
type hostedRgroup struct {
	rgroup *rgroup.Rgroup
	driver *consensus.Driver
	ready  int32 // atomic bool, see ready.go
}

// Server owns every rgroup replica a node hosts, the Router those
// replicas and the coordinator share for outbound traffic, and the
// listener that answers inbound framed connections.
type Server struct {
	cfg         Config
	router      *router.Router
	coordinator *coordinator.Coordinator
	rgroups     map[uint16]*hostedRgroup
	listener    *listener
	stopCh      chan struct{}
}

// NewServer opens every configured rgroup's local store, starts its
// consensus Driver, and wires a coordinator over the shared Router.
// It does not yet accept connections; call Serve for that.
func NewServer(ctx context.Context, cfg Config) (*Server, error) {
	r := router.NewRouter(cfg.Router)

	s := &Server{
		cfg:     cfg,
		router:  r,
		rgroups: make(map[uint16]*hostedRgroup, len(cfg.Rgroups)),
		stopCh:  make(chan struct{}),
	}
	s.coordinator = coordinator.New(r)

	for _, rc := range cfg.Rgroups {
		if err := s.startRgroup(ctx, rc); err != nil {
			s.Close()
			return nil, errors.Info(err, fmt.Sprintf("start rgroup %d", rc.ID)).Detail(err)
		}
	}

	return s, nil
}

func (s *Server) startRgroup(ctx context.Context, rc RgroupConfig) error {
	st, err := store.NewStore(ctx, &rc.Store)
	if err != nil {
		return err
	}

	g := rgroup.New(rgroup.Config{ID: rc.ID, NumRgroups: s.cfg.NumRgroups, Store: st})

	if rc.ID == wire.RootRgroup {
		if err := st.EnsureRootInode(ctx, 0755, nowTimestamp()); err != nil {
			return err
		}
	}

	driver, err := consensus.NewDriver(ctx, consensus.Config{
		GroupID:       uint64(rc.ID),
		NodeID:        s.cfg.NodeID,
		Members:       rc.Members,
		KV:            st.KVStore(),
		Applier:       g,
		Transport:     router.NewRaftTransport(s.router, rc.ID),
		ElectionTick:  rc.ElectionTick,
		HeartbeatTick: rc.HeartbeatTick,
	})
	if err != nil {
		st.Close()
		return err
	}

	hr := &hostedRgroup{rgroup: g, driver: driver}
	s.rgroups[rc.ID] = hr
	go s.watchReadiness(hr)
	return nil
}

// Coordinator exposes the shared coordinator for an in-process facade.
func (s *Server) Coordinator() *coordinator.Coordinator { return s.coordinator }

// Router exposes the shared router for an in-process facade or for
// operator tooling that wants to issue requests directly.
func (s *Server) Router() *router.Router { return s.router }

// Close stops every hosted rgroup's Driver and local store, and closes
// the listener and connection pool if they were started.
func (s *Server) Close() {
	close(s.stopCh)
	if s.listener != nil {
		s.listener.Close()
	}
	for id, hr := range s.rgroups {
		if err := hr.driver.Close(); err != nil {
			log.Warn("server: closing driver for rgroup ", id, " failed: ", err)
		}
		hr.rgroup.Store().Close()
	}
	s.router.Close()
}

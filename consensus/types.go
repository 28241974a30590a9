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

// Package consensus drives one rgroup's replicated log on top of
// go.etcd.io/etcd/raft/v3: proposing entries, persisting them,
// applying committed entries to a caller-supplied state machine, and
// moving membership and snapshots between replicas.
package consensus

import "github.com/fleetfs/fleetfs/wire"

// Proposal is one client request riding the consensus log. NotifyID
// correlates a commit back to the goroutine blocked in Propose;
// TraceID carries the originating span so a replica applying the
// entry can continue the same trace the proposer started.
type Proposal struct {
	NotifyID uint64
	TraceID  string
	Request  []byte // wire.EncodeRequest output
}

func (p Proposal) encode() []byte {
	e := wire.NewEncoder(16 + len(p.TraceID) + len(p.Request))
	e.PutUint64(p.NotifyID)
	e.PutString(p.TraceID)
	e.PutBytes(p.Request)
	return e.Bytes()
}

func decodeProposal(raw []byte) (Proposal, error) {
	d := wire.NewDecoder(raw)
	p := Proposal{
		NotifyID: d.Uint64(),
		TraceID:  d.String(),
		Request:  d.Bytes(),
	}
	if d.Err() != nil {
		return Proposal{}, d.Err()
	}
	return p, nil
}

// Member describes one rgroup replica for a configuration change.
type Member struct {
	NodeID  uint64
	Host    string
	Learner bool
}

func (m Member) encode() []byte {
	e := wire.NewEncoder(16 + len(m.Host))
	e.PutUint64(m.NodeID)
	e.PutString(m.Host)
	e.PutBool(m.Learner)
	return e.Bytes()
}

func decodeMember(raw []byte) (Member, error) {
	d := wire.NewDecoder(raw)
	m := Member{
		NodeID:  d.Uint64(),
		Host:    d.String(),
		Learner: d.Bool(),
	}
	if d.Err() != nil {
		return Member{}, d.Err()
	}
	return m, nil
}

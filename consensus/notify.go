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

package consensus

import (
	"context"
	"sync/atomic"
	"time"
)

type proposalResult struct {
	reply interface{}
	err   error
}

func newNotify() notify {
	return make(chan proposalResult, 1)
}

type notify chan proposalResult

func (n notify) Notify(ret proposalResult) {
	select {
	case n <- ret:
	default:
	}
}

func (n notify) Wait(ctx context.Context) (proposalResult, error) {
	select {
	case <-ctx.Done():
		return proposalResult{}, ctx.Err()
	case ret := <-n:
		return ret, nil
	}
}

// idGenerator produces NotifyIDs that stay unique for this process's
// lifetime even across restarts, by mixing the node id and a
// millisecond timestamp into the high bits, per the teacher's
// propose-id scheme.
type idGenerator struct {
	prefix uint64
	suffix uint64
}

func newIDGenerator(nodeID uint64, now time.Time) *idGenerator {
	return &idGenerator{
		prefix: nodeID << 48,
		suffix: lowBits(uint64(now.UnixNano())/uint64(time.Millisecond), 40) << 8,
	}
}

func (g *idGenerator) Next() uint64 {
	suffix := atomic.AddUint64(&g.suffix, 1)
	return g.prefix | lowBits(suffix, 48)
}

func lowBits(x uint64, n uint) uint64 {
	return x & (^uint64(0) >> (64 - n))
}

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
	"sync/atomic"
	"time"
)

// watchReadiness flips hr's readiness flag once its Driver completes
// one successful ReadIndex round trip: that only happens once a
// quorum of the rgroup has confirmed this replica's view of the log,
// so a node answering FilesystemReadyRequest true has proven it is
// not partitioned away from its peers, per SPEC_FULL.md's node
// readiness gate. It keeps retrying with bounded backoff since a
// freshly started replica usually has no leader yet.
func (s *Server) watchReadiness(hr *hostedRgroup) {
	backoff := 100 * time.Millisecond
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := hr.driver.ReadIndex(ctx)
		cancel()
		if err == nil {
			atomic.StoreInt32(&hr.ready, 1)
			return
		}

		t := time.NewTimer(backoff)
		select {
		case <-t.C:
		case <-s.stopCh:
			t.Stop()
			return
		}
		if backoff < 5*time.Second {
			backoff *= 2
		}
	}
}

func (hr *hostedRgroup) isReady() bool {
	return atomic.LoadInt32(&hr.ready) == 1
}

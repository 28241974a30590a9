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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRgroupOf(t *testing.T) {
	r := NewRouter(Config{NumRgroups: 4, Peers: map[uint64]string{1: "a"}})
	require.Equal(t, uint16(0), r.RgroupOf(8))
	require.Equal(t, uint16(1), r.RgroupOf(9))
	require.Equal(t, uint16(2), r.RgroupOf(10))
	require.Equal(t, uint16(3), r.RgroupOf(11))
}

func TestLeaderHintRoundTrips(t *testing.T) {
	r := NewRouter(Config{NumRgroups: 2, Peers: map[uint64]string{1: "a"}})
	require.Zero(t, r.leaderHint(0))
	r.setLeaderHint(0, 7)
	require.Equal(t, uint64(7), r.leaderHint(0))
	r.clearLeaderHint(0, 7)
	require.Zero(t, r.leaderHint(0))
}

func TestNextBackoffCapsAtMax(t *testing.T) {
	max := 2 * time.Second
	d := 50 * time.Millisecond
	for i := 0; i < 20; i++ {
		d = nextBackoff(d, max)
	}
	require.Equal(t, max, d)
}

func TestSingleflightKeyIsStableAndDistinct(t *testing.T) {
	require.Equal(t, singleflightKey(0), singleflightKey(0))
	require.NotEqual(t, singleflightKey(1), singleflightKey(2))
}

func TestSleepBackoffRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.False(t, sleepBackoff(ctx, time.Second))
}

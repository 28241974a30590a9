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

// Package metrics holds the process-wide prometheus registry and the
// collectors every other package registers into it. There is no grpc
// server in this module (see DESIGN.md), so unlike the teacher's own
// metrics package this one carries no grpc-prometheus interceptor
// metrics; every collector here is specific to rgroup request
// handling and consensus.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var Registry = prometheus.NewRegistry()

var (
	// RequestsTotal counts every request a node answered, labeled by
	// the rgroup that served it, the wire request's tag name, and
	// whether it completed or returned an ErrorResponse.
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetfs",
		Name:      "requests_total",
		Help:      "Requests answered by a rgroup, by request type and outcome.",
	}, []string{"rgroup", "request", "outcome"})

	// ApplyLatencySeconds measures the time a rgroup's apply loop
	// takes to turn one committed batch into replies, per rgroup.
	ApplyLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fleetfs",
		Name:      "apply_latency_seconds",
		Help:      "Time spent applying one committed batch of proposals.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"rgroup"})

	// LeaderChangesTotal counts how often a rgroup's believed leader
	// changed, including transitions to and away from this node.
	LeaderChangesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetfs",
		Name:      "leader_changes_total",
		Help:      "Leader change notifications observed by a rgroup.",
	}, []string{"rgroup"})
)

func init() {
	Registry.MustRegister(RequestsTotal, ApplyLatencySeconds, LeaderChangesTotal)
}

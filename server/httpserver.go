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
	"encoding/json"
	"net/http"
	"time"

	"github.com/cubefs/cubefs/blobstore/common/profile"
	"github.com/cubefs/cubefs/blobstore/common/rpc"
	"github.com/cubefs/cubefs/blobstore/util/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fleetfs/fleetfs/metrics"
)

const (
	defaultShutdownTimeoutS      = 10
	defaultReadRequestTimeoutS   = 30
	defaultWriteResponseTimeoutS = 30
)

// HttpServer exposes a node's debug surface: health, metrics, and log
// level control, kept separate from the framed TCP listener so an
// operator can probe a node without speaking the filesystem protocol.
type HttpServer struct {
	httpServer *http.Server

	*Server
}

func NewHttpServer(server *Server) *HttpServer {
	return &HttpServer{Server: server}
}

func (h *HttpServer) Serve(addr string) {
	ph := profile.NewProfileHandler(addr)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      rpc.MiddlewareHandlerWith(h.newHandler(), ph),
		ReadTimeout:  defaultReadRequestTimeoutS * time.Second,
		WriteTimeout: defaultWriteResponseTimeoutS * time.Second,
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server exits:", err)
		}
	}()
	h.httpServer = httpServer

	log.Info("http server is running at:", addr)
}

func (h *HttpServer) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeoutS*time.Second)
	defer cancel()

	h.httpServer.Shutdown(ctx)
}

func (h *HttpServer) newHandler() *rpc.Router {
	rpc.GET("/rgroups", h.Rgroups, rpc.OptArgsQuery())

	return rpc.DefaultRouter
}

// RegisterMetrics exposes the process's Prometheus collectors the
// same way registerLogLevel (cmd/fleetfsd/main.go) exposes log-level
// control: through profile's default mux, wrapping a plain
// http.Handler inside an rpc.Context-shaped route. Call once per
// process, alongside registerLogLevel, before HttpServer.Serve.
func RegisterMetrics() {
	promHandler := promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})
	profile.HandleFunc(http.MethodGet, "/metrics", func(c *rpc.Context) {
		promHandler.ServeHTTP(c.Writer, c.Request)
	})
}

// Rgroups reports whether each hosted rgroup has cleared the readiness
// gate and who it currently believes its leader to be, for operator
// use when diagnosing a stuck deploy.
func (h *HttpServer) Rgroups(c *rpc.Context) {
	type rgroupStatus struct {
		ID     uint16 `json:"id"`
		Ready  bool   `json:"ready"`
		Leader uint64 `json:"leader"`
	}
	statuses := make([]rgroupStatus, 0, len(h.rgroups))
	for id, hr := range h.rgroups {
		statuses = append(statuses, rgroupStatus{ID: id, Ready: hr.isReady(), Leader: hr.driver.Leader()})
	}
	c.Writer.Header().Set("Content-Type", "application/json")
	json.NewEncoder(c.Writer).Encode(statuses)
}

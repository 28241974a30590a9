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

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/cubefs/cubefs/blobstore/common/config"
	"github.com/cubefs/cubefs/blobstore/common/profile"
	"github.com/cubefs/cubefs/blobstore/common/rpc"
	"github.com/cubefs/cubefs/blobstore/util/errors"
	"github.com/cubefs/cubefs/blobstore/util/log"

	"github.com/fleetfs/fleetfs/server"
	"github.com/fleetfs/fleetfs/util"
)

// Config is the on-disk configuration for one fleetfsd process: the
// rgroup replicas it hosts, the address it listens for filesystem
// traffic on, and the address its debug HTTP surface binds to.
type Config struct {
	server.Config

	HttpBindAddr  string    `json:"http_bind_addr"`
	MaxProcessors int       `json:"max_processors"`
	LogLevel      log.Level `json:"log_level"`
}

func main() {
	config.Init("f", "", "fleetfsd.json")

	cfg := &Config{}
	if err := config.Load(cfg); err != nil {
		log.Fatal(errors.Detail(err))
	}

	if cfg.MaxProcessors > 0 {
		runtime.GOMAXPROCS(cfg.MaxProcessors)
	}
	if err := fillListenAddr(&cfg.Config); err != nil {
		log.Fatal("resolving listen address failed: ", err)
	}
	registerLogLevel()
	server.RegisterMetrics()
	modifyOpenFiles()
	log.SetOutputLevel(cfg.LogLevel)

	srv, err := server.NewServer(context.Background(), cfg.Config)
	if err != nil {
		log.Fatal("starting server failed: ", errors.Detail(err))
	}

	httpServer := server.NewHttpServer(srv)
	if cfg.HttpBindAddr != "" {
		httpServer.Serve(cfg.HttpBindAddr)
	}

	go func() {
		if err := srv.Serve(); err != nil {
			log.Fatal("serving filesystem traffic failed: ", err)
		}
	}()
	log.Info("fleetfsd node ", cfg.NodeID, " listening on ", cfg.ListenAddr)

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)
	<-ch

	if cfg.HttpBindAddr != "" {
		httpServer.Stop()
	}
	srv.Close()
}

// fillListenAddr resolves a bare ":port" listen address (the common
// case in a checked-in config shared across nodes) to this host's own
// IP, since rgroup members advertise ListenAddr to each other and a
// literal ":port" is not dialable from a remote node.
func fillListenAddr(cfg *server.Config) error {
	if !strings.HasPrefix(cfg.ListenAddr, ":") {
		return nil
	}
	ip, err := util.GetLocalIp()
	if err != nil {
		return err
	}
	cfg.ListenAddr = ip + cfg.ListenAddr
	return nil
}

func registerLogLevel() {
	logLevelPath, logLevelHandler := log.ChangeDefaultLevelHandler()
	profile.HandleFunc(http.MethodPost, logLevelPath, func(c *rpc.Context) {
		logLevelHandler.ServeHTTP(c.Writer, c.Request)
	})
	profile.HandleFunc(http.MethodGet, logLevelPath, func(c *rpc.Context) {
		logLevelHandler.ServeHTTP(c.Writer, c.Request)
	})
}

func modifyOpenFiles() {
	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		log.Fatalf("getting rlimit failed: %s", err)
	}
	log.Info("system limit: ", rLimit)

	if rLimit.Cur >= 102400 && rLimit.Max >= 102400 {
		return
	}

	rLimit.Cur = 1024000
	rLimit.Max = 1024000
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		log.Fatalf("setting rlimit failed: %s", err)
	}
}

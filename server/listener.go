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
	"encoding/binary"
	"net"
	"sync"

	"github.com/cubefs/cubefs/blobstore/util/log"

	"github.com/fleetfs/fleetfs/errorcode"
	"github.com/fleetfs/fleetfs/wire"
)

// listener accepts the framed TCP connections router.Conn dials,
// matching its envelope exactly: an 8-byte correlation id and a
// 2-byte little-endian rgroup id in front of one encoded request.
type listener struct {
	nc net.Listener
}

// Serve starts accepting connections on cfg.ListenAddr. It blocks
// until the listener is closed.
func (s *Server) Serve() error {
	nc, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	s.listener = &listener{nc: nc}
	log.Info("server: listening on ", s.cfg.ListenAddr)

	for {
		conn, err := nc.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				return nil
			default:
			}
			log.Warn("server: accept failed: ", err)
			return err
		}
		go s.serveConn(conn)
	}
}

func (l *listener) Close() {
	if l.nc != nil {
		l.nc.Close()
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()

	var writeMu sync.Mutex
	for {
		frame, err := wire.ReadFrame(conn)
		if err != nil {
			return
		}
		if len(frame) < 10 {
			continue
		}
		id := binary.LittleEndian.Uint64(frame[:8])
		rgroupID := binary.LittleEndian.Uint16(frame[8:10])

		go func(id uint64, rgroupID uint16, payload []byte) {
			resp := s.handleFrame(rgroupID, payload)
			out := make([]byte, 8+len(resp))
			binary.LittleEndian.PutUint64(out[:8], id)
			copy(out[8:], resp)

			writeMu.Lock()
			defer writeMu.Unlock()
			if err := wire.WriteFrame(conn, out); err != nil {
				log.Warn("server: write response failed: ", err)
			}
		}(id, rgroupID, frame[10:])
	}
}

func (s *Server) handleFrame(rgroupID uint16, payload []byte) []byte {
	req, err := wire.DecodeRequest(payload)
	if err != nil {
		return wire.EncodeResponse(wire.ErrorResponse{Code: errorcode.BadRequest})
	}
	resp, err := s.handle(context.Background(), rgroupID, req)
	if err != nil {
		return wire.EncodeResponse(wire.ErrorResponse{Code: errorcode.FromError(err)})
	}
	return wire.EncodeResponse(resp)
}

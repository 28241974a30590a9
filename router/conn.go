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
	"encoding/binary"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fleetfs/fleetfs/wire"
)

// Conn is a single persistent TCP connection shared by every caller
// routing traffic to one peer (router.Conn, per the framing convention
// noted in wire/frame.go). Requests are multiplexed over it by
// prefixing each frame's payload with an 8-byte correlation id; one
// background goroutine owns the read side and fans responses back out
// to the waiting caller via a per-request channel.
type Conn struct {
	nc net.Conn

	nextID uint64

	mu      sync.Mutex
	waiters map[uint64]chan frameResult
	closed  bool
	closeCh chan struct{}
}

type frameResult struct {
	resp wire.Response
	err  error
}

func dialConn(ctx context.Context, addr string, timeout time.Duration) (*Conn, error) {
	d := net.Dialer{Timeout: timeout}
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	c := &Conn{
		nc:      nc,
		waiters: make(map[uint64]chan frameResult),
		closeCh: make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// RoundTrip sends req, addressed to rgroup, and blocks for its
// matching response, or until ctx is done or the connection dies.
// rgroup travels in the connection envelope rather than in req
// itself, since a handful of request types (CreateInodeRequest, most
// notably) have no inode of their own yet to derive a target rgroup
// from the way most requests do via Ino/Parent.
func (c *Conn) RoundTrip(ctx context.Context, rgroup uint16, req wire.Request) (wire.Response, error) {
	id := atomic.AddUint64(&c.nextID, 1)
	ch := make(chan frameResult, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, io.ErrClosedPipe
	}
	c.waiters[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.waiters, id)
		c.mu.Unlock()
	}()

	payload := wire.EncodeRequest(req)
	frame := make([]byte, 10+len(payload))
	binary.LittleEndian.PutUint64(frame[:8], id)
	binary.LittleEndian.PutUint16(frame[8:10], rgroup)
	copy(frame[10:], payload)

	if dl, ok := ctx.Deadline(); ok {
		c.nc.SetWriteDeadline(dl)
	}
	if err := wire.WriteFrame(c.nc, frame); err != nil {
		c.fail(err)
		return nil, err
	}

	select {
	case r := <-ch:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closeCh:
		return nil, io.ErrClosedPipe
	}
}

func (c *Conn) readLoop() {
	for {
		payload, err := wire.ReadFrame(c.nc)
		if err != nil {
			c.fail(err)
			return
		}
		if len(payload) < 8 {
			continue
		}
		id := binary.LittleEndian.Uint64(payload[:8])
		resp, err := wire.DecodeResponse(payload[8:])

		c.mu.Lock()
		ch, ok := c.waiters[id]
		c.mu.Unlock()
		if ok {
			ch <- frameResult{resp: resp, err: err}
		}
	}
}

func (c *Conn) fail(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	waiters := c.waiters
	c.waiters = nil
	c.mu.Unlock()

	close(c.closeCh)
	for _, ch := range waiters {
		ch <- frameResult{err: err}
	}
	c.nc.Close()
}

func (c *Conn) Close() { c.fail(io.ErrClosedPipe) }

// connPool lazily dials and caches one Conn per peer node id,
// redialing on demand once a dead connection is dropped, per the
// teacher's raft/transport.go getConnection idiom translated from
// grpc's ClientConn to a plain framed TCP connection.
type connPool struct {
	dialTimeout time.Duration

	mu    sync.Mutex
	conns map[uint64]*Conn
}

func newConnPool(dialTimeout time.Duration) *connPool {
	return &connPool{
		dialTimeout: dialTimeout,
		conns:       make(map[uint64]*Conn),
	}
}

func (p *connPool) get(ctx context.Context, nodeID uint64, addr string) (*Conn, error) {
	p.mu.Lock()
	if c, ok := p.conns[nodeID]; ok {
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	c, err := dialConn(ctx, addr, p.dialTimeout)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if existing, ok := p.conns[nodeID]; ok {
		p.mu.Unlock()
		c.Close()
		return existing, nil
	}
	p.conns[nodeID] = c
	p.mu.Unlock()
	return c, nil
}

// drop evicts conn from the pool if it is still the current
// connection for nodeID, so the next get redials.
func (p *connPool) drop(nodeID uint64, conn *Conn) {
	p.mu.Lock()
	if c, ok := p.conns[nodeID]; ok && c == conn {
		delete(p.conns, nodeID)
	}
	p.mu.Unlock()
	conn.Close()
}

func (p *connPool) closeAll() {
	p.mu.Lock()
	conns := p.conns
	p.conns = make(map[uint64]*Conn)
	p.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}

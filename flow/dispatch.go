// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flow

import (
	"sync/atomic"

	"github.com/stevelorenz/build-vsf/common"
	"github.com/stevelorenz/build-vsf/nc"
	"github.com/stevelorenz/build-vsf/packet"
)

// TransmitSink takes frames for transmission. Send owns pkt after the call.
type TransmitSink interface {
	Send(pkt *packet.Packet, srcPort uint16) int
}

// CoderContext holds coder of one core. It is not safe for concurrent use.
type CoderContext struct {
	role       nc.Role
	coder      nc.Coder
	pool       *packet.Pool
	dispatched uint64
}

// NewCoderContext creates coder for role. Coded frames are allocated
// from pool.
func NewCoderContext(role nc.Role, opts nc.Options, pool *packet.Pool) (*CoderContext, error) {
	coder, err := nc.New(role, opts)
	if err != nil {
		return nil, err
	}
	if coder != nil {
		if err = opts.CheckDataRoom(pool.DataRoom()); err != nil {
			coder.Free()
			return nil, err
		}
		common.LogDebug(common.Initialization, "Created", role, "with field", opts.Field,
			"symbols", opts.Symbols, "symbol size", opts.SymbolSize, "redundancy", opts.Redundancy)
	}
	return &CoderContext{role: role, coder: coder, pool: pool}, nil
}

// Role returns coder role.
func (c *CoderContext) Role() nc.Role {
	return c.role
}

// Dispatch passes pkt received on port to the coder. Without coder pkt is
// sent as is. Coder outputs are sent one by one in the order they are made.
func (c *CoderContext) Dispatch(pkt *packet.Packet, port uint16, sink TransmitSink) {
	atomic.AddUint64(&c.dispatched, 1)
	if c.coder == nil {
		sink.Send(pkt, port)
		return
	}
	c.coder.Process(pkt, c.pool, port, sink)
}

// Dispatched returns number of frames passed to Dispatch.
func (c *CoderContext) Dispatched() uint64 {
	return atomic.LoadUint64(&c.dispatched)
}

// Free releases the coder.
func (c *CoderContext) Free() {
	if c.coder != nil {
		c.coder.Free()
		c.coder = nil
	}
}

// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package low

import (
	"sync/atomic"

	"github.com/stevelorenz/build-vsf/packet"
)

// TxBuffer accumulates frames for one port and transmits them in bursts.
// Frames the port does not accept are freed and counted as dropped.
// Only counters may be read from other goroutines.
type TxBuffer struct {
	port    Port
	pkts    []*packet.Packet
	count   int
	sent    uint64
	dropped uint64
}

// NewTxBuffer creates accumulator which transmits after size frames.
func NewTxBuffer(port Port, size int) *TxBuffer {
	if size < 1 {
		size = 1
	}
	return &TxBuffer{
		port: port,
		pkts: make([]*packet.Packet, size),
	}
}

// Buffer appends pkt and flushes the accumulator when it becomes full.
// It returns number of frames transmitted by this call.
func (tb *TxBuffer) Buffer(pkt *packet.Packet) int {
	tb.pkts[tb.count] = pkt
	tb.count++
	if tb.count < len(tb.pkts) {
		return 0
	}
	return tb.Flush()
}

// Flush transmits all accumulated frames and returns number of frames
// the port accepted.
func (tb *TxBuffer) Flush() int {
	if tb.count == 0 {
		return 0
	}
	n := tb.port.TxBurst(tb.pkts[:tb.count])
	for i := n; i < tb.count; i++ {
		tb.pkts[i].Free()
	}
	atomic.AddUint64(&tb.dropped, uint64(tb.count-n))
	atomic.AddUint64(&tb.sent, uint64(n))
	for i := 0; i < tb.count; i++ {
		tb.pkts[i] = nil
	}
	tb.count = 0
	return n
}

// Len returns number of accumulated frames.
func (tb *TxBuffer) Len() int {
	return tb.count
}

// Port returns destination port.
func (tb *TxBuffer) Port() Port {
	return tb.port
}

// Sent returns number of frames transmitted so far.
func (tb *TxBuffer) Sent() uint64 {
	return atomic.LoadUint64(&tb.sent)
}

// Dropped returns number of frames freed because the port did not accept them.
func (tb *TxBuffer) Dropped() uint64 {
	return atomic.LoadUint64(&tb.dropped)
}

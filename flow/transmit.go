// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flow

import (
	"sync/atomic"

	"github.com/stevelorenz/build-vsf/common"
	"github.com/stevelorenz/build-vsf/low"
	"github.com/stevelorenz/build-vsf/packet"
	"github.com/stevelorenz/build-vsf/types"
)

// Transmitter sends frames to the port paired with the port they came
// from. It is the TransmitSink of the engine.
type Transmitter struct {
	pairing     Pairing
	buffers     [common.MaxPorts]*low.TxBuffer
	macUpdating bool
	srcMAC      types.MACAddress
	dstMAC      types.MACAddress
	enqueued    [common.MaxPorts]uint64
	noRoute     uint64
}

// NewTransmitter creates transmit buffers of burst frames for all paired
// destination ports.
func NewTransmitter(pairing Pairing, ports []low.Port, burst int, cfg *EngineConfig) *Transmitter {
	t := &Transmitter{
		pairing:     pairing,
		macUpdating: cfg.MACUpdating,
		srcMAC:      cfg.SrcMAC,
		dstMAC:      cfg.DstMAC,
	}
	for _, port := range ports {
		if _, ok := pairing.Dst(port.ID()); ok {
			t.buffers[port.ID()] = low.NewTxBuffer(port, burst)
		}
	}
	return t
}

// Send queues pkt for transmission to the destination of srcPort and
// returns number of frames transmitted because the queue became full.
func (t *Transmitter) Send(pkt *packet.Packet, srcPort uint16) int {
	dst, ok := t.pairing.Dst(srcPort)
	if !ok || t.buffers[dst] == nil {
		atomic.AddUint64(&t.noRoute, 1)
		common.LogDrop(common.Debug, "No destination for frame from port", srcPort)
		pkt.Free()
		return 0
	}
	tb := t.buffers[dst]
	if t.macUpdating {
		if t.srcMAC.IsZero() {
			pkt.Ether.SAddr = tb.Port().MAC()
		} else {
			pkt.Ether.SAddr = t.srcMAC
		}
		pkt.Ether.DAddr = t.dstMAC
	}
	atomic.AddUint64(&t.enqueued[dst], 1)
	sent := tb.Buffer(pkt)
	if sent != 0 {
		common.LogDebug(common.Verbose, "Trigger", sent, "UDP packets drained in the TX buffer")
	}
	return sent
}

// Flush transmits frames queued for port.
func (t *Transmitter) Flush(port uint16) int {
	tb := t.buffers[port]
	if tb == nil {
		return 0
	}
	sent := tb.Flush()
	if sent != 0 {
		common.LogDebug(common.Verbose, "Drain", sent, "UDP packets in the tx queue")
	}
	return sent
}

// FlushAll transmits frames queued for all ports.
func (t *Transmitter) FlushAll() int {
	sent := 0
	for _, port := range t.pairing.Ports() {
		sent += t.Flush(port)
	}
	return sent
}

func (t *Transmitter) buffer(port uint16) *low.TxBuffer {
	return t.buffers[port]
}

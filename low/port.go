// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package low is the packet I/O layer. It hides how frames are received
// from and transmitted to network ports.
package low

import (
	"sync/atomic"

	"github.com/stevelorenz/build-vsf/packet"
	"github.com/stevelorenz/build-vsf/types"
)

// Port is one network port with a single receive and a single transmit
// queue. RxBurst and TxBurst never block.
type Port interface {
	ID() uint16
	Name() string
	MAC() types.MACAddress
	// RxBurst fills pkts with received frames and returns their number.
	// Returned frames are owned by the caller.
	RxBurst(pkts []*packet.Packet) int
	// TxBurst transmits frames from the start of pkts and returns the number
	// of frames sent. Caller loses ownership of sent frames and keeps the rest.
	TxBurst(pkts []*packet.Packet) int
	LinkUp() bool
	Stats() PortStats
	Close() error
}

// PortStats are counters of a port since it was opened.
type PortStats struct {
	RxPackets uint64
	RxMissed  uint64
	TxPackets uint64
	TxErrors  uint64
}

type portCounters struct {
	rxPackets uint64
	rxMissed  uint64
	txPackets uint64
	txErrors  uint64
}

func (c *portCounters) snapshot() PortStats {
	return PortStats{
		RxPackets: atomic.LoadUint64(&c.rxPackets),
		RxMissed:  atomic.LoadUint64(&c.rxMissed),
		TxPackets: atomic.LoadUint64(&c.txPackets),
		TxErrors:  atomic.LoadUint64(&c.txErrors),
	}
}

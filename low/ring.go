// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package low

import (
	"strconv"
	"sync/atomic"

	"github.com/stevelorenz/build-vsf/common"
	"github.com/stevelorenz/build-vsf/packet"
	"github.com/stevelorenz/build-vsf/types"
)

// RingPort is an in-memory Port. Frames injected into it are received by
// RxBurst and frames transmitted by TxBurst can be collected with
// TakeSent. It is used to run engines without network interfaces.
type RingPort struct {
	id      uint16
	mac     types.MACAddress
	rx      *PacketQueue
	tx      *PacketQueue
	link    int32
	closed  int32
	counter portCounters
}

// NewRingPort creates port with receive and transmit rings of size frames.
func NewRingPort(id uint16, mac types.MACAddress, size int) *RingPort {
	return &RingPort{
		id:   id,
		mac:  mac,
		rx:   NewPacketQueue(size),
		tx:   NewPacketQueue(size),
		link: 1,
	}
}

// Inject queues frames for reception. It takes ownership of queued frames
// and returns their number.
func (port *RingPort) Inject(pkts []*packet.Packet) int {
	for i, pkt := range pkts {
		pkt.Port = port.id
		if !port.rx.Put(pkt) {
			return i
		}
	}
	return len(pkts)
}

// InjectFrame copies data to a packet from pool and queues it.
func (port *RingPort) InjectFrame(pool *packet.Pool, data []byte) error {
	pkt, err := pool.AllocFrom(data)
	if err != nil {
		return err
	}
	if port.Inject([]*packet.Packet{pkt}) == 0 {
		pkt.Free()
		atomic.AddUint64(&port.counter.rxMissed, 1)
		return common.WrapWithNFError(nil, "receive ring is full", common.Fail)
	}
	return nil
}

// TakeSent moves transmitted frames to pkts and returns their number.
// Caller owns returned frames.
func (port *RingPort) TakeSent(pkts []*packet.Packet) int {
	return port.tx.Get(pkts)
}

// Pending returns number of injected frames not received yet.
func (port *RingPort) Pending() int {
	return port.rx.Len()
}

// Sent returns number of transmitted frames not collected yet.
func (port *RingPort) Sent() int {
	return port.tx.Len()
}

// SetLink changes reported link state.
func (port *RingPort) SetLink(up bool) {
	var v int32
	if up {
		v = 1
	}
	atomic.StoreInt32(&port.link, v)
}

func (port *RingPort) ID() uint16 {
	return port.id
}

func (port *RingPort) Name() string {
	return "ring" + strconv.Itoa(int(port.id))
}

func (port *RingPort) MAC() types.MACAddress {
	return port.mac
}

func (port *RingPort) RxBurst(pkts []*packet.Packet) int {
	n := port.rx.Get(pkts)
	atomic.AddUint64(&port.counter.rxPackets, uint64(n))
	return n
}

// TxBurst stores frames while transmit ring has room. Stored frames stay
// allocated until collected with TakeSent.
func (port *RingPort) TxBurst(pkts []*packet.Packet) int {
	for i, pkt := range pkts {
		if !port.tx.Put(pkt) {
			atomic.AddUint64(&port.counter.txPackets, uint64(i))
			atomic.AddUint64(&port.counter.txErrors, 1)
			return i
		}
	}
	atomic.AddUint64(&port.counter.txPackets, uint64(len(pkts)))
	return len(pkts)
}

func (port *RingPort) LinkUp() bool {
	return atomic.LoadInt32(&port.link) == 1
}

func (port *RingPort) Stats() PortStats {
	return port.counter.snapshot()
}

// Close frees all frames left in both rings.
func (port *RingPort) Close() error {
	if !atomic.CompareAndSwapInt32(&port.closed, 0, 1) {
		return nil
	}
	port.rx.Dispose()
	port.tx.Dispose()
	return nil
}

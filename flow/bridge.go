// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flow

import (
	"github.com/stevelorenz/build-vsf/common"
	"github.com/stevelorenz/build-vsf/packet"
	"github.com/stevelorenz/build-vsf/types"
)

// rewriteIPv4 changes addresses of IPv4/UDP frame so that sockets of the
// host can work with it. Other frames are left as is, since only IPv4 and
// UDP checksums are recalculated.
func rewriteIPv4(pkt *packet.Packet, src, dst *types.IPv4Address) {
	if !pkt.ParseEtherIPv4UDP() {
		return
	}
	pkt.SetIPv4Addrs(src, dst)
}

// pushBridge delivers a received burst to the bridge device of port id.
// Frames the device does not accept are dropped.
func (e *Engine) pushBridge(id uint16, burst []*packet.Packet) {
	dev := e.bridges[id]
	pkts := e.pushBuf[:0]
	for i, pkt := range burst {
		if pkt == nil {
			continue
		}
		rewriteIPv4(pkt, nil, &e.cfg.BridgeRecvAddr)
		pkts = append(pkts, pkt)
		burst[i] = nil
	}
	if len(pkts) == 0 {
		return
	}
	pushed := dev.Push(pkts)
	if err := dev.HandleRequest(); err != nil {
		common.LogWarning(common.Debug, err)
	}
	if pushed < len(pkts) {
		common.LogError(common.Debug, "Too much packets are pushed into KNI device", dev.Name())
		packet.FreeBulk(pkts[pushed:])
	}
	for i := range pkts {
		pkts[i] = nil
	}
}

// pollBridge takes frames sent by the kernel through the bridge device of
// port id and transmits them as if they were received on id.
func (e *Engine) pollBridge(id uint16) {
	dev := e.bridges[id]
	if dev == nil {
		return
	}
	burst := e.pullBuf
	n := dev.Pull(burst)
	if n == 0 {
		return
	}
	if n > len(burst) {
		common.LogError(common.Debug, "Error receiving from KNI, port number:", id)
		return
	}
	if err := dev.HandleRequest(); err != nil {
		common.LogWarning(common.Debug, err)
	}
	common.LogDebug(common.Verbose, "Recv", n, "packets from KNI device")

	// Kernel sends also ARP and neighbour discovery frames.
	e.kernelFilter.Burst(burst[:n])
	for i, pkt := range burst[:n] {
		if pkt == nil {
			continue
		}
		pkt.Port = id
		rewriteIPv4(pkt, &e.cfg.BridgeSendSrc, &e.cfg.BridgeSendDst)
		e.tx.Send(pkt, id)
		burst[i] = nil
	}
}

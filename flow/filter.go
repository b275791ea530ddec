// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flow

import (
	"sync/atomic"

	"github.com/stevelorenz/build-vsf/common"
	"github.com/stevelorenz/build-vsf/packet"
	"github.com/stevelorenz/build-vsf/types"
)

// Verdict is the result of checking a received frame.
type Verdict int

// Filter verdicts.
const (
	Accept Verdict = iota
	RejectNotIPv4
	RejectNotUDP
	RejectLoopSource
	verdictsNumber
)

func (v Verdict) String() string {
	switch v {
	case Accept:
		return "accept"
	case RejectNotIPv4:
		return "not_ipv4"
	case RejectNotUDP:
		return "not_udp"
	case RejectLoopSource:
		return "loop_source"
	}
	return "unknown"
}

// Filter admits only Ethernet/IPv4/UDP frames which were not sent by
// ports of this process.
type Filter struct {
	macs     []types.MACAddress
	verdicts [verdictsNumber]uint64
}

// NewFilter creates filter rejecting frames with source MAC from macs.
func NewFilter(macs []types.MACAddress) *Filter {
	return &Filter{macs: append([]types.MACAddress(nil), macs...)}
}

// Check returns verdict for pkt. Frame bytes are not changed.
func (f *Filter) Check(pkt *packet.Packet) Verdict {
	if pkt.Len() < types.EtherLen || pkt.Ether.EtherType != types.SwapIPV4Number {
		return RejectNotIPv4
	}
	if pkt.GetIPv4() == nil || pkt.IPv4.NextProtoID != types.UDPNumber {
		return RejectNotUDP
	}
	for _, mac := range f.macs {
		if pkt.Ether.SAddr == mac {
			return RejectLoopSource
		}
	}
	return Accept
}

// Burst checks frames in order. Rejected frames are freed and their
// entries set to nil. It returns number of accepted frames.
func (f *Filter) Burst(pkts []*packet.Packet) int {
	accepted := 0
	for i, pkt := range pkts {
		if pkt == nil {
			continue
		}
		v := f.Check(pkt)
		atomic.AddUint64(&f.verdicts[v], 1)
		if v == Accept {
			accepted++
			continue
		}
		common.LogDrop(common.Verbose, "Port", pkt.Port, "filtered frame:", v)
		pkt.Free()
		pkts[i] = nil
	}
	return accepted
}

// Count returns number of frames which got verdict v.
func (f *Filter) Count(v Verdict) uint64 {
	return atomic.LoadUint64(&f.verdicts[v])
}

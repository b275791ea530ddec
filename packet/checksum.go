// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package packet

import (
	"encoding/binary"

	"github.com/stevelorenz/build-vsf/types"
)

// calculateDataChecksum sums data in 16 bit big endian words. Returned is
// checksum with carry, so carry should be added and value negated for use
// as network checksum.
func calculateDataChecksum(data []byte) uint32 {
	var sum uint32
	n := len(data) &^ 1
	for i := 0; i < n; i += 2 {
		sum += uint32(binary.BigEndian.Uint16(data[i:]))
	}
	if len(data)&1 != 0 {
		sum += uint32(data[len(data)-1]) << 8
	}
	return sum
}

func reduceChecksum(sum uint32) uint16 {
	for sum > 0xffff {
		sum = (sum >> 16) + (sum & 0xffff)
	}
	return uint16(sum)
}

// CalculateIPv4Checksum calculates checksum of IPv4 header. HdrChecksum
// field is treated as zero.
func CalculateIPv4Checksum(p *Packet) uint16 {
	hdr := p.buf[types.EtherLen : types.EtherLen+p.IPv4.HeaderLen()]
	sum := calculateDataChecksum(hdr)
	sum -= uint32(binary.BigEndian.Uint16(hdr[10:]))
	sum = uint32(reduceChecksum(sum))
	return ^uint16(sum)
}

// CalculateIPv4UDPChecksum calculates UDP checksum with IPv4 pseudo header.
// DgramCksum field is treated as zero.
func CalculateIPv4UDPChecksum(p *Packet) uint16 {
	l4 := types.EtherLen + p.IPv4.HeaderLen()
	dgramLen := int(SwapBytesUint16(p.UDP.DgramLen))
	if l4+dgramLen > p.length {
		dgramLen = p.length - l4
	}
	if dgramLen < types.UDPLen {
		dgramLen = types.UDPLen
	}
	ip := p.buf[types.EtherLen:]
	sum := calculateDataChecksum(ip[12:20]) +
		uint32(types.UDPNumber) +
		uint32(dgramLen)
	dgram := p.buf[l4 : l4+dgramLen]
	sum += calculateDataChecksum(dgram)
	sum -= uint32(binary.BigEndian.Uint16(dgram[6:]))
	cksum := ^reduceChecksum(sum)
	if cksum == 0 {
		cksum = 0xffff
	}
	return cksum
}

// RecalculateChecksums sets IPv4 header checksum and UDP checksum of a
// parsed frame.
func (packet *Packet) RecalculateChecksums() {
	if packet.IPv4 == nil {
		return
	}
	if packet.UDP != nil {
		packet.UDP.DgramCksum = 0
		packet.UDP.DgramCksum = SwapBytesUint16(CalculateIPv4UDPChecksum(packet))
	}
	packet.IPv4.HdrChecksum = 0
	packet.IPv4.HdrChecksum = SwapBytesUint16(CalculateIPv4Checksum(packet))
}

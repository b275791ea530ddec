// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package packet provides packet descriptors allocated from an arena pool
// and functionality for fast parsing of the headers the forwarder works with:
//	* L2 Ethernet
//	* L3 IPv4
//	* L4 UDP
//
// Header structures are overlaid on packet memory, so multibyte fields are
// kept in network byte order. Use SwapBytesUint16 to read or write them.
//
// Ownership
//
// A Packet is owned by exactly one stage at a time. The owner either passes
// it on (to a coder, a transmit buffer or a bridge device) or calls Free.
// A Packet must not be touched after it was passed on or freed.
package packet

import (
	"fmt"
	"unsafe"

	"github.com/stevelorenz/build-vsf/common"
	"github.com/stevelorenz/build-vsf/types"
)

// EtherHdr L2 header from DPDK: lib/librte_ether/rte_ether.h
type EtherHdr struct {
	DAddr     types.MACAddress // Destination address
	SAddr     types.MACAddress // Source address
	EtherType uint16           // Frame type
}

func (hdr *EtherHdr) String() string {
	return fmt.Sprintf(`L2 protocol: Ethernet, EtherType: 0x%04x
Ethernet Source: %s
Ethernet Destination: %s
`, SwapBytesUint16(hdr.EtherType), hdr.SAddr.String(), hdr.DAddr.String())
}

// IPv4Hdr L3 header from DPDK: lib/librte_net/rte_ip.h
type IPv4Hdr struct {
	VersionIhl     uint8             // version and header length
	TypeOfService  uint8             // type of service
	TotalLength    uint16            // length of packet
	PacketID       uint16            // packet ID
	FragmentOffset uint16            // fragmentation offset
	TimeToLive     uint8             // time to live
	NextProtoID    uint8             // protocol ID
	HdrChecksum    uint16            // header checksum
	SrcAddr        types.IPv4Address // source address
	DstAddr        types.IPv4Address // destination address
}

func (hdr *IPv4Hdr) String() string {
	return fmt.Sprintf(`    L3 protocol: IPv4, protocol: %d
    IPv4 Source: %s
    IPv4 Destination: %s
`, hdr.NextProtoID, hdr.SrcAddr.String(), hdr.DstAddr.String())
}

// HeaderLen returns IPv4 header length in bytes taken from Ihl field.
func (hdr *IPv4Hdr) HeaderLen() int {
	return int(hdr.VersionIhl&0x0f) << 2
}

// UDPHdr L4 header from DPDK: lib/librte_net/rte_udp.h
type UDPHdr struct {
	SrcPort    uint16 // UDP source port
	DstPort    uint16 // UDP destination port
	DgramLen   uint16 // UDP datagram length
	DgramCksum uint16 // UDP datagram checksum
}

func (hdr *UDPHdr) String() string {
	return fmt.Sprintf(`        L4 protocol: UDP
        L4 Source: %d
        L4 Destination: %d
`, SwapBytesUint16(hdr.SrcPort), SwapBytesUint16(hdr.DstPort))
}

// Packet is a descriptor of one frame stored in a pool buffer. Header
// pointers are set by parsing functions and point into the buffer.
type Packet struct {
	Ether *EtherHdr      // Pointer to L2 header, valid when Len() >= EtherLen
	IPv4  *IPv4Hdr       // Pointer to L3 header (nil before parsing)
	UDP   *UDPHdr        // Pointer to L4 header (nil before parsing)
	Data  unsafe.Pointer // Pointer to the UDP payload (invalid before parsing)
	Port  uint16         // Port the frame was received on

	buf    []byte
	length int
	pool   *Pool
	index  uint32
	state  uint32
}

// Bytes returns frame bytes. The slice aliases packet memory.
func (packet *Packet) Bytes() []byte {
	return packet.buf[:packet.length]
}

// Len returns frame length.
func (packet *Packet) Len() int {
	return packet.length
}

// Room returns the maximum frame length the packet buffer can hold.
func (packet *Packet) Room() int {
	return len(packet.buf)
}

// SetLen changes frame length. Parsed header pointers are dropped.
func (packet *Packet) SetLen(n int) error {
	if n < 0 || n > len(packet.buf) {
		return common.WrapWithNFError(nil, fmt.Sprintf("frame length %d exceeds data room %d", n, len(packet.buf)), common.PktMbufHeadRoomTooSmall)
	}
	packet.length = n
	packet.resetHeaders()
	return nil
}

// SetBytes replaces frame contents by a copy of data.
func (packet *Packet) SetBytes(data []byte) error {
	if err := packet.SetLen(len(data)); err != nil {
		return err
	}
	copy(packet.buf, data)
	return nil
}

func (packet *Packet) resetHeaders() {
	packet.IPv4 = nil
	packet.UDP = nil
	packet.Data = nil
}

// GetIPv4 parses L3 header and returns pointer to it if the frame
// carries IPv4 with a header which fits into the frame, otherwise returns nil.
func (packet *Packet) GetIPv4() *IPv4Hdr {
	if packet.length < types.EtherLen+types.IPv4MinLen || packet.Ether.EtherType != types.SwapIPV4Number {
		return nil
	}
	hdr := (*IPv4Hdr)(unsafe.Pointer(&packet.buf[types.EtherLen]))
	if hlen := hdr.HeaderLen(); hlen < types.IPv4MinLen || types.EtherLen+hlen > packet.length {
		return nil
	}
	packet.IPv4 = hdr
	return packet.IPv4
}

// GetUDPForIPv4 parses L4 header of an IPv4 frame and returns pointer to it
// if the datagram is UDP, otherwise returns nil. GetIPv4 must be called before.
func (packet *Packet) GetUDPForIPv4() *UDPHdr {
	if packet.IPv4 == nil || packet.IPv4.NextProtoID != types.UDPNumber {
		return nil
	}
	l4 := types.EtherLen + packet.IPv4.HeaderLen()
	if packet.IPv4.HeaderLen() < types.IPv4MinLen || packet.length < l4+types.UDPLen {
		return nil
	}
	packet.UDP = (*UDPHdr)(unsafe.Pointer(&packet.buf[l4]))
	if l4+types.UDPLen < len(packet.buf) {
		packet.Data = unsafe.Pointer(&packet.buf[l4+types.UDPLen])
	}
	return packet.UDP
}

// ParseEtherIPv4UDP parses all headers of an Ethernet/IPv4/UDP frame.
// It returns false if the frame has another structure.
func (packet *Packet) ParseEtherIPv4UDP() bool {
	return packet.GetIPv4() != nil && packet.GetUDPForIPv4() != nil
}

// udpPayloadOffset returns offset of UDP payload. Headers must be parsed.
func (packet *Packet) udpPayloadOffset() int {
	return types.EtherLen + packet.IPv4.HeaderLen() + types.UDPLen
}

// GetUDPPayload returns UDP payload of parsed frame. Payload length is
// taken from UDP header and clipped to the frame.
func (packet *Packet) GetUDPPayload() []byte {
	if packet.UDP == nil {
		return nil
	}
	start := packet.udpPayloadOffset()
	end := start + int(SwapBytesUint16(packet.UDP.DgramLen)) - types.UDPLen
	if end > packet.length {
		end = packet.length
	}
	if end < start {
		return nil
	}
	return packet.buf[start:end]
}

// SetUDPPayload writes payload after UDP header of parsed frame, adjusts
// frame length, IPv4 and UDP lengths and recalculates checksums.
func (packet *Packet) SetUDPPayload(payload []byte) error {
	if packet.UDP == nil {
		return common.WrapWithNFError(nil, "frame has no parsed UDP header", common.BadArgument)
	}
	start := packet.udpPayloadOffset()
	if start+len(payload) > len(packet.buf) {
		return common.WrapWithNFError(nil, fmt.Sprintf("payload of %d bytes does not fit data room %d", len(payload), len(packet.buf)), common.PktMbufHeadRoomTooSmall)
	}
	copy(packet.buf[start:], payload)
	packet.length = start + len(payload)
	packet.IPv4.TotalLength = SwapBytesUint16(uint16(packet.IPv4.HeaderLen() + types.UDPLen + len(payload)))
	packet.UDP.DgramLen = SwapBytesUint16(uint16(types.UDPLen + len(payload)))
	packet.RecalculateChecksums()
	return nil
}

// SetIPv4Addrs rewrites addresses of parsed IPv4 frame. Nil arguments
// leave an address untouched. Checksums are recalculated.
func (packet *Packet) SetIPv4Addrs(src, dst *types.IPv4Address) {
	if packet.IPv4 == nil {
		return
	}
	if src != nil {
		packet.IPv4.SrcAddr = *src
	}
	if dst != nil {
		packet.IPv4.DstAddr = *dst
	}
	packet.RecalculateChecksums()
}

// SwapBytesUint16 swaps bytes for protocol numbers in Little Endian and Big Endian
func SwapBytesUint16(x uint16) uint16 {
	return x<<8 | x>>8
}

func (packet *Packet) String() string {
	if packet.length < types.EtherLen {
		return fmt.Sprintf("truncated frame of %d bytes", packet.length)
	}
	s := packet.Ether.String()
	if packet.IPv4 != nil {
		s += packet.IPv4.String()
	}
	if packet.UDP != nil {
		s += packet.UDP.String()
	}
	return s
}

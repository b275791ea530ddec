// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package packet

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/stevelorenz/build-vsf/types"
)

// FrameSpec describes addresses and payload of a generated frame.
type FrameSpec struct {
	SrcMAC  types.MACAddress
	DstMAC  types.MACAddress
	SrcIP   types.IPv4Address
	DstIP   types.IPv4Address
	SrcPort uint16
	DstPort uint16
	Payload []byte
}

// DefaultFrameSpec returns spec used by tests of all packages.
func DefaultFrameSpec(payload []byte) FrameSpec {
	return FrameSpec{
		SrcMAC:  types.MACAddress{0x02, 0x00, 0x00, 0x00, 0x00, 0x01},
		DstMAC:  types.MACAddress{0x02, 0x00, 0x00, 0x00, 0x00, 0x02},
		SrcIP:   types.BytesToIPv4(10, 0, 0, 1),
		DstIP:   types.BytesToIPv4(10, 0, 0, 2),
		SrcPort: 9999,
		DstPort: 8888,
		Payload: payload,
	}
}

func serialize(ls ...gopacket.SerializableLayer) []byte {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: true,
	}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func (s FrameSpec) ether(t layers.EthernetType) *layers.Ethernet {
	return &layers.Ethernet{
		SrcMAC:       types.MACAddressToNetHW(s.SrcMAC),
		DstMAC:       types.MACAddressToNetHW(s.DstMAC),
		EthernetType: t,
	}
}

func (s FrameSpec) ipv4(proto layers.IPProtocol) *layers.IPv4 {
	return &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: proto,
		SrcIP:    s.SrcIP.ToNetIP(),
		DstIP:    s.DstIP.ToNetIP(),
	}
}

// BuildUDPFrame generates Ethernet/IPv4/UDP frame with valid checksums.
func BuildUDPFrame(s FrameSpec) []byte {
	ip := s.ipv4(layers.IPProtocolUDP)
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(s.SrcPort),
		DstPort: layers.UDPPort(s.DstPort),
	}
	udp.SetNetworkLayerForChecksum(ip)
	return serialize(s.ether(layers.EthernetTypeIPv4), ip, udp, gopacket.Payload(s.Payload))
}

// BuildTCPFrame generates Ethernet/IPv4/TCP frame.
func BuildTCPFrame(s FrameSpec) []byte {
	ip := s.ipv4(layers.IPProtocolTCP)
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(s.SrcPort),
		DstPort: layers.TCPPort(s.DstPort),
		SYN:     true,
		Window:  1024,
	}
	tcp.SetNetworkLayerForChecksum(ip)
	return serialize(s.ether(layers.EthernetTypeIPv4), ip, tcp, gopacket.Payload(s.Payload))
}

// BuildARPFrame generates ARP request frame.
func BuildARPFrame(s FrameSpec) []byte {
	src := types.IPv4ToBytes(s.SrcIP)
	dst := types.IPv4ToBytes(s.DstIP)
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     types.EtherAddrLen,
		ProtAddressSize:   types.IPv4AddrLen,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   types.MACAddressToNetHW(s.SrcMAC),
		SourceProtAddress: src[:],
		DstHwAddress:      make([]byte, types.EtherAddrLen),
		DstProtAddress:    dst[:],
	}
	return serialize(s.ether(layers.EthernetTypeARP), arp)
}

// BuildIPv6UDPFrame generates Ethernet/IPv6/UDP frame.
func BuildIPv6UDPFrame(s FrameSpec) []byte {
	ip := &layers.IPv6{
		Version:    6,
		HopLimit:   64,
		NextHeader: layers.IPProtocolUDP,
		SrcIP:      net.ParseIP("fe80::1"),
		DstIP:      net.ParseIP("fe80::2"),
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(s.SrcPort),
		DstPort: layers.UDPPort(s.DstPort),
	}
	udp.SetNetworkLayerForChecksum(ip)
	return serialize(s.ether(layers.EthernetTypeIPv6), ip, udp, gopacket.Payload(s.Payload))
}

// DecodeUDPFrame decodes frame with gopacket and returns its IPv4 and UDP
// layers, or nils if the frame is not Ethernet/IPv4/UDP.
func DecodeUDPFrame(data []byte) (*layers.IPv4, *layers.UDP) {
	p := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)
	ipLayer := p.Layer(layers.LayerTypeIPv4)
	udpLayer := p.Layer(layers.LayerTypeUDP)
	if ipLayer == nil || udpLayer == nil {
		return nil, nil
	}
	return ipLayer.(*layers.IPv4), udpLayer.(*layers.UDP)
}

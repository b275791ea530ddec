// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package types

import (
	"fmt"
	"net"
)

// IPv4Address keeps the address in the same byte order as it is
// laid out in an IPv4 header, so it can be stored into headers directly.
type IPv4Address uint32

// BytesToIPv4 converts four element address to IPv4Address representation
func BytesToIPv4(a byte, b byte, c byte, d byte) IPv4Address {
	return IPv4Address(d)<<24 | IPv4Address(c)<<16 | IPv4Address(b)<<8 | IPv4Address(a)
}

// SliceToIPv4 converts four element slice to IPv4Address representation
func SliceToIPv4(s []byte) IPv4Address {
	return IPv4Address(s[3])<<24 | IPv4Address(s[2])<<16 | IPv4Address(s[1])<<8 | IPv4Address(s[0])
}

// IPv4ToBytes converts IPv4Address to four octets in wire order
func IPv4ToBytes(v IPv4Address) [IPv4AddrLen]byte {
	return [IPv4AddrLen]uint8{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func (addr IPv4Address) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", byte(addr), byte(addr>>8), byte(addr>>16), byte(addr>>24))
}

// ToNetIP converts address to net.IP.
func (addr IPv4Address) ToNetIP() net.IP {
	b := IPv4ToBytes(addr)
	return net.IPv4(b[0], b[1], b[2], b[3]).To4()
}

// StringToIPv4 parses dotted IPv4 address.
func StringToIPv4(s string) (IPv4Address, error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return 0, fmt.Errorf("failed to parse address %s", s)
	}
	ipv4 := ip.To4()
	if ipv4 == nil {
		return 0, fmt.Errorf("bad IPv4 address %s", s)
	}
	return SliceToIPv4(ipv4), nil
}

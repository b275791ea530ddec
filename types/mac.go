// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package types

import (
	"fmt"
	"net"
)

// MACAddress is an Ethernet address in wire order.
type MACAddress [EtherAddrLen]uint8

// String returns MAC address like string
func (mac MACAddress) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", mac[0], mac[1], mac[2], mac[3], mac[4], mac[5])
}

// IsZero reports whether all octets are zero.
func (mac MACAddress) IsZero() bool {
	return mac == MACAddress{}
}

// StringToMACAddress parses string and returns MACAddress.
func StringToMACAddress(str string) (MACAddress, error) {
	hw, err := net.ParseMAC(str)
	if err != nil {
		return MACAddress{}, err
	}
	if len(hw) != EtherAddrLen {
		return MACAddress{}, fmt.Errorf("%s is not an Ethernet address", str)
	}
	return NetHWAddressToMAC(hw), nil
}

// NetHWAddressToMAC converts net.HardwareAddr to MACAddress address.
func NetHWAddressToMAC(hw net.HardwareAddr) MACAddress {
	var out MACAddress
	copy(out[:], hw)
	return out
}

// MACAddressToNetHW converts MACAddress to net.HardwareAddr address.
func MACAddressToNetHW(mac MACAddress) net.HardwareAddr {
	out := make(net.HardwareAddr, EtherAddrLen)
	copy(out, mac[:])
	return out
}

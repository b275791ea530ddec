// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kni

import (
	"net"

	"github.com/songgao/water"
	"github.com/vishvananda/netlink"

	"github.com/stevelorenz/build-vsf/common"
	"github.com/stevelorenz/build-vsf/packet"
	"github.com/stevelorenz/build-vsf/types"
)

// Config describes bridge device of one port.
type Config struct {
	Port uint16
	// Name defaults to vEth<Port>.
	Name string
	MAC  types.MACAddress
	MTU  int
	// Addr is assigned to the interface if not nil.
	Addr      *net.IPNet
	QueueSize int
}

type netLinkState struct {
	name string
}

func (s netLinkState) State() (bool, int, error) {
	link, err := netlink.LinkByName(s.name)
	if err != nil {
		return false, 0, err
	}
	attrs := link.Attrs()
	return attrs.Flags&net.FlagUp != 0, attrs.MTU, nil
}

// Create makes a TAP interface for the port, gives it the configured MAC
// address if any and brings it up.
func Create(cfg Config, pool *packet.Pool) (*Device, error) {
	name := cfg.Name
	if name == "" {
		name = DeviceName(cfg.Port)
	}
	ifce, err := water.New(water.Config{
		DeviceType: water.TAP,
		PlatformSpecificParams: water.PlatformSpecificParams{
			Name: name,
		},
	})
	if err != nil {
		return nil, common.WrapWithNFError(err, "cannot create TAP interface "+name, common.FailToCreateKNI)
	}
	if err = configureLink(ifce.Name(), cfg); err != nil {
		ifce.Close()
		return nil, err
	}
	common.LogInfo(common.Initialization, "Created KNI", ifce.Name(), "for port", cfg.Port)
	return NewDevice(ifce.Name(), cfg.Port, ifce, netLinkState{name: ifce.Name()}, pool, cfg.QueueSize), nil
}

func configureLink(name string, cfg Config) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return common.WrapWithNFError(err, "cannot find interface "+name, common.FailToCreateKNI)
	}
	if !cfg.MAC.IsZero() {
		if err = netlink.LinkSetHardwareAddr(link, types.MACAddressToNetHW(cfg.MAC)); err != nil {
			return common.WrapWithNFError(err, "cannot set MAC address of "+name, common.FailToCreateKNI)
		}
	}
	if cfg.MTU > 0 {
		if err = netlink.LinkSetMTU(link, cfg.MTU); err != nil {
			return common.WrapWithNFError(err, "cannot set MTU of "+name, common.FailToCreateKNI)
		}
	}
	if cfg.Addr != nil {
		if err = netlink.AddrAdd(link, &netlink.Addr{IPNet: cfg.Addr}); err != nil {
			return common.WrapWithNFError(err, "cannot assign address to "+name, common.FailToCreateKNI)
		}
	}
	if err = netlink.LinkSetUp(link); err != nil {
		return common.WrapWithNFError(err, "cannot bring up "+name, common.FailToCreateKNI)
	}
	return nil
}

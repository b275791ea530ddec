// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flow

import (
	"github.com/stevelorenz/build-vsf/common"
)

// Pairing maps every enabled port to its destination port. Ports are
// paired in enablement order, a port left without pair forwards to itself.
type Pairing struct {
	ports []uint16
	dst   map[uint16]uint16
}

// NewPairing pairs ports.
func NewPairing(ports []uint16) Pairing {
	p := Pairing{
		ports: append([]uint16(nil), ports...),
		dst:   make(map[uint16]uint16, len(ports)),
	}
	for i := 0; i+1 < len(ports); i += 2 {
		p.dst[ports[i]] = ports[i+1]
		p.dst[ports[i+1]] = ports[i]
	}
	if len(ports)%2 == 1 {
		last := ports[len(ports)-1]
		common.LogWarning(common.Initialization, "Notice: odd number of ports in portmask, port", last, "forwards to itself")
		p.dst[last] = last
	}
	return p
}

// Dst returns destination of port and false if port is not enabled.
func (p Pairing) Dst(port uint16) (uint16, bool) {
	d, ok := p.dst[port]
	return d, ok
}

// Ports returns enabled ports in enablement order.
func (p Pairing) Ports() []uint16 {
	return p.ports
}

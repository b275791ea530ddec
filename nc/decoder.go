// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nc

import (
	"github.com/stevelorenz/build-vsf/common"
	"github.com/stevelorenz/build-vsf/packet"
)

// decoder restores source datagrams. Each source datagram is sent once,
// as soon as it can be solved from received rows.
type decoder struct {
	coderBase
	gen     *generation
	emitted []bool
}

func newDecoder(base coderBase) *decoder {
	return &decoder{
		coderBase: base,
		gen:       newGeneration(base.opts.Symbols, base.opts.SymbolSize),
		emitted:   make([]bool, base.opts.Symbols),
	}
}

func (d *decoder) Role() Role {
	return Decoder
}

func (d *decoder) Process(pkt *packet.Packet, pool *packet.Pool, port uint16, sink Sink) {
	payload, ok := d.parseInput(pkt)
	if !ok {
		return
	}
	id, coefs, symbol, err := parseCoded(payload, d.opts.Symbols, d.opts.SymbolSize)
	if err != nil {
		d.drop(pkt, err)
		return
	}
	accepted, fresh := d.gen.accept(id)
	if !accepted {
		d.drop(pkt, "stale generation", id)
		return
	}
	if fresh {
		for i := range d.emitted {
			d.emitted[i] = false
		}
	}
	if d.gen.add(coefs, symbol) < 0 {
		d.stats.NonInnovative++
		pkt.Free()
		return
	}
	for col, done := range d.emitted {
		if done {
			continue
		}
		sym, solved := d.gen.decoded(col)
		if !solved {
			continue
		}
		d.emitted[col] = true
		src, valid := getSource(sym)
		if !valid {
			d.stats.Dropped++
			common.LogDrop(common.Debug, "decoded symbol", col, "of generation", id, "has bad length")
			continue
		}
		d.send(pkt, src, pool, port, sink)
	}
	pkt.Free()
}

func (d *decoder) Free() {
	d.gen = nil
	d.emitted = nil
}

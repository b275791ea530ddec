// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nc

import (
	"github.com/stevelorenz/build-vsf/packet"
)

// recoder sends a fresh combination of received rows for every innovative
// input and Redundancy more once the generation reaches full rank.
type recoder struct {
	coderBase
	gen    *generation
	coefs  []byte
	symbol []byte
}

func newRecoder(base coderBase) *recoder {
	return &recoder{
		coderBase: base,
		gen:       newGeneration(base.opts.Symbols, base.opts.SymbolSize),
		coefs:     make([]byte, base.opts.Symbols),
		symbol:    make([]byte, base.opts.SymbolSize),
	}
}

func (r *recoder) Role() Role {
	return Recoder
}

func (r *recoder) Process(pkt *packet.Packet, pool *packet.Pool, port uint16, sink Sink) {
	payload, ok := r.parseInput(pkt)
	if !ok {
		return
	}
	id, coefs, symbol, err := parseCoded(payload, r.opts.Symbols, r.opts.SymbolSize)
	if err != nil {
		r.drop(pkt, err)
		return
	}
	if accepted, _ := r.gen.accept(id); !accepted {
		r.drop(pkt, "stale generation", id)
		return
	}
	if r.gen.add(coefs, symbol) < 0 {
		r.stats.NonInnovative++
		pkt.Free()
		return
	}
	n := 1
	if r.gen.full() {
		n += r.opts.Redundancy
	}
	for i := 0; i < n; i++ {
		r.gen.combine(r.rng, r.coefs, r.symbol)
		r.sendCoded(pkt, id, r.coefs, r.symbol, pool, port, sink)
	}
	pkt.Free()
}

func (r *recoder) Free() {
	r.gen = nil
	r.coefs = nil
	r.symbol = nil
}

// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nc

import (
	"github.com/stevelorenz/build-vsf/packet"
)

// encoder sends every source datagram as a systematic coded datagram
// and adds Redundancy random combinations after each full generation.
type encoder struct {
	coderBase
	block  [][]byte
	coefs  []byte
	repair []byte
	count  int
	gen    uint16
}

func newEncoder(base coderBase) *encoder {
	e := &encoder{
		coderBase: base,
		block:     make([][]byte, base.opts.Symbols),
		coefs:     make([]byte, base.opts.Symbols),
		repair:    make([]byte, base.opts.SymbolSize),
	}
	for i := range e.block {
		e.block[i] = make([]byte, base.opts.SymbolSize)
	}
	return e
}

func (e *encoder) Role() Role {
	return Encoder
}

func (e *encoder) Process(pkt *packet.Packet, pool *packet.Pool, port uint16, sink Sink) {
	payload, ok := e.parseInput(pkt)
	if !ok {
		return
	}
	if len(payload) > e.opts.MaxSourcePayload() {
		e.drop(pkt, "payload of", len(payload), "bytes does not fit symbol of", e.opts.SymbolSize, "bytes")
		return
	}

	putSource(e.block[e.count], payload)
	for i := range e.coefs {
		e.coefs[i] = 0
	}
	e.coefs[e.count] = 1
	e.sendCoded(pkt, e.gen, e.coefs, e.block[e.count], pool, port, sink)
	e.count++

	if e.count == e.opts.Symbols {
		for r := 0; r < e.opts.Redundancy; r++ {
			for i := range e.repair {
				e.repair[i] = 0
			}
			for i := range e.coefs {
				e.coefs[i] = e.randomCoefficient()
				mulAddRow(e.repair, e.block[i], e.coefs[i])
			}
			e.sendCoded(pkt, e.gen, e.coefs, e.repair, pool, port, sink)
		}
		e.count = 0
		e.gen++
	}
	pkt.Free()
}

func (e *encoder) Free() {
	e.block = nil
	e.coefs = nil
	e.repair = nil
}

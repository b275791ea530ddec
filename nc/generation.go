// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nc

import (
	"encoding/binary"
	"math/rand"

	"github.com/stevelorenz/build-vsf/common"
)

// Coded datagram payload layout:
//	type(1) | generation(2) | symbols(1) | coefficients(symbols) | symbol(symbolSize)
// A source symbol is length(2) | payload | zero padding.
const (
	PacketTypeCoded byte = 0x01

	codedHdrLen = 4
	lenPrefix   = 2
)

func writeCoded(dst []byte, gen uint16, coefs, symbol []byte) {
	dst[0] = PacketTypeCoded
	binary.BigEndian.PutUint16(dst[1:], gen)
	dst[3] = byte(len(coefs))
	copy(dst[codedHdrLen:], coefs)
	copy(dst[codedHdrLen+len(coefs):], symbol)
}

// parseCoded returns generation, coefficients and symbol of coded payload.
// Returned slices alias payload.
func parseCoded(payload []byte, symbols, symbolSize int) (uint16, []byte, []byte, error) {
	if len(payload) < codedHdrLen+symbols+symbolSize {
		return 0, nil, nil, common.WrapWithNFError(nil, "coded payload is truncated", common.BadCodedPacket)
	}
	if payload[0] != PacketTypeCoded {
		return 0, nil, nil, common.WrapWithNFError(nil, "payload is not coded", common.BadCodedPacket)
	}
	if int(payload[3]) != symbols {
		return 0, nil, nil, common.WrapWithNFError(nil, "generation size mismatch", common.BadCodedPacket)
	}
	gen := binary.BigEndian.Uint16(payload[1:])
	coefs := payload[codedHdrLen : codedHdrLen+symbols]
	symbol := payload[codedHdrLen+symbols : codedHdrLen+symbols+symbolSize]
	return gen, coefs, symbol, nil
}

// putSource writes length prefixed payload into symbol and pads it with zeros.
func putSource(symbol, payload []byte) {
	binary.BigEndian.PutUint16(symbol, uint16(len(payload)))
	n := copy(symbol[lenPrefix:], payload)
	for i := lenPrefix + n; i < len(symbol); i++ {
		symbol[i] = 0
	}
}

// getSource extracts payload from a decoded symbol.
func getSource(symbol []byte) ([]byte, bool) {
	n := int(binary.BigEndian.Uint16(symbol))
	if n > len(symbol)-lenPrefix {
		return nil, false
	}
	return symbol[lenPrefix : lenPrefix+n], true
}

// generation keeps received coded rows of one generation in reduced row
// echelon form. A row is coefficients followed by the coded symbol.
type generation struct {
	symbols    int
	symbolSize int
	id         uint16
	started    bool
	rows       [][]byte
	pivotRow   []int
	rank       int
	scratch    []byte
}

func newGeneration(symbols, symbolSize int) *generation {
	g := &generation{
		symbols:    symbols,
		symbolSize: symbolSize,
		rows:       make([][]byte, symbols),
		pivotRow:   make([]int, symbols),
		scratch:    make([]byte, symbols+symbolSize),
	}
	for i := range g.rows {
		g.rows[i] = make([]byte, symbols+symbolSize)
	}
	g.reset(0)
	g.started = false
	return g
}

func (g *generation) reset(id uint16) {
	g.id = id
	g.started = true
	g.rank = 0
	for i := range g.pivotRow {
		g.pivotRow[i] = -1
	}
}

// accept switches to generation id if it is newer than the current one.
// It returns false for datagrams of older generations and reports whether
// stored rows were discarded.
func (g *generation) accept(id uint16) (ok, fresh bool) {
	if !g.started {
		g.reset(id)
		return true, true
	}
	d := int16(id - g.id)
	if d < 0 {
		return false, false
	}
	if d > 0 {
		g.reset(id)
		return true, true
	}
	return true, false
}

func (g *generation) full() bool {
	return g.rank == g.symbols
}

// add inserts a coded row. It returns pivot column of the new row or -1
// if the row is a combination of rows already stored.
func (g *generation) add(coefs, symbol []byte) int {
	if g.full() {
		return -1
	}
	r := g.scratch
	copy(r, coefs)
	copy(r[g.symbols:], symbol)

	for c := 0; c < g.symbols; c++ {
		if k := g.pivotRow[c]; k >= 0 && r[c] != 0 {
			mulAddRow(r, g.rows[k], r[c])
		}
	}
	pivot := -1
	for c := 0; c < g.symbols; c++ {
		if r[c] != 0 {
			pivot = c
			break
		}
	}
	if pivot < 0 {
		return -1
	}
	scaleRow(r, gfInv(r[pivot]))
	for k := 0; k < g.rank; k++ {
		if f := g.rows[k][pivot]; f != 0 {
			mulAddRow(g.rows[k], r, f)
		}
	}
	copy(g.rows[g.rank], r)
	g.pivotRow[pivot] = g.rank
	g.rank++
	return pivot
}

// decoded returns source symbol col if it is already solved.
func (g *generation) decoded(col int) ([]byte, bool) {
	k := g.pivotRow[col]
	if k < 0 {
		return nil, false
	}
	row := g.rows[k]
	for c := 0; c < g.symbols; c++ {
		if c != col && row[c] != 0 {
			return nil, false
		}
	}
	return row[g.symbols:], true
}

// combine writes a random non trivial combination of stored rows into
// coefs and symbol.
func (g *generation) combine(rng *rand.Rand, coefs, symbol []byte) {
	for i := range coefs {
		coefs[i] = 0
	}
	for i := range symbol {
		symbol[i] = 0
	}
	for k := 0; k < g.rank; k++ {
		f := byte(1 + rng.Intn(255))
		mulAddRow(coefs, g.rows[k][:g.symbols], f)
		mulAddRow(symbol, g.rows[k][g.symbols:], f)
	}
}

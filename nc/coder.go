// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package nc implements random linear network coding of UDP payloads over
// GF(2^8). An encoder turns source datagrams into coded datagrams, a
// recoder mixes coded datagrams of a generation and a decoder restores
// source datagrams.
//
// Every coder consumes and frees its input packet. Output packets are
// allocated from the given pool, carry copies of the input headers and
// are handed one by one to a Sink.
package nc

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/stevelorenz/build-vsf/common"
	"github.com/stevelorenz/build-vsf/packet"
	"github.com/stevelorenz/build-vsf/types"
)

// Role selects what a coder does with datagrams.
type Role int

// Coder roles. Values are the ones accepted on the command line.
const (
	None    Role = -1
	Encoder Role = 0
	Decoder Role = 1
	Recoder Role = 2
)

func (r Role) String() string {
	switch r {
	case None:
		return "pass-through"
	case Encoder:
		return "encoder"
	case Decoder:
		return "decoder"
	case Recoder:
		return "recoder"
	}
	return fmt.Sprintf("unknown(%d)", int(r))
}

// Options of a coder.
type Options struct {
	Field      string
	Protocol   string
	SymbolSize int
	Symbols    int
	Redundancy int
	// Seed of coefficient generator, zero means seeded from clock.
	Seed int64
}

// Supported values of Field and Protocol.
const (
	FieldBinary8  = "binary8"
	ProtocolNoAck = "noack"

	maxSymbols = 128
)

// DefaultOptions returns binary8/noack coding with generations of two
// symbols of 258 bytes and one repair packet per generation.
func DefaultOptions() Options {
	return Options{
		Field:      FieldBinary8,
		Protocol:   ProtocolNoAck,
		SymbolSize: 258,
		Symbols:    2,
		Redundancy: 1,
	}
}

// Validate checks that coding with these options is supported.
func (o Options) Validate() error {
	switch {
	case o.Field != FieldBinary8:
		return common.WrapWithNFError(nil, "unsupported field "+o.Field, common.FailToCreateCoder)
	case o.Protocol != ProtocolNoAck:
		return common.WrapWithNFError(nil, "unsupported protocol "+o.Protocol, common.FailToCreateCoder)
	case o.Symbols < 1 || o.Symbols > maxSymbols:
		return common.WrapWithNFError(nil, fmt.Sprintf("symbols must be in 1..%d, got %d", maxSymbols, o.Symbols), common.FailToCreateCoder)
	case o.SymbolSize <= lenPrefix:
		return common.WrapWithNFError(nil, fmt.Sprintf("symbol size %d is too small", o.SymbolSize), common.FailToCreateCoder)
	case o.Redundancy < 0:
		return common.WrapWithNFError(nil, fmt.Sprintf("negative redundancy %d", o.Redundancy), common.FailToCreateCoder)
	}
	return nil
}

// CodedPayloadLen returns UDP payload length of a coded datagram.
func (o Options) CodedPayloadLen() int {
	return codedHdrLen + o.Symbols + o.SymbolSize
}

// MaxSourcePayload returns the largest UDP payload an encoder accepts.
func (o Options) MaxSourcePayload() int {
	return o.SymbolSize - lenPrefix
}

// CheckDataRoom verifies that a pool buffer of dataRoom bytes can hold a
// coded datagram with the largest IPv4 header.
func (o Options) CheckDataRoom(dataRoom int) error {
	need := types.EtherLen + 60 + types.UDPLen + o.CodedPayloadLen()
	if need > dataRoom {
		return common.WrapWithNFError(nil, fmt.Sprintf("coded frames need %d bytes, buffers have %d", need, dataRoom), common.PktMbufHeadRoomTooSmall)
	}
	return nil
}

// Sink receives coder output. Send takes ownership of pkt.
type Sink interface {
	Send(pkt *packet.Packet, port uint16) int
}

// Stats counts datagrams passed through a coder.
type Stats struct {
	In            uint64
	Out           uint64
	Dropped       uint64
	NonInnovative uint64
}

// Coder is a stateful network coding operation. It is not safe for
// concurrent use.
type Coder interface {
	// Process consumes pkt and sends zero or more coded packets to sink.
	Process(pkt *packet.Packet, pool *packet.Pool, port uint16, sink Sink)
	Role() Role
	Stats() Stats
	// Free releases coding buffers. The coder must not be used afterwards.
	Free()
}

// New creates a coder for role. For None it returns nil coder and nil error.
func New(role Role, opts Options) (Coder, error) {
	if role == None {
		return nil, nil
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	base := coderBase{
		opts:    opts,
		rng:     rand.New(rand.NewSource(seed)),
		payload: make([]byte, opts.CodedPayloadLen()),
	}
	switch role {
	case Encoder:
		return newEncoder(base), nil
	case Decoder:
		return newDecoder(base), nil
	case Recoder:
		return newRecoder(base), nil
	}
	return nil, common.WrapWithNFError(nil, "unknown coder type "+role.String(), common.FailToCreateCoder)
}

type coderBase struct {
	opts    Options
	rng     *rand.Rand
	payload []byte
	stats   Stats
}

func (c *coderBase) Stats() Stats {
	return c.stats
}

// randomCoefficient returns a non zero field element.
func (c *coderBase) randomCoefficient() byte {
	return byte(1 + c.rng.Intn(255))
}

func (c *coderBase) drop(pkt *packet.Packet, v ...interface{}) {
	c.stats.Dropped++
	common.LogDrop(common.Verbose, v...)
	pkt.Free()
}

// send builds output packet from headers of in and payload and passes it
// to sink. Allocation failures drop the output.
func (c *coderBase) send(in *packet.Packet, payload []byte, pool *packet.Pool, port uint16, sink Sink) {
	out, err := pool.Alloc()
	if err != nil {
		c.stats.Dropped++
		common.LogError(common.Debug, "coder output dropped:", err)
		return
	}
	hdrLen := types.EtherLen + in.IPv4.HeaderLen() + types.UDPLen
	if err = out.SetBytes(in.Bytes()[:hdrLen]); err == nil {
		out.ParseEtherIPv4UDP()
		err = out.SetUDPPayload(payload)
	}
	if err != nil {
		c.stats.Dropped++
		common.LogError(common.Debug, "coder output dropped:", err)
		out.Free()
		return
	}
	out.Port = in.Port
	c.stats.Out++
	sink.Send(out, port)
}

// sendCoded serializes a coded symbol and sends it.
func (c *coderBase) sendCoded(in *packet.Packet, gen uint16, coefs, symbol []byte, pool *packet.Pool, port uint16, sink Sink) {
	writeCoded(c.payload, gen, coefs, symbol)
	c.send(in, c.payload, pool, port, sink)
}

// parseInput checks that pkt is an IPv4/UDP datagram and returns its payload.
func (c *coderBase) parseInput(pkt *packet.Packet) ([]byte, bool) {
	c.stats.In++
	if !pkt.ParseEtherIPv4UDP() {
		c.drop(pkt, "coder input is not IPv4/UDP")
		return nil, false
	}
	return pkt.GetUDPPayload(), true
}

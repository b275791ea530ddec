// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package packet

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/stevelorenz/build-vsf/common"
)

// Sizes of packet buffers. Coders add at most MaxHdrLen bytes of headers
// to a frame carrying MaxDataLen bytes.
const (
	MaxDataLen      = 1500
	MaxHdrLen       = 90
	DefaultDataRoom = MaxDataLen + MaxHdrLen

	minPoolSize   = 8192
	perCoreCached = 256
)

const (
	stateFree uint32 = iota
	stateOwned
)

// PoolSize returns number of buffers required by given ports and
// descriptor rings, never less than 8192.
func PoolSize(ports, rxDesc, txDesc, burst, cores int) int {
	n := ports * (rxDesc + txDesc + burst + cores*perCoreCached)
	if n < minPoolSize {
		return minPoolSize
	}
	return n
}

// PoolStats is a snapshot of pool counters.
type PoolStats struct {
	Size        int
	InUse       int
	Allocs      uint64
	Frees       uint64
	AllocFails  uint64
	DoubleFrees uint64
}

// Pool is an arena of fixed size packet buffers shared by all ports and
// cores. Alloc and Free are safe for concurrent use, a single Packet is not.
type Pool struct {
	name     string
	dataRoom int
	slab     []byte
	pkts     []Packet
	free     chan uint32

	allocs      uint64
	frees       uint64
	allocFails  uint64
	doubleFrees uint64
}

// NewPool creates a pool of n buffers with dataRoom bytes each.
func NewPool(name string, n, dataRoom int) (*Pool, error) {
	if n <= 0 || dataRoom < MaxHdrLen {
		return nil, common.WrapWithNFError(nil, fmt.Sprintf("cannot create pool %s of %d buffers with %d bytes", name, n, dataRoom), common.BadArgument)
	}
	pool := &Pool{
		name:     name,
		dataRoom: dataRoom,
		slab:     make([]byte, n*dataRoom),
		pkts:     make([]Packet, n),
		free:     make(chan uint32, n),
	}
	for i := range pool.pkts {
		pkt := &pool.pkts[i]
		start := i * dataRoom
		pkt.buf = pool.slab[start : start+dataRoom : start+dataRoom]
		pkt.Ether = (*EtherHdr)(unsafe.Pointer(&pkt.buf[0]))
		pkt.pool = pool
		pkt.index = uint32(i)
		pool.free <- uint32(i)
	}
	common.LogDebug(common.Initialization, "Created pool", name, "with", n, "buffers of", dataRoom, "bytes")
	return pool, nil
}

// Alloc takes a buffer from the pool. The returned packet is empty and
// owned by the caller.
func (pool *Pool) Alloc() (*Packet, error) {
	select {
	case i := <-pool.free:
		pkt := &pool.pkts[i]
		atomic.StoreUint32(&pkt.state, stateOwned)
		pkt.length = 0
		pkt.Port = 0
		pkt.resetHeaders()
		atomic.AddUint64(&pool.allocs, 1)
		return pkt, nil
	default:
		atomic.AddUint64(&pool.allocFails, 1)
		return nil, common.WrapWithNFError(nil, "pool "+pool.name+" is exhausted", common.AllocMbufErr)
	}
}

// AllocFrom allocates a packet holding a copy of data.
func (pool *Pool) AllocFrom(data []byte) (*Packet, error) {
	pkt, err := pool.Alloc()
	if err != nil {
		return nil, err
	}
	if err = pkt.SetBytes(data); err != nil {
		pkt.Free()
		return nil, err
	}
	return pkt, nil
}

// Free returns packet buffer to its pool. Freeing a packet twice is
// reported and counted, the second call has no other effect.
func (packet *Packet) Free() {
	if packet == nil {
		return
	}
	pool := packet.pool
	if !atomic.CompareAndSwapUint32(&packet.state, stateOwned, stateFree) {
		atomic.AddUint64(&pool.doubleFrees, 1)
		common.LogError(common.Debug, "double free of packet", packet.index, "in pool", pool.name)
		return
	}
	atomic.AddUint64(&pool.frees, 1)
	pool.free <- packet.index
}

// FreeBulk frees all non nil packets of slice and sets them to nil.
func FreeBulk(pkts []*Packet) {
	for i := range pkts {
		if pkts[i] != nil {
			pkts[i].Free()
			pkts[i] = nil
		}
	}
}

// Name returns pool name.
func (pool *Pool) Name() string {
	return pool.name
}

// DataRoom returns size of every buffer.
func (pool *Pool) DataRoom() int {
	return pool.dataRoom
}

// Size returns number of buffers.
func (pool *Pool) Size() int {
	return len(pool.pkts)
}

// InUse returns number of buffers owned by someone.
func (pool *Pool) InUse() int {
	return len(pool.pkts) - len(pool.free)
}

// Stats returns a snapshot of pool counters.
func (pool *Pool) Stats() PoolStats {
	return PoolStats{
		Size:        len(pool.pkts),
		InUse:       pool.InUse(),
		Allocs:      atomic.LoadUint64(&pool.allocs),
		Frees:       atomic.LoadUint64(&pool.frees),
		AllocFails:  atomic.LoadUint64(&pool.allocFails),
		DoubleFrees: atomic.LoadUint64(&pool.doubleFrees),
	}
}

// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package low

import (
	"sync/atomic"

	"github.com/golang-collections/go-datastructures/queue"

	"github.com/stevelorenz/build-vsf/packet"
)

// PacketQueue is a bounded fifo of packets safe for one producer and one
// consumer running in different goroutines.
type PacketQueue struct {
	q        *queue.Queue
	capacity int64
	length   int64
}

// NewPacketQueue creates queue which holds at most capacity packets.
func NewPacketQueue(capacity int) *PacketQueue {
	return &PacketQueue{
		q:        queue.New(int64(capacity)),
		capacity: int64(capacity),
	}
}

// Put appends pkt. It returns false and leaves pkt to the caller if the
// queue is full or disposed.
func (pq *PacketQueue) Put(pkt *packet.Packet) bool {
	if atomic.AddInt64(&pq.length, 1) > pq.capacity {
		atomic.AddInt64(&pq.length, -1)
		return false
	}
	if err := pq.q.Put(pkt); err != nil {
		atomic.AddInt64(&pq.length, -1)
		return false
	}
	return true
}

// Get moves up to len(pkts) packets to pkts without blocking and returns
// their number.
func (pq *PacketQueue) Get(pkts []*packet.Packet) int {
	if len(pkts) == 0 || pq.q.Len() == 0 {
		return 0
	}
	items, err := pq.q.Get(int64(len(pkts)))
	if err != nil {
		return 0
	}
	for i, item := range items {
		pkts[i] = item.(*packet.Packet)
	}
	atomic.AddInt64(&pq.length, -int64(len(items)))
	return len(items)
}

// Len returns number of queued packets.
func (pq *PacketQueue) Len() int {
	return int(atomic.LoadInt64(&pq.length))
}

// Capacity returns maximum queue length.
func (pq *PacketQueue) Capacity() int {
	return int(pq.capacity)
}

// Dispose frees queued packets and makes further Put calls fail.
func (pq *PacketQueue) Dispose() {
	for pq.q.Len() > 0 {
		items, err := pq.q.Get(pq.q.Len())
		if err != nil {
			break
		}
		for _, item := range items {
			item.(*packet.Packet).Free()
		}
		atomic.AddInt64(&pq.length, -int64(len(items)))
	}
	pq.q.Dispose()
}

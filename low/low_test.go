// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package low

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/bpf"

	"github.com/stevelorenz/build-vsf/packet"
	"github.com/stevelorenz/build-vsf/types"
)

var testMAC = types.MACAddress{0x02, 0, 0, 0, 0, 0x10}

func newPool(t *testing.T, n int) *packet.Pool {
	pool, err := packet.NewPool(t.Name(), n, packet.DefaultDataRoom)
	require.NoError(t, err)
	return pool
}

func allocN(t *testing.T, pool *packet.Pool, n int) []*packet.Packet {
	pkts := make([]*packet.Packet, n)
	for i := range pkts {
		var err error
		pkts[i], err = pool.AllocFrom(packet.BuildUDPFrame(packet.DefaultFrameSpec([]byte{byte(i)})))
		require.NoError(t, err)
	}
	return pkts
}

func TestPacketQueueBounded(t *testing.T) {
	pool := newPool(t, 8)
	q := NewPacketQueue(3)
	pkts := allocN(t, pool, 4)
	for i := 0; i < 3; i++ {
		assert.True(t, q.Put(pkts[i]))
	}
	assert.False(t, q.Put(pkts[3]))
	assert.Equal(t, 3, q.Len())
	pkts[3].Free()

	out := make([]*packet.Packet, 2)
	require.Equal(t, 2, q.Get(out))
	assert.Equal(t, pkts[:2], out)
	assert.Equal(t, 1, q.Len())
	packet.FreeBulk(out)

	assert.Equal(t, 0, q.Get(out[:0]))
	q.Dispose()
	assert.Equal(t, 0, pool.InUse())
	assert.Equal(t, 0, q.Get(out))
}

func TestRingPort(t *testing.T) {
	pool := newPool(t, 8)
	port := NewRingPort(3, testMAC, 4)
	assert.Equal(t, uint16(3), port.ID())
	assert.Equal(t, "ring3", port.Name())
	assert.True(t, port.LinkUp())
	port.SetLink(false)
	assert.False(t, port.LinkUp())

	require.NoError(t, port.InjectFrame(pool, packet.BuildUDPFrame(packet.DefaultFrameSpec(nil))))
	assert.Equal(t, 1, port.Pending())
	rx := make([]*packet.Packet, 4)
	require.Equal(t, 1, port.RxBurst(rx))
	assert.Equal(t, uint16(3), rx[0].Port)
	assert.Equal(t, 0, port.RxBurst(rx))

	require.Equal(t, 1, port.TxBurst(rx[:1]))
	assert.Equal(t, 1, port.Sent())
	assert.Equal(t, 0, port.Pending())
	sent := make([]*packet.Packet, 4)
	require.Equal(t, 1, port.TakeSent(sent))
	assert.Equal(t, rx[0], sent[0])
	sent[0].Free()

	st := port.Stats()
	assert.Equal(t, uint64(1), st.RxPackets)
	assert.Equal(t, uint64(1), st.TxPackets)

	require.Equal(t, 4, port.Inject(allocN(t, pool, 4)))
	assert.Error(t, port.InjectFrame(pool, packet.BuildUDPFrame(packet.DefaultFrameSpec(nil))))
	require.NoError(t, port.Close())
	assert.Equal(t, 0, pool.InUse())
}

func TestTxBufferFlushesWhenFull(t *testing.T) {
	pool := newPool(t, 8)
	port := NewRingPort(0, testMAC, 8)
	tb := NewTxBuffer(port, 3)
	pkts := allocN(t, pool, 4)

	assert.Equal(t, 0, tb.Buffer(pkts[0]))
	assert.Equal(t, 0, tb.Buffer(pkts[1]))
	assert.Equal(t, 3, tb.Buffer(pkts[2]))
	assert.Equal(t, 0, tb.Len())
	assert.Equal(t, 0, tb.Buffer(pkts[3]))
	assert.Equal(t, 1, tb.Len())
	assert.Equal(t, 1, tb.Flush())
	assert.Equal(t, 0, tb.Flush())
	assert.Equal(t, uint64(4), tb.Sent())

	sent := make([]*packet.Packet, 8)
	require.Equal(t, 4, port.TakeSent(sent))
	assert.Equal(t, pkts, sent[:4])
	packet.FreeBulk(sent)
	assert.Equal(t, 0, pool.InUse())
}

func TestTxBufferFreesUnsent(t *testing.T) {
	pool := newPool(t, 8)
	port := NewRingPort(0, testMAC, 2)
	tb := NewTxBuffer(port, 4)
	for _, pkt := range allocN(t, pool, 4) {
		tb.Buffer(pkt)
	}
	assert.Equal(t, uint64(2), tb.Sent())
	assert.Equal(t, uint64(2), tb.Dropped())
	assert.Equal(t, 2, pool.InUse())
	assert.Equal(t, uint64(1), port.Stats().TxErrors)
	require.NoError(t, port.Close())
	assert.Equal(t, 0, pool.InUse())
}

func TestCheckLinkStatus(t *testing.T) {
	linkCheckInterval = time.Millisecond
	linkCheckAttempts = 5
	defer func() {
		linkCheckInterval = 100 * time.Millisecond
		linkCheckAttempts = 90
	}()

	up := NewRingPort(0, testMAC, 1)
	down := NewRingPort(1, testMAC, 1)
	down.SetLink(false)
	assert.True(t, CheckLinkStatus([]Port{up}, nil))
	assert.False(t, CheckLinkStatus([]Port{up, down}, nil))

	calls := 0
	quit := func() bool {
		calls++
		return calls > 1
	}
	assert.False(t, CheckLinkStatus([]Port{down}, quit))
	assert.Equal(t, 2, calls)
}

func TestOutgoingFilterAssembles(t *testing.T) {
	prog, err := bpf.Assemble(outgoingFilter)
	require.NoError(t, err)
	assert.Len(t, prog, len(outgoingFilter))
}

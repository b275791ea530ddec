// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package packet

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevelorenz/build-vsf/types"
)

func getPoolForTest(t *testing.T, n int) *Pool {
	pool, err := NewPool(t.Name(), n, DefaultDataRoom)
	require.NoError(t, err)
	return pool
}

func getPacketFromBytes(t *testing.T, pool *Pool, data []byte) *Packet {
	pkt, err := pool.AllocFrom(data)
	require.NoError(t, err)
	return pkt
}

func TestParseEtherIPv4UDP(t *testing.T) {
	pool := getPoolForTest(t, 4)
	payload := []byte("network coding payload")
	spec := DefaultFrameSpec(payload)
	pkt := getPacketFromBytes(t, pool, BuildUDPFrame(spec))
	defer pkt.Free()

	require.True(t, pkt.ParseEtherIPv4UDP())
	assert.Equal(t, spec.SrcMAC, pkt.Ether.SAddr)
	assert.Equal(t, spec.DstMAC, pkt.Ether.DAddr)
	assert.Equal(t, spec.SrcIP, pkt.IPv4.SrcAddr)
	assert.Equal(t, spec.DstIP, pkt.IPv4.DstAddr)
	assert.Equal(t, types.IPv4MinLen, pkt.IPv4.HeaderLen())
	assert.Equal(t, spec.SrcPort, SwapBytesUint16(pkt.UDP.SrcPort))
	assert.Equal(t, spec.DstPort, SwapBytesUint16(pkt.UDP.DstPort))
	assert.Equal(t, payload, pkt.GetUDPPayload())
	assert.Equal(t, payload[0], *(*byte)(pkt.Data))
}

// withIHL returns copy of frame with IPv4 header length field set to ihl words.
func withIHL(frame []byte, ihl byte) []byte {
	out := append([]byte(nil), frame...)
	out[types.EtherLen] = 0x40 | ihl
	return out
}

var parseTests = []struct {
	name  string
	frame []byte
	ipv4  bool
	udp   bool
}{
	{"udp", BuildUDPFrame(DefaultFrameSpec([]byte{1, 2, 3})), true, true},
	{"tcp", BuildTCPFrame(DefaultFrameSpec([]byte{1, 2, 3})), true, false},
	{"arp", BuildARPFrame(DefaultFrameSpec(nil)), false, false},
	{"ipv6", BuildIPv6UDPFrame(DefaultFrameSpec([]byte{1})), false, false},
	{"truncated", BuildUDPFrame(DefaultFrameSpec(nil))[:types.EtherLen+10], false, false},
	{"ihl 0", withIHL(BuildUDPFrame(DefaultFrameSpec(nil)), 0), false, false},
	{"ihl beyond frame", withIHL(BuildUDPFrame(DefaultFrameSpec(nil)), 15), false, false},
}

func TestConditionalParsing(t *testing.T) {
	pool := getPoolForTest(t, 1)
	for _, tt := range parseTests {
		pkt := getPacketFromBytes(t, pool, tt.frame)
		assert.Equal(t, tt.ipv4, pkt.GetIPv4() != nil, tt.name)
		assert.Equal(t, tt.udp, pkt.GetUDPForIPv4() != nil, tt.name)
		pkt.Free()
	}
}

func TestChecksumsMatchGopacket(t *testing.T) {
	pool := getPoolForTest(t, 2)
	for _, size := range []int{0, 1, 7, 64, 1001} {
		frame := BuildUDPFrame(DefaultFrameSpec(bytes.Repeat([]byte{0xa5}, size)))
		pkt := getPacketFromBytes(t, pool, frame)
		require.True(t, pkt.ParseEtherIPv4UDP())
		pkt.IPv4.HdrChecksum = 0
		pkt.UDP.DgramCksum = 0
		pkt.RecalculateChecksums()
		assert.Equal(t, frame, pkt.Bytes(), "payload size %d", size)
		pkt.Free()
	}
}

func TestSetIPv4Addrs(t *testing.T) {
	pool := getPoolForTest(t, 1)
	spec := DefaultFrameSpec([]byte("bridge"))
	pkt := getPacketFromBytes(t, pool, BuildUDPFrame(spec))
	defer pkt.Free()
	require.True(t, pkt.ParseEtherIPv4UDP())

	src := types.BytesToIPv4(10, 0, 0, 13)
	dst := types.BytesToIPv4(10, 0, 0, 14)
	pkt.SetIPv4Addrs(&src, &dst)

	spec.SrcIP = src
	spec.DstIP = dst
	assert.Equal(t, BuildUDPFrame(spec), pkt.Bytes())

	dst = types.BytesToIPv4(10, 0, 0, 11)
	pkt.SetIPv4Addrs(nil, &dst)
	spec.DstIP = dst
	assert.Equal(t, BuildUDPFrame(spec), pkt.Bytes())
}

func TestSetUDPPayload(t *testing.T) {
	pool := getPoolForTest(t, 1)
	pkt := getPacketFromBytes(t, pool, BuildUDPFrame(DefaultFrameSpec([]byte("short"))))
	defer pkt.Free()
	require.True(t, pkt.ParseEtherIPv4UDP())

	payload := bytes.Repeat([]byte("coded"), 50)
	require.NoError(t, pkt.SetUDPPayload(payload))
	assert.Equal(t, BuildUDPFrame(DefaultFrameSpec(payload)), pkt.Bytes())

	ip, udp := DecodeUDPFrame(pkt.Bytes())
	require.NotNil(t, ip)
	assert.Equal(t, uint16(types.IPv4MinLen+types.UDPLen+len(payload)), ip.Length)
	assert.Equal(t, payload, udp.Payload)

	err := pkt.SetUDPPayload(make([]byte, DefaultDataRoom))
	assert.Error(t, err)
}

func TestPoolAccounting(t *testing.T) {
	pool := getPoolForTest(t, 2)
	a, err := pool.Alloc()
	require.NoError(t, err)
	b, err := pool.Alloc()
	require.NoError(t, err)
	_, err = pool.Alloc()
	assert.Error(t, err)
	assert.Equal(t, 2, pool.InUse())

	a.Free()
	b.Free()
	b.Free()
	st := pool.Stats()
	assert.Equal(t, 0, st.InUse)
	assert.Equal(t, uint64(2), st.Allocs)
	assert.Equal(t, uint64(2), st.Frees)
	assert.Equal(t, uint64(1), st.AllocFails)
	assert.Equal(t, uint64(1), st.DoubleFrees)

	pkts := []*Packet{nil, nil}
	pkts[0], _ = pool.Alloc()
	FreeBulk(pkts)
	assert.Nil(t, pkts[0])
	assert.Equal(t, 0, pool.InUse())
}

func TestPoolSize(t *testing.T) {
	assert.Equal(t, 8192, PoolSize(2, 1024, 1024, 32, 1))
	assert.Equal(t, 4*(4096+4096+32+2*256), PoolSize(4, 4096, 4096, 32, 2))
}

func TestSetLenBeyondRoom(t *testing.T) {
	pool := getPoolForTest(t, 1)
	pkt, err := pool.Alloc()
	require.NoError(t, err)
	defer pkt.Free()
	assert.Error(t, pkt.SetLen(DefaultDataRoom+1))
	assert.NoError(t, pkt.SetLen(DefaultDataRoom))
	assert.Equal(t, DefaultDataRoom, pkt.Room())
}

func TestPcapDumper(t *testing.T) {
	now = func() time.Time { return time.Unix(1500000000, 0) }
	defer func() { now = time.Now }()

	pool := getPoolForTest(t, 2)
	frames := [][]byte{
		BuildUDPFrame(DefaultFrameSpec([]byte("first"))),
		BuildUDPFrame(DefaultFrameSpec([]byte("second"))),
	}
	pkts := []*Packet{getPacketFromBytes(t, pool, frames[0]), nil, getPacketFromBytes(t, pool, frames[1])}
	defer FreeBulk(pkts)

	var out bytes.Buffer
	d, err := NewPcapWriter(&out)
	require.NoError(t, err)
	require.NoError(t, d.WriteBurst(pkts))
	require.NoError(t, d.Close())

	r, err := pcapgo.NewReader(&out)
	require.NoError(t, err)
	for _, frame := range frames {
		data, ci, err := r.ReadPacketData()
		require.NoError(t, err)
		assert.Equal(t, frame, data)
		assert.Equal(t, int64(1500000000), ci.Timestamp.Unix())
	}
}

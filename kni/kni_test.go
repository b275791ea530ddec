// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kni

import (
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevelorenz/build-vsf/packet"
)

// fakeTap plays the kernel side of a bridge device.
type fakeTap struct {
	toEngine chan []byte
	mu       sync.Mutex
	written  [][]byte
	once     sync.Once
}

func newFakeTap() *fakeTap {
	return &fakeTap{toEngine: make(chan []byte, 16)}
}

func (f *fakeTap) Read(p []byte) (int, error) {
	frame, ok := <-f.toEngine
	if !ok {
		return 0, io.EOF
	}
	return copy(p, frame), nil
}

func (f *fakeTap) Write(p []byte) (int, error) {
	f.mu.Lock()
	f.written = append(f.written, append([]byte(nil), p...))
	f.mu.Unlock()
	return len(p), nil
}

func (f *fakeTap) Close() error {
	f.once.Do(func() { close(f.toEngine) })
	return nil
}

func (f *fakeTap) frames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.written...)
}

type fakeLink struct {
	up  int32
	mtu int32
}

func (l *fakeLink) State() (bool, int, error) {
	return atomic.LoadInt32(&l.up) == 1, int(atomic.LoadInt32(&l.mtu)), nil
}

func newTestDevice(t *testing.T, queueSize int) (*Device, *fakeTap, *fakeLink, *packet.Pool) {
	pool, err := packet.NewPool(t.Name(), 64, packet.DefaultDataRoom)
	require.NoError(t, err)
	tap := newFakeTap()
	link := &fakeLink{up: 1, mtu: 1500}
	return NewDevice(DeviceName(1), 1, tap, link, pool, queueSize), tap, link, pool
}

func frame(b byte) []byte {
	return packet.BuildUDPFrame(packet.DefaultFrameSpec([]byte{b}))
}

func TestDeviceName(t *testing.T) {
	assert.Equal(t, "vEth0", DeviceName(0))
	assert.Equal(t, "vEth12", DeviceName(12))
}

func TestPushDeliversToKernel(t *testing.T) {
	dev, tap, _, pool := newTestDevice(t, 8)
	pkts := make([]*packet.Packet, 3)
	for i := range pkts {
		var err error
		pkts[i], err = pool.AllocFrom(frame(byte(i)))
		require.NoError(t, err)
	}
	require.Equal(t, 3, dev.Push(pkts))
	require.Eventually(t, func() bool { return len(tap.frames()) == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, [][]byte{frame(0), frame(1), frame(2)}, tap.frames())
	require.NoError(t, dev.Close())
	assert.Equal(t, 0, pool.InUse())
	assert.Equal(t, uint64(3), dev.Stats().Pushed)
}

func TestPushRejectsWhenFull(t *testing.T) {
	dev, _, _, pool := newTestDevice(t, 2)
	// Writer is stopped so the fifo is not drained.
	atomic.StoreInt32(&dev.stop, 1)
	dev.wg.Wait()

	pkts := make([]*packet.Packet, 3)
	for i := range pkts {
		pkts[i], _ = pool.AllocFrom(frame(byte(i)))
	}
	n := dev.Push(pkts)
	assert.Equal(t, 2, n)
	packet.FreeBulk(pkts[n:])
	st := dev.Stats()
	assert.Equal(t, uint64(2), st.Pushed)
	assert.Equal(t, uint64(1), st.Rejected)

	atomic.StoreInt32(&dev.stop, 0)
	require.NoError(t, dev.Close())
	assert.Equal(t, 0, pool.InUse())
}

func TestPullFromKernel(t *testing.T) {
	dev, tap, _, pool := newTestDevice(t, 8)
	tap.toEngine <- frame(7)
	tap.toEngine <- frame(8)

	pkts := make([]*packet.Packet, 4)
	got := 0
	require.Eventually(t, func() bool {
		got += dev.Pull(pkts[got:])
		return got == 2
	}, time.Second, time.Millisecond)
	assert.Equal(t, frame(7), pkts[0].Bytes())
	assert.Equal(t, frame(8), pkts[1].Bytes())
	assert.Equal(t, uint16(1), pkts[0].Port)
	packet.FreeBulk(pkts)
	require.NoError(t, dev.Close())
	assert.Equal(t, 0, pool.InUse())
}

func TestHandleRequestTracksState(t *testing.T) {
	dev, _, link, _ := newTestDevice(t, 8)
	defer dev.Close()
	assert.True(t, dev.Up())
	assert.Equal(t, 1500, dev.MTU())

	atomic.StoreInt32(&link.up, 0)
	atomic.StoreInt32(&link.mtu, 9000)
	require.NoError(t, dev.HandleRequest())
	assert.False(t, dev.Up())
	assert.Equal(t, 9000, dev.MTU())
}

func TestWaitAllUp(t *testing.T) {
	waitUpInterval = time.Millisecond
	defer func() { waitUpInterval = 100 * time.Millisecond }()

	dev, _, link, _ := newTestDevice(t, 8)
	defer dev.Close()
	atomic.StoreInt32(&link.up, 0)
	require.NoError(t, dev.HandleRequest())

	var quit int32
	assert.False(t, WaitAllUp([]*Device{dev}, func() bool { return atomic.AddInt32(&quit, 1) > 3 }))

	go func() {
		time.Sleep(5 * time.Millisecond)
		atomic.StoreInt32(&link.up, 1)
	}()
	assert.True(t, WaitAllUp([]*Device{dev}, nil))
}

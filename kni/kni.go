// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package kni bridges ports with the host network stack. Every bridge
// device is a kernel network interface: frames pushed to a device are
// delivered to the kernel and frames the kernel sends through the
// interface can be pulled back.
package kni

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stevelorenz/build-vsf/common"
	"github.com/stevelorenz/build-vsf/low"
	"github.com/stevelorenz/build-vsf/packet"
)

// DefaultQueueSize is capacity of both device fifos.
const DefaultQueueSize = 1024

var (
	writerIdle     = 50 * time.Microsecond
	waitUpInterval = 100 * time.Millisecond
	readerExitWait = 100 * time.Millisecond
)

// DeviceName returns interface name of bridge device for port.
func DeviceName(port uint16) string {
	return fmt.Sprintf("vEth%d", port)
}

// LinkState reports administrative state and MTU of an interface.
type LinkState interface {
	State() (up bool, mtu int, err error)
}

// Stats are counters of a device.
type Stats struct {
	Pushed      uint64
	Rejected    uint64
	Pulled      uint64
	WriteErrors uint64
	ReadMissed  uint64
}

// Device is a bridge device attached to one port. Push and Pull may be
// called from different goroutines.
type Device struct {
	name       string
	port       uint16
	rw         io.ReadWriteCloser
	link       LinkState
	pool       *packet.Pool
	toKernel   *low.PacketQueue
	fromKernel *low.PacketQueue

	up         int32
	mtu        int32
	stop       int32
	wg         sync.WaitGroup
	readerDone chan struct{}

	pushed      uint64
	rejected    uint64
	pulled      uint64
	writeErrors uint64
	readMissed  uint64
}

// NewDevice creates device exchanging frames with the kernel through rw.
// Frames read from rw are copied into buffers of pool.
func NewDevice(name string, port uint16, rw io.ReadWriteCloser, link LinkState, pool *packet.Pool, queueSize int) *Device {
	if queueSize < 1 {
		queueSize = DefaultQueueSize
	}
	dev := &Device{
		name:       name,
		port:       port,
		rw:         rw,
		link:       link,
		pool:       pool,
		toKernel:   low.NewPacketQueue(queueSize),
		fromKernel: low.NewPacketQueue(queueSize),
		readerDone: make(chan struct{}),
	}
	dev.HandleRequest()
	dev.wg.Add(1)
	go dev.writer()
	go dev.reader()
	return dev
}

// writer delivers pushed frames to the kernel.
func (dev *Device) writer() {
	defer dev.wg.Done()
	burst := make([]*packet.Packet, 32)
	for atomic.LoadInt32(&dev.stop) == 0 {
		n := dev.toKernel.Get(burst)
		if n == 0 {
			time.Sleep(writerIdle)
			continue
		}
		for _, pkt := range burst[:n] {
			if _, err := dev.rw.Write(pkt.Bytes()); err != nil {
				atomic.AddUint64(&dev.writeErrors, 1)
				common.LogDrop(common.Verbose, "KNI", dev.name, "write failed:", err)
			}
		}
		packet.FreeBulk(burst[:n])
	}
}

// reader queues frames the kernel sends through the interface. It exits
// when the interface is closed.
func (dev *Device) reader() {
	defer close(dev.readerDone)
	buf := make([]byte, dev.pool.DataRoom())
	for {
		n, err := dev.rw.Read(buf)
		if err != nil {
			if atomic.LoadInt32(&dev.stop) == 0 {
				common.LogWarning(common.Debug, "KNI", dev.name, "read failed:", err)
			}
			return
		}
		pkt, err := dev.pool.AllocFrom(buf[:n])
		if err != nil {
			atomic.AddUint64(&dev.readMissed, 1)
			continue
		}
		pkt.Port = dev.port
		if !dev.fromKernel.Put(pkt) {
			pkt.Free()
			atomic.AddUint64(&dev.readMissed, 1)
		}
	}
}

// Name returns interface name.
func (dev *Device) Name() string {
	return dev.name
}

// Port returns port the device is attached to.
func (dev *Device) Port() uint16 {
	return dev.port
}

// Push queues frames for the kernel and returns number of accepted frames.
// Accepted frames are owned by the device, the rest stay with the caller.
func (dev *Device) Push(pkts []*packet.Packet) int {
	for i, pkt := range pkts {
		if !dev.toKernel.Put(pkt) {
			atomic.AddUint64(&dev.pushed, uint64(i))
			atomic.AddUint64(&dev.rejected, uint64(len(pkts)-i))
			return i
		}
	}
	atomic.AddUint64(&dev.pushed, uint64(len(pkts)))
	return len(pkts)
}

// Pull moves up to len(pkts) frames sent by the kernel to pkts and
// returns their number.
func (dev *Device) Pull(pkts []*packet.Packet) int {
	n := dev.fromKernel.Get(pkts)
	atomic.AddUint64(&dev.pulled, uint64(n))
	return n
}

// HandleRequest applies interface state changes made on the kernel side.
func (dev *Device) HandleRequest() error {
	up, mtu, err := dev.link.State()
	if err != nil {
		return common.WrapWithNFError(err, "cannot query state of "+dev.name, common.FailToCreateKNI)
	}
	var v int32
	if up {
		v = 1
	}
	if old := atomic.SwapInt32(&dev.up, v); old != v {
		if up {
			common.LogInfo(common.Debug, "Configure network interface of", dev.port, "up")
		} else {
			common.LogInfo(common.Debug, "Configure network interface of", dev.port, "down")
		}
	}
	if old := atomic.SwapInt32(&dev.mtu, int32(mtu)); old != int32(mtu) && old != 0 {
		common.LogInfo(common.Debug, "Change MTU of port", dev.port, "to", mtu)
	}
	return nil
}

// Up reports whether the interface was up at the last HandleRequest.
func (dev *Device) Up() bool {
	return atomic.LoadInt32(&dev.up) == 1
}

// MTU reports interface MTU seen at the last HandleRequest.
func (dev *Device) MTU() int {
	return int(atomic.LoadInt32(&dev.mtu))
}

// Stats returns device counters.
func (dev *Device) Stats() Stats {
	return Stats{
		Pushed:      atomic.LoadUint64(&dev.pushed),
		Rejected:    atomic.LoadUint64(&dev.rejected),
		Pulled:      atomic.LoadUint64(&dev.pulled),
		WriteErrors: atomic.LoadUint64(&dev.writeErrors),
		ReadMissed:  atomic.LoadUint64(&dev.readMissed),
	}
}

// Close stops the device, frees queued frames and closes the interface.
func (dev *Device) Close() error {
	if !atomic.CompareAndSwapInt32(&dev.stop, 0, 1) {
		return nil
	}
	dev.wg.Wait()
	err := dev.rw.Close()
	// Reads of some interfaces are not interrupted by close.
	select {
	case <-dev.readerDone:
	case <-time.After(readerExitWait):
	}
	dev.toKernel.Dispose()
	dev.fromKernel.Dispose()
	if err != nil {
		return common.WrapWithNFError(err, "cannot release "+dev.name, common.FailToReleaseKNI)
	}
	return nil
}

// WaitAllUp polls devices until every one reports up. It returns false if
// quit returned true first.
func WaitAllUp(devs []*Device, quit func() bool) bool {
	for {
		if quit != nil && quit() {
			return false
		}
		all := true
		for _, dev := range devs {
			if err := dev.HandleRequest(); err != nil {
				common.LogWarning(common.Initialization, err)
			}
			if !dev.Up() {
				all = false
			}
		}
		if all {
			return true
		}
		time.Sleep(waitUpInterval)
	}
}

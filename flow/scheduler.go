// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flow

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/stevelorenz/build-vsf/common"
	"github.com/stevelorenz/build-vsf/packet"
)

// receive reads a burst from port id. A port returning more frames than
// requested is a fatal driver error.
func (e *Engine) receive(id uint16, burst []*packet.Packet) (int, error) {
	n := e.ports[id].RxBurst(burst)
	if n > len(burst) {
		common.LogError(common.Debug, "Error receiving from eth dev", id)
		return 0, common.WrapWithNFError(nil, fmt.Sprintf("port %d returned %d frames for burst of %d", id, n, len(burst)), common.OversizedBurst)
	}
	if n > 0 {
		atomic.AddUint64(&e.counters[id].received, uint64(n))
		atomic.AddUint64(&e.counters[id].bursts, 1)
	}
	return n, nil
}

// drain flushes transmit buffers of all destination ports. In KNI mode
// frames sent by the kernel through the bridge of a destination port are
// collected before the flush.
func (e *Engine) drain() {
	for _, id := range e.rxPorts {
		dst, _ := e.pairing.Dst(id)
		if e.cfg.KNIMode {
			e.pollBridge(dst)
		}
		e.tx.Flush(dst)
	}
}

// mainLoop is the single core loop: periodic drain and then one receive
// per enabled port.
func (e *Engine) mainLoop() error {
	burst := make([]*packet.Packet, e.cfg.MaxBurst)
	states := make([]PollState, len(e.rxPorts))
	drain := NewDrainTimer(e.cfg.DrainInterval)

	common.LogInfo(common.Initialization, "Entering main loop on lcore", e.cfg.Lcores[0])
	for !e.quit.Load() {
		if drain.Due(e.now()) {
			e.drain()
		}
		for i, id := range e.rxPorts {
			n, err := e.receive(id, burst)
			if err != nil {
				return err
			}
			action := states[i].Next(e.cfg.Backoff, n)
			if action != ActionProcess {
				wait(e.sleeper, e.cfg.Backoff, action)
				continue
			}
			e.processBurst(id, burst[:n])
		}
	}
	return nil
}

// ingressLoop moves frames from ports to bridge devices. A port reaching
// long sleep lets the egress loop sleep too.
func (e *Engine) ingressLoop() error {
	burst := make([]*packet.Packet, e.cfg.MaxBurst)
	states := make([]PollState, len(e.rxPorts))

	common.LogInfo(common.Initialization, "Lcore", e.cfg.Lcores[0], "enter kni ingress loop")
	for !e.quit.Load() {
		for i, id := range e.rxPorts {
			n, err := e.receive(id, burst)
			if err != nil {
				return err
			}
			action := states[i].Next(e.cfg.Backoff, n)
			switch action {
			case ActionProcess:
				e.bridgeIdle.Store(false)
				e.processBurst(id, burst[:n])
			case ActionLongSleep:
				e.bridgeIdle.Store(true)
				wait(e.sleeper, e.cfg.Backoff, action)
			default:
				wait(e.sleeper, e.cfg.Backoff, action)
			}
		}
	}
	return nil
}

// egressLoop moves frames from bridge devices to ports and drains
// transmit buffers.
func (e *Engine) egressLoop() error {
	drain := NewDrainTimer(e.cfg.DrainInterval)

	common.LogInfo(common.Initialization, "Lcore", e.cfg.Lcores[1], "enter kni egress loop")
	for !e.quit.Load() {
		if e.bridgeIdle.Load() {
			e.sleeper.Sleep(e.cfg.Backoff.LongInterval)
		}
		if drain.Due(e.now()) {
			e.drain()
		}
	}
	return nil
}

// processBurst handles frames received from port id. The burst slice is
// reused by the caller, frames are passed on or freed.
func (e *Engine) processBurst(id uint16, burst []*packet.Packet) {
	start := time.Now()
	for _, pkt := range burst {
		pkt.Port = id
	}
	if d := e.dumpers[id]; d != nil {
		if err := d.WriteBurst(burst); err != nil {
			common.LogWarning(common.Debug, err)
		}
	}
	if e.cfg.Filtering {
		e.filter.Burst(burst)
	}
	for _, pkt := range burst {
		if pkt != nil {
			atomic.AddUint64(&e.udpDatagrams, 1)
		}
	}
	if e.cfg.KNIMode {
		e.pushBridge(id, burst)
	} else {
		for i, pkt := range burst {
			if pkt == nil {
				continue
			}
			e.coder.Dispatch(pkt, id, e.tx)
			burst[i] = nil
		}
	}
	if e.cfg.Debugging && common.LogTypeEnabled(common.Debug) {
		common.LogInfo(common.Debug, fmt.Sprintf("[Port:%d] Process a burst of %d packets, proc time: %.4f ms, number of already received UDP packets: %d",
			id, len(burst), float64(time.Since(start))/float64(time.Millisecond), atomic.LoadUint64(&e.udpDatagrams)))
	}
}

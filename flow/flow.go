// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package flow is the run to completion forwarding engine. Frames received
// from a port are filtered, passed to a network coder (or to a bridge
// device in KNI mode) and transmitted to the paired port.
//
// An engine is built from an EngineConfig with NewEngine and started with
// Run. Every loop of the engine works on its own goroutine locked to one
// CPU. Loops check the quit flag once per iteration, Stop sets it.
package flow

import (
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stevelorenz/build-vsf/common"
	"github.com/stevelorenz/build-vsf/kni"
	"github.com/stevelorenz/build-vsf/low"
	"github.com/stevelorenz/build-vsf/packet"
	"github.com/stevelorenz/build-vsf/types"
)

// Engine is the state of a running forwarder.
type Engine struct {
	cfg     EngineConfig
	pool    *packet.Pool
	ports   [common.MaxPorts]low.Port
	all     []low.Port
	rxPorts []uint16
	pairing Pairing

	filter       *Filter
	kernelFilter *Filter
	coder        *CoderContext
	tx           *Transmitter
	bridges      [common.MaxPorts]*kni.Device
	dumpers      [common.MaxPorts]*packet.PcapDumper
	counters     [common.MaxPorts]portCounters

	quit       atomic.Bool
	bridgeIdle atomic.Bool

	sleeper Sleeper
	now     func() time.Time

	udpDatagrams uint64
	pushBuf      []*packet.Packet
	pullBuf      []*packet.Packet

	stats  *http.Server
	closed bool
}

// NewEngine checks configuration and prepares an engine forwarding between
// ports enabled by cfg. ports are all ports of the process, bridges are
// bridge devices of enabled ports and required in KNI mode only.
func NewEngine(cfg EngineConfig, ports []low.Port, pool *packet.Pool, bridges []*kni.Device) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:     cfg,
		pool:    pool,
		all:     ports,
		rxPorts: append([]uint16(nil), cfg.Ports...),
		sleeper: systemSleeper{},
		now:     time.Now,
		pushBuf: make([]*packet.Packet, 0, cfg.MaxBurst),
		pullBuf: make([]*packet.Packet, cfg.MaxBurst),
	}
	macs := make([]types.MACAddress, 0, len(ports))
	for _, port := range ports {
		if port.ID() >= common.MaxPorts {
			return nil, common.WrapWithNFError(nil, fmt.Sprintf("port %d exceeds maximum %d", port.ID(), common.MaxPorts-1), common.BadArgument)
		}
		e.ports[port.ID()] = port
		macs = append(macs, port.MAC())
	}
	for _, id := range e.rxPorts {
		if e.ports[id] == nil {
			return nil, common.WrapWithNFError(nil, fmt.Sprintf("port %d is enabled but not available", id), common.FailToInitPort)
		}
	}

	e.pairing = NewPairing(e.rxPorts)
	for _, id := range e.rxPorts {
		dst, _ := e.pairing.Dst(id)
		common.LogDebug(common.Initialization, "Lcore", cfg.Lcores[0], ": RX port", id, "TX port", dst)
	}
	e.filter = NewFilter(macs)
	// Frames from the kernel carry MAC addresses of ports.
	e.kernelFilter = NewFilter(nil)
	e.tx = NewTransmitter(e.pairing, ports, cfg.MaxBurst, &e.cfg)

	var err error
	if e.coder, err = NewCoderContext(cfg.CoderRole, cfg.Coder, pool); err != nil {
		return nil, err
	}

	if cfg.KNIMode {
		for _, dev := range bridges {
			if dev.Port() < common.MaxPorts {
				e.bridges[dev.Port()] = dev
			}
		}
		for _, id := range e.rxPorts {
			if e.bridges[id] == nil {
				e.coder.Free()
				return nil, common.WrapWithNFError(nil, fmt.Sprintf("no KNI device for port %d", id), common.FailToCreateKNI)
			}
		}
	}

	if cfg.PacketCapturing {
		for _, id := range e.rxPorts {
			path := filepath.Join(cfg.CaptureDir, fmt.Sprintf("port%d.pcap", id))
			if e.dumpers[id], err = packet.NewPcapDumper(path); err != nil {
				e.closeDumpers()
				e.coder.Free()
				return nil, err
			}
			common.LogInfo(common.Initialization, "Capturing frames of port", id, "to", path)
		}
	}
	return e, nil
}

// Config returns engine configuration.
func (e *Engine) Config() EngineConfig {
	return e.cfg
}

// Run starts engine loops and waits until they exit. It returns the
// first error a loop stopped with.
func (e *Engine) Run() error {
	common.LogTitle(common.Initialization, "------------***------- Starting engine loops -----***------------")
	common.LogInfo(common.Initialization, "\n"+e.cfg.String())
	if e.cfg.KNIMode {
		common.LogInfo(common.Initialization, "Entering setup loop for all KNI devices")
		if !kni.WaitAllUp(e.bridgeList(), e.quit.Load) {
			return nil
		}
		common.LogInfo(common.Initialization, "All KNI devices are up, exit setup loop")
	}

	var loops []func() error
	if e.cfg.dualCore() {
		loops = []func() error{e.ingressLoop, e.egressLoop}
	} else {
		loops = []func() error{e.mainLoop}
		if len(e.cfg.Lcores) > 1 {
			common.LogInfo(common.Initialization, "Lcore", e.cfg.Lcores[1], "has nothing to do")
		}
	}

	errs := make(chan error, len(loops))
	var wg sync.WaitGroup
	for i, loop := range loops {
		wg.Add(1)
		go func(core uint, loop func() error) {
			defer wg.Done()
			if err := low.SetAffinity(int(core)); err != nil {
				common.LogWarning(common.Initialization, "Can't set affinity to core", core, ":", err)
			}
			if err := loop(); err != nil {
				errs <- err
				// A failed loop stops the whole engine.
				e.Stop()
			}
		}(e.cfg.Lcores[i], loop)
	}
	wg.Wait()
	close(errs)
	return <-errs
}

// Stop asks all loops to exit at their next iteration.
func (e *Engine) Stop() {
	e.quit.Store(true)
}

// Stopped reports whether Stop was called.
func (e *Engine) Stopped() bool {
	return e.quit.Load()
}

// Close releases engine resources after Run returned. Frames waiting in
// transmit buffers are sent.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	e.Stop()
	if sent := e.tx.FlushAll(); sent != 0 {
		common.LogInfo(common.Initialization, "Sent", sent, "buffered frames at shutdown")
	}
	if e.stats != nil {
		e.stats.Close()
	}
	e.coder.Free()
	e.closeDumpers()

	var firstErr error
	for _, dev := range e.bridgeList() {
		common.LogInfo(common.Initialization, "Releasing KNI", dev.Name())
		if err := dev.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, port := range e.all {
		common.LogInfo(common.Initialization, "Closing port", port.ID())
		if err := port.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (e *Engine) closeDumpers() {
	for i, d := range e.dumpers {
		if d == nil {
			continue
		}
		if err := d.Close(); err != nil {
			common.LogWarning(common.Initialization, "Closing capture of port", i, "failed:", err)
		}
		e.dumpers[i] = nil
	}
}

func (e *Engine) bridgeList() []*kni.Device {
	var devs []*kni.Device
	for _, id := range e.rxPorts {
		if e.bridges[id] != nil {
			devs = append(devs, e.bridges[id])
		}
	}
	return devs
}

// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// udpnc forwards UDP traffic between pairs of ports, optionally passing it
// through a network coder or through TAP interfaces of the host.
package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/stevelorenz/build-vsf/common"
	"github.com/stevelorenz/build-vsf/flow"
	"github.com/stevelorenz/build-vsf/kni"
	"github.com/stevelorenz/build-vsf/low"
	"github.com/stevelorenz/build-vsf/packet"
)

func newRootCmd() *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:   "udpnc",
		Short: "UDP network coding forwarder",
		Long: `
Forward UDP frames between pairs of ports. Frames are encoded, decoded or
recoded with random linear network coding, or handed to the host network
stack through TAP interfaces in KNI mode.

Examples:
  udpnc -p 0x3 --ifaces eth1,eth2 -d 02:00:00:00:00:02 -o 0
  udpnc -p 0x3 --ifaces eth1,eth2 --kni-mode --no-filtering --lcores 0,1 -d 02:00:00:00:00:02
  udpnc -c udpnc.ini --debugging
`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.config != "" {
				if err := o.loadFile(o.config, cmd.Flags()); err != nil {
					return err
				}
			}
			return run(o)
		},
	}
	o.register(cmd.Flags())
	return cmd
}

func setupLogging(o *options) {
	logType := common.No | common.Initialization
	if o.debugging {
		logType |= common.Debug
	}
	common.SetLogType(logType)
	if o.logFile != "" {
		common.SetLogOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   o.logFile,
			MaxSize:    100, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}))
	}
}

func closeAll(ports []low.Port, bridges []*kni.Device) {
	for _, dev := range bridges {
		dev.Close()
	}
	for _, port := range ports {
		port.Close()
	}
}

func run(o *options) error {
	setupLogging(o)
	cfg, err := o.engineConfig()
	if err != nil {
		return err
	}
	addr, err := o.kniAddress()
	if err != nil {
		return err
	}

	var quit atomic.Bool
	var engine atomic.Pointer[flow.Engine]
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)
	go func() {
		sig, ok := <-signals
		if !ok {
			return
		}
		common.LogInfo(common.Initialization, "Signal", sig, "received, preparing to exit...")
		quit.Store(true)
		if e := engine.Load(); e != nil {
			e.Stop()
		}
	}()

	common.LogTitle(common.Initialization, "------------***-------- Initializing ports -------***------------")
	pool, err := packet.NewPool("mbuf_pool",
		packet.PoolSize(len(cfg.Ports), flow.DefaultRxDesc, flow.DefaultTxDesc, cfg.MaxBurst, len(cfg.Lcores)),
		packet.DefaultDataRoom)
	if err != nil {
		return err
	}
	var ports []low.Port
	var bridges []*kni.Device
	for _, id := range cfg.Ports {
		iface, err := o.ifaceOf(id)
		if err != nil {
			closeAll(ports, nil)
			return err
		}
		port, err := low.OpenAFPacketPort(id, iface, pool, flow.DefaultRxDesc)
		if err != nil {
			closeAll(ports, nil)
			return err
		}
		common.LogInfo(common.Initialization, "Port", id, "("+iface+") MAC:", port.MAC())
		ports = append(ports, port)
	}
	if !low.CheckLinkStatus(ports, quit.Load) && quit.Load() {
		closeAll(ports, nil)
		return nil
	}

	if cfg.KNIMode {
		common.LogTitle(common.Initialization, "------------***----- Initializing KNI devices -----***------------")
		for _, id := range cfg.Ports {
			dev, err := kni.Create(kni.Config{
				Port: id,
				MTU:  o.kniMTU,
				Addr: addr,
			}, pool)
			if err != nil {
				closeAll(ports, bridges)
				return err
			}
			bridges = append(bridges, dev)
		}
	}

	e, err := flow.NewEngine(cfg, ports, pool, bridges)
	if err != nil {
		closeAll(ports, bridges)
		return err
	}
	engine.Store(e)
	if quit.Load() {
		e.Stop()
	}
	if cfg.StatsAddr != "" {
		if err = e.StartStatsServer(cfg.StatsAddr); err != nil {
			e.Close()
			return err
		}
	}

	runErr := e.Run()
	common.LogTitle(common.Initialization, "------------***----------- Cleaning up -----------***------------")
	closeErr := e.Close()
	common.LogInfo(common.Initialization, "Bye...")
	if runErr != nil {
		return runErr
	}
	return closeErr
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "udpnc:", err)
		os.Exit(1)
	}
}

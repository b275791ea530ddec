// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"net"
	"runtime"
	"strconv"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/ini.v1"

	"github.com/stevelorenz/build-vsf/common"
	"github.com/stevelorenz/build-vsf/flow"
	"github.com/stevelorenz/build-vsf/nc"
	"github.com/stevelorenz/build-vsf/types"
)

const maxQueuesPerLcore = 16

// options are raw values of command line flags and config file keys.
type options struct {
	coder    int
	portmask string
	queues   int
	srcMAC   string
	dstMAC   string
	poll     string
	burst    int
	drainUs  int
	lcores   string
	ifaces   []string

	macUpdating     bool
	packetCapturing bool
	debugging       bool
	kniMode         bool
	filtering       bool

	ncField      string
	ncProtocol   string
	ncSymbolSize int
	ncSymbols    int
	ncRedundancy int

	kniAddr string
	kniMTU  int

	captureDir string
	stats      string
	logFile    string
	config     string
}

// invertedBool is the value of a --no-<name> flag.
type invertedBool struct {
	v *bool
}

func (b invertedBool) Set(s string) error {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	*b.v = !v
	return nil
}

func (b invertedBool) String() string {
	if b.v == nil {
		return "false"
	}
	return strconv.FormatBool(!*b.v)
}

func (b invertedBool) Type() string {
	return "bool"
}

func boolPair(fs *pflag.FlagSet, p *bool, name string, value bool, usage string) {
	fs.BoolVar(p, name, value, usage)
	fs.VarPF(invertedBool{p}, "no-"+name, "", "disable "+name).NoOptDefVal = "true"
}

func (o *options) register(fs *pflag.FlagSet) {
	defaults := nc.DefaultOptions()

	fs.IntVarP(&o.coder, "coder", "o", int(nc.Encoder), "coder type: 0 encoder, 1 decoder, 2 recoder, -1 forward only")
	fs.StringVarP(&o.portmask, "portmask", "p", "0x3", "hexadecimal bitmask of ports to configure")
	fs.IntVarP(&o.queues, "queues", "q", 1, "number of queues per lcore")
	fs.StringVarP(&o.srcMAC, "src-mac", "s", "", "source MAC address of transmitted frames, port MAC if empty")
	fs.StringVarP(&o.dstMAC, "dst-mac", "d", "", "destination MAC address of transmitted frames")
	fs.StringVarP(&o.poll, "poll", "i", "0,0,0", "RX polling parameters: max_poll_short_try,poll_short_interval_us,poll_long_interval_us")
	fs.IntVarP(&o.burst, "burst", "b", flow.DefaultMaxBurst, "maximal number of frames in a burst")
	fs.IntVarP(&o.drainUs, "drain-us", "t", int(flow.DefaultDrainInterval/time.Microsecond), "period of TX queue draining in microseconds")
	fs.StringVar(&o.lcores, "lcores", "0", "CPU list for engine loops, e.g. 0,1")
	fs.StringSliceVar(&o.ifaces, "ifaces", nil, "interface of every port in port number order")

	boolPair(fs, &o.macUpdating, "mac-updating", true, "rewrite MAC addresses of transmitted frames")
	boolPair(fs, &o.packetCapturing, "packet-capturing", false, "write received frames into pcap files")
	boolPair(fs, &o.debugging, "debugging", false, "log debug messages and burst processing time")
	boolPair(fs, &o.kniMode, "kni-mode", false, "pass received frames to the kernel through TAP interfaces")
	boolPair(fs, &o.filtering, "filtering", true, "drop frames which are not IPv4/UDP or come from own ports")

	fs.StringVar(&o.ncField, "nc-field", defaults.Field, "finite field of network coding")
	fs.StringVar(&o.ncProtocol, "nc-protocol", defaults.Protocol, "network coding protocol")
	fs.IntVar(&o.ncSymbolSize, "nc-symbol-size", defaults.SymbolSize, "symbol size in bytes")
	fs.IntVar(&o.ncSymbols, "nc-symbols", defaults.Symbols, "symbols in a generation")
	fs.IntVar(&o.ncRedundancy, "nc-redundancy", defaults.Redundancy, "repair frames per generation")

	fs.StringVar(&o.kniAddr, "kni-addr", "", "CIDR address assigned to TAP interfaces")
	fs.IntVar(&o.kniMTU, "kni-mtu", 1500, "MTU of TAP interfaces")

	fs.StringVar(&o.captureDir, "capture-dir", ".", "directory of pcap files")
	fs.StringVar(&o.stats, "stats", "", "address of HTTP counters server, disabled if empty")
	fs.StringVar(&o.logFile, "log-file", "", "write log into rotated file")
	fs.StringVarP(&o.config, "config", "c", "", "ini configuration file")
}

type binding struct {
	section string
	key     string
	flag    string
	value   interface{}
}

func (o *options) bindings() []binding {
	return []binding{
		{"engine", "coder", "coder", &o.coder},
		{"engine", "portmask", "portmask", &o.portmask},
		{"engine", "queues", "queues", &o.queues},
		{"engine", "src_mac", "src-mac", &o.srcMAC},
		{"engine", "dst_mac", "dst-mac", &o.dstMAC},
		{"engine", "poll", "poll", &o.poll},
		{"engine", "burst", "burst", &o.burst},
		{"engine", "drain_us", "drain-us", &o.drainUs},
		{"engine", "lcores", "lcores", &o.lcores},
		{"engine", "ifaces", "ifaces", &o.ifaces},
		{"engine", "mac_updating", "mac-updating", &o.macUpdating},
		{"engine", "filtering", "filtering", &o.filtering},
		{"engine", "packet_capturing", "packet-capturing", &o.packetCapturing},
		{"engine", "capture_dir", "capture-dir", &o.captureDir},
		{"engine", "stats", "stats", &o.stats},
		{"coder", "field", "nc-field", &o.ncField},
		{"coder", "protocol", "nc-protocol", &o.ncProtocol},
		{"coder", "symbol_size", "nc-symbol-size", &o.ncSymbolSize},
		{"coder", "symbols", "nc-symbols", &o.ncSymbols},
		{"coder", "redundancy", "nc-redundancy", &o.ncRedundancy},
		{"kni", "mode", "kni-mode", &o.kniMode},
		{"kni", "addr", "kni-addr", &o.kniAddr},
		{"kni", "mtu", "kni-mtu", &o.kniMTU},
		{"log", "file", "log-file", &o.logFile},
		{"log", "debugging", "debugging", &o.debugging},
	}
}

func explicitlySet(fs *pflag.FlagSet, name string) bool {
	return fs.Changed(name) || (fs.Lookup("no-"+name) != nil && fs.Changed("no-"+name))
}

// loadFile reads ini file path into options. Values of flags given on the
// command line are kept.
func (o *options) loadFile(path string, fs *pflag.FlagSet) error {
	cfg, err := ini.Load(path)
	if err != nil {
		return common.WrapWithNFError(err, "cannot load configuration file "+path, common.FileErr)
	}
	for _, b := range o.bindings() {
		section := cfg.Section(b.section)
		if !section.HasKey(b.key) || explicitlySet(fs, b.flag) {
			continue
		}
		key := section.Key(b.key)
		switch v := b.value.(type) {
		case *int:
			*v, err = key.Int()
		case *bool:
			*v, err = key.Bool()
		case *string:
			*v = key.String()
		case *[]string:
			*v = key.Strings(",")
		}
		if err != nil {
			return common.WrapWithNFError(err, fmt.Sprintf("bad value of %s.%s", b.section, b.key), common.BadArgument)
		}
	}
	return nil
}

// engineConfig converts options to engine configuration and validates it.
func (o *options) engineConfig() (flow.EngineConfig, error) {
	cfg := flow.DefaultConfig()
	var err error

	if cfg.Ports, err = common.ParsePortMask(o.portmask); err != nil {
		return cfg, err
	}
	if o.queues < 1 || o.queues >= maxQueuesPerLcore {
		return cfg, common.WrapWithNFError(nil, fmt.Sprintf("invalid queue number %d", o.queues), common.BadArgument)
	}
	if cfg.Backoff, err = flow.ParseBackoff(o.poll); err != nil {
		return cfg, err
	}
	if o.srcMAC != "" {
		if cfg.SrcMAC, err = types.StringToMACAddress(o.srcMAC); err != nil {
			return cfg, common.WrapWithNFError(err, "bad source MAC", common.BadArgument)
		}
	}
	if o.dstMAC != "" {
		if cfg.DstMAC, err = types.StringToMACAddress(o.dstMAC); err != nil {
			return cfg, common.WrapWithNFError(err, "bad destination MAC", common.BadArgument)
		}
	}
	if cfg.Lcores, err = common.ParseCPUs(o.lcores, uint(runtime.NumCPU())); err != nil {
		return cfg, err
	}

	cfg.CoderRole = nc.Role(o.coder)
	cfg.Coder = nc.Options{
		Field:      o.ncField,
		Protocol:   o.ncProtocol,
		SymbolSize: o.ncSymbolSize,
		Symbols:    o.ncSymbols,
		Redundancy: o.ncRedundancy,
	}
	cfg.MaxBurst = o.burst
	cfg.DrainInterval = time.Duration(o.drainUs) * time.Microsecond
	cfg.MACUpdating = o.macUpdating
	cfg.Filtering = o.filtering
	cfg.KNIMode = o.kniMode
	cfg.PacketCapturing = o.packetCapturing
	cfg.CaptureDir = o.captureDir
	cfg.Debugging = o.debugging
	cfg.StatsAddr = o.stats
	return cfg, cfg.Validate()
}

// kniAddress parses address of TAP interfaces.
func (o *options) kniAddress() (*net.IPNet, error) {
	if o.kniAddr == "" {
		return nil, nil
	}
	ip, ipnet, err := net.ParseCIDR(o.kniAddr)
	if err != nil {
		return nil, common.WrapWithNFError(err, "bad KNI address "+o.kniAddr, common.BadArgument)
	}
	ipnet.IP = ip
	return ipnet, nil
}

// ifaceOf returns interface name of port id.
func (o *options) ifaceOf(id uint16) (string, error) {
	if int(id) >= len(o.ifaces) || o.ifaces[id] == "" {
		return "", common.WrapWithNFError(nil, fmt.Sprintf("no interface given for port %d", id), common.FailToInitPort)
	}
	return o.ifaces[id], nil
}

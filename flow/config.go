// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flow

import (
	"fmt"
	"time"

	"github.com/stevelorenz/build-vsf/common"
	"github.com/stevelorenz/build-vsf/nc"
	"github.com/stevelorenz/build-vsf/types"
)

// Addresses used to deliver frames through bridge devices to sockets of
// the host and back.
var (
	DefaultBridgeRecvAddr = types.BytesToIPv4(10, 0, 0, 11)
	DefaultBridgeSendSrc  = types.BytesToIPv4(10, 0, 0, 13)
	DefaultBridgeSendDst  = types.BytesToIPv4(10, 0, 0, 14)
)

// Engine defaults.
const (
	DefaultMaxBurst      = 1
	DefaultDrainInterval = 10 * time.Microsecond
	DefaultRxDesc        = 1024
	DefaultTxDesc        = 1024
	MaxBurstLimit        = 512
)

// EngineConfig is the whole configuration of an engine. It is built once
// at startup and not changed afterwards.
type EngineConfig struct {
	CoderRole nc.Role
	Coder     nc.Options
	// Ports are enabled ports in enablement order.
	Ports         []uint16
	MaxBurst      int
	DrainInterval time.Duration
	Backoff       Backoff
	MACUpdating   bool
	// SrcMAC is written to transmitted frames. Zero value means MAC of
	// the destination port.
	SrcMAC          types.MACAddress
	DstMAC          types.MACAddress
	Filtering       bool
	KNIMode         bool
	PacketCapturing bool
	CaptureDir      string
	Debugging       bool
	// Lcores are CPUs loops are bound to. Bridge mode with two CPUs runs
	// ingress and egress loops separately.
	Lcores         []uint
	BridgeRecvAddr types.IPv4Address
	BridgeSendSrc  types.IPv4Address
	BridgeSendDst  types.IPv4Address
	StatsAddr      string
}

// DefaultConfig returns configuration of a pass-through engine with
// filtering and MAC updating enabled.
func DefaultConfig() EngineConfig {
	return EngineConfig{
		CoderRole:      nc.None,
		Coder:          nc.DefaultOptions(),
		MaxBurst:       DefaultMaxBurst,
		DrainInterval:  DefaultDrainInterval,
		MACUpdating:    true,
		Filtering:      true,
		CaptureDir:     ".",
		Lcores:         []uint{0},
		BridgeRecvAddr: DefaultBridgeRecvAddr,
		BridgeSendSrc:  DefaultBridgeSendSrc,
		BridgeSendDst:  DefaultBridgeSendDst,
	}
}

// Validate checks configuration and returns NFError describing the
// first problem found.
func (cfg *EngineConfig) Validate() error {
	if len(cfg.Ports) != 2 {
		return common.WrapWithNFError(nil, fmt.Sprintf("exactly 2 ports must be enabled, got %d", len(cfg.Ports)), common.WrongPortNumber)
	}
	seen := map[uint16]bool{}
	for _, p := range cfg.Ports {
		if p >= common.MaxPorts {
			return common.WrapWithNFError(nil, fmt.Sprintf("port %d exceeds maximum %d", p, common.MaxPorts-1), common.BadArgument)
		}
		if seen[p] {
			return common.WrapWithNFError(nil, fmt.Sprintf("port %d is enabled twice", p), common.BadArgument)
		}
		seen[p] = true
	}
	if cfg.KNIMode && cfg.Filtering {
		return common.WrapWithNFError(nil, "KNI mode and filtering can not be enabled at the same time", common.ModeConflict)
	}
	if cfg.MaxBurst < 1 || cfg.MaxBurst > MaxBurstLimit {
		return common.WrapWithNFError(nil, fmt.Sprintf("max burst must be in 1..%d, got %d", MaxBurstLimit, cfg.MaxBurst), common.BadArgument)
	}
	if cfg.DrainInterval <= 0 {
		return common.WrapWithNFError(nil, "drain interval must be positive", common.BadArgument)
	}
	if err := cfg.Backoff.Validate(); err != nil {
		return err
	}
	if cfg.MACUpdating && cfg.DstMAC.IsZero() {
		return common.WrapWithNFError(nil, "destination MAC is required when MAC updating is enabled", common.BadArgument)
	}
	if len(cfg.Lcores) < 1 || len(cfg.Lcores) > 2 {
		return common.WrapWithNFError(nil, fmt.Sprintf("1 or 2 lcores are supported, got %d", len(cfg.Lcores)), common.NotEnoughCores)
	}
	switch cfg.CoderRole {
	case nc.None:
	case nc.Encoder, nc.Decoder, nc.Recoder:
		if err := cfg.Coder.Validate(); err != nil {
			return err
		}
	default:
		return common.WrapWithNFError(nil, "unknown coder type "+cfg.CoderRole.String(), common.FailToCreateCoder)
	}
	return nil
}

// dualCore reports whether bridge ingress and egress loops run on
// separate CPUs.
func (cfg *EngineConfig) dualCore() bool {
	return cfg.KNIMode && len(cfg.Lcores) == 2
}

// String prints configuration in the form shown at startup.
func (cfg *EngineConfig) String() string {
	return fmt.Sprintf(`Coder type: %s
Enabled ports: %v
Max burst: %d, drain interval: %v
RX polling parameters: max_poll_short_try:%d, poll_short_interval:%v, poll_long_interval:%v
MAC updating: %v, filtering: %v, KNI mode: %v, packet capturing: %v, debugging: %v
Lcores: %v`,
		cfg.CoderRole, cfg.Ports, cfg.MaxBurst, cfg.DrainInterval,
		cfg.Backoff.MaxShortTries, cfg.Backoff.ShortInterval, cfg.Backoff.LongInterval,
		cfg.MACUpdating, cfg.Filtering, cfg.KNIMode, cfg.PacketCapturing, cfg.Debugging,
		cfg.Lcores)
}

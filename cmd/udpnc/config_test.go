// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevelorenz/build-vsf/common"
	"github.com/stevelorenz/build-vsf/flow"
	"github.com/stevelorenz/build-vsf/nc"
	"github.com/stevelorenz/build-vsf/types"
)

const dstMAC = "02:00:00:00:00:02"

func parse(t *testing.T, args ...string) (*options, *pflag.FlagSet) {
	o := &options{}
	fs := pflag.NewFlagSet("udpnc", pflag.ContinueOnError)
	o.register(fs)
	require.NoError(t, fs.Parse(args))
	return o, fs
}

func writeFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "udpnc.ini")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaults(t *testing.T) {
	o, _ := parse(t)
	_, err := o.engineConfig()
	assert.Equal(t, common.BadArgument, common.GetNFErrorCode(err), "destination MAC is required")

	o, _ = parse(t, "-d", dstMAC)
	cfg, err := o.engineConfig()
	require.NoError(t, err)
	assert.Equal(t, []uint16{0, 1}, cfg.Ports)
	assert.Equal(t, nc.Encoder, cfg.CoderRole)
	assert.Equal(t, nc.DefaultOptions(), cfg.Coder)
	assert.Equal(t, flow.Backoff{}, cfg.Backoff)
	assert.Equal(t, 1, cfg.MaxBurst)
	assert.Equal(t, 10*time.Microsecond, cfg.DrainInterval)
	assert.True(t, cfg.MACUpdating)
	assert.True(t, cfg.Filtering)
	assert.False(t, cfg.KNIMode)
	assert.True(t, cfg.SrcMAC.IsZero())
}

func TestFlags(t *testing.T) {
	o, _ := parse(t,
		"-p", "0x5", "-d", dstMAC, "-s", "02:00:00:00:00:09",
		"-o", "-1", "-i", "3,10,1000", "-b", "32", "-t", "20",
		"--no-filtering", "--kni-mode", "--lcores", "0", "--debugging",
	)
	cfg, err := o.engineConfig()
	require.NoError(t, err)
	assert.Equal(t, []uint16{0, 2}, cfg.Ports)
	assert.Equal(t, nc.None, cfg.CoderRole)
	assert.Equal(t, flow.Backoff{MaxShortTries: 3, ShortInterval: 10 * time.Microsecond, LongInterval: time.Millisecond}, cfg.Backoff)
	assert.Equal(t, 32, cfg.MaxBurst)
	assert.Equal(t, 20*time.Microsecond, cfg.DrainInterval)
	assert.False(t, cfg.Filtering)
	assert.True(t, cfg.KNIMode)
	assert.True(t, cfg.Debugging)
	assert.Equal(t, types.MACAddress{0x02, 0, 0, 0, 0, 0x09}, cfg.SrcMAC)
	assert.Equal(t, []uint{0}, cfg.Lcores)
}

func TestInvalidFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code common.ErrorCode
	}{
		{"bad portmask", []string{"-p", "xyz", "-d", dstMAC}, common.BadArgument},
		{"three ports", []string{"-p", "0x7", "-d", dstMAC}, common.WrongPortNumber},
		{"zero queues", []string{"-q", "0", "-d", dstMAC}, common.BadArgument},
		{"bad poll", []string{"-i", "1,2", "-d", dstMAC}, common.BadArgument},
		{"bad mac", []string{"-d", "02:00"}, common.BadArgument},
		{"kni with filtering", []string{"--kni-mode", "-d", dstMAC}, common.ModeConflict},
		{"zero burst", []string{"-b", "0", "-d", dstMAC}, common.BadArgument},
		{"bad coder", []string{"-o", "5", "-d", dstMAC}, common.FailToCreateCoder},
		{"bad field", []string{"--nc-field", "binary16", "-d", dstMAC}, common.FailToCreateCoder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, _ := parse(t, tt.args...)
			_, err := o.engineConfig()
			assert.Equal(t, tt.code, common.GetNFErrorCode(err))
		})
	}
}

func TestConfigFile(t *testing.T) {
	path := writeFile(t, `
[engine]
burst = 8
dst_mac = 02:00:00:00:00:02
filtering = true
ifaces = eth1, eth2

[coder]
symbols = 4

[kni]
mode = true
mtu = 9000

[log]
debugging = true
`)
	o, fs := parse(t, "-b", "16", "--no-filtering")
	require.NoError(t, o.loadFile(path, fs))

	assert.Equal(t, 16, o.burst, "flags override the file")
	assert.False(t, o.filtering, "flags override the file")
	assert.Equal(t, 4, o.ncSymbols)
	assert.True(t, o.kniMode)
	assert.Equal(t, 9000, o.kniMTU)
	assert.True(t, o.debugging)
	assert.Equal(t, []string{"eth1", "eth2"}, o.ifaces)

	cfg, err := o.engineConfig()
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.MaxBurst)
	assert.Equal(t, 4, cfg.Coder.Symbols)

	iface, err := o.ifaceOf(1)
	require.NoError(t, err)
	assert.Equal(t, "eth2", iface)
	_, err = o.ifaceOf(2)
	assert.Equal(t, common.FailToInitPort, common.GetNFErrorCode(err))
}

func TestConfigFileErrors(t *testing.T) {
	o, fs := parse(t)
	err := o.loadFile(filepath.Join(t.TempDir(), "missing.ini"), fs)
	assert.Equal(t, common.FileErr, common.GetNFErrorCode(err))

	path := writeFile(t, "[engine]\nburst = many\n")
	err = o.loadFile(path, fs)
	assert.Equal(t, common.BadArgument, common.GetNFErrorCode(err))
}

func TestKNIAddress(t *testing.T) {
	o, _ := parse(t)
	addr, err := o.kniAddress()
	require.NoError(t, err)
	assert.Nil(t, addr)

	o, _ = parse(t, "--kni-addr", "10.0.0.11/24")
	addr, err = o.kniAddress()
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.11/24", addr.String())

	o, _ = parse(t, "--kni-addr", "10.0.0.11")
	_, err = o.kniAddress()
	assert.Equal(t, common.BadArgument, common.GetNFErrorCode(err))
}

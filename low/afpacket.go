// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package low

import (
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/gopacket/afpacket"
	"github.com/vishvananda/netlink"
	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"

	"github.com/stevelorenz/build-vsf/common"
	"github.com/stevelorenz/build-vsf/packet"
	"github.com/stevelorenz/build-vsf/types"
)

const (
	afpacketPollTimeout = time.Millisecond
	afpacketBlockSize   = 1 << 20
	afpacketNumBlocks   = 8
	// Frame slot size for TPACKET_V2: header plus maximum frame, 16 byte aligned.
	afpacketFrameSize = 2048
)

// outgoingFilter accepts every frame except the ones sent by this host,
// so that frames transmitted through the socket are not received again.
var outgoingFilter = []bpf.Instruction{
	bpf.LoadExtension{Num: bpf.ExtType},
	bpf.JumpIf{Cond: bpf.JumpEqual, Val: unix.PACKET_OUTGOING, SkipTrue: 1},
	bpf.RetConstant{Val: 0xffff},
	bpf.RetConstant{Val: 0},
}

// AFPacketPort is a Port backed by a Linux AF_PACKET socket bound to a
// network interface. A receiver goroutine copies frames into pool buffers
// and queues them for RxBurst.
type AFPacketPort struct {
	id      uint16
	name    string
	mac     types.MACAddress
	tp      *afpacket.TPacket
	pool    *packet.Pool
	rx      *PacketQueue
	stop    int32
	wg      sync.WaitGroup
	counter portCounters
}

// OpenAFPacketPort opens interface ifname as port id. At most rxDesc
// received frames wait for RxBurst, further ones are counted as missed.
func OpenAFPacketPort(id uint16, ifname string, pool *packet.Pool, rxDesc int) (*AFPacketPort, error) {
	link, err := netlink.LinkByName(ifname)
	if err != nil {
		return nil, common.WrapWithNFError(err, "cannot find interface "+ifname, common.FailToInitPort)
	}
	hw := link.Attrs().HardwareAddr
	if len(hw) != types.EtherAddrLen {
		return nil, common.WrapWithNFError(nil, "interface "+ifname+" has no Ethernet address", common.FailToInitPort)
	}
	mac := types.NetHWAddressToMAC(hw)
	blockSize := afpacketBlockSize
	if ps := os.Getpagesize(); blockSize%ps != 0 {
		blockSize = ps * (blockSize/ps + 1)
	}
	tp, err := afpacket.NewTPacket(
		afpacket.OptInterface(ifname),
		afpacket.OptFrameSize(afpacketFrameSize),
		afpacket.OptBlockSize(blockSize),
		afpacket.OptNumBlocks(afpacketNumBlocks),
		afpacket.OptPollTimeout(afpacketPollTimeout),
		afpacket.SocketRaw,
		afpacket.TPacketVersion2,
	)
	if err != nil {
		return nil, common.WrapWithNFError(err, "cannot open AF_PACKET socket on "+ifname, common.FailToInitPort)
	}
	prog, err := bpf.Assemble(outgoingFilter)
	if err == nil {
		err = tp.SetBPF(prog)
	}
	if err != nil {
		tp.Close()
		return nil, common.WrapWithNFError(err, "cannot attach socket filter on "+ifname, common.FailToInitPort)
	}
	port := &AFPacketPort{
		id:   id,
		name: ifname,
		mac:  mac,
		tp:   tp,
		pool: pool,
		rx:   NewPacketQueue(rxDesc),
	}
	port.wg.Add(1)
	go port.receive()
	common.LogDebug(common.Initialization, "Port", id, "opened on", ifname, "with MAC", mac)
	return port, nil
}

func (port *AFPacketPort) receive() {
	defer port.wg.Done()
	for atomic.LoadInt32(&port.stop) == 0 {
		data, _, err := port.tp.ZeroCopyReadPacketData()
		if err == afpacket.ErrTimeout {
			continue
		}
		if err != nil {
			if atomic.LoadInt32(&port.stop) == 0 {
				common.LogWarning(common.Debug, "Port", port.id, "receive error:", err)
			}
			continue
		}
		pkt, err := port.pool.AllocFrom(data)
		if err != nil {
			atomic.AddUint64(&port.counter.rxMissed, 1)
			continue
		}
		pkt.Port = port.id
		if !port.rx.Put(pkt) {
			pkt.Free()
			atomic.AddUint64(&port.counter.rxMissed, 1)
		}
	}
}

func (port *AFPacketPort) ID() uint16 {
	return port.id
}

func (port *AFPacketPort) Name() string {
	return port.name
}

func (port *AFPacketPort) MAC() types.MACAddress {
	return port.mac
}

func (port *AFPacketPort) RxBurst(pkts []*packet.Packet) int {
	n := port.rx.Get(pkts)
	atomic.AddUint64(&port.counter.rxPackets, uint64(n))
	return n
}

func (port *AFPacketPort) TxBurst(pkts []*packet.Packet) int {
	for i, pkt := range pkts {
		if err := port.tp.WritePacketData(pkt.Bytes()); err != nil {
			atomic.AddUint64(&port.counter.txErrors, 1)
			common.LogDebug(common.Verbose, "Port", port.id, "transmit error:", err)
			atomic.AddUint64(&port.counter.txPackets, uint64(i))
			return i
		}
		pkt.Free()
	}
	atomic.AddUint64(&port.counter.txPackets, uint64(len(pkts)))
	return len(pkts)
}

// LinkUp reports operational state of the interface.
func (port *AFPacketPort) LinkUp() bool {
	link, err := netlink.LinkByName(port.name)
	if err != nil {
		return false
	}
	state := link.Attrs().OperState
	// Virtual interfaces like veth pairs may report unknown state while
	// passing traffic.
	return state == netlink.OperUp || (state == netlink.OperUnknown && link.Attrs().Flags&net.FlagUp != 0)
}

func (port *AFPacketPort) Stats() PortStats {
	return port.counter.snapshot()
}

// Close stops the receiver, frees queued frames and closes the socket.
func (port *AFPacketPort) Close() error {
	if !atomic.CompareAndSwapInt32(&port.stop, 0, 1) {
		return nil
	}
	port.wg.Wait()
	port.rx.Dispose()
	port.tp.Close()
	return nil
}

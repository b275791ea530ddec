// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package packet

import (
	"bufio"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/stevelorenz/build-vsf/common"
)

type nowFuncT func() time.Time

var now nowFuncT = time.Now

// PcapSnapLen is the snapshot length written into pcap file headers.
const PcapSnapLen = 65535

// PcapDumper writes frames into a pcap stream. It is not safe for
// concurrent use, every core owns its own dumper.
type PcapDumper struct {
	w      *pcapgo.Writer
	buf    *bufio.Writer
	closer io.Closer
}

// NewPcapDumper creates pcap file at path and writes global header.
func NewPcapDumper(path string) (*PcapDumper, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, common.WrapWithNFError(err, "cannot create pcap file "+path, common.FileErr)
	}
	d, err := NewPcapWriter(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	d.closer = f
	return d, nil
}

// NewPcapWriter writes pcap global header into w and returns a dumper on top of it.
func NewPcapWriter(w io.Writer) (*PcapDumper, error) {
	buf := bufio.NewWriter(w)
	pw := pcapgo.NewWriter(buf)
	if err := pw.WriteFileHeader(PcapSnapLen, layers.LinkTypeEthernet); err != nil {
		return nil, common.WrapWithNFError(err, "cannot write pcap header", common.PcapWriteFail)
	}
	return &PcapDumper{w: pw, buf: buf}, nil
}

// WritePacket writes one frame with pcap record header. The packet is
// not consumed.
func (d *PcapDumper) WritePacket(pkt *Packet) error {
	data := pkt.Bytes()
	ci := gopacket.CaptureInfo{
		Timestamp:      now(),
		CaptureLength:  len(data),
		Length:         len(data),
		InterfaceIndex: int(pkt.Port),
	}
	if err := d.w.WritePacket(ci, data); err != nil {
		return common.WrapWithNFError(err, "cannot write packet to pcap", common.PcapWriteFail)
	}
	return nil
}

// WriteBurst writes all non nil packets of a burst.
func (d *PcapDumper) WriteBurst(pkts []*Packet) error {
	for _, pkt := range pkts {
		if pkt == nil {
			continue
		}
		if err := d.WritePacket(pkt); err != nil {
			return err
		}
	}
	return nil
}

// Flush writes buffered records to the underlying writer.
func (d *PcapDumper) Flush() error {
	return d.buf.Flush()
}

// Close flushes records and closes the file if the dumper owns it.
func (d *PcapDumper) Close() error {
	err := d.buf.Flush()
	if d.closer != nil {
		if cerr := d.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

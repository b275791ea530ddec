// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flow

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stevelorenz/build-vsf/common"
	"github.com/stevelorenz/build-vsf/kni"
	"github.com/stevelorenz/build-vsf/low"
	"github.com/stevelorenz/build-vsf/packet"
)

type portCounters struct {
	received uint64
	bursts   uint64
}

// PortStatistics are counters of one enabled port.
type PortStatistics struct {
	Name     string        `json:"name"`
	Received uint64        `json:"received"`
	Bursts   uint64        `json:"bursts"`
	Enqueued uint64        `json:"enqueued"`
	Sent     uint64        `json:"sent"`
	Dropped  uint64        `json:"dropped"`
	Driver   low.PortStats `json:"driver"`
	Bridge   *kni.Stats    `json:"bridge,omitempty"`
}

// Statistics is a snapshot of engine counters.
type Statistics struct {
	Ports        map[string]PortStatistics `json:"ports"`
	Verdicts     map[string]uint64         `json:"verdicts"`
	Dispatched   uint64                    `json:"dispatched"`
	UDPDatagrams uint64                    `json:"udp_datagrams"`
	NoRoute      uint64                    `json:"no_route"`
	Pool         packet.PoolStats          `json:"pool"`
}

// Statistics returns current counters. It is safe to call while loops
// are running.
func (e *Engine) Statistics() Statistics {
	s := Statistics{
		Ports:        make(map[string]PortStatistics, len(e.rxPorts)),
		Verdicts:     make(map[string]uint64, int(verdictsNumber)),
		Dispatched:   e.coder.Dispatched(),
		UDPDatagrams: atomic.LoadUint64(&e.udpDatagrams),
		NoRoute:      atomic.LoadUint64(&e.tx.noRoute),
		Pool:         e.pool.Stats(),
	}
	for v := Accept; v < verdictsNumber; v++ {
		s.Verdicts[v.String()] = e.filter.Count(v) + e.kernelFilter.Count(v)
	}
	for _, id := range e.rxPorts {
		port := e.ports[id]
		ps := PortStatistics{
			Name:     port.Name(),
			Received: atomic.LoadUint64(&e.counters[id].received),
			Bursts:   atomic.LoadUint64(&e.counters[id].bursts),
			Enqueued: atomic.LoadUint64(&e.tx.enqueued[id]),
			Driver:   port.Stats(),
		}
		if tb := e.tx.buffer(id); tb != nil {
			ps.Sent = tb.Sent()
			ps.Dropped = tb.Dropped()
		}
		if dev := e.bridges[id]; dev != nil {
			bs := dev.Stats()
			ps.Bridge = &bs
		}
		s.Ports[strconv.Itoa(int(id))] = ps
	}
	return s
}

func (e *Engine) handler(w http.ResponseWriter, r *http.Request) {
	url := strings.Split(r.URL.Path, "/")
	if len(url) < 2 || url[1] == "" {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><body>
/<a href="/rxtxstats">rxtxstats</a> for counters of all enabled ports
or /rxtxstats/N for individual port.<br>
<br>
/<a href="/metrics">metrics</a> for the same counters in Prometheus format.
</body></html>`)
		return
	}
	if url[1] != "rxtxstats" {
		http.Error(w, "Bad request: "+url[1], http.StatusBadRequest)
		return
	}

	enc := json.NewEncoder(w)
	stats := e.Statistics()
	if len(url) > 2 && url[2] != "" {
		ps, ok := stats.Ports[url[2]]
		if !ok {
			http.Error(w, "Bad port: "+url[2], http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		enc.Encode(ps)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	enc.Encode(stats)
}

// Handler returns HTTP handler serving engine counters.
func (e *Engine) Handler() http.Handler {
	registry := prometheus.NewRegistry()
	registry.MustRegister(newCollector(e))

	mux := http.NewServeMux()
	mux.HandleFunc("/", e.handler)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return mux
}

// StartStatsServer serves counters on addr until Close.
func (e *Engine) StartStatsServer(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return common.WrapWithNFError(err, "cannot listen on "+addr, common.BadArgument)
	}
	e.stats = &http.Server{Handler: e.Handler()}
	common.LogInfo(common.Initialization, "Serving counters on", listener.Addr())

	go func(server *http.Server) {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			common.LogWarning(common.Initialization, "Error while serving HTTP requests:", err)
			server.Close()
		}
	}(e.stats)
	return nil
}

// collector exports engine counters, reading them on every scrape.
type collector struct {
	e *Engine

	receivedTotal *prometheus.Desc
	sentTotal     *prometheus.Desc
	droppedTotal  *prometheus.Desc
	missedTotal   *prometheus.Desc
	verdictsTotal *prometheus.Desc
	bridgeTotal   *prometheus.Desc
	udpTotal      *prometheus.Desc
	poolInUse     *prometheus.Desc
}

func newCollector(e *Engine) *collector {
	return &collector{
		e: e,
		receivedTotal: prometheus.NewDesc(
			"udpnc_port_received_packets_total",
			"Total frames received per port.",
			[]string{"port"}, nil,
		),
		sentTotal: prometheus.NewDesc(
			"udpnc_port_sent_packets_total",
			"Total frames transmitted per port.",
			[]string{"port"}, nil,
		),
		droppedTotal: prometheus.NewDesc(
			"udpnc_port_tx_dropped_packets_total",
			"Total frames the port did not accept for transmission.",
			[]string{"port"}, nil,
		),
		missedTotal: prometheus.NewDesc(
			"udpnc_port_rx_missed_packets_total",
			"Total frames lost by the port receive queue.",
			[]string{"port"}, nil,
		),
		verdictsTotal: prometheus.NewDesc(
			"udpnc_filter_verdicts_total",
			"Total filter verdicts.",
			[]string{"verdict"}, nil,
		),
		bridgeTotal: prometheus.NewDesc(
			"udpnc_bridge_packets_total",
			"Total frames passed through bridge devices.",
			[]string{"port", "direction"}, nil,
		),
		udpTotal: prometheus.NewDesc(
			"udpnc_udp_datagrams_total",
			"Total UDP datagrams passed to the coder.",
			nil, nil,
		),
		poolInUse: prometheus.NewDesc(
			"udpnc_pool_buffers_in_use",
			"Packet buffers currently owned.",
			nil, nil,
		),
	}
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.receivedTotal
	ch <- c.sentTotal
	ch <- c.droppedTotal
	ch <- c.missedTotal
	ch <- c.verdictsTotal
	ch <- c.bridgeTotal
	ch <- c.udpTotal
	ch <- c.poolInUse
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	s := c.e.Statistics()
	for id, ps := range s.Ports {
		ch <- prometheus.MustNewConstMetric(c.receivedTotal, prometheus.CounterValue, float64(ps.Received), id)
		ch <- prometheus.MustNewConstMetric(c.sentTotal, prometheus.CounterValue, float64(ps.Sent), id)
		ch <- prometheus.MustNewConstMetric(c.droppedTotal, prometheus.CounterValue, float64(ps.Dropped), id)
		ch <- prometheus.MustNewConstMetric(c.missedTotal, prometheus.CounterValue, float64(ps.Driver.RxMissed), id)
		if ps.Bridge != nil {
			ch <- prometheus.MustNewConstMetric(c.bridgeTotal, prometheus.CounterValue, float64(ps.Bridge.Pushed), id, "to_kernel")
			ch <- prometheus.MustNewConstMetric(c.bridgeTotal, prometheus.CounterValue, float64(ps.Bridge.Pulled), id, "from_kernel")
		}
	}
	for v, n := range s.Verdicts {
		ch <- prometheus.MustNewConstMetric(c.verdictsTotal, prometheus.CounterValue, float64(n), v)
	}
	ch <- prometheus.MustNewConstMetric(c.udpTotal, prometheus.CounterValue, float64(s.UDPDatagrams))
	ch <- prometheus.MustNewConstMetric(c.poolInUse, prometheus.GaugeValue, float64(s.Pool.InUse))
}

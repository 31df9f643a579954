/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package metrics is a thin Prometheus registration wrapper around the
// connection-level state this module otherwise only exposes through
// conn.OR.State() and the throughput ring. It is a separate concern from
// throughput.Metrics (bytes in/out per worker thread): this package counts
// connections by lifecycle state and handshake outcome, the things an
// operator dashboards against rather than what the per-tick text log
// already reports.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nabbar/orlink/conn"
)

// Registry bundles the connection-lifecycle gauges/counters this module
// exports, registered once at startup against a single prometheus.Registry
// so cmd/orrelayd can mount /metrics without touching the global default
// registerer.
type Registry struct {
	reg *prometheus.Registry

	connsByState  *prometheus.GaugeVec
	handshakesTot *prometheus.CounterVec
}

// New creates and registers every metric this package exports.
func New() *Registry {
	reg := prometheus.NewRegistry()

	connsByState := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "or_connections",
		Help: "Current OR connections by lifecycle state.",
	}, []string{"state"})

	handshakesTot := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "or_link_handshakes_total",
		Help: "Completed link handshakes by outcome (open, closed).",
	}, []string{"outcome"})

	reg.MustRegister(connsByState, handshakesTot)

	return &Registry{reg: reg, connsByState: connsByState, handshakesTot: handshakesTot}
}

// ObserveState snapshots one connection's current state into the gauge
// set, decrementing its previous bucket first so the total across all
// state labels stays equal to the live connection count.
func (r *Registry) ObserveState(prev, next conn.State) {
	if prev != next {
		r.connsByState.WithLabelValues(prev.String()).Dec()
	}
	r.connsByState.WithLabelValues(next.String()).Inc()
}

// HandshakeCompleted records a terminal handshake outcome ("open" or
// "closed") in the or_link_handshakes_total counter.
func (r *Registry) HandshakeCompleted(outcome string) {
	r.handshakesTot.WithLabelValues(outcome).Inc()
}

// Handler returns the http.Handler cmd/orrelayd mounts at /metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

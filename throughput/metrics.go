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

package throughput

import "github.com/prometheus/client_golang/prometheus"

// Metrics wraps the two counters the text log's writer additionally
// exports, labeled by thread id. The ring stays the source of truth for
// the text log; Prometheus is an additional observer, not a replacement.
type Metrics struct {
	bytesSent *prometheus.CounterVec
	bytesRecv *prometheus.CounterVec
}

// NewMetrics registers or_bytes_sent_total and or_bytes_received_total
// against reg (e.g. prometheus.DefaultRegisterer, or a fresh registry in
// tests).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	sent := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "or_bytes_sent_total",
		Help: "Bytes sent by an OR connection worker thread, by thread id.",
	}, []string{"thread"})
	recv := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "or_bytes_received_total",
		Help: "Bytes received by an OR connection worker thread, by thread id.",
	}, []string{"thread"})

	if reg != nil {
		reg.MustRegister(sent, recv)
	}

	return &Metrics{bytesSent: sent, bytesRecv: recv}
}

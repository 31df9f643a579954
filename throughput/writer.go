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

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
)

// Writer joins every thread's Ring to produce the throughput log. Rings
// are supplied once at construction (initialization takes the thread
// count, per spec.md §4.3); Join blocks on each ring's mutex in turn,
// which is only released when its owning thread exits.
type Writer struct {
	rings []*Ring

	sentTotal *prometheus.CounterVec
	recvTotal *prometheus.CounterVec
}

// NewWriter binds one Writer to exactly the rings it must join. metrics
// may be nil to skip Prometheus counters (e.g. in tests).
func NewWriter(rings []*Ring, metrics *Metrics) *Writer {
	w := &Writer{rings: rings}
	if metrics != nil {
		w.sentTotal = metrics.bytesSent
		w.recvTotal = metrics.bytesRecv
	}
	return w
}

// Join acquires every ring's mutex — blocking until each owning thread has
// exited — snapshots its data, and writes the combined text log to out.
// It also feeds the final per-thread totals into the Prometheus counters,
// if configured.
func (w *Writer) Join(out io.Writer) error {
	starts := make([]int64, len(w.rings))
	sents := make([][]uint32, len(w.rings))
	recvs := make([][]uint32, len(w.rings))

	for i, r := range w.rings {
		r.Mu.Lock()
		start, sent, recv := r.snapshot()
		r.Mu.Unlock()

		starts[i] = start.UnixNano()
		sents[i] = sent
		recvs[i] = recv

		if w.sentTotal != nil {
			var total uint64
			for _, v := range sent {
				total += uint64(v)
			}
			w.sentTotal.WithLabelValues(fmt.Sprintf("%d", i)).Add(float64(total))
		}
		if w.recvTotal != nil {
			var total uint64
			for _, v := range recv {
				total += uint64(v)
			}
			w.recvTotal.WithLabelValues(fmt.Sprintf("%d", i)).Add(float64(total))
		}
	}

	if _, err := io.WriteString(out, header(len(w.rings))); err != nil {
		return err
	}

	maxLen := 0
	for _, s := range sents {
		if len(s) > maxLen {
			maxLen = len(s)
		}
	}

	for idx := 0; idx < maxLen; idx++ {
		if !anyDataAtOrAfter(sents, recvs, idx) {
			break
		}
		wallSeconds := float64(idx) * Step.Seconds()
		row := fmt.Sprintf("%.3f", wallSeconds)
		for i := range w.rings {
			var s, r uint32
			if idx < len(sents[i]) {
				s = sents[i][idx]
			}
			if idx < len(recvs[i]) {
				r = recvs[i][idx]
			}
			row += fmt.Sprintf(", %11d, %11d", s, r)
		}
		if _, err := io.WriteString(out, row+"\n"); err != nil {
			return err
		}
	}
	return nil
}

func header(n int) string {
	h := "time"
	for i := 0; i < n; i++ {
		h += fmt.Sprintf(", thrd %d sent, thrd %d recv", i, i)
	}
	return h + "\n"
}

func anyDataAtOrAfter(sents, recvs [][]uint32, idx int) bool {
	for i := range sents {
		for j := idx; j < len(sents[i]); j++ {
			if sents[i][j] != 0 || (j < len(recvs[i]) && recvs[i][j] != 0) {
				return true
			}
		}
	}
	return false
}

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

// Package throughput implements the per-worker-thread byte-accounting ring
// used to produce the transport core's plain-text throughput log: each
// thread owns one exclusive slot for its lifetime, and a Writer joins every
// slot once all threads have exited to emit one row per 500ms window.
package throughput

import (
	"math"
	"sync"
	"time"
)

// Step is the fixed window width a ring index represents.
const Step = 500 * time.Millisecond

// headroomWindows is how many extra windows a grow allocates past the
// index that triggered it, giving 60s of slack before the next grow.
const headroomWindows = 120

// Ring is one thread's exclusive sent/recv byte-counter slot. Log is only
// ever called by the owning thread (lock-free from its point of view); Mu
// is held for the thread's entire lifetime and released only on exit, so a
// Writer joining every ring blocks until every thread has actually
// finished, matching the "writer acquires every slot's mutex" semantics.
type Ring struct {
	Mu    sync.Mutex
	start time.Time
	sent  []uint32
	recv  []uint32
}

// NewRing creates a ring anchored at start; Log's idx is computed relative
// to this instant.
func NewRing(start time.Time) *Ring {
	return &Ring{start: start}
}

func (r *Ring) indexFor(now time.Time) int {
	d := now.Sub(r.start)
	if d < 0 {
		d = 0
	}
	return int(d / Step)
}

func (r *Ring) growTo(idx int) {
	if idx < len(r.sent) {
		return
	}
	n := idx + headroomWindows
	sent := make([]uint32, n)
	recv := make([]uint32, n)
	copy(sent, r.sent)
	copy(recv, r.recv)
	r.sent = sent
	r.recv = recv
}

// saturatingAdd adds b to v, clamping at math.MaxUint32 instead of
// wrapping.
func saturatingAdd(v uint32, b uint32) uint32 {
	sum := uint64(v) + uint64(b)
	if sum > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(sum)
}

// LogSent records bytesSent delivered at instant now.
func (r *Ring) LogSent(bytesSent uint32, now time.Time) {
	idx := r.indexFor(now)
	r.growTo(idx)
	r.sent[idx] = saturatingAdd(r.sent[idx], bytesSent)
}

// LogRecv records bytesRecv delivered at instant now.
func (r *Ring) LogRecv(bytesRecv uint32, now time.Time) {
	idx := r.indexFor(now)
	r.growTo(idx)
	r.recv[idx] = saturatingAdd(r.recv[idx], bytesRecv)
}

// snapshot returns copies of the two rings along with the anchor instant.
// Caller must hold Mu.
func (r *Ring) snapshot() (time.Time, []uint32, []uint32) {
	sent := make([]uint32, len(r.sent))
	recv := make([]uint32, len(r.recv))
	copy(sent, r.sent)
	copy(recv, r.recv)
	return r.start, sent, recv
}

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

// Package bucket implements the read/write token-bucket rate limiter an OR
// connection decrements by raw (post-TLS) bytes after every I/O operation.
// It is hand-rolled rather than built on golang.org/x/time/rate: that
// package models a single credit pool behind a blocking Wait API, with no
// notion of decrementing after the fact by bytes already moved, nor of two
// independent pools each feeding a boolean gate a connection's event
// registration reads back every iteration. See DESIGN.md for the full
// comparison.
package bucket

import "time"

// Bucket is one credit counter: rate bytes/s, a burst ceiling, and the
// instant it was last refilled.
type Bucket struct {
	rate   uint64
	burst  uint64
	credit uint64
	last   time.Time
}

// NewBucket creates a Bucket already full (credit == burst) as of now.
func NewBucket(rate, burst uint64, now time.Time) *Bucket {
	return &Bucket{rate: rate, burst: burst, credit: burst, last: now}
}

// Refill adds rate * elapsed seconds to credit, capped at burst.
func (b *Bucket) Refill(now time.Time) {
	if now.Before(b.last) {
		return
	}
	elapsed := now.Sub(b.last)
	b.last = now

	if b.rate == 0 || elapsed <= 0 {
		return
	}

	added := uint64(float64(b.rate) * elapsed.Seconds())
	b.credit = minU64(b.burst, b.credit+added)
}

// Decrement subtracts rawBytes from credit, floored at zero. rawBytes is
// the actual bytes moved over the wire (TLS record overhead included),
// not the plaintext payload size.
func (b *Bucket) Decrement(rawBytes uint64) {
	if rawBytes >= b.credit {
		b.credit = 0
		return
	}
	b.credit -= rawBytes
}

// Adjust changes rate and burst; if reset is true, credit is set to the
// new burst as of now instead of being left as-is (clamped to the new
// burst otherwise).
func (b *Bucket) Adjust(rate, burst uint64, reset bool, now time.Time) {
	b.rate = rate
	b.burst = burst
	if reset {
		b.credit = burst
		b.last = now
		return
	}
	b.credit = minU64(b.credit, burst)
}

// Credit returns the current credit, for gate-flag recomputation.
func (b *Bucket) Credit() uint64 {
	return b.credit
}

// Allowed reports whether the bucket currently has any credit to spend.
func (b *Bucket) Allowed() bool {
	return b.credit > 0
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// RW is the read/write pair an OR connection owns: independent rate,
// burst and credit for each direction.
type RW struct {
	Read  *Bucket
	Write *Bucket
}

func NewRW(readRate, readBurst, writeRate, writeBurst uint64, now time.Time) *RW {
	return &RW{
		Read:  NewBucket(readRate, readBurst, now),
		Write: NewBucket(writeRate, writeBurst, now),
	}
}

// RefillBoth refills both directions from the same instant, as the
// periodic per-loop timer does.
func (rw *RW) RefillBoth(now time.Time) {
	rw.Read.Refill(now)
	rw.Write.Refill(now)
}

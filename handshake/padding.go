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

package handshake

// PaddingScheduler receives the low/high inter-cell timeout bounds a peer
// requests via PADDING_NEGOTIATE. The actual RELAY_DELAY/log-normal cell
// sampler that would act on these bounds is out of scope for this module
// (SPEC_FULL.md Open Question 2); this module only parses and forwards
// the negotiated bounds.
type PaddingScheduler interface {
	SetBounds(lowMs, highMs uint16)
}

// noopPaddingScheduler discards the negotiated bounds. It is the default
// wired into State when no scheduler is supplied.
type noopPaddingScheduler struct{}

func (noopPaddingScheduler) SetBounds(uint16, uint16) {}

// NoopPaddingScheduler is the zero-behavior PaddingScheduler used when the
// caller does not wire in a real cell-timing sampler.
var NoopPaddingScheduler PaddingScheduler = noopPaddingScheduler{}

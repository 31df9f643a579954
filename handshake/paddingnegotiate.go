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

import (
	"encoding/binary"

	"github.com/nabbar/orlink/conn"
	"github.com/nabbar/orlink/errs"
)

// ProcessPaddingNegotiate implements spec.md §4.6 PADDING_NEGOTIATE: it
// only decodes and forwards the requested inter-cell timeout bounds. The
// sampler that would act on them is an external collaborator (§1,
// "ornamental traffic-shaping delay sampler" — out of scope).
func ProcessPaddingNegotiate(o *conn.OR, st *State, body []byte) error {
	if len(body) < 5 {
		o.OnFatal()
		return errs.CodeProtocolViolation.Errorf(nil, "PADDING_NEGOTIATE too short: %d bytes", len(body))
	}
	// body[0] is the negotiate command/version byte; only START (0) is
	// meaningful here.
	low := binary.BigEndian.Uint16(body[1:3])
	high := binary.BigEndian.Uint16(body[3:5])
	if low > high {
		o.OnFatal()
		return errs.CodeProtocolViolation.Errorf(nil, "PADDING_NEGOTIATE low %d exceeds high %d", low, high)
	}

	sched := st.Padding
	if sched == nil {
		sched = NoopPaddingScheduler
	}
	sched.SetBounds(low, high)
	return nil
}

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

package cell

import (
	"encoding/binary"

	"github.com/nabbar/orlink/event"
)

// LinkState is the subset of OR connection state the framer needs to know
// how to split the wire stream: whether the link protocol has settled
// (>0) and, once it has, whether circuit ids are 2 or 4 bytes wide.
type LinkState interface {
	LinkProtocol() int
	WideCircIDs() bool
}

// fixedData and variableData wrap a parsed cell as event.Data so the
// framer can publish it without the listener needing to know the
// concrete cell type up front.
type fixedData struct{ Fixed }
type variableData struct{ Variable }

func (fixedData) Close() error    { return nil }
func (variableData) Close() error { return nil }

// FixedFromData unwraps a fixed_cell_ev payload published by a Framer, for
// a listener callback that needs the parsed cell rather than just the
// label. ok is false for any Data not produced by this package.
func FixedFromData(d event.Data) (Fixed, bool) {
	fd, ok := d.(fixedData)
	if !ok {
		return Fixed{}, false
	}
	return fd.Fixed, true
}

// VariableFromData is FixedFromData's counterpart for var_cell_ev.
func VariableFromData(d event.Data) (Variable, bool) {
	vd, ok := d.(variableData)
	if !ok {
		return Variable{}, false
	}
	return vd.Variable, true
}

// Framer splits an inbound byte stream into complete cells and publishes
// them to a bound event.Source, and packs outbound cells for appending to
// a connection's write buffer.
type Framer struct {
	state  LinkState
	src    *event.Source
	fixed  event.Label
	vari   event.Label
}

// NewFramer binds a Framer to state and to the two labels the connection
// has already registered for fixed_cell_ev and var_cell_ev.
func NewFramer(state LinkState, src *event.Source, fixedLabel, varLabel event.Label) *Framer {
	return &Framer{state: state, src: src, fixed: fixedLabel, vari: varLabel}
}

// Feed consumes as many complete cells as buf contains, publishing one
// event per cell, and returns the unconsumed remainder (a partial cell,
// or empty). firstVersions reports whether this pass just delivered the
// first inbound VERSIONS cell while the link protocol was still unknown
// (linkProtocol == 0); the caller must set waiting_for_link_protocol and
// stop processing further cells on this connection until the main thread
// assigns the negotiated version, per spec.md §4.5.4.
func (fr *Framer) Feed(buf []byte) (remaining []byte, firstVersions bool, err error) {
	linkProtocol := fr.state.LinkProtocol()
	wideCircIDs := fr.state.WideCircIDs()
	circLen := 2
	if wideCircIDs {
		circLen = 4
	}

	for {
		if len(buf) < circLen+1 {
			break
		}
		cmd := Command(buf[circLen])

		if IsVariable(cmd, linkProtocol) {
			headerLen := circLen + 1 + 2
			if len(buf) < headerLen {
				break
			}
			length := binary.BigEndian.Uint16(buf[circLen+1 : headerLen])
			total := headerLen + int(length)
			if len(buf) < total {
				// partial cell stall: wait for more bytes.
				break
			}

			body := make([]byte, length)
			copy(body, buf[headerLen:total])
			v := Variable{CircID: getCircID(buf, circLen), Command: cmd, Body: body}
			fr.src.Publish(fr.vari, variableData{v})
			buf = buf[total:]

			if cmd == CommandVersions && linkProtocol == 0 {
				return buf, true, nil
			}
			continue
		}

		total := circLen + 1 + PayloadLen
		if len(buf) < total {
			break
		}
		f, decErr := DecodeFixed(buf[:total], wideCircIDs)
		if decErr != nil {
			return buf, false, decErr
		}
		fr.src.Publish(fr.fixed, fixedData{f})
		buf = buf[total:]
	}

	return buf, false, nil
}

// PackFixed returns f's wire encoding for appending to an outbuf.
func (fr *Framer) PackFixed(f Fixed) []byte {
	return f.Encode(fr.state.WideCircIDs())
}

// PackVariable returns v's wire encoding for appending to an outbuf.
func (fr *Framer) PackVariable(v Variable) []byte {
	return v.Encode(fr.state.WideCircIDs())
}

// PackPacked returns a pre-serialized blob unchanged: packed cells are
// already wire-ready, the framer's only job for them is to say so.
func (fr *Framer) PackPacked(blob []byte) []byte {
	return blob
}

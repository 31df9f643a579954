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
	"time"

	"github.com/nabbar/orlink/cell"
	"github.com/nabbar/orlink/conn"
	"github.com/nabbar/orlink/errs"
)

// supportedVersions are the link protocol versions this module
// negotiates. Versions below 3 are rejected unconditionally: no v1/v2
// dead branches are carried over (Open Question 1).
var supportedVersions = []int{3, 4, 5}

// SendVersions emits our VERSIONS cell, the first cell either side sends
// on entering LinkHandshaking.
func SendVersions(o *conn.OR, st *State) {
	body := make([]byte, 0, len(supportedVersions)*2)
	for _, v := range supportedVersions {
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(v))
		body = append(body, b[:]...)
	}
	wire := cell.Variable{CircID: 0, Command: cell.CommandVersions, Body: body}.Encode(false)
	o.SendCell(wire)
	st.SentVersions = true
	st.SentVersionsAt = time.Now()
}

// ProcessVersions implements spec.md §4.6 VERSIONS.
func ProcessVersions(o *conn.OR, st *State, body []byte) error {
	if len(body)%2 != 0 {
		o.OnFatal()
		return errs.CodeProtocolViolation.Errorf(nil, "VERSIONS payload has odd length %d", len(body))
	}
	if st.RecvVersions {
		o.OnFatal()
		return errs.CodeProtocolViolation.Error(nil)
	}

	peerVersions := make(map[int]bool, len(body)/2)
	for i := 0; i+1 < len(body); i += 2 {
		peerVersions[int(binary.BigEndian.Uint16(body[i:]))] = true
	}

	negotiated := 0
	for _, v := range supportedVersions {
		if peerVersions[v] && v > negotiated {
			negotiated = v
		}
	}

	if negotiated < 3 {
		o.OnFatal()
		return errs.CodeProtocolViolation.Errorf(nil, "no common link protocol version >= 3 (peer offered %v)", body)
	}

	st.RecvVersions = true
	o.OnLinkProtocolVersion(negotiated, nil)

	if !st.Initiator {
		if !st.SentVersions {
			SendVersions(o, st)
		}
		SendCerts(o, st)
		SendAuthChallenge(o, st)
		SendNetinfo(o, st)
	}
	return nil
}

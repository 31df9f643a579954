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
	"crypto/rand"
	"encoding/binary"

	"github.com/nabbar/orlink/cell"
	"github.com/nabbar/orlink/conn"
	"github.com/nabbar/orlink/errs"
)

const authChallengeLen = 32

// SendAuthChallenge emits our AUTH_CHALLENGE cell, offering every method
// in preferenceOrder.
func SendAuthChallenge(o *conn.OR, st *State) {
	var challenge [authChallengeLen]byte
	_, _ = rand.Read(challenge[:])

	body := make([]byte, 0, authChallengeLen+2+len(preferenceOrder)*2)
	body = append(body, challenge[:]...)
	var n [2]byte
	binary.BigEndian.PutUint16(n[:], uint16(len(preferenceOrder)))
	body = append(body, n[:]...)
	for _, m := range preferenceOrder {
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(m))
		body = append(body, b[:]...)
	}

	wire := cell.Variable{CircID: 0, Command: cell.CommandAuthChallenge, Body: body}.Encode(o.WideCircIDs())
	o.SendCell(wire)
	st.SentAuthChallenge = true
}

// ProcessAuthChallenge implements spec.md §4.6 AUTH_CHALLENGE.
func ProcessAuthChallenge(o *conn.OR, st *State, body []byte) error {
	if st.RecvAuthChallenge {
		o.OnFatal()
		return errs.CodeProtocolViolation.Error(nil)
	}
	if len(body) < authChallengeLen+2 {
		o.OnFatal()
		return errs.CodeProtocolViolation.Errorf(nil, "AUTH_CHALLENGE too short: %d bytes", len(body))
	}

	nMethods := int(binary.BigEndian.Uint16(body[authChallengeLen : authChallengeLen+2]))
	offset := authChallengeLen + 2
	if offset+nMethods*2 > len(body) {
		o.OnFatal()
		return errs.CodeProtocolViolation.Errorf(nil, "AUTH_CHALLENGE method list overruns payload")
	}

	offered := make(map[AuthMethod]bool, nMethods)
	for i := 0; i < nMethods; i++ {
		m := AuthMethod(binary.BigEndian.Uint16(body[offset+i*2 : offset+i*2+2]))
		offered[m] = true
	}

	copy(st.AuthChallenge[:], body[:authChallengeLen])
	st.RecvAuthChallenge = true

	if !st.WantsToAuthenticate {
		// Not a public server: silently decline, as spec.md §4.6 prescribes.
		return nil
	}

	order := st.PreferenceOrder
	if len(order) == 0 {
		order = preferenceOrder
	}

	var chosen AuthMethod
	for _, m := range order {
		if offered[m] {
			chosen = m
			break
		}
	}
	if chosen == 0 {
		// No method we support was offered; proceed unauthenticated rather
		// than closing — AUTH_CHALLENGE failure is not itself fatal.
		return nil
	}

	st.ChosenAuthMethod = chosen
	SendCerts(o, st)
	SendAuthenticate(o, st)
	SendNetinfo(o, st)
	return nil
}

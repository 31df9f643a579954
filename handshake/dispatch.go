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
	"github.com/nabbar/orlink/cell"
	"github.com/nabbar/orlink/conn"
	"github.com/nabbar/orlink/errs"
)

// Dispatch routes one framed cell body to its processor by command,
// rejecting anything that arrives outside LinkHandshaking or that has no
// registered processor. It is the single entry point the connection's
// fixed/variable cell listeners call into while o.State() ==
// conn.LinkHandshaking.
func Dispatch(o *conn.OR, st *State, cmd cell.Command, body []byte) error {
	if o.State() != conn.LinkHandshaking {
		o.OnFatal()
		return errs.CodeProtocolViolation.Errorf(nil, "handshake cell %d received outside LinkHandshaking", cmd)
	}

	switch cmd {
	case cell.CommandVersions:
		return ProcessVersions(o, st, body)
	case cell.CommandCerts:
		return ProcessCerts(o, st, body)
	case cell.CommandAuthChallenge:
		return ProcessAuthChallenge(o, st, body)
	case cell.CommandAuthenticate:
		return ProcessAuthenticate(o, st, body)
	case cell.CommandNetinfo:
		return ProcessNetinfo(o, st, body)
	case cell.CommandPaddingNegotiate:
		return ProcessPaddingNegotiate(o, st, body)
	default:
		// Anything else arriving before Open is out of order; ignore
		// rather than fail the connection, matching channeltls.c's
		// tolerance for PADDING cells pre-negotiation.
		if cmd == cell.CommandPadding || cmd == cell.CommandVPadding {
			return nil
		}
		o.OnFatal()
		return errs.CodeProtocolViolation.Errorf(nil, "unexpected cell command %d during handshake", cmd)
	}
}

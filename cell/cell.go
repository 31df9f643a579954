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

// Package cell encodes and decodes the two link-layer framing units a
// relay-to-relay connection exchanges: fixed cells (512/514 bytes, PAYLOAD_LEN
// body) and variable cells (handshake-only, explicit length field). Framer
// splits an inbound byte stream into complete cells and packs outbound ones,
// exactly per the wire layout in spec.md §6.
package cell

import (
	"encoding/binary"
	"errors"
)

// Command identifies a cell's purpose. Values match the Tor link protocol
// wire encoding.
type Command byte

const (
	CommandPadding       Command = 0
	CommandCreate        Command = 1
	CommandCreated       Command = 2
	CommandRelay         Command = 3
	CommandDestroy       Command = 4
	CommandCreateFast    Command = 5
	CommandCreatedFast   Command = 6
	CommandVersions      Command = 7
	CommandNetinfo       Command = 8
	CommandRelayEarly    Command = 9
	CommandCreate2       Command = 10
	CommandCreated2      Command = 11
	CommandPaddingNegotiate Command = 12
	CommandVPadding      Command = 128
	CommandCerts         Command = 129
	CommandAuthChallenge Command = 130
	CommandAuthenticate  Command = 131
	CommandAuthorize     Command = 132
)

// PayloadLen is the fixed body size of a fixed cell.
const PayloadLen = 509

// variableCommandsPostNegotiation is the set of commands that stay
// variable-length once the link protocol version is known.
var variableCommandsPostNegotiation = map[Command]bool{
	CommandVersions:      true,
	CommandVPadding:      true,
	CommandCerts:         true,
	CommandAuthChallenge: true,
	CommandAuthenticate:  true,
	CommandAuthorize:     true,
}

// IsVariable reports whether cmd is framed as a variable cell. Before the
// link protocol version is known (linkProtocol == 0), only VERSIONS is
// variable; everything else that would later become variable is not yet
// recognized as such because the peer hasn't told us it understands v3+.
func IsVariable(cmd Command, linkProtocol int) bool {
	if linkProtocol == 0 {
		return cmd == CommandVersions
	}
	return variableCommandsPostNegotiation[cmd]
}

// circIDLen returns 2 or 4 depending on wideCircIDs. VERSIONS is always
// framed with a 2-byte circuit id regardless, because circuit-id width
// itself is one of the things version negotiation decides.
func circIDLen(cmd Command, wideCircIDs bool) int {
	if cmd == CommandVersions {
		return 2
	}
	if wideCircIDs {
		return 4
	}
	return 2
}

// Fixed is a fixed-size cell: circ_id, command, and a PayloadLen-sized
// body (padded by the caller if its logical payload is shorter).
type Fixed struct {
	CircID  uint32
	Command Command
	Body    [PayloadLen]byte
}

// Encode serializes f per spec.md §6: circ_id (2 or 4 bytes BE), command
// (1 byte), body (PayloadLen bytes).
func (f Fixed) Encode(wideCircIDs bool) []byte {
	n := circIDLen(f.Command, wideCircIDs)
	out := make([]byte, n+1+PayloadLen)
	putCircID(out, f.CircID, n)
	out[n] = byte(f.Command)
	copy(out[n+1:], f.Body[:])
	return out
}

// DecodeFixed parses one fixed cell from buf, which must be exactly
// circIDLen+1+PayloadLen bytes (the caller determines wideCircIDs from
// connection state before calling).
func DecodeFixed(buf []byte, wideCircIDs bool) (Fixed, error) {
	n := 2
	if wideCircIDs {
		n = 4
	}
	want := n + 1 + PayloadLen
	if len(buf) != want {
		return Fixed{}, errors.New("cell: fixed cell has wrong length")
	}

	f := Fixed{CircID: getCircID(buf, n), Command: Command(buf[n])}
	copy(f.Body[:], buf[n+1:])
	return f, nil
}

// WireSize returns the on-wire byte length of a fixed cell for the given
// circuit-id width.
func WireSize(wideCircIDs bool) int {
	n := 2
	if wideCircIDs {
		n = 4
	}
	return n + 1 + PayloadLen
}

// Variable is a variable-length cell, used only for handshake commands.
type Variable struct {
	CircID  uint32
	Command Command
	Body    []byte
}

// Encode serializes v: circ_id, command, length (BE16), then Body.
func (v Variable) Encode(wideCircIDs bool) []byte {
	n := circIDLen(v.Command, wideCircIDs)
	out := make([]byte, n+1+2+len(v.Body))
	putCircID(out, v.CircID, n)
	out[n] = byte(v.Command)
	binary.BigEndian.PutUint16(out[n+1:], uint16(len(v.Body)))
	copy(out[n+3:], v.Body)
	return out
}

func putCircID(buf []byte, id uint32, n int) {
	if n == 2 {
		binary.BigEndian.PutUint16(buf, uint16(id))
	} else {
		binary.BigEndian.PutUint32(buf, id)
	}
}

func getCircID(buf []byte, n int) uint32 {
	if n == 2 {
		return uint32(binary.BigEndian.Uint16(buf))
	}
	return binary.BigEndian.Uint32(buf)
}

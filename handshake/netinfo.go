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
	"net"
	"time"

	"github.com/nabbar/orlink/cell"
	"github.com/nabbar/orlink/conn"
	"github.com/nabbar/orlink/errs"
)

const (
	addrTypeIPv4 = 4
	addrTypeIPv6 = 6
)

func encodeAddr(ip net.IP) []byte {
	if v4 := ip.To4(); v4 != nil {
		return append([]byte{addrTypeIPv4, 4}, v4...)
	}
	v6 := ip.To16()
	return append([]byte{addrTypeIPv6, 16}, v6...)
}

func parseAddr(buf []byte) (net.IP, int, error) {
	if len(buf) < 2 {
		return nil, 0, errs.CodeProtocolViolation.Errorf(nil, "address record truncated")
	}
	typ, l := buf[0], int(buf[1])
	if len(buf) < 2+l {
		return nil, 0, errs.CodeProtocolViolation.Errorf(nil, "address record body overruns payload")
	}
	switch typ {
	case addrTypeIPv4:
		if l != 4 {
			return nil, 0, errs.CodeProtocolViolation.Errorf(nil, "IPv4 address record has length %d", l)
		}
	case addrTypeIPv6:
		if l != 16 {
			return nil, 0, errs.CodeProtocolViolation.Errorf(nil, "IPv6 address record has length %d", l)
		}
	default:
		// Unknown address type: skip, not fatal.
		return nil, 2 + l, nil
	}
	return net.IP(append([]byte{}, buf[2:2+l]...)), 2 + l, nil
}

func hostIP(addr net.Addr) net.IP {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return nil
	}
	return net.ParseIP(host)
}

// SendNetinfo emits our NETINFO cell: current time, the address we
// believe the peer is at, and our own advertised addresses.
func SendNetinfo(o *conn.OR, st *State) {
	var theirAddr net.IP
	if sock := o.Socket(); sock != nil {
		theirAddr = hostIP(sock.RemoteAddr())
	}

	var ours []net.IP
	if st.Ours != nil {
		ours = st.Ours.OurAddresses
	}

	body := make([]byte, 4)
	binary.BigEndian.PutUint32(body, uint32(time.Now().Unix()))
	if theirAddr != nil {
		body = append(body, encodeAddr(theirAddr)...)
	} else {
		body = append(body, 0, 0) // zero-length unknown-type record
	}
	body = append(body, byte(len(ours)))
	for _, ip := range ours {
		body = append(body, encodeAddr(ip)...)
	}

	packed := cell.Fixed{CircID: 0, Command: cell.CommandNetinfo}
	copy(packed.Body[:], body)
	o.SendCell(packed.Encode(o.WideCircIDs()))
	st.SentNetinfo = true
}

// ProcessNetinfo implements spec.md §4.6 NETINFO.
func ProcessNetinfo(o *conn.OR, st *State, body []byte) error {
	if len(body) < 4+2+1 {
		o.OnFatal()
		return errs.CodeProtocolViolation.Errorf(nil, "NETINFO too short: %d bytes", len(body))
	}

	tolerance := st.SkewTolerance
	if tolerance == 0 {
		tolerance = 180 * time.Second
	}

	peerTime := time.Unix(int64(binary.BigEndian.Uint32(body[0:4])), 0)
	if !st.SentVersionsAt.IsZero() && time.Since(st.SentVersionsAt) <= tolerance {
		st.ClockSkew = time.Since(peerTime)
		st.ClockSkewRecorded = true
	}

	pos := 4
	theirAddr, n, err := parseAddr(body[pos:])
	if err != nil {
		o.OnFatal()
		return err
	}
	pos += n

	if pos >= len(body) {
		o.OnFatal()
		return errs.CodeProtocolViolation.Errorf(nil, "NETINFO missing address count")
	}
	nAddrs := int(body[pos])
	pos++

	peerAddrs := make([]net.IP, 0, nAddrs)
	for i := 0; i < nAddrs; i++ {
		ip, n, err := parseAddr(body[pos:])
		if err != nil {
			o.OnFatal()
			return err
		}
		pos += n
		if ip != nil {
			peerAddrs = append(peerAddrs, ip)
		}
	}

	if sock := o.Socket(); sock != nil {
		ourView := hostIP(sock.RemoteAddr())
		for _, a := range peerAddrs {
			if ourView != nil && a.Equal(ourView) {
				st.Canonical = true
				break
			}
		}
	}

	if theirAddr != nil && st.Ours != nil {
		for _, a := range st.Ours.OurAddresses {
			if a.Equal(theirAddr) {
				st.IsCanonicalToPeer = true
				break
			}
		}
	}

	st.RecvNetinfo = true

	if !st.SentNetinfo {
		SendNetinfo(o, st)
	}

	o.OnOpen()
	return nil
}

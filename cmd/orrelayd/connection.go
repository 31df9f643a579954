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

package main

import (
	"crypto/tls"
	"net"
	"time"

	"github.com/nabbar/orlink/cell"
	"github.com/nabbar/orlink/conn"
	"github.com/nabbar/orlink/event"
	"github.com/nabbar/orlink/handshake"
	"github.com/nabbar/orlink/tlslayer"
)

// connPump drives one accepted socket from TcpConnecting through the link
// handshake to Open (or Closed on failure), goroutine-per-connection. This
// trades the spec's shared-thread reactor model for a simpler blocking
// loop appropriate for a demo entry point; the reactor itself (gate flags,
// predicates, worker-pool dispatch) is fully implemented in package conn
// and exercised directly by its own test suite.
type connPump struct {
	app *application
	or  *conn.OR
	raw net.Conn
	dir conn.Direction

	reg      *event.Registry
	listener *event.Listener
	fixedLbl event.Label
	varLbl   event.Label

	st *handshake.State
}

func newConnPump(app *application, raw net.Conn, dir conn.Direction) *connPump {
	reg := event.NewRegistry()
	src := event.NewSource(reg, nil)
	labels := conn.Labels{
		TCPConnecting:   reg.Register("tcp_connecting"),
		TLSHandshaking:  reg.Register("tls_handshaking"),
		LinkHandshaking: reg.Register("link_handshaking"),
		Open:            reg.Register("open"),
		Closed:          reg.Register("closed"),
	}
	listener := event.NewListener(-1, nil, nil)
	or := conn.NewOR(src, listener, labels, dir, app.newBucket(), app.ring, app.logFn)

	p := &connPump{
		app:      app,
		or:       or,
		raw:      raw,
		dir:      dir,
		reg:      reg,
		listener: listener,
		fixedLbl: reg.Register("fixed_cell_ev"),
		varLbl:   reg.Register("var_cell_ev"),
		st:       handshake.NewState(dir == conn.Outgoing),
	}
	p.st.WantsToAuthenticate = app.identity != nil
	p.st.Ours = app.identity
	p.st.PreferenceOrder = app.cfg.AuthMethods
	p.st.SkewTolerance = app.cfg.NetinfoSkewTolerance()
	return p
}

// run blocks until the connection reaches Open or Closed.
func (p *connPump) run(tlsCfg *tls.Config) {
	connID := p.or.ID()
	p.app.access.Connection(connID, "accepted")

	p.or.OnSocketSet(p.raw)
	p.or.OnTCPConnected(tlsCfg)

	for p.or.State() == conn.TlsHandshaking {
		p.or.StepTLSHandshake()
		time.Sleep(time.Millisecond)
	}
	if p.or.State() == conn.Closed {
		p.app.access.Connection(connID, "closed_during_tls")
		p.app.active.Delete(connID)
		return
	}

	sess := p.or.TLS()

	// The framer's own Source is separate from the OR's lifecycle Source:
	// fixed/var cell delivery and state-transition delivery are
	// independent concerns (spec.md §3), so each gets its own
	// single-subscriber-per-label Source per event.Source's design.
	fsrc := event.NewSource(p.reg, nil)
	framer := cell.NewFramer(p.or, fsrc, p.fixedLbl, p.varLbl)
	fsrc.Subscribe(p.fixedLbl, p.listener)
	fsrc.Subscribe(p.varLbl, p.listener)

	p.listener.SetCallback(p.fixedLbl, event.Callback{
		Process: func(_ event.Label, d event.Data) {
			f, ok := cell.FixedFromData(d)
			if !ok {
				return
			}
			if err := handshake.Dispatch(p.or, p.st, f.Command, f.Body[:]); err != nil {
				p.app.log().Warning("handshake dispatch failed", "err", err.Error())
			}
		},
	})
	p.listener.SetCallback(p.varLbl, event.Callback{
		Process: func(_ event.Label, d event.Data) {
			v, ok := cell.VariableFromData(d)
			if !ok {
				return
			}
			if err := handshake.Dispatch(p.or, p.st, v.Command, v.Body); err != nil {
				p.app.log().Warning("handshake dispatch failed", "err", err.Error())
			}
		},
	})

	if p.dir == conn.Outgoing {
		handshake.SendVersions(p.or, p.st)
	}

	var pending []byte
	buf := make([]byte, 4096)
	for p.or.State() == conn.LinkHandshaking {
		if out := p.or.DrainOut(); len(out) > 0 {
			if _, status := sess.Write(out); status == tlslayer.Closed || status == tlslayer.IOError {
				p.or.OnFatal()
				break
			}
		}

		n, status := sess.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			rest, _, err := framer.Feed(pending)
			if err != nil {
				p.or.OnFatal()
				break
			}
			pending = rest
			p.listener.Process()
		}
		if status == tlslayer.Closed || status == tlslayer.IOError {
			p.or.OnFatal()
			break
		}
		if n == 0 {
			time.Sleep(time.Millisecond)
		}
	}

	if out := p.or.DrainOut(); len(out) > 0 {
		_, _ = sess.Write(out)
	}

	co := connOutcome{connID: connID, outcome: "closed"}
	if p.or.State() == conn.Open {
		co.outcome = "open"
		co.rsaPeerID, co.hasRSAPeerID, co.ed25519PeerID, _ = p.or.PeerIdentity()
	}
	p.app.recordOutcome(co)
}

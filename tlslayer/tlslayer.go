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

// Package tlslayer drives a crypto/tls connection the way a non-blocking
// event loop needs: Handshake and Read/Write never block on I/O, instead
// reporting WantRead/WantWrite/Done/Closed so the caller can re-register
// loop readiness instead of spawning a thread per connection. Unlike the
// relay's link-layer identity (RSA+Ed25519, verified in package handshake),
// the TLS layer itself is unauthenticated: the relay's link certificate is
// typically self-signed, so this layer never calls VerifyPeerCertificate.
package tlslayer

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"time"
)

// Status reports what a non-blocking step needs before it can make
// progress, mirroring the C channel's Done/WantRead/WantWrite/Close enum.
type Status int

const (
	Done Status = iota
	WantRead
	WantWrite
	Closed
	IOError
)

// Session wraps a *tls.Conn and a raw net.Conn so callers can drive the
// handshake and subsequent reads/writes without blocking. It does this by
// setting a zero read/write deadline per call and classifying the
// resulting net.Error as WantRead/WantWrite the way a real event-driven
// TLS integration would classify EAGAIN.
type Session struct {
	raw  net.Conn
	conn *tls.Conn
}

// NewServer wraps raw as a TLS server session using cfg (typically a
// self-signed relay link certificate, matching Tor's unauthenticated TLS
// layer — identity moves to the link handshake, see package handshake).
func NewServer(raw net.Conn, cfg *tls.Config) *Session {
	return &Session{raw: raw, conn: tls.Server(raw, cfg)}
}

// NewClient wraps raw as a TLS client session. InsecureSkipVerify is
// expected to be set on cfg by the caller for the same reason NewServer's
// doc comment gives.
func NewClient(raw net.Conn, cfg *tls.Config) *Session {
	return &Session{raw: raw, conn: tls.Client(raw, cfg)}
}

// nonBlocking arms an immediate deadline so the following raw I/O call
// returns instantly with a timeout error instead of blocking, then clears
// the deadline again so it cannot leak into unrelated later calls.
func (s *Session) nonBlocking(fn func() error) error {
	_ = s.raw.SetDeadline(time.Now())
	err := fn()
	_ = s.raw.SetDeadline(time.Time{})
	return err
}

// HandshakeStep attempts to advance the TLS handshake without blocking. A
// timeout here is ambiguous between wanting to read or write more, so it
// is reported as WantRead; crypto/tls's own full-duplex buffering means
// the next loop iteration's writable or readable event both lead back
// here regardless.
func (s *Session) HandshakeStep() Status {
	err := s.nonBlocking(func() error { return s.conn.HandshakeContext(context.Background()) })
	return classify(err, WantRead)
}

// Read attempts to fill buf without blocking, returning however many
// bytes it managed along with the status of the attempt. A short read
// with status Done is valid and expected.
func (s *Session) Read(buf []byte) (int, Status) {
	var n int
	err := s.nonBlocking(func() (e error) {
		n, e = s.conn.Read(buf)
		return e
	})
	if errors.Is(err, io.EOF) {
		return n, Closed
	}
	return n, classify(err, WantRead)
}

// Write attempts to send buf without blocking.
func (s *Session) Write(buf []byte) (int, Status) {
	var n int
	err := s.nonBlocking(func() (e error) {
		n, e = s.conn.Write(buf)
		return e
	})
	return n, classify(err, WantWrite)
}

// DrainPending re-reads into buf as long as Read returns data without
// blocking, appending each chunk's length to the returned total. crypto/tls
// exposes no direct "bytes already buffered" counter, so this stands in
// for the C layer's explicit pending() query: a zero-deadline Read loop
// that stops at the first WantRead/WantWrite/error, exactly the cases a
// caller must stop draining and go back to the event loop for. Callers
// use this after a handshake or a Read returns Done, since an entire
// second TLS record can already be sitting in crypto/tls's internal
// buffer with nothing left to read from the socket.
func (s *Session) DrainPending(buf []byte, sink func(chunk []byte)) {
	for {
		n, status := s.Read(buf)
		if n > 0 && sink != nil {
			sink(buf[:n])
		}
		if status != Done || n == 0 {
			return
		}
	}
}

// ConnectionState exposes the negotiated TLS state (peer certificate
// chain, most importantly) for the link handshake's CERTS processor to
// cross-check against the X.509 certs it parses.
func (s *Session) ConnectionState() tls.ConnectionState {
	return s.conn.ConnectionState()
}

func (s *Session) Close() error {
	return s.conn.Close()
}

func classify(err error, onTimeout Status) Status {
	if err == nil {
		return Done
	}
	if errors.Is(err, io.EOF) {
		return Closed
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return onTimeout
	}
	return IOError
}

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
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	libatm "github.com/nabbar/orlink/atomic"
	"github.com/nabbar/orlink/bucket"
	"github.com/nabbar/orlink/conn"
	"github.com/nabbar/orlink/config"
	"github.com/nabbar/orlink/handshake"
	"github.com/nabbar/orlink/logging"
	"github.com/nabbar/orlink/metrics"
	"github.com/nabbar/orlink/throughput"
	"github.com/nabbar/orlink/workqueue"
)

// application bundles everything a connPump and the accept loop share: the
// loaded knobs, our own signing identity, the shared throughput ring (one
// per worker thread, per spec.md §4.3 — simplified here to one ring for
// the whole process since this entry point runs a goroutine-per-connection
// model rather than N fixed worker threads), the worker pool, and the two
// logging sinks.
type application struct {
	cfg      config.Knobs
	identity *handshake.Identity

	ring    *throughput.Ring
	metrics *metrics.Registry
	access  *logging.AccessLog
	pool    *workqueue.Pool

	// active tracks the live connPump for every connection currently
	// accepted, keyed by conn.OR.ID(). Read by shutdown() to log how many
	// connections are still draining; written from the accept loop and
	// from connPump.run's own exit path, both of which may run
	// concurrently with a future admin endpoint walking it with Range.
	active libatm.MapTyped[string, *connPump]

	logFn logging.FuncLog
}

func newApplication(cfg config.Knobs) (*application, error) {
	if cfg.NumEventLoops < 1 {
		cfg.NumEventLoops = 1
	}

	identity, err := ephemeralIdentity(cfg.ListenAddr)
	if err != nil {
		return nil, err
	}

	logFn := logging.GetDefault
	a := &application{
		cfg:      cfg,
		identity: identity,
		ring:     throughput.NewRing(time.Now()),
		metrics:  metrics.New(),
		access:   logging.NewAccessLog(nil),
		active:   libatm.NewMapTyped[string, *connPump](),
		logFn:    logFn,
	}

	// The worker pool takes the access-log write and metrics update off a
	// connection's own goroutine: connPump.recordOutcome submits a
	// WorkItem per terminal transition instead of writing inline, and
	// this loop drains loop 0's reply queue the way a real event loop's
	// main thread would. cmd/orrelayd is the one place in this module
	// that actually starts the pool end to end; package workqueue's own
	// tests exercise Submit/Drain in isolation.
	a.pool = workqueue.New(cfg.NumEventLoops, a, logFn)
	a.pool.Start()
	go a.drainReplies()

	return a, nil
}

// drainReplies runs as the stand-in "main loop" thread, waking whenever a
// worker finishes a submitted outcome-recording WorkItem.
func (a *application) drainReplies() {
	rq := a.pool.Reply(0)
	for range rq.Wake() {
		rq.Drain()
	}
}

type connOutcome struct {
	connID  string
	outcome string

	// peer identity, populated only when the connection reached Open —
	// emitted upward into the access log alongside the outcome so the
	// audit trail carries who the relay actually talked to, not just that
	// a connection happened.
	hasRSAPeerID bool
	rsaPeerID    [20]byte
	ed25519PeerID []byte
}

// recordOutcome submits the terminal access-log write and metrics update
// for one connection onto worker 0, replying back to loop 0 (drainReplies)
// rather than touching a.access/a.metrics directly from the connection's
// own goroutine.
func (a *application) recordOutcome(co connOutcome) {
	a.active.Delete(co.connID)
	_ = a.pool.Submit(0, 0, workqueue.WorkItem{
		Priority: workqueue.Medium,
		Arg:      co,
		Fn: func(state interface{}, arg interface{}) (interface{}, workqueue.ReplyStatus) {
			app := state.(*application)
			co := arg.(connOutcome)

			fields := make([]zap.Field, 0, 2)
			if co.hasRSAPeerID {
				fields = append(fields, zap.Binary("peer_rsa_id", co.rsaPeerID[:]))
			}
			if len(co.ed25519PeerID) > 0 {
				fields = append(fields, zap.Binary("peer_ed25519_id", co.ed25519PeerID))
			}

			app.access.Connection(co.connID, co.outcome, fields...)
			app.metrics.HandshakeCompleted(co.outcome)
			return nil, workqueue.ReplyOK
		},
	})
}

// activeConnections returns the number of connections currently tracked as
// live, for the shutdown log line below.
func (a *application) activeConnections() int {
	n := 0
	a.active.Range(func(_ string, _ *connPump) bool {
		n++
		return true
	})
	return n
}

func (a *application) log() logging.Logger {
	return a.logFn()
}

func (a *application) newBucket() *bucket.RW {
	return bucket.NewRW(a.cfg.ReadRateBytes, a.cfg.ReadBurstBytes, a.cfg.WriteRateBytes, a.cfg.WriteBurstBytes, time.Now())
}

func (a *application) serverTLSConfig() (*tls.Config, error) {
	if a.cfg.TLSCertFile == "" || a.cfg.TLSKeyFile == "" {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(a.cfg.TLSCertFile, a.cfg.TLSKeyFile)
	if err != nil {
		return nil, fmt.Errorf("app: loading link TLS keypair: %w", err)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, InsecureSkipVerify: true}, nil
}

// serve accepts connections on cfg.ListenAddr until the listener is closed,
// spawning a connPump per accepted socket.
func (a *application) serve(ln net.Listener) error {
	tlsCfg, err := a.serverTLSConfig()
	if err != nil {
		return err
	}
	for {
		raw, err := ln.Accept()
		if err != nil {
			return err
		}
		p := newConnPump(a, raw, conn.Incoming)
		a.active.Store(p.or.ID(), p)
		go p.run(tlsCfg)
	}
}

func (a *application) shutdown() {
	a.log().Info("shutting down", "active_connections", a.activeConnections())
	a.pool.Shutdown()
	_ = a.access.Sync()
}

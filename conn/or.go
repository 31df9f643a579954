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

package conn

import (
	"crypto/tls"
	"crypto/x509"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/nabbar/orlink/bucket"
	"github.com/nabbar/orlink/event"
	"github.com/nabbar/orlink/logging"
	"github.com/nabbar/orlink/throughput"
	"github.com/nabbar/orlink/tlslayer"
)

// State is the OR connection's lifecycle state, per spec.md §3/§4.5.
type State int

const (
	Uninitialized State = iota
	NoSocket
	TcpConnecting
	ProxyHandshaking
	TlsHandshaking
	LinkHandshaking
	Open
	Closed
)

func (s State) String() string {
	switch s {
	case NoSocket:
		return "no_socket"
	case TcpConnecting:
		return "tcp_connecting"
	case ProxyHandshaking:
		return "proxy_handshaking"
	case TlsHandshaking:
		return "tls_handshaking"
	case LinkHandshaking:
		return "link_handshaking"
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return "uninitialized"
	}
}

// Direction records which side initiated the TCP connection.
type Direction int

const (
	Incoming Direction = iota
	Outgoing
)

// maxCellsPerRead caps the read-credit suggestion at 1024 cells; the cell
// wire size depends on wide_circ_ids, so ReadSuggestion takes it from its
// caller instead of hardcoding one width here.
const maxCellsPerRead = 1024

// OR extends Safe with a TLS session, a token-bucket pair, the link
// handshake state enum and direction, and the six gate flags from
// spec.md §3/§4.5.
type OR struct {
	*Safe

	id string

	tls     *tlslayer.Session
	ownCert *x509.Certificate

	bucket *bucket.RW
	ring   *throughput.Ring

	state     State
	direction Direction

	linkProtocol  int
	wideCircIDs   bool
	waitingLink   bool
	authenticated bool

	peerRSADigest  [20]byte
	peerHasRSA     bool
	peerEd25519ID  []byte
	peerHasEd25519 bool

	torReadWanted    bool
	torWriteWanted   bool
	tlsReadWanted    bool
	tlsWriteWanted   bool
	bucketReadAllow  bool
	bucketWriteAllow bool

	openLabel           event.Label
	closedLabel         event.Label
	tlsHandshakingLabel event.Label
	linkHandshakingLabel event.Label
	tcpConnectingLabel  event.Label

	log logging.FuncLog
}

// Labels bundles the event labels an OR connection publishes, registered
// once by the caller (typically the worker pool's connection factory) and
// handed to every OR connection it constructs.
type Labels struct {
	TCPConnecting   event.Label
	TLSHandshaking  event.Label
	LinkHandshaking event.Label
	Open            event.Label
	Closed          event.Label
}

// NewOR constructs an OR connection in state NoSocket, direction dir,
// sharing ring among every connection owned by the same worker thread.
func NewOR(src *event.Source, listener *event.Listener, labels Labels, dir Direction, rw *bucket.RW, ring *throughput.Ring, log logging.FuncLog) *OR {
	if log == nil {
		log = logging.GetDefault
	}
	o := &OR{
		Safe:                NewSafe(src, listener, labels.Closed, log),
		id:                  uuid.NewString(),
		state:               NoSocket,
		direction:           dir,
		bucket:              rw,
		ring:                ring,
		openLabel:           labels.Open,
		closedLabel:         labels.Closed,
		tlsHandshakingLabel: labels.TLSHandshaking,
		linkHandshakingLabel: labels.LinkHandshaking,
		tcpConnectingLabel:  labels.TCPConnecting,
		log:                 log,
	}
	o.SetPredicates(o.isReadWantedPredicate, o.isWriteWantedPredicate)
	return o
}

// isReadWantedPredicate/isWriteWantedPredicate implement the invariant
// `is_read_wanted = tls_read_wanted ∨ (tor_read_wanted ∧ bucket_read_allowed)`.
// Called only from refreshEventsLocked, which already holds the lock.
func (o *OR) isReadWantedPredicate() bool {
	return o.tlsReadWanted || (o.torReadWanted && o.bucketReadAllow)
}

func (o *OR) isWriteWantedPredicate() bool {
	return o.tlsWriteWanted || (o.torWriteWanted && o.bucketWriteAllow)
}

// ID returns the connection's identifier, a v4 UUID minted once at
// construction and stable for the connection's whole lifetime. Used to
// correlate access log lines and metrics with a single connection.
func (o *OR) ID() string {
	return o.id
}

// State returns the connection's current state.
func (o *OR) State() State {
	o.Lock()
	defer o.Unlock()
	return o.state
}

// LinkProtocol and WideCircIDs implement cell.LinkState so a Framer can
// be bound directly to an *OR.
func (o *OR) LinkProtocol() int {
	o.Lock()
	defer o.Unlock()
	return o.linkProtocol
}

func (o *OR) WideCircIDs() bool {
	o.Lock()
	defer o.Unlock()
	return o.wideCircIDs
}

func (o *OR) Authenticated() bool {
	o.Lock()
	defer o.Unlock()
	return o.authenticated
}

// TLS returns the connection's TLS session once OnTCPConnected has
// constructed one, or nil beforehand. Exposed so a connection pump
// outside this package (cmd/orrelayd) can perform the actual
// Read/Write/DrainPending I/O that StepTLSHandshake only advances the
// handshake for; SendCell/DrainOut stay the only way to stage/flush the
// link-layer cell bytes that ride over this session.
func (o *OR) TLS() *tlslayer.Session {
	o.Lock()
	defer o.Unlock()
	return o.tls
}

// TLSPeerCertificate returns the leaf certificate the remote side
// presented during the TLS handshake, or nil if no session is active or
// the peer presented none (used by the link-handshake CERTS processor
// to bind the link cert to the negotiated TLS key).
func (o *OR) TLSPeerCertificate() *x509.Certificate {
	o.Lock()
	defer o.Unlock()
	return o.tlsPeerCertificateLocked()
}

func (o *OR) tlsPeerCertificateLocked() *x509.Certificate {
	if o.tls == nil {
		return nil
	}
	peers := o.tls.ConnectionState().PeerCertificates
	if len(peers) == 0 {
		return nil
	}
	return peers[0]
}

// certsData is the link_handshaking event payload: the connection's own
// X.509 link certificate and the peer's, as negotiated by the now-complete
// TLS handshake. Ownership transfers to whatever Listener callback
// receives it, per spec.md §6; since *x509.Certificate carries no
// closeable resource, Close is a no-op.
type certsData struct {
	Own  *x509.Certificate
	Peer *x509.Certificate
}

func (certsData) Close() error { return nil }

// CertsFromData unwraps a link_handshaking payload published by an OR
// connection, for a listener callback that needs the negotiated
// certificates rather than just the label. ok is false for any Data not
// produced by this package.
func CertsFromData(d event.Data) (own, peer *x509.Certificate, ok bool) {
	cd, ok := d.(certsData)
	if !ok {
		return nil, nil, false
	}
	return cd.Own, cd.Peer, true
}

// ownCertFromConfig recovers the parsed leaf certificate this side offered
// during the TLS handshake, for publication alongside the peer's in the
// link_handshaking event. cfg.Certificates[0].Leaf is already populated by
// crypto/tls in recent Go versions, but parsing the raw DER directly here
// keeps this independent of that caching behavior.
func ownCertFromConfig(cfg *tls.Config) *x509.Certificate {
	if cfg == nil || len(cfg.Certificates) == 0 || len(cfg.Certificates[0].Certificate) == 0 {
		return nil
	}
	cert, err := x509.ParseCertificate(cfg.Certificates[0].Certificate[0])
	if err != nil {
		return nil
	}
	return cert
}

// setStateLocked enforces "once Closed, no transition is ever permitted".
// It only records the state; callers recompute the gate flags' loop
// registration themselves.
func (o *OR) setStateLocked(next State) bool {
	if o.state == Closed {
		return false
	}
	o.state = next
	return true
}

// closeLocked moves the connection to Closed before running Safe's
// teardown, so every close path ends in the terminal state.
func (o *OR) closeLocked() error {
	o.state = Closed
	return o.Safe.closeLocked()
}

// OnSocketSet drives NoSocket -> TcpConnecting.
func (o *OR) OnSocketSet(sock net.Conn) {
	o.Lock()
	defer o.Unlock()

	if o.state != NoSocket {
		return
	}
	_ = o.setSocketLocked(sock)
	if !o.setStateLocked(TcpConnecting) {
		return
	}
	o.tlsWriteWanted = true
	o.tlsReadWanted = false
	o.refreshEventsLocked()

	o.src.Publish(o.tcpConnectingLabel, event.Signal())
}

// OnTCPConnected drives TcpConnecting -> TlsHandshaking once
// getsockopt(SO_ERROR) == 0 (modeled here as the caller observing the
// socket became writable with no error).
func (o *OR) OnTCPConnected(cfg *tls.Config) {
	o.Lock()
	defer o.Unlock()

	if o.state != TcpConnecting {
		return
	}
	if !o.setStateLocked(TlsHandshaking) {
		return
	}

	if o.direction == Incoming {
		o.tls = tlslayer.NewServer(o.socket, cfg)
	} else {
		o.tls = tlslayer.NewClient(o.socket, cfg)
	}
	o.ownCert = ownCertFromConfig(cfg)

	o.tlsReadWanted = true
	o.tlsWriteWanted = true
	o.refreshEventsLocked()

	o.src.Publish(o.tlsHandshakingLabel, event.Signal())
}

// OnTCPConnectFailed drives TcpConnecting -> Closed on a non-EINPROGRESS
// SO_ERROR.
func (o *OR) OnTCPConnectFailed() {
	o.Lock()
	defer o.Unlock()
	o.closeLocked()
}

// StepTLSHandshake advances the TLS handshake by one non-blocking step,
// applying the TlsHandshaking row of spec.md §4.5's transition table.
func (o *OR) StepTLSHandshake() {
	o.Lock()
	defer o.Unlock()

	if o.state != TlsHandshaking {
		return
	}

	switch o.tls.HandshakeStep() {
	case tlslayer.Done:
		if !o.setStateLocked(LinkHandshaking) {
			return
		}
		o.torReadWanted = true
		o.tlsReadWanted = false
		o.tlsWriteWanted = false
		o.refreshEventsLocked()
		o.src.Publish(o.linkHandshakingLabel, certsData{Own: o.ownCert, Peer: o.tlsPeerCertificateLocked()})

	case tlslayer.WantRead:
		o.tlsReadWanted = true
		o.tlsWriteWanted = false
		o.refreshEventsLocked()

	case tlslayer.WantWrite:
		o.tlsWriteWanted = true
		o.tlsReadWanted = false
		o.refreshEventsLocked()

	default:
		o.closeLocked()
	}
}

// OnLinkProtocolVersion is invoked by the main thread once VERSIONS
// negotiation settles on v, clearing waiting_for_link_protocol and
// forcing a synchronous re-invocation of the framer to drain anything
// buffered during the negotiation gap (see SPEC_FULL.md §5).
func (o *OR) OnLinkProtocolVersion(v int, drain func()) {
	o.Lock()
	if o.state != LinkHandshaking {
		o.Unlock()
		return
	}
	o.linkProtocol = v
	o.wideCircIDs = v >= 4
	o.waitingLink = false
	o.Unlock()

	if drain != nil {
		drain()
	}
}

// OnOpen drives LinkHandshaking -> Open.
func (o *OR) OnOpen() {
	o.Lock()
	defer o.Unlock()

	if o.state != LinkHandshaking {
		return
	}
	if !o.setStateLocked(Open) {
		return
	}
	o.torReadWanted = true
	o.torWriteWanted = false
	o.refreshEventsLocked()

	o.src.Publish(o.openLabel, event.Signal())
}

// OnFatal drives any non-Closed state to Closed on an internal fatal
// error or an upstream "closed" publication.
func (o *OR) OnFatal() {
	o.Lock()
	defer o.Unlock()
	o.closeLocked()
	if o.tls != nil {
		_ = o.tls.Close()
	}
}

// refillBucket refills the read/write token buckets from the current
// instant and recomputes the two bucket-allowed gate flags.
func (o *OR) refillBucket(now time.Time) {
	if o.bucket == nil {
		return
	}
	o.bucket.RefillBoth(now)
	o.bucketReadAllow = o.bucket.Read.Allowed()
	o.bucketWriteAllow = o.bucket.Write.Allowed()
}

// SendCell appends an already-encoded cell to outbuf and arms
// tor_write_wanted, for use by the link-handshake processors (package
// handshake) which build their own cell.Fixed/cell.Variable wire bytes.
func (o *OR) SendCell(wire []byte) {
	o.Lock()
	defer o.Unlock()

	o.outbuf = append(o.outbuf, wire...)
	o.torWriteWanted = true
	o.refreshEventsLocked()
}

// SetAuthenticated records the peer's verified identity: the RSA identity
// digest (SHA-1 of DER-encoded SPKI), the Ed25519 signing key if the peer
// presented one, or both. authenticated may transition false->true exactly
// once; later calls are no-ops, matching the invariant on
// handshake.State. At least one of rsaDigest/ed must be non-nil for the
// call to have any effect beyond flipping authenticated, per invariant 3
// (authenticated=true implies a recorded peer id).
func (o *OR) SetAuthenticated(rsaDigest *[20]byte, ed []byte) {
	o.Lock()
	defer o.Unlock()
	if o.authenticated {
		return
	}
	o.authenticated = true
	if rsaDigest != nil {
		o.peerRSADigest = *rsaDigest
		o.peerHasRSA = true
	}
	if len(ed) > 0 {
		o.peerEd25519ID = ed
		o.peerHasEd25519 = true
	}
}

// PeerIdentity returns the identity CERTS/AUTHENTICATE installed on this
// connection once Authenticated() is true: the RSA digest and/or the
// Ed25519 signing key, each with its own presence flag since a connection
// may authenticate with only one of the two. Called by the connection
// pump to emit the peer identity upward into the access log once the
// handshake completes.
func (o *OR) PeerIdentity() (rsaDigest [20]byte, hasRSA bool, ed25519ID []byte, hasEd25519 bool) {
	o.Lock()
	defer o.Unlock()
	return o.peerRSADigest, o.peerHasRSA, o.peerEd25519ID, o.peerHasEd25519
}

// SetWaitingForLinkProtocol is used by the framer integration to halt
// cell dispatch between the first inbound VERSIONS and the main-thread
// dispatch that assigns the negotiated version.
func (o *OR) SetWaitingForLinkProtocol(waiting bool) {
	o.Lock()
	defer o.Unlock()
	o.waitingLink = waiting
}

func (o *OR) WaitingForLinkProtocol() bool {
	o.Lock()
	defer o.Unlock()
	return o.waitingLink
}

// ReadSuggestion implements spec.md §4.5.1 step 2: the number of bytes
// this read should ask TLS for, bounded by both a fixed cap in units of
// cell_wire_size and the bucket's current read credit (unbounded before
// Open, since pre-handshake traffic is not yet rate-limited).
func (o *OR) ReadSuggestion(cellWireSize int) int {
	o.Lock()
	defer o.Unlock()

	if o.state != Open {
		return maxCellsPerRead * cellWireSize
	}
	ceiling := maxCellsPerRead * cellWireSize
	credit := int(o.bucket.Read.Credit())
	if credit < ceiling {
		return credit
	}
	return ceiling
}

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

// Package handshake implements the six link-handshake cell processors an
// OR connection dispatches to while in state LinkHandshaking: VERSIONS,
// CERTS, AUTH_CHALLENGE, AUTHENTICATE, NETINFO and PADDING_NEGOTIATE. Each
// is a Process(*conn.OR, *State, body []byte) error grounded on
// channeltls.c's per-command handlers.
package handshake

import (
	"crypto/ed25519"
	"crypto/x509"
	"time"
)

// AuthMethod is a link-authentication method code, preference-ordered.
type AuthMethod uint16

const (
	AuthRSASHA256TLSSecret  AuthMethod = 1
	AuthRSASHA256RFC5705    AuthMethod = 2
	AuthEd25519SHA256RFC5705 AuthMethod = 3
)

// preferenceOrder is consulted by AUTH_CHALLENGE: best method wins.
var preferenceOrder = []AuthMethod{
	AuthEd25519SHA256RFC5705,
	AuthRSASHA256RFC5705,
	AuthRSASHA256TLSSecret,
}

// CertSet holds every certificate type CERTS may carry, each present at
// most once (spec.md §4.6).
type CertSet struct {
	RSAIDLink *x509.Certificate
	RSAIDID   *x509.Certificate
	RSAIDAuth *x509.Certificate

	EdIDSign   ed25519.PublicKey
	EdSignLink ed25519.PublicKey
	EdSignAuth ed25519.PublicKey

	RSAIDEdIDCrossCert []byte
}

// PeerIdentity is what a successful CERTS+AUTHENTICATE exchange installs
// on the connection.
type PeerIdentity struct {
	RSADigest      [20]byte // SHA-1 of DER-encoded SPKI
	HasRSADigest   bool
	Ed25519ID      ed25519.PublicKey
	HasEd25519ID   bool
}

// State is the per-connection handshake record: spec.md §3's "Handshake
// state". It tracks which cells each side has sent/received, the
// collected certs, and, once authenticated, the peer's identity.
type State struct {
	Initiator bool

	SentVersions, RecvVersions         bool
	SentCerts, RecvCerts               bool
	SentAuthChallenge, RecvAuthChallenge bool
	SentAuthenticate, RecvAuthenticate bool
	SentNetinfo, RecvNetinfo           bool

	Certs CertSet

	Authenticated bool
	Peer          PeerIdentity

	// SentVersionsAt anchors the 180s clock-skew acceptance window NETINFO
	// checks its received timestamp against.
	SentVersionsAt time.Time

	// ChosenAuthMethod is set by AUTH_CHALLENGE processing when we decide
	// to authenticate, and consumed by the AUTHENTICATE cell we send.
	ChosenAuthMethod AuthMethod
	WantsToAuthenticate bool

	// PreferenceOrder overrides the package default auth-method preference
	// when set, letting config.Knobs.AuthMethods drive AUTH_CHALLENGE
	// selection without this package importing config.
	PreferenceOrder []AuthMethod

	// Padding receives PADDING_NEGOTIATE bounds. Defaults to a no-op.
	Padding PaddingScheduler

	// Ours is our own signing identity, used to produce CERTS/AUTHENTICATE.
	// Nil on a connection that never authenticates.
	Ours *Identity

	// AuthChallenge is the 32-byte nonce received in AUTH_CHALLENGE, kept
	// to bind the AUTHENTICATE signature to this handshake instance.
	AuthChallenge [32]byte

	// Canonical is set once NETINFO shows the peer recognizes our socket
	// address among its own. IsCanonicalToPeer is the symmetric flag: the
	// peer's claimed address for us matches one of our advertised ones.
	Canonical         bool
	IsCanonicalToPeer bool

	// ClockSkew is our local clock minus the peer's NETINFO timestamp,
	// recorded only when within the 180s acceptance window of
	// SentVersionsAt.
	ClockSkew         time.Duration
	ClockSkewRecorded bool

	// SkewTolerance overrides the 180s default acceptance window when set
	// (zero means use the default), letting config.Knobs drive it without
	// this package importing config.
	SkewTolerance time.Duration
}

// NewState creates a fresh per-connection handshake record.
func NewState(initiator bool) *State {
	return &State{Initiator: initiator, Padding: NoopPaddingScheduler}
}

func (s *State) markAuthenticated(rsaDigest *[20]byte, ed ed25519.PublicKey) {
	if s.Authenticated {
		return
	}
	s.Authenticated = true
	if rsaDigest != nil {
		s.Peer.RSADigest = *rsaDigest
		s.Peer.HasRSADigest = true
	}
	if ed != nil {
		s.Peer.Ed25519ID = ed
		s.Peer.HasEd25519ID = true
	}
}

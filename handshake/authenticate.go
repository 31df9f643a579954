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
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/binary"

	"github.com/nabbar/orlink/cell"
	"github.com/nabbar/orlink/conn"
	"github.com/nabbar/orlink/errs"
)

const (
	authNonceLen = 8
	authFixedLen = 32
	authMinBody  = authFixedLen + authNonceLen
)

// authFixedPortion binds the signature to this handshake instance: the
// challenge we were issued plus both sides' RSA identity digests in
// (initiator, responder) canonical order, so either side recomputes the
// same value.
func authFixedPortion(challenge [32]byte, initiatorDigest, responderDigest [20]byte) [32]byte {
	buf := make([]byte, 0, 32+20+20)
	buf = append(buf, challenge[:]...)
	buf = append(buf, initiatorDigest[:]...)
	buf = append(buf, responderDigest[:]...)
	return sha256.Sum256(buf)
}

// SendAuthenticate is called by the initiator once it has chosen an auth
// method from AUTH_CHALLENGE.
func SendAuthenticate(o *conn.OR, st *State) {
	if st.Ours == nil || st.Ours.RSAAuthCert == nil {
		return
	}

	var ourDigest, peerDigest [20]byte
	if st.Ours.Certs.RSAIDID != nil {
		ourDigest = rsaDigestOf(st.Ours.Certs.RSAIDID)
	}
	if st.Certs.RSAIDID != nil {
		peerDigest = rsaDigestOf(st.Certs.RSAIDID)
	}
	fixed := authFixedPortion(st.AuthChallenge, ourDigest, peerDigest)

	var nonce [authNonceLen]byte
	_, _ = rand.Read(nonce[:])

	digest := sha256.Sum256(append(append([]byte{}, fixed[:]...), nonce[:]...))

	var sig []byte
	var err error
	switch st.ChosenAuthMethod {
	case AuthEd25519SHA256RFC5705:
		if len(st.Ours.EdAuthKey) == 0 {
			return
		}
		sig = ed25519.Sign(st.Ours.EdAuthKey, append(append([]byte{}, fixed[:]...), nonce[:]...))
	default:
		if st.Ours.RSAAuthKey == nil {
			return
		}
		sig, err = rsa.SignPKCS1v15(rand.Reader, st.Ours.RSAAuthKey, crypto.SHA256, digest[:])
		if err != nil {
			return
		}
	}

	body := make([]byte, 0, authMinBody+len(sig))
	body = append(body, fixed[:]...)
	body = append(body, nonce[:]...)
	body = append(body, sig...)

	var hdr [4]byte
	binary.BigEndian.PutUint16(hdr[0:2], uint16(st.ChosenAuthMethod))
	binary.BigEndian.PutUint16(hdr[2:4], uint16(len(body)))

	wire := cell.Variable{CircID: 0, Command: cell.CommandAuthenticate, Body: append(hdr[:], body...)}.Encode(o.WideCircIDs())
	o.SendCell(wire)
	st.SentAuthenticate = true
}

// ProcessAuthenticate implements spec.md §4.6 AUTHENTICATE, run on the
// responder upon receiving the initiator's cell.
func ProcessAuthenticate(o *conn.OR, st *State, payload []byte) error {
	if st.RecvAuthenticate {
		o.OnFatal()
		return errs.CodeProtocolViolation.Error(nil)
	}
	if len(payload) < 4 {
		o.OnFatal()
		return errs.CodeProtocolViolation.Error(nil)
	}

	method := AuthMethod(binary.BigEndian.Uint16(payload[0:2]))
	bodyLen := int(binary.BigEndian.Uint16(payload[2:4]))
	if 4+bodyLen > len(payload) {
		o.OnFatal()
		return errs.CodeProtocolViolation.Errorf(nil, "AUTHENTICATE length field overruns cell")
	}
	body := payload[4 : 4+bodyLen]
	if len(body) < authMinBody {
		o.OnFatal()
		return errs.CodeProtocolViolation.Errorf(nil, "AUTHENTICATE body too short: %d bytes", len(body))
	}

	var initiatorDigest, responderDigest [20]byte
	if st.Certs.RSAIDID != nil {
		initiatorDigest = rsaDigestOf(st.Certs.RSAIDID)
	}
	if st.Ours != nil && st.Ours.Certs.RSAIDID != nil {
		responderDigest = rsaDigestOf(st.Ours.Certs.RSAIDID)
	}
	wantFixed := authFixedPortion(st.AuthChallenge, initiatorDigest, responderDigest)

	var gotFixed [32]byte
	copy(gotFixed[:], body[:authFixedLen])
	if gotFixed != wantFixed {
		o.OnFatal()
		return errs.CodeAuthFailure.Errorf(nil, "AUTHENTICATE fixed portion mismatch")
	}

	nonce := body[authFixedLen : authFixedLen+authNonceLen]
	sig := body[authMinBody:]
	digest := sha256.Sum256(append(append([]byte{}, gotFixed[:]...), nonce...))

	var ok bool
	switch method {
	case AuthEd25519SHA256RFC5705:
		if st.Certs.EdSignAuth == nil {
			o.OnFatal()
			return errs.CodeAuthFailure.Errorf(nil, "Ed25519 AUTHENTICATE with no sign_auth cert on file")
		}
		ok = ed25519.Verify(st.Certs.EdSignAuth, append(append([]byte{}, gotFixed[:]...), nonce...), sig)
	case AuthRSASHA256RFC5705, AuthRSASHA256TLSSecret:
		if st.Certs.EdIDSign != nil {
			o.OnFatal()
			return errs.CodeAuthFailure.Errorf(nil, "RSA AUTHENTICATE method used alongside an Ed25519 identity")
		}
		pub, okType := authCertPublicKey(st.Certs.RSAIDAuth)
		if !okType {
			o.OnFatal()
			return errs.CodeAuthFailure.Errorf(nil, "no usable RSA auth cert")
		}
		ok = rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig) == nil
	default:
		o.OnFatal()
		return errs.CodeAuthFailure.Errorf(nil, "unsupported auth method %d", method)
	}

	if !ok {
		o.OnFatal()
		return errs.CodeAuthFailure.Errorf(nil, "AUTHENTICATE signature verification failed")
	}

	st.RecvAuthenticate = true

	var digestPtr *[20]byte
	if st.Certs.RSAIDID != nil {
		d := initiatorDigest
		digestPtr = &d
	}
	st.markAuthenticated(digestPtr, st.Certs.EdIDSign)
	o.SetAuthenticated(digestPtr, st.Certs.EdIDSign)
	return nil
}

func authCertPublicKey(c *x509.Certificate) (*rsa.PublicKey, bool) {
	if c == nil {
		return nil, false
	}
	pub, ok := c.PublicKey.(*rsa.PublicKey)
	return pub, ok
}

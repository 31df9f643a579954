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
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"encoding/binary"
	"time"

	"github.com/nabbar/orlink/cell"
	"github.com/nabbar/orlink/conn"
	"github.com/nabbar/orlink/errs"
)

// Cert type codes, spec.md §4.6's CERTS table.
const (
	certTypeRSAIDLink    = 1
	certTypeRSAIDID      = 2
	certTypeRSAIDAuth    = 3
	certTypeEdIDSign     = 4
	certTypeEdSignLink   = 5
	certTypeEdSignAuth   = 6
	certTypeRSAIDEdCross = 7
)

// signedKey is the "signed-key" encoding used by the three Ed25519 cert
// types: a 32-byte public key, a 4-byte big-endian Unix expiry, and a
// trailing 64-byte Ed25519 signature over the first 36 bytes.
type signedKey struct {
	Key       ed25519.PublicKey
	Expiry    time.Time
	Signature []byte
}

func parseSignedKey(body []byte) (signedKey, error) {
	if len(body) != 32+4+64 {
		return signedKey{}, errs.CodeProtocolViolation.Errorf(nil, "signed-key blob has length %d, want 100", len(body))
	}
	sk := signedKey{
		Key:       ed25519.PublicKey(body[0:32]),
		Expiry:    time.Unix(int64(binary.BigEndian.Uint32(body[32:36])), 0),
		Signature: body[36:100],
	}
	return sk, nil
}

func (sk signedKey) verifiedBy(signer ed25519.PublicKey, now time.Time) bool {
	if now.After(sk.Expiry) {
		return false
	}
	var expBuf [4]byte
	binary.BigEndian.PutUint32(expBuf[:], uint32(sk.Expiry.Unix()))
	msg := append(append([]byte{}, []byte(sk.Key)...), expBuf[:]...)
	return ed25519.Verify(signer, msg, sk.Signature)
}

// parsedCert is one (type, length, body) triple off the wire.
type parsedCert struct {
	Type uint8
	Body []byte
}

func parseCertsPayload(body []byte) ([]parsedCert, error) {
	if len(body) == 0 {
		return nil, errs.CodeProtocolViolation.Error(nil)
	}
	n := int(body[0])
	pos := 1
	out := make([]parsedCert, 0, n)
	for i := 0; i < n; i++ {
		if pos+3 > len(body) {
			return nil, errs.CodeProtocolViolation.Errorf(nil, "CERTS truncated at entry %d", i)
		}
		typ := body[pos]
		l := int(binary.BigEndian.Uint16(body[pos+1 : pos+3]))
		pos += 3
		if pos+l > len(body) {
			return nil, errs.CodeProtocolViolation.Errorf(nil, "CERTS entry %d body overruns payload", i)
		}
		out = append(out, parsedCert{Type: typ, Body: append([]byte{}, body[pos:pos+l]...)})
		pos += l
	}
	return out, nil
}

// SendCerts emits our own CERTS cell. The certificate bytes themselves
// are supplied by the caller's configured identity. Only the X.509 link,
// identity and auth certificates and the RSA->Ed25519 cross-cert are
// framed; the Ed25519 keys held in a CertSet are not sent.
func SendCerts(o *conn.OR, st *State) {
	if st.Ours == nil {
		return
	}
	wire := cell.Variable{CircID: 0, Command: cell.CommandCerts, Body: encodeCertSet(st.Ours.Certs)}.Encode(o.WideCircIDs())
	o.SendCell(wire)
	st.SentCerts = true
}

func encodeCertSet(cs CertSet) []byte {
	type entry struct {
		typ  uint8
		body []byte
	}
	var entries []entry
	if cs.RSAIDLink != nil {
		entries = append(entries, entry{certTypeRSAIDLink, cs.RSAIDLink.Raw})
	}
	if cs.RSAIDID != nil {
		entries = append(entries, entry{certTypeRSAIDID, cs.RSAIDID.Raw})
	}
	if cs.RSAIDAuth != nil {
		entries = append(entries, entry{certTypeRSAIDAuth, cs.RSAIDAuth.Raw})
	}
	if len(cs.RSAIDEdIDCrossCert) > 0 {
		entries = append(entries, entry{certTypeRSAIDEdCross, cs.RSAIDEdIDCrossCert})
	}

	out := []byte{uint8(len(entries))}
	for _, e := range entries {
		var l [2]byte
		binary.BigEndian.PutUint16(l[:], uint16(len(e.body)))
		out = append(out, e.typ)
		out = append(out, l[:]...)
		out = append(out, e.body...)
	}
	return out
}

// ProcessCerts implements spec.md §4.6 CERTS.
func ProcessCerts(o *conn.OR, st *State, body []byte) error {
	if st.RecvCerts {
		o.OnFatal()
		return errs.CodeProtocolViolation.Error(nil)
	}

	certs, err := parseCertsPayload(body)
	if err != nil {
		o.OnFatal()
		return err
	}

	var cs CertSet
	seen := map[uint8]bool{}
	for _, c := range certs {
		if seen[c.Type] {
			o.OnFatal()
			return errs.CodeProtocolViolation.Errorf(nil, "duplicate cert type %d", c.Type)
		}
		seen[c.Type] = true

		switch c.Type {
		case certTypeRSAIDLink:
			cs.RSAIDLink, err = x509.ParseCertificate(c.Body)
		case certTypeRSAIDID:
			cs.RSAIDID, err = x509.ParseCertificate(c.Body)
		case certTypeRSAIDAuth:
			cs.RSAIDAuth, err = x509.ParseCertificate(c.Body)
		case certTypeRSAIDEdCross:
			cs.RSAIDEdIDCrossCert = c.Body
		case certTypeEdIDSign, certTypeEdSignLink, certTypeEdSignAuth:
			// handled below once all entries are collected
		default:
			continue
		}
		if err != nil {
			o.OnFatal()
			return errs.CodeProtocolViolation.Errorf(err, "cert type %d is not a valid X.509 DER blob", c.Type)
		}
	}

	var idSign, signLink, signAuth *signedKey
	for _, c := range certs {
		var sk signedKey
		switch c.Type {
		case certTypeEdIDSign:
			sk, err = parseSignedKey(c.Body)
			idSign = &sk
		case certTypeEdSignLink:
			sk, err = parseSignedKey(c.Body)
			signLink = &sk
		case certTypeEdSignAuth:
			sk, err = parseSignedKey(c.Body)
			signAuth = &sk
		default:
			continue
		}
		if err != nil {
			o.OnFatal()
			return err
		}
	}

	now := time.Now()
	if idSign != nil {
		// Self-signed: the identity key signs its own signing-key grant.
		if !idSign.verifiedBy(idSign.Key, now) {
			o.OnFatal()
			return errs.CodeAuthFailure.Error(nil)
		}
		cs.EdIDSign = idSign.Key
		if signLink != nil {
			if !signLink.verifiedBy(idSign.Key, now) {
				o.OnFatal()
				return errs.CodeAuthFailure.Error(nil)
			}
			cs.EdSignLink = signLink.Key
		}
		if signAuth != nil {
			if !signAuth.verifiedBy(idSign.Key, now) {
				o.OnFatal()
				return errs.CodeAuthFailure.Error(nil)
			}
			cs.EdSignAuth = signAuth.Key
		}
	}

	if cs.RSAIDID != nil && len(cs.RSAIDEdIDCrossCert) > 0 && cs.EdIDSign != nil {
		if !verifyRSAEdCrossCert(cs.RSAIDID, cs.EdIDSign, cs.RSAIDEdIDCrossCert) {
			o.OnFatal()
			return errs.CodeAuthFailure.Error(nil)
		}
	}

	if cs.RSAIDLink != nil {
		if peer := o.TLSPeerCertificate(); peer != nil {
			if !certKeysEqual(cs.RSAIDLink, peer) {
				o.OnFatal()
				return errs.CodeAuthFailure.Errorf(nil, "link cert key does not match TLS peer key")
			}
		}
	}

	st.Certs = cs
	st.RecvCerts = true

	if st.Initiator {
		var digest *[20]byte
		if cs.RSAIDID != nil {
			d := sha1.Sum(cs.RSAIDID.RawSubjectPublicKeyInfo)
			digest = &d
		}
		st.markAuthenticated(digest, cs.EdIDSign)
		o.SetAuthenticated(digest, cs.EdIDSign)
	}
	return nil
}

// verifyRSAEdCrossCert checks that the RSA identity cert's key signed a
// statement binding it to the Ed25519 identity key: the cross-cert body
// is an RSA PKCS#1v15 signature (SHA-256) over the Ed25519 public key.
func verifyRSAEdCrossCert(rsaID *x509.Certificate, edID ed25519.PublicKey, cross []byte) bool {
	pub, ok := rsaID.PublicKey.(*rsa.PublicKey)
	if !ok {
		return false
	}
	digest := sha256.Sum256(edID)
	return rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], cross) == nil
}

func certKeysEqual(c *x509.Certificate, peer *x509.Certificate) bool {
	a, ok1 := c.PublicKey.(*rsa.PublicKey)
	b, ok2 := peer.PublicKey.(*rsa.PublicKey)
	if !ok1 || !ok2 {
		return false
	}
	return a.N.Cmp(b.N) == 0 && a.E == b.E
}

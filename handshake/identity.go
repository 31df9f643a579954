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
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"net"
)

// Identity carries the private key material and matching certificates
// this side of the connection signs AUTHENTICATE and CERTS with. A
// connection with a nil Identity can only ever be a client-mode
// initiator that never authenticates.
type Identity struct {
	RSAAuthKey  *rsa.PrivateKey
	RSAAuthCert *x509.Certificate

	EdAuthKey     ed25519.PrivateKey
	EdSignAuthPub ed25519.PublicKey

	Certs CertSet

	// OurAddresses are the addresses we advertise in NETINFO as our own.
	OurAddresses []net.IP
}

// rsaDigestOf returns the SHA-1 digest of the DER-encoded SPKI of the
// given certificate, as used for authenticated_rsa_peer_id.
func rsaDigestOf(c *x509.Certificate) [20]byte {
	return sha1.Sum(c.RawSubjectPublicKeyInfo)
}

package handshake_test

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/binary"
	"math/big"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/orlink/conn"
	"github.com/nabbar/orlink/event"
	"github.com/nabbar/orlink/handshake"
)

func selfSignedRSACert(key *rsa.PrivateKey) *x509.Certificate {
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "relay-id"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	Expect(err).NotTo(HaveOccurred())
	cert, err := x509.ParseCertificate(der)
	Expect(err).NotTo(HaveOccurred())
	return cert
}

func signedKeyBlob(signer ed25519.PrivateKey, key ed25519.PublicKey, expiry time.Time) []byte {
	var expBuf [4]byte
	binary.BigEndian.PutUint32(expBuf[:], uint32(expiry.Unix()))
	msg := append(append([]byte{}, key...), expBuf[:]...)
	sig := ed25519.Sign(signer, msg)
	return append(append(append([]byte{}, key...), expBuf[:]...), sig...)
}

func encodeCertsWire(entries map[byte][]byte) []byte {
	out := []byte{byte(len(entries))}
	for typ, body := range entries {
		var l [2]byte
		binary.BigEndian.PutUint16(l[:], uint16(len(body)))
		out = append(out, typ)
		out = append(out, l[:]...)
		out = append(out, body...)
	}
	return out
}

var _ = Describe("CERTS", func() {
	It("accepts a well-formed Ed25519 identity->signing chain", func() {
		reg := event.NewRegistry()
		_, o := pairInLinkHandshaking(reg)

		idPub, idPriv, err := ed25519.GenerateKey(rand.Reader)
		Expect(err).NotTo(HaveOccurred())

		expiry := time.Now().Add(24 * time.Hour)
		idSignBlob := signedKeyBlob(idPriv, idPub, expiry)

		body := encodeCertsWire(map[byte][]byte{4: idSignBlob})

		st := handshake.NewState(true)
		err = handshake.ProcessCerts(o, st, body)
		Expect(err).NotTo(HaveOccurred())
		Expect(st.RecvCerts).To(BeTrue())
		Expect([]byte(st.Certs.EdIDSign)).To(Equal([]byte(idPub)))
	})

	It("rejects an expired Ed25519 signed-key cert", func() {
		reg := event.NewRegistry()
		_, o := pairInLinkHandshaking(reg)

		idPub, idPriv, err := ed25519.GenerateKey(rand.Reader)
		Expect(err).NotTo(HaveOccurred())

		expired := time.Now().Add(-time.Hour)
		idSignBlob := signedKeyBlob(idPriv, idPub, expired)

		body := encodeCertsWire(map[byte][]byte{4: idSignBlob})

		st := handshake.NewState(true)
		err = handshake.ProcessCerts(o, st, body)
		Expect(err).To(HaveOccurred())
		Expect(o.State()).To(Equal(conn.Closed))
	})

	It("rejects a duplicate cert type", func() {
		reg := event.NewRegistry()
		_, o := pairInLinkHandshaking(reg)

		rsaKey, _ := rsa.GenerateKey(rand.Reader, 2048)
		cert := selfSignedRSACert(rsaKey)

		var l [2]byte
		binary.BigEndian.PutUint16(l[:], uint16(len(cert.Raw)))

		body := []byte{2} // two entries
		body = append(body, 2)
		body = append(body, l[:]...)
		body = append(body, cert.Raw...)
		body = append(body, 2)
		body = append(body, l[:]...)
		body = append(body, cert.Raw...)

		st := handshake.NewState(true)
		err := handshake.ProcessCerts(o, st, body)
		Expect(err).To(HaveOccurred())
	})

	It("round trips a cross-cert signature check", func() {
		rsaKey, _ := rsa.GenerateKey(rand.Reader, 2048)
		idPub, _, _ := ed25519.GenerateKey(rand.Reader)

		digest := sha256.Sum256(idPub)
		sig, err := rsa.SignPKCS1v15(rand.Reader, rsaKey, crypto.SHA256, digest[:])
		Expect(err).NotTo(HaveOccurred())
		Expect(rsa.VerifyPKCS1v15(&rsaKey.PublicKey, crypto.SHA256, digest[:], sig)).To(Succeed())
	})
})

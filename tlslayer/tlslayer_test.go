package tlslayer_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/orlink/tlslayer"
)

func selfSignedConfig() *tls.Config {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	Expect(err).NotTo(HaveOccurred())

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "relay-link"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	Expect(err).NotTo(HaveOccurred())

	cert := tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
	return &tls.Config{Certificates: []tls.Certificate{cert}, InsecureSkipVerify: true}
}

func runHandshakeUntilDone(s *tlslayer.Session) {
	Eventually(func() tlslayer.Status {
		return s.HandshakeStep()
	}, time.Second, time.Millisecond).Should(Equal(tlslayer.Done))
}

var _ = Describe("Session", func() {
	It("completes a non-blocking handshake and round-trips application data", func() {
		clientRaw, serverRaw := net.Pipe()
		defer clientRaw.Close()
		defer serverRaw.Close()

		cfg := selfSignedConfig()
		client := tlslayer.NewClient(clientRaw, cfg)
		server := tlslayer.NewServer(serverRaw, cfg)

		done := make(chan struct{})
		go func() {
			runHandshakeUntilDone(server)
			close(done)
		}()
		runHandshakeUntilDone(client)
		Eventually(done).Should(BeClosed())

		written := make(chan struct{})
		go func() {
			defer close(written)
			Eventually(func() tlslayer.Status {
				_, st := client.Write([]byte("hello"))
				return st
			}, time.Second, time.Millisecond).Should(Equal(tlslayer.Done))
		}()

		buf := make([]byte, 16)
		var n int
		Eventually(func() tlslayer.Status {
			var st tlslayer.Status
			n, st = server.Read(buf)
			return st
		}, time.Second, time.Millisecond).Should(Equal(tlslayer.Done))
		Eventually(written).Should(BeClosed())

		Expect(string(buf[:n])).To(Equal("hello"))
	})
})

package conn_test

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

	"github.com/nabbar/orlink/bucket"
	"github.com/nabbar/orlink/conn"
	"github.com/nabbar/orlink/event"
	"github.com/nabbar/orlink/throughput"
)

func selfSignedTLSConfig() *tls.Config {
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

func newTestOR(dir conn.Direction, reg *event.Registry) (*conn.OR, *event.Source) {
	src := event.NewSource(reg, nil)
	labels := conn.Labels{
		TCPConnecting:   reg.Register("tcp_connecting"),
		TLSHandshaking:  reg.Register("tls_handshaking"),
		LinkHandshaking: reg.Register("link_handshaking"),
		Open:            reg.Register("open"),
		Closed:          reg.Register("closed"),
	}
	listener := event.NewListener(-1, nil, nil)
	rw := bucket.NewRW(1<<20, 1<<20, 1<<20, 1<<20, time.Now())
	ring := throughput.NewRing(time.Now())
	o := conn.NewOR(src, listener, labels, dir, rw, ring, nil)
	return o, src
}

var _ = Describe("OR connection", func() {
	It("walks NoSocket -> TcpConnecting -> TlsHandshaking -> LinkHandshaking -> Open", func() {
		reg := event.NewRegistry()
		clientOR, _ := newTestOR(conn.Outgoing, reg)
		serverOR, _ := newTestOR(conn.Incoming, reg)

		Expect(clientOR.State()).To(Equal(conn.NoSocket))

		clientRaw, serverRaw := net.Pipe()
		defer clientRaw.Close()
		defer serverRaw.Close()

		clientOR.OnSocketSet(clientRaw)
		serverOR.OnSocketSet(serverRaw)
		Expect(clientOR.State()).To(Equal(conn.TcpConnecting))
		Expect(serverOR.State()).To(Equal(conn.TcpConnecting))

		cfg := selfSignedTLSConfig()
		clientOR.OnTCPConnected(cfg)
		serverOR.OnTCPConnected(cfg)
		Expect(clientOR.State()).To(Equal(conn.TlsHandshaking))

		done := make(chan struct{})
		go func() {
			defer close(done)
			for serverOR.State() == conn.TlsHandshaking {
				serverOR.StepTLSHandshake()
			}
		}()
		Eventually(func() conn.State {
			clientOR.StepTLSHandshake()
			return clientOR.State()
		}, time.Second, time.Millisecond).Should(Equal(conn.LinkHandshaking))
		Eventually(done).Should(BeClosed())
		Expect(serverOR.State()).To(Equal(conn.LinkHandshaking))

		clientOR.OnLinkProtocolVersion(5, nil)
		Expect(clientOR.WideCircIDs()).To(BeTrue())

		clientOR.OnOpen()
		Expect(clientOR.State()).To(Equal(conn.Open))
	})

	It("never leaves Closed once entered", func() {
		reg := event.NewRegistry()
		o, _ := newTestOR(conn.Outgoing, reg)

		clientRaw, serverRaw := net.Pipe()
		defer clientRaw.Close()
		serverRaw.Close()

		o.OnSocketSet(clientRaw)
		o.OnFatal()
		Expect(o.State()).To(Equal(conn.Closed))

		o.OnOpen()
		Expect(o.State()).To(Equal(conn.Closed))
	})

	It("assigns each connection a distinct, stable id", func() {
		reg := event.NewRegistry()
		a, _ := newTestOR(conn.Outgoing, reg)
		b, _ := newTestOR(conn.Incoming, reg)

		Expect(a.ID()).NotTo(BeEmpty())
		Expect(a.ID()).NotTo(Equal(b.ID()))
		Expect(a.ID()).To(Equal(a.ID()))
	})
})

package handshake_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/binary"
	"math/big"
	"net"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/orlink/bucket"
	"github.com/nabbar/orlink/cell"
	"github.com/nabbar/orlink/conn"
	"github.com/nabbar/orlink/errs"
	"github.com/nabbar/orlink/event"
	"github.com/nabbar/orlink/handshake"
	"github.com/nabbar/orlink/throughput"
)

func newTestOR(dir conn.Direction, reg *event.Registry) *conn.OR {
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
	return conn.NewOR(src, listener, labels, dir, rw, ring, nil)
}

// attachSocket drives an OR's Safe portion to TcpConnecting over a
// net.Pipe, enough plumbing for the handshake processors under test
// below (none of which gate on conn.OR's own state beyond what Dispatch
// checks separately).
func attachSocket(o *conn.OR) net.Conn {
	client, server := net.Pipe()
	server.Close()
	o.OnSocketSet(client)
	return client
}

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

// pairInLinkHandshaking brings a client/server OR pair all the way
// through TCP-connect and TLS handshake into LinkHandshaking, so
// processors that touch conn.OR's negotiated-version or Open transition
// can be exercised directly.
func pairInLinkHandshaking(reg *event.Registry) (client, server *conn.OR) {
	client = newTestOR(conn.Outgoing, reg)
	server = newTestOR(conn.Incoming, reg)

	clientRaw, serverRaw := net.Pipe()
	client.OnSocketSet(clientRaw)
	server.OnSocketSet(serverRaw)

	cfg := selfSignedTLSConfig()
	client.OnTCPConnected(cfg)
	server.OnTCPConnected(cfg)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for server.State() == conn.TlsHandshaking {
			server.StepTLSHandshake()
		}
	}()
	Eventually(func() conn.State {
		client.StepTLSHandshake()
		return client.State()
	}, time.Second, time.Millisecond).Should(Equal(conn.LinkHandshaking))
	Eventually(done).Should(BeClosed())

	return client, server
}

var _ = Describe("VERSIONS", func() {
	var reg *event.Registry

	BeforeEach(func() {
		reg = event.NewRegistry()
	})

	It("negotiates the highest common version and dispatches as responder", func() {
		_, o := pairInLinkHandshaking(reg)

		st := handshake.NewState(false)
		body := make([]byte, 6)
		binary.BigEndian.PutUint16(body[0:2], 3)
		binary.BigEndian.PutUint16(body[2:4], 4)
		binary.BigEndian.PutUint16(body[4:6], 5)

		err := handshake.ProcessVersions(o, st, body)
		Expect(err).NotTo(HaveOccurred())
		Expect(st.RecvVersions).To(BeTrue())
		Expect(o.LinkProtocol()).To(Equal(5))
		Expect(o.WideCircIDs()).To(BeTrue())
	})

	It("rejects an odd-length payload", func() {
		o := newTestOR(conn.Incoming, reg)
		attachSocket(o)
		o.OnTCPConnected(nil)

		st := handshake.NewState(false)
		err := handshake.ProcessVersions(o, st, []byte{0, 3, 0})
		Expect(err).To(HaveOccurred())
		Expect(o.State()).To(Equal(conn.Closed))
	})

	It("rejects when there is no common version >= 3", func() {
		o := newTestOR(conn.Outgoing, reg)
		attachSocket(o)
		o.OnTCPConnected(nil)

		st := handshake.NewState(true)
		body := make([]byte, 4)
		binary.BigEndian.PutUint16(body[0:2], 1)
		binary.BigEndian.PutUint16(body[2:4], 2)

		err := handshake.ProcessVersions(o, st, body)
		Expect(err).To(HaveOccurred())
		Expect(o.State()).To(Equal(conn.Closed))
	})
})

var _ = Describe("AUTH_CHALLENGE", func() {
	It("is a no-op when we do not want to authenticate", func() {
		reg := event.NewRegistry()
		o := newTestOR(conn.Outgoing, reg)
		attachSocket(o)
		o.OnTCPConnected(nil)

		st := handshake.NewState(true)
		st.WantsToAuthenticate = false

		body := make([]byte, 34)
		binary.BigEndian.PutUint16(body[32:34], 0)

		err := handshake.ProcessAuthChallenge(o, st, body)
		Expect(err).NotTo(HaveOccurred())
		Expect(st.ChosenAuthMethod).To(BeZero())
	})

	It("picks the Ed25519 method when offered alongside RSA methods", func() {
		reg := event.NewRegistry()
		o := newTestOR(conn.Outgoing, reg)
		attachSocket(o)
		o.OnTCPConnected(nil)

		st := handshake.NewState(true)
		st.WantsToAuthenticate = true
		st.Ours = &handshake.Identity{}

		body := make([]byte, 32+2+2*2)
		binary.BigEndian.PutUint16(body[32:34], 2)
		binary.BigEndian.PutUint16(body[34:36], uint16(1)) // RSA_SHA256_TLSSECRET
		binary.BigEndian.PutUint16(body[36:38], uint16(3)) // ED25519_SHA256_RFC5705

		err := handshake.ProcessAuthChallenge(o, st, body)
		Expect(err).NotTo(HaveOccurred())
		Expect(st.ChosenAuthMethod).To(Equal(handshake.AuthEd25519SHA256RFC5705))
	})
})

var _ = Describe("PADDING_NEGOTIATE", func() {
	It("forwards the negotiated bounds to the scheduler", func() {
		reg := event.NewRegistry()
		o := newTestOR(conn.Outgoing, reg)
		attachSocket(o)
		o.OnTCPConnected(nil)

		st := handshake.NewState(true)
		var gotLow, gotHigh uint16
		st.Padding = fakeScheduler{set: func(low, high uint16) { gotLow, gotHigh = low, high }}

		body := []byte{0, 0x00, 0x0A, 0x00, 0x64}
		err := handshake.ProcessPaddingNegotiate(o, st, body)
		Expect(err).NotTo(HaveOccurred())
		Expect(gotLow).To(Equal(uint16(10)))
		Expect(gotHigh).To(Equal(uint16(100)))
	})

	It("rejects low > high", func() {
		reg := event.NewRegistry()
		o := newTestOR(conn.Outgoing, reg)
		attachSocket(o)
		o.OnTCPConnected(nil)

		st := handshake.NewState(true)
		body := []byte{0, 0x00, 0x64, 0x00, 0x0A}
		err := handshake.ProcessPaddingNegotiate(o, st, body)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("NETINFO", func() {
	It("records clock skew only within the 180s window and transitions to Open", func() {
		reg := event.NewRegistry()
		_, o := pairInLinkHandshaking(reg)
		o.OnLinkProtocolVersion(4, nil)

		st := handshake.NewState(true)
		st.SentVersionsAt = time.Now()
		st.SentNetinfo = true // skip our own emission for this unit test

		body := make([]byte, 4+2+1)
		binary.BigEndian.PutUint32(body[0:4], uint32(time.Now().Unix()))
		// zero-length "their address" record
		body[4], body[5] = 0, 0
		body[6] = 0 // n_my_addrs

		err := handshake.ProcessNetinfo(o, st, body)
		Expect(err).NotTo(HaveOccurred())
		Expect(st.RecvNetinfo).To(BeTrue())
		Expect(o.State()).To(Equal(conn.Open))
		Expect(st.ClockSkewRecorded).To(BeTrue())
	})
})

var _ = Describe("Dispatch", func() {
	It("rejects handshake cells arriving outside LinkHandshaking", func() {
		reg := event.NewRegistry()
		o := newTestOR(conn.Outgoing, reg)
		st := handshake.NewState(true)

		err := handshake.Dispatch(o, st, cell.CommandVersions, []byte{0, 3})
		Expect(err).To(HaveOccurred())
		_, ok := err.(errs.Error)
		Expect(ok).To(BeTrue())
	})
})

type fakeScheduler struct {
	set func(low, high uint16)
}

func (f fakeScheduler) SetBounds(low, high uint16) { f.set(low, high) }

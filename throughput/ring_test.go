package throughput_test

import (
	"math"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/orlink/throughput"
)

var _ = Describe("Ring", func() {
	var start time.Time

	BeforeEach(func() {
		start = time.Unix(1_700_000_000, 0)
	})

	It("buckets bytes into the correct 500ms window", func() {
		r := throughput.NewRing(start)
		r.LogSent(100, start.Add(1200*time.Millisecond))

		w := throughput.NewWriter([]*throughput.Ring{r}, nil)
		var buf strings.Builder
		Expect(w.Join(&buf)).To(Succeed())

		lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
		Expect(lines[0]).To(Equal("time, thrd 0 sent, thrd 0 recv"))
		// idx 2 (1200ms / 500ms = 2) must carry the 100 bytes.
		Expect(lines).To(ContainElement(ContainSubstring("100")))
	})

	It("saturates at u32::MAX instead of wrapping", func() {
		r := throughput.NewRing(start)
		r.LogSent(math.MaxUint32-10, start)
		r.LogSent(100, start)

		w := throughput.NewWriter([]*throughput.Ring{r}, nil)
		var buf strings.Builder
		Expect(w.Join(&buf)).To(Succeed())

		Expect(buf.String()).To(ContainSubstring("4294967295"))
	})

	It("grows with 60s headroom past the triggering index", func() {
		r := throughput.NewRing(start)
		// 61s in: idx = 122, well past any small initial allocation.
		r.LogRecv(5, start.Add(61*time.Second))

		w := throughput.NewWriter([]*throughput.Ring{r}, nil)
		var buf strings.Builder
		Expect(w.Join(&buf)).To(Succeed())
		Expect(buf.String()).To(ContainSubstring("5"))
	})
})

package bucket_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/orlink/bucket"
)

var _ = Describe("Bucket", func() {
	var start time.Time

	BeforeEach(func() {
		start = time.Unix(1_700_000_000, 0)
	})

	It("never exceeds burst after refill", func() {
		b := bucket.NewBucket(1000, 5000, start)
		b.Decrement(4000)
		b.Refill(start.Add(10 * time.Second)) // would add 10000, clamp to burst
		Expect(b.Credit()).To(Equal(uint64(5000)))
	})

	It("decrement floors at zero instead of underflowing", func() {
		b := bucket.NewBucket(1000, 5000, start)
		b.Decrement(1000)
		b.Decrement(10000)
		Expect(b.Credit()).To(Equal(uint64(0)))
	})

	It("decrement(n) leaves max(0, pre-n) for any pre", func() {
		b := bucket.NewBucket(1000, 5000, start)
		pre := b.Credit()
		b.Decrement(1200)
		Expect(b.Credit()).To(Equal(pre - 1200))
	})

	It("Adjust with reset sets credit to the new burst immediately", func() {
		b := bucket.NewBucket(1000, 5000, start)
		b.Decrement(5000)
		Expect(b.Credit()).To(Equal(uint64(0)))

		b.Adjust(2000, 8000, true, start)
		Expect(b.Credit()).To(Equal(uint64(8000)))
	})

	It("Adjust without reset clamps existing credit to the new (lower) burst", func() {
		b := bucket.NewBucket(1000, 5000, start)
		b.Adjust(1000, 2000, false, start)
		Expect(b.Credit()).To(Equal(uint64(2000)))
	})

	It("Allowed reflects whether credit is positive", func() {
		b := bucket.NewBucket(1000, 1000, start)
		Expect(b.Allowed()).To(BeTrue())
		b.Decrement(1000)
		Expect(b.Allowed()).To(BeFalse())
	})
})

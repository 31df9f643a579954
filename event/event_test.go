package event_test

import (
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/orlink/event"
)

type countData struct {
	val    int
	closed *int32
}

func (c countData) Close() error {
	if c.closed != nil {
		atomic.AddInt32(c.closed, 1)
	}
	return nil
}

var _ = Describe("Registry", func() {
	It("allocates monotonically increasing labels", func() {
		reg := event.NewRegistry()
		a := reg.Register("alpha")
		b := reg.Register("beta")
		Expect(b).To(Equal(a + 1))
		Expect(reg.HelpLabel(a)).To(Equal("alpha"))
	})

	It("treats a label registered with an empty description as registered", func() {
		reg := event.NewRegistry()
		l := reg.Register("")
		Expect(reg.HelpLabel(l)).To(Equal(""))
		Expect(reg.Registered(l)).To(BeTrue())
		Expect(reg.Registered(l + 1)).To(BeFalse())
	})
})

var _ = Describe("Source/Listener", func() {
	var (
		reg   *event.Registry
		src   *event.Source
		label event.Label
		woke  int32
	)

	BeforeEach(func() {
		reg = event.NewRegistry()
		src = event.NewSource(reg, nil)
		label = reg.Register("test-label")
		woke = 0
	})

	It("publish with no subscriber closes the data and is a no-op", func() {
		var closed int32
		src.Publish(label, countData{val: 1, closed: &closed})
		Expect(closed).To(Equal(int32(1)))
	})

	It("delivers a published event to its subscribed listener", func() {
		var received int
		l := event.NewListener(-1, func() { atomic.AddInt32(&woke, 1) }, nil)
		l.SetCallback(label, event.Callback{
			Process: func(lb event.Label, d event.Data) {
				received = d.(countData).val
			},
		})
		src.Subscribe(label, l)

		src.Publish(label, countData{val: 42})
		Expect(woke).To(Equal(int32(1)))

		l.Process()
		Expect(received).To(Equal(42))
		Expect(l.IsPending()).To(BeFalse())
	})

	It("coalesces consecutive same-label events at the queue tail", func() {
		var calls int
		var lastVal int
		l := event.NewListener(-1, func() { atomic.AddInt32(&woke, 1) }, nil)
		l.SetCallback(label, event.Callback{
			Coalesce: func(prev, next event.Data) event.Data {
				return next
			},
			Process: func(lb event.Label, d event.Data) {
				calls++
				lastVal = d.(countData).val
			},
		})
		src.Subscribe(label, l)

		src.Publish(label, countData{val: 1})
		src.Publish(label, countData{val: 2})
		src.Publish(label, countData{val: 3})

		// only the first publish transitions empty->pending and wakes the loop
		Expect(woke).To(Equal(int32(1)))

		l.Process()
		Expect(calls).To(Equal(1))
		Expect(lastVal).To(Equal(3))
	})

	It("closes only the payload Coalesce discards, not the one it keeps", func() {
		var closed int32
		var seen int
		l := event.NewListener(-1, nil, nil)
		l.SetCallback(label, event.Callback{
			Coalesce: func(prev, next event.Data) event.Data {
				return next
			},
			Process: func(lb event.Label, d event.Data) {
				seen = d.(countData).val
			},
		})
		src.Subscribe(label, l)

		src.Publish(label, countData{val: 1, closed: &closed})
		kept := countData{val: 2, closed: &closed}
		src.Publish(label, kept)

		// the replaced (val:1) entry is redundant and must be closed exactly
		// once; the kept (val:2) entry must not be touched until Process.
		Expect(closed).To(Equal(int32(1)))

		l.Process()
		Expect(seen).To(Equal(2))
		Expect(closed).To(Equal(int32(1)))
	})

	It("stops after MaxIterations and reschedules a wakeup if work remains", func() {
		processed := 0
		l := event.NewListener(1, func() { atomic.AddInt32(&woke, 1) }, nil)
		other := reg.Register("other-label")
		l.SetCallback(label, event.Callback{Process: func(lb event.Label, d event.Data) { processed++ }})
		l.SetCallback(other, event.Callback{Process: func(lb event.Label, d event.Data) { processed++ }})
		src.Subscribe(label, l)
		src.Subscribe(other, l)

		src.Publish(label, countData{val: 1})
		src.Publish(other, countData{val: 2})

		l.Process()
		Expect(processed).To(Equal(1))
		Expect(l.IsPending()).To(BeTrue())

		l.Process()
		Expect(processed).To(Equal(2))
		Expect(l.IsPending()).To(BeFalse())
	})

	It("drops and logs events for labels with no registered callback", func() {
		l := event.NewListener(-1, nil, nil)
		src.Subscribe(label, l)

		var closed int32
		src.Publish(label, countData{val: 1, closed: &closed})

		Expect(func() { l.Process() }).NotTo(Panic())
		Expect(closed).To(Equal(int32(1)))
	})
})

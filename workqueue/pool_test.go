package workqueue_test

import (
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/orlink/workqueue"
)

var _ = Describe("Pool", func() {
	It("runs a submitted item and delivers its reply on the requested loop", func() {
		p := workqueue.New(2, "shared-state", nil)
		p.Start()
		defer p.Shutdown()

		done := make(chan struct{}, 1)
		var gotState interface{}
		var gotStatus workqueue.ReplyStatus

		err := p.Submit(0, 0, workqueue.WorkItem{
			Priority: workqueue.High,
			Fn: func(state interface{}, arg interface{}) (interface{}, workqueue.ReplyStatus) {
				return arg, workqueue.ReplyOK
			},
			Reply: func(status workqueue.ReplyStatus, result interface{}, arg interface{}) {
				gotStatus = status
				gotState = result
				done <- struct{}{}
			},
			Arg: "payload",
		})
		Expect(err).NotTo(HaveOccurred())

		select {
		case <-done:
		case <-time.After(time.Second):
			Fail("timed out waiting for reply")
		}
		p.Reply(0).Drain()

		Expect(gotStatus).To(Equal(workqueue.ReplyOK))
		Expect(gotState).To(Equal("payload"))
	})

	It("rejects Submit for an out-of-range worker id", func() {
		p := workqueue.New(1, nil, nil)
		err := p.Submit(5, 0, workqueue.WorkItem{})
		Expect(err).To(HaveOccurred())
	})

	It("replies ReplyShutdown to work still queued at shutdown", func() {
		p := workqueue.New(1, nil, nil)
		// don't Start(): item stays queued, then Shutdown must still drain it.
		var status workqueue.ReplyStatus
		var called int32

		_ = p.Submit(0, 0, workqueue.WorkItem{
			Fn: func(state, arg interface{}) (interface{}, workqueue.ReplyStatus) {
				return nil, workqueue.ReplyOK
			},
			Reply: func(s workqueue.ReplyStatus, result interface{}, arg interface{}) {
				status = s
				atomic.AddInt32(&called, 1)
			},
		})

		p.Shutdown()
		p.Reply(0).Drain()

		Expect(atomic.LoadInt32(&called)).To(Equal(int32(1)))
		Expect(status).To(Equal(workqueue.ReplyShutdown))
	})
})

var _ = Describe("QueueUpdate", func() {
	It("drops a superseded update and frees its arg", func() {
		p := workqueue.New(1, nil, nil)

		var freed []int
		var applied []int
		var mu sync.Mutex

		dup := func(arg interface{}) interface{} { return arg }
		fn := func(state, arg interface{}) {
			mu.Lock()
			applied = append(applied, arg.(int))
			mu.Unlock()
		}
		free := func(arg interface{}) {
			mu.Lock()
			freed = append(freed, arg.(int))
			mu.Unlock()
		}

		// two updates queued back to back before Start(): the second
		// replaces the first in the worker's single pending slot.
		p.QueueUpdate(dup, fn, free, 1)
		p.QueueUpdate(dup, fn, free, 2)

		p.Start()
		defer p.Shutdown()

		Eventually(func() []int {
			mu.Lock()
			defer mu.Unlock()
			return append([]int(nil), applied...)
		}).Should(Equal([]int{2}))

		mu.Lock()
		defer mu.Unlock()
		Expect(freed).To(Equal([]int{1}))
	})
})

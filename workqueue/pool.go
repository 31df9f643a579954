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

package workqueue

import (
	"fmt"
	"math/rand"
	"sync"

	libatm "github.com/nabbar/orlink/atomic"
	"github.com/nabbar/orlink/logging"
)

// discipline controls how often a worker steals from a lower priority
// queue instead of its highest non-empty one. Half the pool runs each, per
// spec: enough permissive workers that low-priority items never starve,
// enough strict ones that high-priority latency stays predictable.
type discipline int

const (
	disciplineStrict discipline = iota
	disciplinePermissive
)

// permissiveDenominator implements the "≈ 1/37" low-priority steal chance.
const permissiveDenominator = 37

type worker struct {
	id         int
	discipline discipline

	mu     sync.Mutex
	queues [priorityCount][]WorkItem
	update updateSlot
	wakeCh chan struct{}
}

func newWorker(id int, d discipline) *worker {
	return &worker{id: id, discipline: d, wakeCh: make(chan struct{}, 1)}
}

func (w *worker) wake() {
	select {
	case w.wakeCh <- struct{}{}:
	default:
	}
}

func (w *worker) submit(item WorkItem) {
	w.mu.Lock()
	w.queues[item.Priority] = append(w.queues[item.Priority], item)
	w.mu.Unlock()
	w.wake()
}

func (w *worker) popLocked(p Priority) (WorkItem, bool) {
	q := w.queues[p]
	if len(q) == 0 {
		return WorkItem{}, false
	}
	item := q[0]
	w.queues[p] = q[1:]
	return item, true
}

func (w *worker) pop(r *rand.Rand) (WorkItem, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.discipline == disciplinePermissive && r.Intn(permissiveDenominator) == 0 {
		for _, p := range [...]Priority{Low, Medium, High} {
			if it, ok := w.popLocked(p); ok {
				return it, true
			}
		}
		return WorkItem{}, false
	}

	for _, p := range [...]Priority{High, Medium, Low} {
		if it, ok := w.popLocked(p); ok {
			return it, true
		}
	}
	return WorkItem{}, false
}

// drain empties every queued item with ReplyShutdown, used when the pool
// stops with work still pending.
func (w *worker) drain() []WorkItem {
	w.mu.Lock()
	defer w.mu.Unlock()

	var all []WorkItem
	for p := Priority(0); p < priorityCount; p++ {
		all = append(all, w.queues[p]...)
		w.queues[p] = nil
	}
	return all
}

// Pool is the fixed worker pool of spec.md §4.2: N workers plus the
// caller-owned main loop at index 0, which never runs inside this package
// but does get its own ReplyQueue so it can Submit/QueueUpdate work and
// Drain its own replies the same way a worker's owner would.
type Pool struct {
	state interface{}
	log   logging.FuncLog

	workers []*worker
	replies []*ReplyQueue // index 0 = main loop, 1..N = workers

	shutdown libatm.Value[bool]
	doneCh   chan struct{}
	wg       sync.WaitGroup
}

// New builds a Pool of n workers sharing state (passed to every WorkFn and
// UpdateFn) plus reply queue index 0 reserved for the main loop. Workers
// alternate strict/permissive discipline starting with strict.
func New(n int, state interface{}, log logging.FuncLog) *Pool {
	if log == nil {
		log = logging.GetDefault
	}
	p := &Pool{
		state:    state,
		log:      log,
		doneCh:   make(chan struct{}),
		shutdown: libatm.NewValue[bool](),
	}
	p.replies = make([]*ReplyQueue, n+1)
	for i := range p.replies {
		p.replies[i] = NewReplyQueue()
	}
	p.workers = make([]*worker, n)
	for i := 0; i < n; i++ {
		d := disciplineStrict
		if i%2 == 1 {
			d = disciplinePermissive
		}
		p.workers[i] = newWorker(i, d)
	}
	return p
}

// Reply returns the ReplyQueue for loop index loopID (0 is the main loop,
// 1..N are the workers).
func (p *Pool) Reply(loopID int) *ReplyQueue {
	if loopID < 0 || loopID >= len(p.replies) {
		return nil
	}
	return p.replies[loopID]
}

// Start launches every worker's goroutine.
func (p *Pool) Start() {
	p.wg.Add(len(p.workers))
	for _, w := range p.workers {
		go p.run(w)
	}
}

// Submit enqueues item on worker workerID's queue (a 0-based index into
// the pool's N workers, not a loop id). replyTo is the loop id (0 = main
// loop, 1..N = workers) whose ReplyQueue should receive the completion.
func (p *Pool) Submit(workerID int, replyTo int, item WorkItem) error {
	if workerID < 0 || workerID >= len(p.workers) {
		return fmt.Errorf("workqueue: worker id %d out of range [0,%d)", workerID, len(p.workers))
	}
	if replyTo < 0 || replyTo >= len(p.replies) {
		return fmt.Errorf("workqueue: reply loop id %d out of range [0,%d)", replyTo, len(p.replies))
	}
	item.replyTo = replyTo
	p.workers[workerID].submit(item)
	return nil
}

func (p *Pool) isShutdown() bool {
	return p.shutdown.Load()
}

func (p *Pool) run(w *worker) {
	defer p.wg.Done()
	r := rand.New(rand.NewSource(int64(w.id) + 1))

	for {
		if p.isShutdown() {
			for _, it := range w.drain() {
				if it.Reply != nil {
					p.replies[it.replyTo].push(it, ReplyShutdown, nil)
				}
			}
			return
		}

		if fn, arg, ok := w.update.take(); ok {
			fn(p.state, arg)
			continue
		}

		item, ok := w.pop(r)
		if !ok {
			select {
			case <-w.wakeCh:
			case <-p.doneCh:
			}
			continue
		}

		result, status := item.Fn(p.state, item.Arg)
		p.replies[item.replyTo].push(item, status, result)
	}
}

// Shutdown sets the pool's shutdown flag and waits for every worker to
// exit; any work left queued at that point runs its Reply with
// ReplyShutdown instead of being silently dropped.
func (p *Pool) Shutdown() {
	p.shutdown.Store(true)
	close(p.doneCh)
	for _, w := range p.workers {
		w.wake()
	}
	p.wg.Wait()
	for _, w := range p.workers {
		for _, it := range w.drain() {
			if it.Reply != nil {
				p.replies[it.replyTo].push(it, ReplyShutdown, nil)
			}
		}
	}
}

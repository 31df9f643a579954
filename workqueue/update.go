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

import "sync"

// UpdateFn applies a pool-wide update on a single worker, given that
// worker's own copy of arg (see DupFn).
type UpdateFn func(state interface{}, arg interface{})

// DupFn produces one worker's private copy of an update's argument. Called
// once per worker except the last, which receives the original arg.
type DupFn func(arg interface{}) interface{}

// FreeFn releases an update argument that was superseded before it ran.
type FreeFn func(arg interface{})

// updateSlot holds at most one pending update per worker: QueueUpdate is
// idempotent in the sense that a second call before the first has run
// replaces it, freeing the discarded arg via FreeFn rather than leaking it
// or running both.
type updateSlot struct {
	mu  sync.Mutex
	fn  UpdateFn
	arg interface{}
	set bool
}

func (s *updateSlot) set_(fn UpdateFn, arg interface{}, free FreeFn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.set && free != nil {
		free(s.arg)
	}
	s.fn, s.arg, s.set = fn, arg, true
}

// take removes and returns the pending update, if any.
func (s *updateSlot) take() (UpdateFn, interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.set {
		return nil, nil, false
	}
	fn, arg := s.fn, s.arg
	s.fn, s.arg, s.set = nil, nil, false
	return fn, arg, true
}

// QueueUpdate installs fn to run once on every worker, each with its own
// copy of arg produced by dup (the last worker gets the original arg, so
// exactly one copy need not be freed by the caller). A worker not yet
// reached by a prior pending update simply gets this one instead, and free
// runs on whatever it replaces.
func (p *Pool) QueueUpdate(dup DupFn, fn UpdateFn, free FreeFn, arg interface{}) {
	n := len(p.workers)
	if n == 0 {
		if free != nil {
			free(arg)
		}
		return
	}

	for i := 0; i < n-1; i++ {
		a := arg
		if dup != nil {
			a = dup(arg)
		}
		p.workers[i].update.set_(fn, a, free)
	}
	p.workers[n-1].update.set_(fn, arg, free)

	for _, w := range p.workers {
		w.wake()
	}
}

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

package event

import (
	"sync"

	"github.com/nabbar/orlink/errs"
	"github.com/nabbar/orlink/logging"
)

// Process handles one delivered event. Coalesce, if non-nil, is consulted
// before an event already in the pending queue for the same Label is
// appended a second time: it replaces the tail entry's Data in place
// instead of growing the queue, matching the C listener's single-slot
// coalescing policy for high-frequency labels (cell-ready, ring-full).
// Whichever of prev/next Coalesce does not return is closed as redundant;
// a Data type used with Coalesce must be comparable (==) so push can tell
// which one that was.
type Callback struct {
	Process  func(label Label, d Data)
	Coalesce func(prev, next Data) Data
}

// Listener drains events published to it by one or more Source instances.
// It owns no goroutine of its own: a worker pool (see package workqueue)
// calls Process in its own loop whenever WakeupListener signals pending
// work, mirroring libevent's deferred-callback model without binding this
// package to libevent.
type Listener struct {
	mu   sync.Mutex
	cb   map[Label]Callback
	q    []entry
	tail map[Label]int

	pending bool
	wake    func()

	maxIter int

	log logging.FuncLog
}

// NewListener builds a Listener. maxIter caps how many queued events one
// Process call drains before yielding control back to the loop; a
// negative value means unbounded (drain until empty). wake is invoked
// at most once per transition from empty to non-empty, and is how the
// listener tells its owning loop "there is work"; it may be nil for
// listeners that are polled rather than woken.
func NewListener(maxIter int, wake func(), log logging.FuncLog) *Listener {
	if log == nil {
		log = logging.GetDefault
	}
	return &Listener{
		cb:      make(map[Label]Callback),
		tail:    make(map[Label]int),
		maxIter: maxIter,
		wake:    wake,
		log:     log,
	}
}

// SetCallback registers (or replaces) the handler for label. Process must
// be non-nil; Coalesce may be left nil to disable coalescing for this
// label.
func (l *Listener) SetCallback(label Label, cb Callback) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cb[label] = cb
}

// push enqueues one (label, data) pair, applying the coalescing policy if
// the tail of the queue already carries the same label. Returns true if
// the listener transitioned from empty to pending and should be woken.
func (l *Listener) push(label Label, d Data) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if idx, ok := l.tail[label]; ok && idx == len(l.q)-1 {
		cb, known := l.cb[label]
		if known && cb.Coalesce != nil {
			prev := l.q[idx].data
			merged := cb.Coalesce(prev, d)
			if prev != merged {
				closeDiscarded(prev)
			}
			if d != merged {
				closeDiscarded(d)
			}
			l.q[idx].data = merged
			return false
		}
	}

	l.q = append(l.q, entry{label: label, data: d})
	l.tail[label] = len(l.q) - 1

	wasEmpty := !l.pending
	l.pending = true
	return wasEmpty
}

func (l *Listener) popAll() []entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	q := l.q
	l.q = nil
	l.tail = make(map[Label]int)
	l.pending = false
	return q
}

// IsPending reports whether the listener currently holds undelivered
// events.
func (l *Listener) IsPending() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pending
}

// Process drains up to maxIter queued events (unbounded if maxIter < 0),
// invoking each one's registered Process callback. Events for labels with
// no registered callback are logged and dropped, matching the Source
// publish policy for unregistered labels being a programming error rather
// than a silent loss at this layer.
func (l *Listener) Process() {
	drained := 0
	for {
		if l.maxIter >= 0 && drained >= l.maxIter {
			l.mu.Lock()
			remaining := len(l.q) > 0
			if !remaining {
				l.pending = false
			}
			l.mu.Unlock()
			if remaining {
				l.scheduleWake()
			}
			return
		}

		l.mu.Lock()
		if len(l.q) == 0 {
			l.pending = false
			l.mu.Unlock()
			return
		}
		next := l.q[0]
		l.q = l.q[1:]
		for lbl, idx := range l.tail {
			if idx == 0 {
				delete(l.tail, lbl)
			} else {
				l.tail[lbl] = idx - 1
			}
		}
		cb, known := l.cb[next.label]
		l.mu.Unlock()

		if !known || cb.Process == nil {
			l.log().Entry(logging.WarnLevel, "dropping event with no registered callback").
				Field("label", next.label).
				ErrorAdd(errs.CodeProgrammingError.Error(nil)).
				Check(logging.WarnLevel)
			closeDiscarded(next.data)
			drained++
			continue
		}

		cb.Process(next.label, next.data)
		drained++
	}
}

func (l *Listener) scheduleWake() {
	if l.wake != nil {
		l.wake()
	}
}

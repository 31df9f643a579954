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

// Source is a publication point: each Label has at most one subscribed
// Listener, matching the C event_source_t's single-subscriber-per-label
// design (a relay has exactly one worker loop per connection, so fan-out
// to many listeners is never needed).
type Source struct {
	mu              sync.RWMutex
	reg             *Registry
	subs            map[Label]*Listener
	deliverSilently map[Label]bool
	log             logging.FuncLog
}

func NewSource(reg *Registry, log logging.FuncLog) *Source {
	if log == nil {
		log = logging.GetDefault
	}
	return &Source{
		reg:             reg,
		subs:            make(map[Label]*Listener),
		deliverSilently: make(map[Label]bool),
		log:             log,
	}
}

// Subscribe attaches l as the sole recipient of events published under
// label. A second Subscribe for the same label replaces the previous
// subscriber, it does not add a second one.
func (s *Source) Subscribe(label Label, l *Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[label] = l
}

// Unsubscribe detaches whichever listener is currently subscribed to
// label, if any.
func (s *Source) Unsubscribe(label Label) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, label)
}

// UnsubscribeAll detaches every listener from every label on this source,
// used when tearing down a connection's event wiring.
func (s *Source) UnsubscribeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = make(map[Label]*Listener)
}

// DeliverSilently marks label so that future Publish calls enqueue the
// event without calling WakeupListener, for events a loop will observe on
// its own next pass regardless (ring writes counted elsewhere).
func (s *Source) DeliverSilently(label Label, silent bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliverSilently[label] = silent
}

// Publish hands d to label's subscriber, if any. With no subscriber, d is
// closed and the call is a no-op: this is not an error, matching the C
// behavior of a harmless publish into the void. Publishing under a label
// nothing ever Registered is a programming error and is reported through
// the default logger at error level; the event is still dropped.
func (s *Source) Publish(label Label, d Data) {
	s.mu.RLock()
	l, ok := s.subs[label]
	silent := s.deliverSilently[label]
	s.mu.RUnlock()

	if s.reg != nil && !s.reg.Registered(label) {
		s.log().Entry(logging.ErrorLevel, "publish to unregistered label").
			Field("label", label).
			ErrorAdd(errs.CodeProgrammingError.Errorf(nil, "label %d was never Register()ed", label)).
			Check(logging.NilLevel)
		closeDiscarded(d)
		return
	}

	if !ok || l == nil {
		closeDiscarded(d)
		return
	}

	becamePending := l.push(label, d)
	if becamePending && !silent {
		s.WakeupListener(label)
	}
}

// WakeupListener explicitly schedules label's subscriber for processing,
// independent of Publish's own wakeup-on-transition-to-pending logic.
// Used when a producer wants to nudge a loop that may have gone idle.
func (s *Source) WakeupListener(label Label) {
	s.mu.RLock()
	l, ok := s.subs[label]
	s.mu.RUnlock()

	if ok && l != nil {
		l.scheduleWake()
	}
}

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

// Package event implements the publish/subscribe primitives the transport
// core uses to move state notifications and framed cells both within a
// single event loop and across the worker pool's loops: a process-wide
// Registry of dense integer Labels, a Source that publishes Data under a
// Label to at most one subscribed Listener, and a Listener that queues,
// optionally coalesces, and drains pending events on its own loop.
package event

import "sync"

// Label is a dense, process-stable event identifier handed out by a Registry.
type Label int64

// Registry hands out monotonically increasing Labels. It is not a bare
// package-level global: callers thread a *Registry through construction
// (see the Runtime design note in spec.md §9), typically one per process.
type Registry struct {
	mu     sync.Mutex
	next   Label
	labels map[Label]string
}

func NewRegistry() *Registry {
	return &Registry{labels: make(map[Label]string)}
}

// Register allocates a new Label, optionally attaching a human-readable
// description for diagnostics.
func (r *Registry) Register(help string) Label {
	r.mu.Lock()
	defer r.mu.Unlock()

	l := r.next
	r.next++
	r.labels[l] = help
	return l
}

// HelpLabel returns the description registered for label, or "" if unknown.
// An empty return does not mean label is unregistered: Register accepts an
// empty description. Use Registered to test allocation itself.
func (r *Registry) HelpLabel(label Label) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.labels[label]
}

// Registered reports whether label was ever handed out by this Registry's
// Register, regardless of whether a description was given alongside it.
func (r *Registry) Registered(label Label) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.labels[label]
	return ok
}

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

// ReplyQueue is the MPSC channel completed WorkItems cross back over to
// land on their owning loop. Workers push concurrently under mu; the owner
// drains with Drain, woken by the buffered wake channel standing in for the
// self-pipe trick a libevent loop would poll as a readable fd — a channel
// select achieves the same "wake the loop without busy-polling" effect
// without binding this package to a particular reactor.
type ReplyQueue struct {
	mu   sync.Mutex
	q    []completedItem
	wake chan struct{}
}

type completedItem struct {
	item   WorkItem
	status ReplyStatus
	result interface{}
}

func NewReplyQueue() *ReplyQueue {
	return &ReplyQueue{wake: make(chan struct{}, 1)}
}

// Wake is the channel the owning loop selects on to learn replies are ready.
func (rq *ReplyQueue) Wake() <-chan struct{} {
	return rq.wake
}

// push is called by a worker once an item's Fn has returned.
func (rq *ReplyQueue) push(item WorkItem, status ReplyStatus, result interface{}) {
	rq.mu.Lock()
	rq.q = append(rq.q, completedItem{item: item, status: status, result: result})
	rq.mu.Unlock()

	select {
	case rq.wake <- struct{}{}:
	default:
	}
}

// Drain pops every currently-queued reply and invokes each item's Reply
// function. Called from the owning loop only.
func (rq *ReplyQueue) Drain() {
	rq.mu.Lock()
	batch := rq.q
	rq.q = nil
	rq.mu.Unlock()

	for _, c := range batch {
		if c.item.Reply != nil {
			c.item.Reply(c.status, c.result, c.item.Arg)
		}
	}
}

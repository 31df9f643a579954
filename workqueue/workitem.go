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

// Package workqueue implements the fixed worker pool the transport core runs
// each connection's event loop on: N worker threads plus the main thread
// (index 0), each popping prioritized work items from its own queue and
// replying back to the owning loop through a mutex-guarded MPSC reply queue.
package workqueue

// Priority orders pending work within a single worker's queue.
type Priority int

const (
	Low Priority = iota
	Medium
	High
)

// priorityCount is the number of Priority levels, used to size per-worker
// queue arrays without a map.
const priorityCount = 3

// ReplyStatus tells a WorkItem's reply function how its work function
// concluded.
type ReplyStatus int

const (
	// ReplyOK: the work function ran to completion and produced Result.
	ReplyOK ReplyStatus = iota
	// ReplyError: the work function failed; Result carries whatever it put there.
	ReplyError
	// ReplyShutdown: the pool shut down before this item ran (or while it
	// was still queued); the reply function must free arg itself.
	ReplyShutdown
)

// WorkFn is a unit of work executed on a worker thread. It receives the
// pool-wide state shared by every worker and the item's own argument, and
// returns a result plus the status to report back.
type WorkFn func(state interface{}, arg interface{}) (result interface{}, status ReplyStatus)

// ReplyFn runs back on the owning loop (never on the worker) once a WorkItem
// finishes or is abandoned at shutdown.
type ReplyFn func(status ReplyStatus, result interface{}, arg interface{})

// WorkItem is one unit of prioritized work plus its reply wiring.
type WorkItem struct {
	Priority Priority
	Fn       WorkFn
	Reply    ReplyFn
	Arg      interface{}

	// replyTo identifies which worker's/loop's ReplyQueue the completed
	// item should land on; set by Pool.Submit from the caller's loop id.
	replyTo int
}

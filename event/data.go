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

// Data is the payload carried by one event. It replaces the C union plus
// free_data_fn pair: anything that needs cleanup when dropped unconsumed
// (a borrowed cell buffer, a pooled connection slot) implements Close.
type Data interface {
	Close() error
}

// noopData is the zero-cost Data used for signal-only events that carry no
// payload (wakeups, "connection closed").
type noopData struct{}

func (noopData) Close() error { return nil }

// Signal returns a Data carrying nothing, for events whose Label alone is
// the message.
func Signal() Data { return noopData{} }

// entry pairs a Label with its Data, the unit a Source publishes and a
// Listener queues.
type entry struct {
	label Label
	data  Data
}

func closeDiscarded(d Data) {
	if d != nil {
		_ = d.Close()
	}
}

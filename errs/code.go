/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
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

// Package errs classifies the transport core's failures into the error kinds
// named by the spec's error handling design: I/O fatal, protocol violation,
// authentication failure and programming error. Transient I/O and
// backpressure are not represented here — they are not errors, they are gate
// flag adjustments (see package bucket and package conn).
package errs

import "fmt"

// Code groups errors the way an HTTP status groups responses: a small,
// stable, comparable classification that survives wrapping.
type Code uint16

const (
	CodeUnknown Code = iota
	// CodeIOFatal covers TLS close, non-EAGAIN socket errors, SO_ERROR != 0.
	CodeIOFatal
	// CodeProtocolViolation covers malformed or out-of-order handshake cells.
	CodeProtocolViolation
	// CodeAuthFailure covers certificate chain and AUTHENTICATE verification failures.
	CodeAuthFailure
	// CodeProgrammingError covers invariant violations: invalid state, missing
	// callback, magic-tag mismatch. Fail-fast in debug builds.
	CodeProgrammingError
)

func (c Code) String() string {
	switch c {
	case CodeIOFatal:
		return "io_fatal"
	case CodeProtocolViolation:
		return "protocol_violation"
	case CodeAuthFailure:
		return "auth_failure"
	case CodeProgrammingError:
		return "programming_error"
	default:
		return "unknown"
	}
}

// Error builds a new Error of this Code, optionally wrapping a parent error.
func (c Code) Error(parent error) Error {
	e := &ers{c: c, m: fmt.Sprintf("[%s]", c.String())}
	if parent != nil {
		e.p = append(e.p, parent)
	}
	return e
}

// Errorf is like Error but with a formatted message appended after the code tag.
func (c Code) Errorf(parent error, format string, args ...interface{}) Error {
	e := &ers{c: c, m: fmt.Sprintf("[%s] %s", c.String(), fmt.Sprintf(format, args...))}
	if parent != nil {
		e.p = append(e.p, parent)
	}
	return e
}

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

package errs

import "strings"

// Error extends the standard error with a Code and an optional parent chain,
// so callers can branch on kind (errors.Is-style) instead of string matching.
type Error interface {
	error
	Code() Code
	IsCode(c Code) bool
	// Add appends parent errors to this error's chain, flattening any *ers
	// already present in the parent to avoid deep nesting.
	Add(parent ...error)
	Parents() []error
}

type ers struct {
	c Code
	m string
	p []error
}

func (e *ers) Error() string {
	if len(e.p) == 0 {
		return e.m
	}

	var s []string
	for _, p := range e.p {
		if p != nil {
			s = append(s, p.Error())
		}
	}

	if len(s) == 0 {
		return e.m
	}

	return e.m + ": " + strings.Join(s, "; ")
}

func (e *ers) Code() Code {
	return e.c
}

func (e *ers) IsCode(c Code) bool {
	return e.c == c
}

func (e *ers) Add(parent ...error) {
	for _, p := range parent {
		if p == nil {
			continue
		}
		if o, ok := p.(*ers); ok {
			e.p = append(e.p, o.Parents()...)
			continue
		}
		e.p = append(e.p, p)
	}
}

func (e *ers) Parents() []error {
	return e.p
}

// Is reports whether target shares this error's Code, supporting errors.Is.
func (e *ers) Is(target error) bool {
	o, ok := target.(Error)
	if !ok {
		return false
	}
	return e.IsCode(o.Code())
}

/*
 * MIT License
 *
 * Copyright (c) 2021 Nicolas JUHEL
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

package logging

// Entry is a single log message under construction. The chain
// Entry(lvl, msg).Field(...).ErrorAdd(err).Check(okLevel) mirrors the
// teacher's logger/entry package: fields and an optional error accumulate
// before a single Log (or Check) call emits the message.
type Entry interface {
	Field(key string, val interface{}) Entry
	ErrorAdd(err error) Entry
	Log()
	// Check logs at the entry's level if an error was attached, or at
	// okLevel (unless okLevel is NilLevel) when none was. Returns true
	// when no error was attached.
	Check(okLevel Level) bool
}

type entry struct {
	l    *lgr
	lvl  Level
	msg  string
	args []interface{}
	err  error
}

func (e *entry) Field(key string, val interface{}) Entry {
	e.args = append(e.args, key, val)
	return e
}

func (e *entry) ErrorAdd(err error) Entry {
	if err != nil {
		e.err = err
	}
	return e
}

func (e *entry) Log() {
	args := e.args
	if e.err != nil {
		args = append(args, "error", e.err)
	}

	switch e.lvl {
	case DebugLevel:
		e.l.Debug(e.msg, args...)
	case InfoLevel:
		e.l.Info(e.msg, args...)
	case WarnLevel:
		e.l.Warning(e.msg, args...)
	case ErrorLevel:
		e.l.Error(e.msg, args...)
	}
}

func (e *entry) Check(okLevel Level) bool {
	if e.err != nil {
		e.Log()
		return false
	}

	if okLevel != NilLevel {
		e.lvl = okLevel
		e.Log()
	}

	return true
}

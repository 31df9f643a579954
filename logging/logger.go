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

// Package logging gives every component of the transport core a uniform,
// chainable way to report what happened, modeled on the Entry/Check pattern
// used throughout the teacher toolkit's logger package, backed by
// hashicorp/go-hclog instead of a multi-hook fan-out since this module has
// exactly one operational sink.
package logging

import (
	"os"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// FuncLog is injected into constructors so a component can resolve its
// logger lazily, exactly like the teacher's liblog.FuncLog.
type FuncLog func() Logger

// Logger is the minimal surface the transport core needs: level control and
// an Entry builder for structured messages.
type Logger interface {
	SetLevel(lvl Level)
	GetLevel() Level

	Debug(message string, args ...interface{})
	Info(message string, args ...interface{})
	Warning(message string, args ...interface{})
	Error(message string, args ...interface{})

	Entry(lvl Level, message string) Entry

	Named(name string) Logger
}

type lgr struct {
	m   sync.RWMutex
	lvl Level
	hc  hclog.Logger
}

func New(name string) Logger {
	l := &lgr{
		lvl: InfoLevel,
	}
	l.hc = hclog.New(&hclog.LoggerOptions{
		Name:  name,
		Level: l.lvl.hclog(),
		Output: os.Stderr,
	})
	return l
}

func (l *lgr) SetLevel(lvl Level) {
	l.m.Lock()
	defer l.m.Unlock()
	l.lvl = lvl
	l.hc.SetLevel(lvl.hclog())
}

func (l *lgr) GetLevel() Level {
	l.m.RLock()
	defer l.m.RUnlock()
	return l.lvl
}

func (l *lgr) hclog() hclog.Logger {
	l.m.RLock()
	defer l.m.RUnlock()
	return l.hc
}

func (l *lgr) Debug(message string, args ...interface{}) {
	l.hclog().Debug(message, args...)
}

func (l *lgr) Info(message string, args ...interface{}) {
	l.hclog().Info(message, args...)
}

func (l *lgr) Warning(message string, args ...interface{}) {
	l.hclog().Warn(message, args...)
}

func (l *lgr) Error(message string, args ...interface{}) {
	l.hclog().Error(message, args...)
}

func (l *lgr) Entry(lvl Level, message string) Entry {
	return &entry{l: l, lvl: lvl, msg: message}
}

func (l *lgr) Named(name string) Logger {
	return &lgr{lvl: l.GetLevel(), hc: l.hclog().Named(name)}
}

var (
	defOnce sync.Once
	defLog  Logger
)

// GetDefault returns a process-wide fallback logger, used when a component
// was constructed with a nil FuncLog — mirrors liblog.GetDefault().
func GetDefault() Logger {
	defOnce.Do(func() {
		defLog = New("orlink")
	})
	return defLog
}

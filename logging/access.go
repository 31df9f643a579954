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

import (
	"time"

	"go.uber.org/zap"
)

// AccessLog is a separate, structured audit trail for connection lifecycle
// events (canonical/open/closed, peer identity, NETINFO skew). It is kept
// apart from the hclog operational sink on purpose: operators typically
// ship this one to a different pipeline (SIEM, connection audit index) than
// debug/warn noise, which is exactly why several pack repos run a zap
// logger alongside a separate operational logger rather than merging both
// into one sink.
type AccessLog struct {
	z *zap.Logger
}

func NewAccessLog(z *zap.Logger) *AccessLog {
	if z == nil {
		z, _ = zap.NewProduction()
	}
	return &AccessLog{z: z}
}

// Connection records one lifecycle transition for a connection identified
// by connID (a github.com/google/uuid string, see conn.OR.ID()).
func (a *AccessLog) Connection(connID, event string, fields ...zap.Field) {
	all := append([]zap.Field{
		zap.String("conn_id", connID),
		zap.String("event", event),
		zap.Time("at", time.Now()),
	}, fields...)
	a.z.Info("connection event", all...)
}

func (a *AccessLog) Sync() error {
	return a.z.Sync()
}

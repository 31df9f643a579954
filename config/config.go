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

// Package config loads the transport core's recognized knobs through
// github.com/spf13/viper, the same library the teacher toolkit wraps in its
// own config/viper packages. This module skips that wrapper's component
// registry (there is exactly one component here, not a pluggable list of
// database/log/mail components) and binds viper directly to a flat Knobs
// struct instead.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/nabbar/orlink/handshake"
)

// Knobs is every recognized configuration value from spec.md §6 plus the
// supplemented listen/dial TLS and padding defaults this expansion adds.
type Knobs struct {
	// NumEventLoops is the worker pool's thread count ("num_eventloops").
	NumEventLoops int `mapstructure:"num_eventloops"`

	// TimestepMS is the throughput ring's bucket width in milliseconds
	// ("timestep_ms"), 500 by default per spec.md §4.3.
	TimestepMS int `mapstructure:"timestep_ms"`

	// ReadRateBytes/ReadBurstBytes/WriteRateBytes/WriteBurstBytes seed the
	// default token bucket handed to new connections; adjust_buckets can
	// still override a specific connection's pair at runtime.
	ReadRateBytes   uint64 `mapstructure:"read_rate_bytes"`
	ReadBurstBytes  uint64 `mapstructure:"read_burst_bytes"`
	WriteRateBytes  uint64 `mapstructure:"write_rate_bytes"`
	WriteBurstBytes uint64 `mapstructure:"write_burst_bytes"`

	// AuthMethods is the preferred AUTH_CHALLENGE method ordering, most
	// preferred first. Empty means fall back to the package default order.
	AuthMethods []handshake.AuthMethod `mapstructure:"-"`
	AuthMethodNames []string `mapstructure:"auth_methods"`

	// NetinfoSkewToleranceSeconds bounds how stale a peer's NETINFO
	// timestamp may be before its clock-skew sample is discarded (spec.md
	// §4.6 uses 180s; supplemented as a knob rather than a hardcoded
	// constant so a deployment can tune it without a rebuild).
	NetinfoSkewToleranceSeconds int `mapstructure:"netinfo_skew_tolerance_seconds"`

	// PaddingLowMS/PaddingHighMS seed the default PADDING_NEGOTIATE bounds
	// advertised before any peer negotiation happens.
	PaddingLowMS  uint16 `mapstructure:"padding_low_ms"`
	PaddingHighMS uint16 `mapstructure:"padding_high_ms"`

	// ListenAddr is where cmd/orrelayd accepts incoming OR connections.
	ListenAddr string `mapstructure:"listen_addr"`

	// TLSCertFile/TLSKeyFile are the link certificate and key cmd/orrelayd
	// loads for the server-side TLS session (spec.md §4.5's "construct TLS
	// session", tlslayer.NewServer's inputs).
	TLSCertFile string `mapstructure:"tls_cert_file"`
	TLSKeyFile  string `mapstructure:"tls_key_file"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("num_eventloops", 4)
	v.SetDefault("timestep_ms", 500)
	v.SetDefault("read_rate_bytes", uint64(1<<20))
	v.SetDefault("read_burst_bytes", uint64(1<<20))
	v.SetDefault("write_rate_bytes", uint64(1<<20))
	v.SetDefault("write_burst_bytes", uint64(1<<20))
	v.SetDefault("auth_methods", []string{"ed25519_sha256_rfc5705", "rsa_sha256_rfc5705", "rsa_sha256_tlssecret"})
	v.SetDefault("netinfo_skew_tolerance_seconds", 180)
	v.SetDefault("padding_low_ms", uint16(1000))
	v.SetDefault("padding_high_ms", uint16(9000))
	v.SetDefault("listen_addr", "0.0.0.0:9001")
}

// Load reads configuration from viper's built-in defaults, the file at
// path (if non-empty), and environment variables prefixed ORLINK_, in
// increasing order of priority: environment values win over file values,
// and both win over defaults, matching viper's own precedence rules.
func Load(path string) (Knobs, error) {
	v := viper.New()
	defaults(v)
	v.SetEnvPrefix("orlink")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Knobs{}, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	var k Knobs
	if err := v.Unmarshal(&k); err != nil {
		return Knobs{}, fmt.Errorf("config: unmarshal: %w", err)
	}

	methods, err := parseAuthMethods(k.AuthMethodNames)
	if err != nil {
		return Knobs{}, err
	}
	k.AuthMethods = methods

	return k, nil
}

func parseAuthMethods(names []string) ([]handshake.AuthMethod, error) {
	out := make([]handshake.AuthMethod, 0, len(names))
	for _, n := range names {
		switch n {
		case "rsa_sha256_tlssecret":
			out = append(out, handshake.AuthRSASHA256TLSSecret)
		case "rsa_sha256_rfc5705":
			out = append(out, handshake.AuthRSASHA256RFC5705)
		case "ed25519_sha256_rfc5705":
			out = append(out, handshake.AuthEd25519SHA256RFC5705)
		default:
			return nil, fmt.Errorf("config: unknown auth method %q", n)
		}
	}
	return out, nil
}

// Timestep returns TimestepMS as a time.Duration, the unit every ring and
// bucket constructor in this module actually wants.
func (k Knobs) Timestep() time.Duration {
	return time.Duration(k.TimestepMS) * time.Millisecond
}

// NetinfoSkewTolerance returns NetinfoSkewToleranceSeconds as a
// time.Duration.
func (k Knobs) NetinfoSkewTolerance() time.Duration {
	return time.Duration(k.NetinfoSkewToleranceSeconds) * time.Second
}

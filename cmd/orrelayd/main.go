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

// Command orrelayd is the supplemental process entry point that exercises
// the transport core end to end: load config, build a worker pool, accept
// OR connections, drive each through the link handshake. Nothing in
// spec.md names a process boundary (original_source's channeltls.c and
// safe_connection.c are library code inside a larger relay daemon), but a
// complete Go repository implementing this subsystem needs one.
package main

import (
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/nabbar/orlink/config"
)

var (
	flagConfigFile string
	flagListen     string
	flagMetrics    string
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orrelayd",
		Short: "Inter-relay transport daemon",
		Long:  "orrelayd accepts incoming OR connections, drives the TLS and link handshake, and frames cells for the circuit layer above it.",
		RunE:  runServe,
	}

	flags := cmd.Flags()
	flags.StringVar(&flagConfigFile, "config", "", "path to a YAML/JSON/TOML config file (optional; defaults + env otherwise)")
	flags.StringVar(&flagListen, "listen", "", "override config's listen_addr")
	flags.StringVar(&flagMetrics, "metrics-addr", ":9101", "address to serve /metrics on")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(flagConfigFile)
	if err != nil {
		return err
	}
	if flagListen != "" {
		cfg.ListenAddr = flagListen
	}

	app, err := newApplication(cfg)
	if err != nil {
		return err
	}
	defer app.shutdown()

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("orrelayd: listening on %s: %w", cfg.ListenAddr, err)
	}
	defer ln.Close()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", app.metrics.Handler())
		_ = http.ListenAndServe(flagMetrics, mux)
	}()

	app.log().Info("orrelayd listening", "addr", cfg.ListenAddr, "num_eventloops", cfg.NumEventLoops)
	return app.serve(ln)
}

func main() {
	pflag.CommandLine.SortFlags = false
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

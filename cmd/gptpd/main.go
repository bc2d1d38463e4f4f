/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Command gptpd wires a gPTP node's ambient stack — YAML configuration,
// logging, Prometheus metrics — around the protocol core in package
// node. It does not itself talk to a NIC or a PHC: those are the
// platform-specific transport and hardware-clock implementations a
// deployment supplies through the gptpio interfaces, the explicit
// boundary the core is built against.
package main

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gptp-go/gptpd/clockquality"
	gptpconfig "github.com/gptp-go/gptpd/config"
	"github.com/gptp-go/gptpd/gptpio"
	"github.com/gptp-go/gptpd/node"
	"github.com/gptp-go/gptpd/protocol"
)

var (
	configPath string
	tickMillis int
)

var rootCmd = &cobra.Command{
	Use:   "gptpd",
	Short: "IEEE 802.1AS-2021 gPTP node daemon",
	Run: func(_ *cobra.Command, _ []string) {
		if err := run(); err != nil {
			log.Fatal(err)
		}
	},
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "/etc/gptpd.yaml", "path to the YAML configuration file")
	rootCmd.Flags().IntVar(&tickMillis, "tick-ms", 1, "core tick granularity, in milliseconds")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

// newPlatformTransport is the integration point a deployment must fill
// in: a gptpio.Transport bound to iface's raw socket and a
// gptpio.HardwareClock bound to that interface's PHC. Both are
// OS/NIC-specific and out of this core's scope (spec §1); gptpd ships
// without a default so it fails loudly instead of silently running with
// a fake clock.
func newPlatformTransport(iface string) (gptpio.Transport, gptpio.HardwareClock, gptpio.MonotonicClock, error) {
	return nil, nil, nil, &platformTransportError{iface: iface}
}

type platformTransportError struct{ iface string }

func (e *platformTransportError) Error() string {
	return "gptpd: no platform transport/hardware-clock wired for interface " +
		e.iface + "; integrate a gptpio.Transport and gptpio.HardwareClock for your NIC/PHC " +
		"(see package gptpio) or run cmd/gptpsim for an in-memory two-node demo"
}

func run() error {
	cfg, err := gptpconfig.ReadConfig(configPath)
	if err != nil {
		return err
	}
	log.SetLevel(parseLevelOrInfo(cfg.LogLevel))

	transport, hwClock, mono, err := newPlatformTransport(cfg.Interface)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	if cfg.MetricsListen != "" {
		go serveMetrics(cfg.MetricsListen, registry)
	}

	mac, err := transport.InterfaceMAC(cfg.Ports[0].PortNumber)
	if err != nil {
		return err
	}
	clockIdentity, err := protocol.NewClockIdentity(macToHardwareAddr(mac))
	if err != nil {
		return err
	}

	cq := clockquality.NewManager(clockquality.DefaultConfig())
	mgr := node.NewManager(clockIdentity, cfg.ToNodeConfig(), cq, transport, mono, hwClock, registry)

	tick := time.Duration(tickMillis) * time.Millisecond
	if tick <= 0 {
		tick = time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	log.Infof("gptpd: running with clock identity %s, tick %s", clockIdentity, tick)
	for now := range ticker.C {
		mgr.Tick(now)
	}
	return nil
}

func serveMetrics(listen string, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	log.Warningf("gptpd: metrics server exiting: %v", http.ListenAndServe(listen, mux))
}

func parseLevelOrInfo(s string) log.Level {
	lvl, err := log.ParseLevel(s)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

func macToHardwareAddr(mac [6]byte) []byte {
	return mac[:]
}

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

// Command gptpsim runs two gPTP nodes joined by an in-memory link
// (package simtransport) in one process: one becomes Master, the other
// Slave, and the demo logs each node's port role and current clock
// reading once a second as BMCA and the servo converge.
package main

import (
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gptp-go/gptpd/clockquality"
	"github.com/gptp-go/gptpd/node"
	"github.com/gptp-go/gptpd/protocol"
	"github.com/gptp-go/gptpd/simtransport"
)

var (
	duration  time.Duration
	linkDelay time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "gptpsim",
	Short: "in-memory two-node gPTP demo",
	Run: func(_ *cobra.Command, _ []string) {
		run()
	},
}

func init() {
	rootCmd.Flags().DurationVar(&duration, "duration", 10*time.Second, "how long to run the simulation")
	rootCmd.Flags().DurationVar(&linkDelay, "link-delay", 50*time.Microsecond, "one-way propagation delay of the simulated link")
}

func main() {
	log.SetLevel(log.InfoLevel)
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func newNode(name string, clockID protocol.ClockIdentity, transport *simtransport.Endpoint, clock *simtransport.Clock) *node.Manager {
	cfg := node.DefaultConfig()
	cfg.Ports = []node.PortConfig{node.DefaultPortConfig(1, 0)}
	cq := clockquality.NewManager(clockquality.DefaultConfig())
	mgr := node.NewManager(clockID, cfg, cq, transport, clock, clock, nil)
	log.Infof("gptpsim: node %s clock identity %s", name, clockID)
	return mgr
}

func run() {
	a, b := simtransport.NewPair(linkDelay)
	clockA := simtransport.NewClock(time.Unix(1_700_000_000, 0), 500_000)
	clockB := simtransport.NewClock(time.Unix(1_700_000_001, 500_000_000), 500_000) // starts 1.5s off

	nodeA := newNode("A", 1, a, clockA)
	nodeB := newNode("B", 2, b, clockB)

	tick := time.NewTicker(time.Millisecond)
	defer tick.Stop()
	report := time.NewTicker(time.Second)
	defer report.Stop()

	deadline := time.After(duration)
	for {
		select {
		case now := <-tick.C:
			nodeA.Tick(now)
			nodeB.Tick(now)
		case <-report.C:
			roleA, _ := nodeA.Role(1)
			roleB, _ := nodeB.Role(1)
			log.Infof("gptpsim: A role=%s clock=%s | B role=%s clock=%s",
				roleA, clockA.Now().Format(time.RFC3339Nano), roleB, clockB.Now().Format(time.RFC3339Nano))
		case <-deadline:
			return
		}
	}
}

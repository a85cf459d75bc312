// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/rocket_attitude/internal/app"
	"github.com/relabs-tech/rocket_attitude/internal/config"
)

func main() {
	configPath := flag.String("config", "", "optional configuration file")
	filter := flag.String("filter", "", "complementary, kalman or madgwick (default from config)")
	flag.Parse()

	log.Println("starting rocket-attitude (mock console)")

	if *configPath != "" {
		if err := config.InitGlobal(*configPath); err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	if err := app.RunMockConsole(*filter); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

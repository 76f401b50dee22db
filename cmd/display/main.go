// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/inertial_vio/internal/app"
	"github.com/relabs-tech/inertial_vio/internal/config"
)

func main() {
	configPath := flag.String("config", "./inertial_vio.txt", "path to configuration file")
	flag.Parse()

	log.Println("starting inertial-vio OLED display (MQTT subscriber)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunDisplay(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

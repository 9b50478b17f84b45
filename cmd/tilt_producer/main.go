// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Command tilt_producer reads the MPU-6050 at 250 Hz, estimates pitch and
// roll, and publishes them to MQTT.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/tilt_computer/internal/app"
	"github.com/relabs-tech/tilt_computer/internal/config"
)

func main() {
	configPath := flag.String("config", "./tilt_config.txt", "path to configuration file")
	reuse := flag.Bool("reuse-calibration", false, "load the gyro bias from CALIBRATION_FILE instead of measuring it")
	flag.Parse()

	log.Println("starting tilt-computer producer (MPU-6050 → MQTT)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg := config.Get()

	logger, err := app.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunTiltProducer(ctx, cfg, app.ProducerOptions{ReuseCalibration: *reuse}, logger); err != nil {
		logger.Fatalf("fatal: %v", err)
	}
}

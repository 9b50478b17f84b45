// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/relabs-tech/tilt_computer/internal/app"
	"github.com/relabs-tech/tilt_computer/internal/config"
)

// writes collects repeated -set flags.
type writes []string

func (w *writes) String() string { return strings.Join(*w, ",") }

func (w *writes) Set(v string) error {
	*w = append(*w, v)
	return nil
}

func main() {
	configPath := flag.String("config", "./tilt_config.txt", "path to configuration file")
	asJSON := flag.Bool("json", false, "print the dump as JSON")
	var set writes
	flag.Var(&set, "set", "write REGISTER=VALUE before dumping (repeatable), e.g. -set GYRO_CONFIG=0x08")
	flag.Parse()

	log.Println("starting MPU-6050 register dump")

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

	opts := app.RegisterDumpOptions{JSON: *asJSON, Writes: set}
	if err := app.RunRegisterDump(ctx, cfg, opts, os.Stdout, logger); err != nil {
		logger.Fatalf("fatal: %v", err)
	}
}

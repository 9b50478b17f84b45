// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/relabs-tech/tilt_computer/internal/config"
	"github.com/relabs-tech/tilt_computer/internal/telemetry"
)

// RunSerialConsole reads $PTILT sentences from SERIAL_PORT and prints them.
func RunSerialConsole(ctx context.Context, cfg *config.Config, w io.Writer, logger *zap.SugaredLogger) error {
	if cfg.SerialPort == "" {
		return fmt.Errorf("SERIAL_PORT is not set")
	}
	port, err := telemetry.OpenSerialPort(cfg.SerialPort, cfg.SerialBaudRate)
	if err != nil {
		return err
	}
	logger.Infof("serial_console: reading %s at %d baud", cfg.SerialPort, cfg.SerialBaudRate)

	// Closing the port unblocks the reader on shutdown.
	go func() {
		<-ctx.Done()
		port.Close()
	}()

	err = consumeTilt(ctx, port, w, logger)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// consumeTilt prints one line per valid sentence until r ends. Lines that
// are not $PTILT, or fail their checksum, are logged and skipped.
func consumeTilt(ctx context.Context, r io.Reader, w io.Writer, logger *zap.SugaredLogger) error {
	var bad int
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		s, err := telemetry.ParseTilt(line)
		if err != nil {
			bad++
			logger.Debugf("serial_console: skipping %q: %v", line, err)
			continue
		}
		status := ""
		if !s.Valid {
			status = "  (held)"
		}
		fmt.Fprintf(w, "[TILT]  tick=%-8d PITCH=%7.2f  ROLL=%7.2f%s\n", s.Tick, s.Pitch, s.Roll, status)
	}
	if bad > 0 {
		logger.Infof("serial_console: skipped %d unreadable lines", bad)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("serial read: %w", err)
	}
	return nil
}

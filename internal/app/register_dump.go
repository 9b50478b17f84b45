// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/relabs-tech/tilt_computer/internal/config"
	"github.com/relabs-tech/tilt_computer/internal/sensors"
)

// RegisterDumpOptions are command-line choices for RunRegisterDump.
type RegisterDumpOptions struct {
	JSON bool
	// Writes are NAME=VALUE or 0xNN=VALUE assignments applied before the dump.
	Writes []string
}

// RegisterConfigFile is the JSON export of a register dump.
type RegisterConfigFile struct {
	Version   int               `json:"version"`
	Device    string            `json:"device"`
	Timestamp string            `json:"timestamp"`
	Registers map[string]string `json:"registers"` // hex address -> hex value
}

// registerDevice is what the dump needs from the driver.
type registerDevice interface {
	WriteReg(ctx context.Context, reg, value byte) error
	Dump(ctx context.Context) ([]sensors.RegisterValue, error)
}

// RunRegisterDump wakes the MPU-6050, applies any requested writes and prints
// every readable register.
func RunRegisterDump(ctx context.Context, cfg *config.Config, opts RegisterDumpOptions, w io.Writer, logger *zap.SugaredLogger) (err error) {
	dev, closeDev, err := openIMU(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeDev()) }()

	return dumpRegisters(ctx, dev, opts, w, logger)
}

func dumpRegisters(ctx context.Context, dev registerDevice, opts RegisterDumpOptions, w io.Writer, logger *zap.SugaredLogger) error {
	for _, assign := range opts.Writes {
		reg, value, err := parseRegisterWrite(assign)
		if err != nil {
			return err
		}
		if err := dev.WriteReg(ctx, reg.Address, value); err != nil {
			return fmt.Errorf("write %s: %w", reg.Name, err)
		}
		logger.Infof("register_dump: wrote 0x%02X to %s (%s)", value, reg.Name, reg.Hex())
	}

	values, err := dev.Dump(ctx)
	if err != nil {
		return err
	}
	if opts.JSON {
		return writeRegisterJSON(w, values, time.Now().UTC())
	}
	return writeRegisterTable(w, values)
}

// parseRegisterWrite parses NAME=VALUE against the register map.
func parseRegisterWrite(assign string) (sensors.RegisterInfo, byte, error) {
	key, val, ok := strings.Cut(assign, "=")
	if !ok {
		return sensors.RegisterInfo{}, 0, fmt.Errorf("register write %q: want NAME=VALUE", assign)
	}
	key = strings.TrimSpace(key)
	reg, found := sensors.LookupRegister(strings.ToUpper(key))
	if !found {
		// Hex() formats with upper-case digits; accept either case.
		reg, found = sensors.LookupRegister("0x" + strings.ToUpper(strings.TrimPrefix(strings.ToLower(key), "0x")))
	}
	if !found {
		return sensors.RegisterInfo{}, 0, fmt.Errorf("register write %q: unknown register", assign)
	}
	if reg.Access == "R" {
		return sensors.RegisterInfo{}, 0, fmt.Errorf("register write %q: %s is read-only", assign, reg.Name)
	}
	v, err := strconv.ParseUint(strings.TrimSpace(val), 0, 8)
	if err != nil {
		return sensors.RegisterInfo{}, 0, fmt.Errorf("register write %q: %w", assign, err)
	}
	return reg, byte(v), nil
}

func writeRegisterTable(w io.Writer, values []sensors.RegisterValue) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ADDR\tNAME\tVALUE\tBINARY\tDESCRIPTION")
	for _, v := range values {
		fmt.Fprintf(tw, "%s\t%s\t0x%02X\t%08b\t%s\n", v.Hex(), v.Name, v.Value, v.Value, v.Description)
	}
	return tw.Flush()
}

func writeRegisterJSON(w io.Writer, values []sensors.RegisterValue, at time.Time) error {
	out := RegisterConfigFile{
		Version:   1,
		Device:    "mpu6050",
		Timestamp: at.Format(time.RFC3339),
		Registers: make(map[string]string, len(values)),
	}
	for _, v := range values {
		out.Registers[v.Hex()] = fmt.Sprintf("0x%02X", v.Value)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

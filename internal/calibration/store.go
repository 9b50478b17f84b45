// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SchemaVersion is the current Record layout.
const SchemaVersion = 1

// Record is the JSON file written after a calibration run.
type Record struct {
	SchemaVersion int       `json:"schema_version"`
	CalibrationAt time.Time `json:"calibration_at"`
	Samples       int       `json:"samples"`
	GyroBias      Offsets   `json:"gyro_bias"`
}

// Save writes rec to path, creating the parent directory if needed.
func Save(path string, rec Record) error {
	if rec.SchemaVersion == 0 {
		rec.SchemaVersion = SchemaVersion
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("calibration: marshal: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("calibration: create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("calibration: write %s: %w", path, err)
	}
	return nil
}

// Load reads a record written by Save.
func Load(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, fmt.Errorf("calibration: read %s: %w", path, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("calibration: parse %s: %w", path, err)
	}
	return rec, nil
}

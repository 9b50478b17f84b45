// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/relabs-tech/tilt_computer/internal/calibration"
	"github.com/relabs-tech/tilt_computer/internal/compensation"
	"github.com/relabs-tech/tilt_computer/internal/config"
	"github.com/relabs-tech/tilt_computer/internal/imu"
	"github.com/relabs-tech/tilt_computer/internal/orientation"
	"github.com/relabs-tech/tilt_computer/internal/units"
)

// resolveSensor turns the configured full-scale selections into scale
// factors. An unknown selection is fatal.
func resolveSensor(cfg *config.Config) (units.SensorConfig, error) {
	sensor, err := units.Resolve(units.GyroFullScale(cfg.GyroFullScale), units.AccelFullScale(cfg.AccelFullScale))
	if err != nil {
		return units.SensorConfig{}, fmt.Errorf("sensor config: %w", err)
	}
	return sensor, nil
}

// estimatorParams collects everything the estimator needs from config.
func estimatorParams(cfg *config.Config, sensor units.SensorConfig, offsets calibration.Offsets) (orientation.Params, error) {
	coupling, err := orientation.ParseCoupling(cfg.YawCoupling)
	if err != nil {
		return orientation.Params{}, err
	}
	mode, err := compensation.ParseMode(cfg.TempCompensation)
	if err != nil {
		return orientation.Params{}, err
	}
	return orientation.Params{
		Sensor:      sensor,
		Offsets:     offsets,
		SampleRate:  cfg.SampleRate(),
		PitchOffset: cfg.AccelPitchOffset,
		RollOffset:  cfg.AccelRollOffset,
		Coupling:    coupling,
		TempMode:    mode,
	}, nil
}

// indicators drives several calibration indicators as one.
type indicators []calibration.Indicator

func (in indicators) Set(on bool) error {
	var errs error
	for _, i := range in {
		errs = multierr.Append(errs, i.Set(on))
	}
	return errs
}

// calibrate measures the gyro bias, or reuses a stored one when asked to and
// the file is readable. A fresh result is written to cfg.CalibrationFile.
func calibrate(ctx context.Context, cfg *config.Config, src imu.Source, ind calibration.Indicator, reuse bool, logger *zap.SugaredLogger) (calibration.Offsets, error) {
	if reuse && cfg.CalibrationFile != "" {
		rec, err := calibration.Load(cfg.CalibrationFile)
		switch {
		case err == nil:
			logger.Infof("calibration: reusing %s from %s (X=%d Y=%d Z=%d)",
				cfg.CalibrationFile, rec.CalibrationAt.Format(time.RFC3339), rec.GyroBias.X, rec.GyroBias.Y, rec.GyroBias.Z)
			return rec.GyroBias, nil
		case errors.Is(err, os.ErrNotExist):
			logger.Infof("calibration: no stored calibration at %s, measuring", cfg.CalibrationFile)
		default:
			logger.Warnf("calibration: ignoring %s: %v", cfg.CalibrationFile, err)
		}
	}

	offsets, err := calibration.Run(ctx, src, calibration.Options{
		Samples:   cfg.CalibrationSamples,
		Delay:     cfg.CalibrationDelay(),
		Indicator: ind,
		Logger:    logger,
	})
	if err != nil {
		return calibration.Offsets{}, err
	}

	if cfg.CalibrationFile != "" {
		rec := calibration.Record{
			SchemaVersion: calibration.SchemaVersion,
			CalibrationAt: time.Now().UTC(),
			Samples:       cfg.CalibrationSamples,
			GyroBias:      offsets,
		}
		if err := calibration.Save(cfg.CalibrationFile, rec); err != nil {
			logger.Warnf("calibration: could not save: %v", err)
		} else {
			logger.Infof("calibration: saved to %s", cfg.CalibrationFile)
		}
	}
	return offsets, nil
}

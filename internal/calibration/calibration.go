// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package calibration measures the gyroscope zero-rate bias while the
// device is held still.
package calibration

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/relabs-tech/tilt_computer/internal/imu"
)

const (
	// DefaultSamples is the number of stationary reads averaged.
	DefaultSamples = 2000
	// DefaultDelay approximates the 250 Hz loop between reads.
	DefaultDelay = 3 * time.Millisecond

	progressEvery = 500
)

// Offsets is the per-axis gyro bias in raw counts.
type Offsets struct {
	X int32 `json:"x"`
	Y int32 `json:"y"`
	Z int32 `json:"z"`
}

// Indicator signals "calibrating" to the outside world (an LED, a gauge).
type Indicator interface {
	Set(on bool) error
}

// IndicatorFunc adapts a function to Indicator.
type IndicatorFunc func(on bool) error

// Set implements Indicator.
func (f IndicatorFunc) Set(on bool) error { return f(on) }

// Options configures Run. Samples <= 0 selects DefaultSamples and a negative
// Delay selects DefaultDelay; a zero Delay reads back to back.
type Options struct {
	Samples   int
	Delay     time.Duration
	Indicator Indicator
	Logger    *zap.SugaredLogger
}

// Run reads opts.Samples samples from src and returns the mean raw gyro
// reading per axis. The mean uses integer division, so any fractional bias
// is truncated toward zero. The indicator is on for the whole run.
func Run(ctx context.Context, src imu.Source, opts Options) (Offsets, error) {
	if opts.Samples <= 0 {
		opts.Samples = DefaultSamples
	}
	if opts.Delay < 0 {
		opts.Delay = DefaultDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	if opts.Indicator != nil {
		if err := opts.Indicator.Set(true); err != nil {
			logger.Warnf("calibration: indicator on: %v", err)
		}
		defer func() {
			if err := opts.Indicator.Set(false); err != nil {
				logger.Warnf("calibration: indicator off: %v", err)
			}
		}()
	}

	logger.Infof("calibration: keep the sensor still, averaging %d gyro samples", opts.Samples)
	start := time.Now()

	var sumX, sumY, sumZ int64
	saturated := 0
	for i := 0; i < opts.Samples; i++ {
		s, err := src.NextRaw(ctx)
		if err != nil {
			return Offsets{}, fmt.Errorf("calibration sample %d/%d: %w", i+1, opts.Samples, err)
		}
		if s.CheckSaturation() != nil {
			saturated++
		}
		sumX += int64(s.Gx)
		sumY += int64(s.Gy)
		sumZ += int64(s.Gz)

		if (i+1)%progressEvery == 0 {
			logger.Debugf("calibration: %d/%d samples", i+1, opts.Samples)
		}
		if opts.Delay > 0 {
			if err := sleep(ctx, opts.Delay); err != nil {
				return Offsets{}, fmt.Errorf("calibration: %w", err)
			}
		}
	}

	n := int64(opts.Samples)
	off := Offsets{
		X: int32(sumX / n),
		Y: int32(sumY / n),
		Z: int32(sumZ / n),
	}
	if saturated > 0 {
		logger.Warnf("calibration: %d of %d samples were saturated; was the sensor moving?", saturated, opts.Samples)
	}
	logger.Infof("calibration complete in %s: gyro bias X=%d Y=%d Z=%d",
		time.Since(start).Round(time.Millisecond), off.X, off.Y, off.Z)
	return off, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

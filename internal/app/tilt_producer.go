// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/tilt_computer/internal/calibration"
	"github.com/relabs-tech/tilt_computer/internal/config"
	"github.com/relabs-tech/tilt_computer/internal/imu"
	"github.com/relabs-tech/tilt_computer/internal/metrics"
	"github.com/relabs-tech/tilt_computer/internal/orientation"
	"github.com/relabs-tech/tilt_computer/internal/pipeline"
	"github.com/relabs-tech/tilt_computer/internal/sensors"
	"github.com/relabs-tech/tilt_computer/internal/telemetry"
)

// ProducerOptions are command-line choices for RunTiltProducer.
type ProducerOptions struct {
	// ReuseCalibration loads CALIBRATION_FILE instead of measuring when the
	// file exists.
	ReuseCalibration bool
}

// RunTiltProducer brings up the MPU-6050, calibrates the gyro, then runs the
// 250 Hz estimator loop publishing to MQTT (and serial, if configured) until
// ctx is cancelled.
func RunTiltProducer(ctx context.Context, cfg *config.Config, opts ProducerOptions, logger *zap.SugaredLogger) (err error) {
	logger.Info("starting tilt producer (MPU-6050 → MQTT)")

	dev, closeDev, err := openIMU(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeDev()) }()

	collector := metrics.New()
	ind := indicators{collector.Indicator()}
	if cfg.LEDPin != "" {
		led, lerr := sensors.OpenLED(cfg.LEDPin)
		if lerr != nil {
			logger.Warnf("led: %v (continuing without indicator)", lerr)
		} else {
			ind = append(ind, led)
		}
	}

	// --- telemetry ---
	client, err := telemetry.Connect(cfg.MQTTBroker, cfg.MQTTClientIDProducer, logger)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	sinks := telemetry.Fanout{
		telemetry.NewMQTTSink(client, telemetry.Topics{
			Pose:   cfg.TopicPose,
			Raw:    cfg.TopicIMURaw,
			Faults: cfg.TopicFaults,
		}, cfg.PublishEvery, cfg.SamplePeriod()/4),
	}
	if cfg.SerialPort != "" {
		port, perr := telemetry.OpenSerialPort(cfg.SerialPort, cfg.SerialBaudRate)
		if perr != nil {
			return perr
		}
		defer func() { err = multierr.Append(err, port.Close()) }()
		logger.Infof("serial: writing $PTILT on %s at %d baud", cfg.SerialPort, cfg.SerialBaudRate)
		sinks = append(sinks, telemetry.NewSerialSink(port, cfg.PublishEvery))
	}

	return runLoop(ctx, cfg, dev, ind, collector, sinks, opts.ReuseCalibration, logger)
}

// openIMU opens the configured bus and brings up the MPU-6050 on it. The
// returned close func puts the sensor to sleep and releases the bus.
func openIMU(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (*sensors.Dev, func() error, error) {
	sensor, err := resolveSensor(cfg)
	if err != nil {
		return nil, nil, err
	}
	bus, err := sensors.OpenBus(cfg.I2CBus, sensors.FastMode)
	if err != nil {
		return nil, nil, err
	}
	dev, err := sensors.New(ctx, bus, sensor, &sensors.Opts{
		Addr:    cfg.IMUI2CAddr,
		Timeout: cfg.BusTimeout(),
		Retries: cfg.BusRetries,
		Logger:  logger,
	})
	if err != nil {
		return nil, nil, multierr.Append(err, bus.Close())
	}
	closeFn := func() error {
		var errs error
		if err := dev.Halt(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("mpu6050: sleep: %w", err))
		}
		return multierr.Append(errs, bus.Close())
	}
	return dev, closeFn, nil
}

// RunCalibration measures the gyro bias once and stores it in
// CALIBRATION_FILE for later runs with reuse enabled.
func RunCalibration(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (err error) {
	if cfg.CalibrationFile == "" {
		return fmt.Errorf("CALIBRATION_FILE is not set")
	}
	dev, closeDev, err := openIMU(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeDev()) }()

	var ind indicators
	if cfg.LEDPin != "" {
		if led, lerr := sensors.OpenLED(cfg.LEDPin); lerr != nil {
			logger.Warnf("led: %v (continuing without indicator)", lerr)
		} else {
			ind = append(ind, led)
		}
	}
	_, err = calibrate(ctx, cfg, dev, ind, false, logger)
	return err
}

// runLoop calibrates src and runs the pipeline, serving metrics alongside.
func runLoop(
	ctx context.Context,
	cfg *config.Config,
	src imu.Source,
	ind calibration.Indicator,
	collector *metrics.Collector,
	sink pipeline.Sink,
	reuse bool,
	logger *zap.SugaredLogger,
) error {
	sensor, err := resolveSensor(cfg)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	loopCtx, stop := context.WithCancel(gctx)
	defer stop()

	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return collector.Serve(loopCtx, cfg.MetricsAddr, logger)
		})
	}

	g.Go(func() error {
		// The metrics server lives exactly as long as the loop.
		defer stop()

		offsets, err := calibrate(loopCtx, cfg, src, ind, reuse, logger)
		if err != nil {
			if loopCtx.Err() != nil {
				return nil
			}
			return err
		}
		collector.SetCalibration(offsets)

		params, err := estimatorParams(cfg, sensor, offsets)
		if err != nil {
			return err
		}
		logger.Infof("estimator: %s, yaw coupling %s, temperature %s, level offsets pitch=%.2f roll=%.2f",
			params.Sensor, params.Coupling, params.TempMode, params.PitchOffset, params.RollOffset)

		p := pipeline.New(src, orientation.NewEstimator(params), sink, pipeline.Options{
			Period:   cfg.SamplePeriod(),
			Observer: collector,
			Logger:   logger,
		})
		return p.Run(loopCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("tilt producer: stopped")
	return nil
}

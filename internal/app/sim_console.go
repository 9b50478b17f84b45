// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/relabs-tech/tilt_computer/internal/calibration"
	"github.com/relabs-tech/tilt_computer/internal/config"
	"github.com/relabs-tech/tilt_computer/internal/imu"
	"github.com/relabs-tech/tilt_computer/internal/metrics"
	"github.com/relabs-tech/tilt_computer/internal/telemetry"
)

// simBias is the gyro offset the simulated sensor reports at rest, roughly
// what a real MPU-6050 shows out of the box.
var simBias = [3]int16{-42, 17, 5}

// RunSimConsole runs the full estimator against a simulated, gently rocking
// sensor and prints the pose to w. No hardware or broker is needed.
func RunSimConsole(ctx context.Context, cfg *config.Config, w io.Writer, logger *zap.SugaredLogger) error {
	logger.Info("starting simulated console (no hardware)")

	sim := *cfg
	// Simulated samples need no settling time and must not overwrite a real
	// sensor's stored calibration.
	sim.CalibrationDelayUS = 0
	sim.CalibrationFile = ""

	src := imu.NewWobbleSource(simBias)
	src.Rate = sim.SampleRate()

	every := sim.PublishEvery
	if every < 1 {
		every = 1
	}
	ind := calibration.IndicatorFunc(func(on bool) error {
		if on {
			logger.Info("calibration: hold still")
		}
		return nil
	})
	return runLoop(ctx, &sim, src, ind, metrics.New(), telemetry.NewConsoleSink(w, every), false, logger)
}

// RunSimProducer publishes the simulated sensor's pose to MQTT, for working
// on the web and display consumers without hardware.
func RunSimProducer(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) error {
	logger.Info("starting simulated producer (simulation → MQTT)")

	sim := *cfg
	sim.CalibrationDelayUS = 0
	sim.CalibrationFile = ""

	client, err := telemetry.Connect(sim.MQTTBroker, sim.MQTTClientIDProducer, logger)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	src := imu.NewWobbleSource(simBias)
	src.Rate = sim.SampleRate()
	sink := telemetry.NewMQTTSink(client, telemetry.Topics{
		Pose:   sim.TopicPose,
		Raw:    sim.TopicIMURaw,
		Faults: sim.TopicFaults,
	}, sim.PublishEvery, sim.SamplePeriod()/4)

	collector := metrics.New()
	return runLoop(ctx, &sim, src, collector.Indicator(), collector, sink, false, logger)
}

// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/relabs-tech/tilt_computer/internal/config"
	"github.com/relabs-tech/tilt_computer/internal/pipeline"
	"github.com/relabs-tech/tilt_computer/internal/telemetry"
)

// consolePrinter formats subscribed messages, one line each. Paho callbacks
// run on their own goroutines so writes are serialized.
type consolePrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *consolePrinter) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format, args...)
}

func (p *consolePrinter) pose(m telemetry.PoseMessage) {
	status := ""
	if m.Skipped {
		status = "  (held)"
	}
	p.printf("[POSE]  tick=%-8d PITCH=%7.2f  ROLL=%7.2f%s\n", m.Tick, m.Pitch, m.Roll, status)
}

func (p *consolePrinter) raw(m telemetry.RawMessage) {
	s := m.Raw
	p.printf("[IMU ]  ax=%6d ay=%6d az=%6d  gx=%6d gy=%6d gz=%6d  t=%6d\n",
		s.Ax, s.Ay, s.Az, s.Gx, s.Gy, s.Gz, s.Temp)
}

func (p *consolePrinter) fault(f pipeline.Fault) {
	p.printf("[FAULT] tick=%-8d %s: %s\n", f.Tick, f.Kind, f.Message)
}

// RunConsoleMQTT prints the producer's pose, raw and fault topics to w until
// ctx is cancelled.
func RunConsoleMQTT(ctx context.Context, cfg *config.Config, w io.Writer, logger *zap.SugaredLogger) error {
	client, err := telemetry.Connect(cfg.MQTTBroker, cfg.MQTTClientIDConsole, logger)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	p := &consolePrinter{w: w}
	if err := subscribeConsole(client, cfg, p, logger); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("console: shutting down")
	return nil
}

func subscribeConsole(client telemetry.Subscriber, cfg *config.Config, p *consolePrinter, logger *zap.SugaredLogger) error {
	if err := telemetry.SubscribePose(client, cfg.TopicPose, logger, p.pose); err != nil {
		return err
	}
	logger.Infof("console: subscribed to %s", cfg.TopicPose)

	if cfg.TopicIMURaw != "" {
		if err := telemetry.SubscribeRaw(client, cfg.TopicIMURaw, logger, p.raw); err != nil {
			return err
		}
		logger.Infof("console: subscribed to %s", cfg.TopicIMURaw)
	}
	if cfg.TopicFaults != "" {
		if err := telemetry.SubscribeFaults(client, cfg.TopicFaults, logger, p.fault); err != nil {
			return err
		}
		logger.Infof("console: subscribed to %s", cfg.TopicFaults)
	}
	return nil
}

// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package metrics exports loop and orientation statistics to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/relabs-tech/tilt_computer/internal/calibration"
	"github.com/relabs-tech/tilt_computer/internal/compensation"
	"github.com/relabs-tech/tilt_computer/internal/pipeline"
)

const namespace = "tilt"

// Collector implements pipeline.Observer on its own registry.
type Collector struct {
	reg *prometheus.Registry

	ticks       prometheus.Counter
	skipped     prometheus.Counter
	faults      *prometheus.CounterVec
	overruns    prometheus.Counter
	tickSeconds prometheus.Histogram
	pitch       prometheus.Gauge
	roll        prometheus.Gauge
	dieTemp     prometheus.Gauge
	gyroBias    *prometheus.GaugeVec
	calibrating prometheus.Gauge
}

// New creates and registers all metrics.
func New() *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Sample cycles run.",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_ticks_total",
			Help:      "Cycles that held the previous output.",
		}),
		faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "faults_total",
			Help:      "Reported per-tick faults by kind.",
		}, []string{"kind"}),
		overruns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overruns_total",
			Help:      "Cycles that finished after their deadline.",
		}),
		tickSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Time spent in one cycle before sleeping.",
			Buckets:   prometheus.ExponentialBuckets(50e-6, 2, 10),
		}),
		pitch: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pitch_degrees",
			Help:      "Smoothed pitch output.",
		}),
		roll: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "roll_degrees",
			Help:      "Smoothed roll output.",
		}),
		dieTemp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "die_temperature_celsius",
			Help:      "Sensor die temperature.",
		}),
		gyroBias: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gyro_bias_counts",
			Help:      "Calibrated gyro offset per axis.",
		}, []string{"axis"}),
		calibrating: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calibrating",
			Help:      "1 while the gyro bias is being measured.",
		}),
	}
	c.reg.MustRegister(c.ticks, c.skipped, c.faults, c.overruns, c.tickSeconds,
		c.pitch, c.roll, c.dieTemp, c.gyroBias, c.calibrating)
	for _, k := range pipeline.FaultKinds {
		c.faults.WithLabelValues(string(k))
	}
	return c
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.reg
}

// ObserveTick implements pipeline.Observer.
func (c *Collector) ObserveTick(out pipeline.Output, elapsed time.Duration) {
	c.ticks.Inc()
	c.tickSeconds.Observe(elapsed.Seconds())
	if out.Skipped {
		c.skipped.Inc()
	}
	for _, f := range out.Faults {
		c.faults.WithLabelValues(string(f.Kind)).Inc()
	}
	c.pitch.Set(out.Pose.Pitch)
	c.roll.Set(out.Pose.Roll)
	if !out.Skipped {
		c.dieTemp.Set(compensation.DieCelsius(out.Raw.Temp))
	}
}

// ObserveOverrun implements pipeline.Observer.
func (c *Collector) ObserveOverrun(time.Duration) {
	c.overruns.Inc()
}

// SetCalibration publishes the gyro offsets in use.
func (c *Collector) SetCalibration(off calibration.Offsets) {
	c.gyroBias.WithLabelValues("x").Set(float64(off.X))
	c.gyroBias.WithLabelValues("y").Set(float64(off.Y))
	c.gyroBias.WithLabelValues("z").Set(float64(off.Z))
}

// Indicator mirrors the calibration phase onto the calibrating gauge.
func (c *Collector) Indicator() calibration.Indicator {
	return calibration.IndicatorFunc(func(on bool) error {
		if on {
			c.calibrating.Set(1)
		} else {
			c.calibrating.Set(0)
		}
		return nil
	})
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (c *Collector) Serve(ctx context.Context, addr string, logger *zap.SugaredLogger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("metrics: shutdown: %v", err)
		}
	}()

	logger.Infof("metrics: serving on http://%s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package pipeline drives the fixed-period sample loop: read a raw sample,
// run the estimator, hand the result to a sink, then sleep until the next
// deadline.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/relabs-tech/tilt_computer/internal/imu"
	"github.com/relabs-tech/tilt_computer/internal/orientation"
)

// DefaultPeriod is the 250 Hz tick.
const DefaultPeriod = 4 * time.Millisecond

// Options configures a Pipeline. Zero values pick sensible defaults.
type Options struct {
	Period   time.Duration
	Clock    clock.Clock
	Observer Observer
	Logger   *zap.SugaredLogger
	// StatusEvery is the number of ticks between status log lines.
	StatusEvery uint64
}

// Stats are running counters since the pipeline was created.
type Stats struct {
	Ticks      uint64
	Skipped    uint64
	Faults     uint64
	Overruns   uint64
	SinkErrors uint64
}

// Pipeline owns the estimator state for the life of the loop. It is not
// safe for concurrent use.
type Pipeline struct {
	src    imu.Source
	est    *orientation.Estimator
	sink   Sink
	period time.Duration
	clk    clock.Clock
	obs    Observer
	logger *zap.SugaredLogger
	status uint64

	stats Stats
}

// New assembles a pipeline.
func New(src imu.Source, est *orientation.Estimator, sink Sink, opts Options) *Pipeline {
	p := &Pipeline{
		src:    src,
		est:    est,
		sink:   sink,
		period: opts.Period,
		clk:    opts.Clock,
		obs:    opts.Observer,
		logger: opts.Logger,
		status: opts.StatusEvery,
	}
	if p.period <= 0 {
		p.period = DefaultPeriod
	}
	if p.clk == nil {
		p.clk = clock.New()
	}
	if p.logger == nil {
		p.logger = zap.NewNop().Sugar()
	}
	if p.status == 0 {
		p.status = max(uint64(time.Minute/p.period), 1)
	}
	return p
}

// Stats returns a snapshot of the loop counters.
func (p *Pipeline) Stats() Stats {
	return p.stats
}

// Tick runs one sample cycle. Faults are reported on the returned Output;
// the only error is ctx's, when the loop has been asked to stop.
func (p *Pipeline) Tick(ctx context.Context) (Output, error) {
	start := p.clk.Now()
	p.stats.Ticks++
	out := Output{Tick: p.stats.Ticks, Time: start}

	raw, err := p.src.NextRaw(ctx)
	switch {
	case err != nil && ctx.Err() != nil:
		return out, ctx.Err()
	case err != nil:
		kind := FaultTransport
		if errors.Is(err, imu.ErrTransportTimeout) {
			kind = FaultTransportTimeout
		}
		out.Skipped = true
		out.Pose = p.est.State().Pose()
		out.Faults = append(out.Faults, Fault{Kind: kind, Tick: out.Tick, Message: err.Error()})
	default:
		out.Raw = raw
		if err := raw.CheckSaturation(); err != nil {
			out.Faults = append(out.Faults, Fault{Kind: FaultSaturation, Tick: out.Tick, Message: err.Error()})
		}
		pose, err := p.est.Update(raw)
		out.Pose = pose
		if err != nil {
			out.Skipped = true
			out.Faults = append(out.Faults, Fault{Kind: FaultDegenerateVector, Tick: out.Tick, Message: err.Error()})
		}
	}

	if out.Skipped {
		p.stats.Skipped++
	}
	for _, f := range out.Faults {
		p.stats.Faults++
		if p.stats.Faults == 1 || p.stats.Faults%p.status == 0 {
			p.logger.Warnf("pipeline: %v (%s faults so far)", f, humanize.Comma(int64(p.stats.Faults)))
		}
	}

	if p.sink != nil {
		if err := p.sink.Emit(ctx, out); err != nil {
			p.stats.SinkErrors++
			if p.stats.SinkErrors == 1 || p.stats.SinkErrors%p.status == 0 {
				p.logger.Warnf("pipeline: emit tick %d: %v", out.Tick, err)
			}
		}
	}
	if p.obs != nil {
		p.obs.ObserveTick(out, p.clk.Since(start))
	}
	return out, nil
}

// Run ticks every period until ctx is cancelled, which is the stop signal.
// It returns nil on a clean stop. A tick that overruns its deadline is
// counted and the schedule restarts from the current time instead of
// bursting to catch up.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Infof("pipeline: running at %s period (%.0f Hz)", p.period, float64(time.Second)/float64(p.period))
	deadline := p.clk.Now()
	for {
		if ctx.Err() != nil {
			p.logStatus("stopped")
			return nil
		}
		deadline = deadline.Add(p.period)

		if _, err := p.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				p.logStatus("stopped")
				return nil
			}
			return err
		}
		if p.stats.Ticks%p.status == 0 {
			p.logStatus("status")
		}

		if late := p.clk.Now().Sub(deadline); late > 0 {
			p.stats.Overruns++
			if p.obs != nil {
				p.obs.ObserveOverrun(late)
			}
			deadline = p.clk.Now()
			continue
		}
		if err := sleepUntil(ctx, p.clk, deadline); err != nil {
			p.logStatus("stopped")
			return nil
		}
	}
}

func (p *Pipeline) logStatus(what string) {
	pose := p.est.State().Pose()
	p.logger.Infof("pipeline: %s: %s ticks, %s skipped, %s faults, %s overruns, pitch=%.2f roll=%.2f",
		what,
		humanize.Comma(int64(p.stats.Ticks)),
		humanize.Comma(int64(p.stats.Skipped)),
		humanize.Comma(int64(p.stats.Faults)),
		humanize.Comma(int64(p.stats.Overruns)),
		pose.Pitch, pose.Roll)
}

// sleepUntil blocks until clk reaches deadline or ctx is done.
func sleepUntil(ctx context.Context, clk clock.Clock, deadline time.Time) error {
	d := deadline.Sub(clk.Now())
	if d <= 0 {
		return ctx.Err()
	}
	t := clk.Timer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package telemetry

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/multierr"

	"github.com/relabs-tech/tilt_computer/internal/pipeline"
)

// Fanout emits to every sink and combines their errors.
type Fanout []pipeline.Sink

// Emit implements pipeline.Sink.
func (f Fanout) Emit(ctx context.Context, out pipeline.Output) error {
	var errs error
	for _, s := range f {
		errs = multierr.Append(errs, s.Emit(ctx, out))
	}
	return errs
}

// ConsoleSink prints pitch and roll every Nth tick, one line per report.
type ConsoleSink struct {
	w     io.Writer
	every uint64
}

// NewConsoleSink wraps w.
func NewConsoleSink(w io.Writer, every int) *ConsoleSink {
	if every < 1 {
		every = 1
	}
	return &ConsoleSink{w: w, every: uint64(every)}
}

// Emit implements pipeline.Sink.
func (c *ConsoleSink) Emit(_ context.Context, out pipeline.Output) error {
	if out.Tick%c.every != 0 && len(out.Faults) == 0 {
		return nil
	}
	line := fmt.Sprintf("tick=%-8d pitch=%7.2f° roll=%7.2f°", out.Tick, out.Pose.Pitch, out.Pose.Roll)
	for _, f := range out.Faults {
		line += fmt.Sprintf("  [%s]", f.Kind)
	}
	_, err := fmt.Fprintln(c.w, line)
	return err
}

// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/relabs-tech/tilt_computer/internal/imu"
	"github.com/relabs-tech/tilt_computer/internal/orientation"
)

// FaultKind classifies a non-fatal per-tick condition.
type FaultKind string

const (
	FaultTransportTimeout FaultKind = "transport_timeout"
	FaultTransport        FaultKind = "transport"
	FaultDegenerateVector FaultKind = "degenerate_vector"
	FaultSaturation       FaultKind = "saturation"
)

// FaultKinds lists every kind, for metric pre-registration.
var FaultKinds = []FaultKind{
	FaultTransportTimeout,
	FaultTransport,
	FaultDegenerateVector,
	FaultSaturation,
}

// Fault is a condition reported on a tick. It never stops the loop.
type Fault struct {
	Kind    FaultKind `json:"kind"`
	Tick    uint64    `json:"tick"`
	Message string    `json:"message"`
}

func (f Fault) Error() string {
	return fmt.Sprintf("tick %d: %s: %s", f.Tick, f.Kind, f.Message)
}

// Output is what one tick produced.
type Output struct {
	Tick uint64           `json:"tick"`
	Time time.Time        `json:"time"`
	Raw  imu.RawSample    `json:"raw"`
	Pose orientation.Pose `json:"pose"`
	// Skipped means the estimator did not advance and Pose repeats the
	// previous output.
	Skipped bool    `json:"skipped,omitempty"`
	Faults  []Fault `json:"faults,omitempty"`
}

// Sink consumes tick outputs. Emit runs inside the tick, so it must not
// block for long.
type Sink interface {
	Emit(ctx context.Context, out Output) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, out Output) error

// Emit implements Sink.
func (f SinkFunc) Emit(ctx context.Context, out Output) error { return f(ctx, out) }

// Observer receives loop statistics.
type Observer interface {
	ObserveTick(out Output, elapsed time.Duration)
	ObserveOverrun(late time.Duration)
}

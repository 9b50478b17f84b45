// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package telemetry

import (
	"fmt"

	nmea "github.com/adrianmo/go-nmea"

	"github.com/relabs-tech/tilt_computer/internal/pipeline"
)

// TypeTilt is the proprietary sentence type, sent as $PTILT.
const TypeTilt = "TILT"

// Tilt is one orientation report:
//
//	$PTILT,<tick>,<pitch>,<roll>,<A|V>*hh
//
// Status A means the estimator advanced on this tick; V means the previous
// output was repeated.
type Tilt struct {
	nmea.BaseSentence
	Tick  int64
	Pitch float64
	Roll  float64
	Valid bool
}

// EncodeTilt renders a tick output as a $PTILT sentence without line ending.
func EncodeTilt(out pipeline.Output) string {
	status := "A"
	if out.Skipped {
		status = "V"
	}
	body := fmt.Sprintf("P%s,%d,%.2f,%.2f,%s", TypeTilt, out.Tick, out.Pose.Pitch, out.Pose.Roll, status)
	return "$" + body + "*" + nmea.Checksum(body)
}

var tiltParser = nmea.SentenceParser{
	CustomParsers: map[string]nmea.ParserFunc{
		TypeTilt:       parseTilt,
		"P" + TypeTilt: parseTilt,
	},
}

// ParseTilt parses and checksum-verifies a $PTILT sentence.
func ParseTilt(line string) (Tilt, error) {
	s, err := tiltParser.Parse(line)
	if err != nil {
		return Tilt{}, err
	}
	t, ok := s.(Tilt)
	if !ok {
		return Tilt{}, fmt.Errorf("nmea: not a $PTILT sentence: %s", s.Prefix())
	}
	return t, nil
}

func parseTilt(s nmea.BaseSentence) (nmea.Sentence, error) {
	p := nmea.NewParser(s)
	t := Tilt{
		BaseSentence: s,
		Tick:         p.Int64(0, "tick"),
		Pitch:        p.Float64(1, "pitch"),
		Roll:         p.Float64(2, "roll"),
		Valid:        p.EnumString(3, "status", "A", "V") == "A",
	}
	return t, p.Err()
}

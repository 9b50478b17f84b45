// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"
	"go.viam.com/test"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/devices/v3/ssd1306/image1bit"

	"github.com/relabs-tech/tilt_computer/internal/calibration"
	"github.com/relabs-tech/tilt_computer/internal/compensation"
	"github.com/relabs-tech/tilt_computer/internal/config"
	"github.com/relabs-tech/tilt_computer/internal/imu"
	"github.com/relabs-tech/tilt_computer/internal/orientation"
	"github.com/relabs-tech/tilt_computer/internal/pipeline"
	"github.com/relabs-tech/tilt_computer/internal/sensors"
	"github.com/relabs-tech/tilt_computer/internal/telemetry"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.MetricsAddr = ""
	cfg.CalibrationSamples = 100
	cfg.CalibrationDelayUS = 0
	cfg.CalibrationFile = filepath.Join(t.TempDir(), "calibration.json")
	return cfg
}

func TestEstimatorParams(t *testing.T) {
	cfg := testConfig(t)
	cfg.AccelPitchOffset = 1.5
	cfg.YawCoupling = "simultaneous"
	cfg.TempCompensation = "off"

	sensor, err := resolveSensor(cfg)
	test.That(t, err, test.ShouldBeNil)
	p, err := estimatorParams(cfg, sensor, calibration.Offsets{X: 3})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.Coupling, test.ShouldEqual, orientation.CouplingSimultaneous)
	test.That(t, p.TempMode, test.ShouldEqual, compensation.Off)
	test.That(t, p.PitchOffset, test.ShouldEqual, 1.5)
	test.That(t, p.SampleRate, test.ShouldEqual, 250.0)
	test.That(t, p.Offsets.X, test.ShouldEqual, int32(3))

	cfg.GyroFullScale = 300
	_, err = resolveSensor(cfg)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestIndicators(t *testing.T) {
	var calls []bool
	ok := calibration.IndicatorFunc(func(on bool) error { calls = append(calls, on); return nil })
	broken := calibration.IndicatorFunc(func(bool) error { return errors.New("gpio gone") })

	err := indicators{broken, ok}.Set(true)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, calls, test.ShouldResemble, []bool{true})
}

func TestCalibrate(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	cfg := testConfig(t)
	bias := [3]int16{-42, 17, 5}

	t.Run("measures and saves", func(t *testing.T) {
		off, err := calibrate(context.Background(), cfg, imu.NewStillSource(0, 0, bias), nil, true, logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, off, test.ShouldResemble, calibration.Offsets{X: -42, Y: 17, Z: 5})

		rec, err := calibration.Load(cfg.CalibrationFile)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, rec.GyroBias, test.ShouldResemble, off)
		test.That(t, rec.Samples, test.ShouldEqual, 100)
		test.That(t, rec.SchemaVersion, test.ShouldEqual, calibration.SchemaVersion)
	})

	t.Run("reuses the stored bias", func(t *testing.T) {
		// A different bias proves nothing was measured.
		off, err := calibrate(context.Background(), cfg, imu.NewStillSource(0, 0, [3]int16{1, 1, 1}), nil, true, logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, off, test.ShouldResemble, calibration.Offsets{X: -42, Y: 17, Z: 5})
	})

	t.Run("measures again without reuse", func(t *testing.T) {
		off, err := calibrate(context.Background(), cfg, imu.NewStillSource(0, 0, [3]int16{1, 1, 1}), nil, false, logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, off, test.ShouldResemble, calibration.Offsets{X: 1, Y: 1, Z: 1})
	})
}

func TestRunSimConsole(t *testing.T) {
	cfg := testConfig(t)
	cfg.PublishEvery = 5
	var buf bytes.Buffer

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	err := RunSimConsole(ctx, cfg, &buf, zaptest.NewLogger(t).Sugar())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, buf.String(), test.ShouldContainSubstring, "pitch=")
	test.That(t, buf.String(), test.ShouldContainSubstring, "roll=")

	// The simulated run must not touch the configured calibration file.
	_, err = calibration.Load(cfg.CalibrationFile)
	test.That(t, err, test.ShouldNotBeNil)
}

type fakeToken struct{ err error }

func (t fakeToken) Wait() bool                     { return true }
func (t fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t fakeToken) Error() error { return t.err }

type fakeSubscriber struct {
	handlers map[string]mqtt.MessageHandler
}

func (s *fakeSubscriber) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	s.handlers[topic] = cb
	return fakeToken{}
}

func (s *fakeSubscriber) deliver(topic string, v any) {
	payload, _ := json.Marshal(v)
	s.handlers[topic](nil, fakeMessage{topic: topic, payload: payload})
}

type fakeMessage struct {
	mqtt.Message
	topic   string
	payload []byte
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return m.payload }

func TestConsoleMQTT(t *testing.T) {
	cfg := testConfig(t)
	sub := &fakeSubscriber{handlers: map[string]mqtt.MessageHandler{}}
	var buf bytes.Buffer

	err := subscribeConsole(sub, cfg, &consolePrinter{w: &buf}, zaptest.NewLogger(t).Sugar())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(sub.handlers), test.ShouldEqual, 3)

	sub.deliver(cfg.TopicPose, telemetry.PoseMessage{Tick: 25, Pitch: 1.5, Roll: -2})
	sub.deliver(cfg.TopicIMURaw, telemetry.RawMessage{Tick: 25, Raw: imu.RawSample{Az: 16384}})
	sub.deliver(cfg.TopicFaults, pipeline.Fault{Kind: pipeline.FaultTransportTimeout, Tick: 26, Message: "no response"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	test.That(t, len(lines), test.ShouldEqual, 3)
	test.That(t, lines[0], test.ShouldContainSubstring, "PITCH=   1.50")
	test.That(t, lines[1], test.ShouldContainSubstring, "az= 16384")
	test.That(t, lines[2], test.ShouldContainSubstring, "transport_timeout: no response")
}

func TestWebHandler(t *testing.T) {
	hub := newPoseHub()
	srv := httptest.NewServer(newWebHandler(hub, "", zaptest.NewLogger(t).Sugar()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/orientation")
	test.That(t, err, test.ShouldBeNil)
	resp.Body.Close()
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusServiceUnavailable)

	hub.setPose(telemetry.PoseMessage{Tick: 50, Pitch: 3.25, Roll: -1})

	resp, err = http.Get(srv.URL + "/api/orientation")
	test.That(t, err, test.ShouldBeNil)
	var pose telemetry.PoseMessage
	test.That(t, json.NewDecoder(resp.Body).Decode(&pose), test.ShouldBeNil)
	resp.Body.Close()
	test.That(t, pose.Tick, test.ShouldEqual, uint64(50))
	test.That(t, pose.Pitch, test.ShouldEqual, 3.25)

	t.Run("websocket", func(t *testing.T) {
		conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
		test.That(t, err, test.ShouldBeNil)
		defer conn.Close()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))

		var first WSUpdate
		test.That(t, conn.ReadJSON(&first), test.ShouldBeNil)
		test.That(t, first.Type, test.ShouldEqual, "pose")
		test.That(t, first.Pose.Tick, test.ShouldEqual, uint64(50))

		hub.addFault(pipeline.Fault{Kind: pipeline.FaultDegenerateVector, Tick: 51})
		var next WSUpdate
		test.That(t, conn.ReadJSON(&next), test.ShouldBeNil)
		test.That(t, next.Type, test.ShouldEqual, "fault")
		test.That(t, next.Fault.Kind, test.ShouldEqual, pipeline.FaultDegenerateVector)
	})

	t.Run("recent faults are bounded", func(t *testing.T) {
		for i := 0; i < maxRecentFaults+10; i++ {
			hub.addFault(pipeline.Fault{Kind: pipeline.FaultSaturation, Tick: uint64(100 + i)})
		}
		resp, err := http.Get(srv.URL + "/api/faults")
		test.That(t, err, test.ShouldBeNil)
		defer resp.Body.Close()
		var faults []pipeline.Fault
		test.That(t, json.NewDecoder(resp.Body).Decode(&faults), test.ShouldBeNil)
		test.That(t, len(faults), test.ShouldEqual, maxRecentFaults)
		test.That(t, faults[len(faults)-1].Tick, test.ShouldEqual, uint64(100+maxRecentFaults+9))
	})
}

func TestDisplay(t *testing.T) {
	t.Run("bubble position", func(t *testing.T) {
		x, y := bubblePos(0, 0)
		test.That(t, x, test.ShouldEqual, levelCX)
		test.That(t, y, test.ShouldEqual, levelCY)

		// Nose up moves the bubble up, right wing down moves it right.
		x, y = bubblePos(levelRange/2, 0)
		test.That(t, x, test.ShouldEqual, levelCX)
		test.That(t, y, test.ShouldEqual, levelCY-12)
		x, _ = bubblePos(0, 90)
		test.That(t, x, test.ShouldEqual, levelCX+levelRadius-bubbleR)
	})

	t.Run("render", func(t *testing.T) {
		waiting := renderPose(telemetry.PoseMessage{}, false)
		test.That(t, waiting.BitAt(levelCX, levelCY), test.ShouldEqual, image1bit.Off)

		img := renderPose(telemetry.PoseMessage{Pitch: 0, Roll: 0}, true)
		test.That(t, img.BitAt(levelCX, levelCY), test.ShouldEqual, image1bit.On)
		test.That(t, img.BitAt(levelCX+levelRadius, levelCY), test.ShouldEqual, image1bit.On)

		lit := 0
		for y := 0; y < 16; y++ {
			for x := 0; x < 60; x++ {
				if img.BitAt(x, y) == image1bit.On {
					lit++
				}
			}
		}
		test.That(t, lit, test.ShouldBeGreaterThan, 0)
	})

	t.Run("address rewrite", func(t *testing.T) {
		rec := &i2ctest.Record{}
		bus := &addrBus{Bus: rec, from: ssd1306Addr, to: 0x3D}
		test.That(t, bus.Tx(ssd1306Addr, []byte{0x00, 0xAF}, nil), test.ShouldBeNil)
		test.That(t, bus.Tx(0x68, []byte{0x75}, nil), test.ShouldBeNil)
		test.That(t, rec.Ops[0].Addr, test.ShouldEqual, uint16(0x3D))
		test.That(t, rec.Ops[1].Addr, test.ShouldEqual, uint16(0x68))
	})
}

type fakeRegisters struct {
	writes map[byte]byte
}

func (f *fakeRegisters) WriteReg(_ context.Context, reg, value byte) error {
	f.writes[reg] = value
	return nil
}

func (f *fakeRegisters) Dump(context.Context) ([]sensors.RegisterValue, error) {
	who, _ := sensors.LookupRegister("WHO_AM_I")
	gyro, _ := sensors.LookupRegister("GYRO_CONFIG")
	return []sensors.RegisterValue{
		{RegisterInfo: gyro, Value: f.writes[sensors.RegGyroConfig]},
		{RegisterInfo: who, Value: sensors.WhoAmI},
	}, nil
}

func TestRegisterDump(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()

	t.Run("table", func(t *testing.T) {
		dev := &fakeRegisters{writes: map[byte]byte{}}
		var buf bytes.Buffer
		err := dumpRegisters(context.Background(), dev, RegisterDumpOptions{Writes: []string{"GYRO_CONFIG=0x08"}}, &buf, logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, dev.writes[sensors.RegGyroConfig], test.ShouldEqual, byte(0x08))
		test.That(t, buf.String(), test.ShouldContainSubstring, "WHO_AM_I")
		test.That(t, buf.String(), test.ShouldContainSubstring, "01101000")
	})

	t.Run("json", func(t *testing.T) {
		dev := &fakeRegisters{writes: map[byte]byte{}}
		var buf bytes.Buffer
		err := dumpRegisters(context.Background(), dev, RegisterDumpOptions{JSON: true}, &buf, logger)
		test.That(t, err, test.ShouldBeNil)
		var out RegisterConfigFile
		test.That(t, json.Unmarshal(buf.Bytes(), &out), test.ShouldBeNil)
		test.That(t, out.Device, test.ShouldEqual, "mpu6050")
		test.That(t, out.Registers["0x75"], test.ShouldEqual, "0x68")
	})

	t.Run("parse writes", func(t *testing.T) {
		reg, v, err := parseRegisterWrite("0x1c = 0x18")
		test.That(t, err, test.ShouldBeNil)
		test.That(t, reg.Name, test.ShouldEqual, "ACCEL_CONFIG")
		test.That(t, v, test.ShouldEqual, byte(0x18))

		for _, bad := range []string{"GYRO_CONFIG", "NOPE=1", "WHO_AM_I=0x68", "GYRO_CONFIG=0x100"} {
			_, _, err := parseRegisterWrite(bad)
			test.That(t, err, test.ShouldNotBeNil)
		}
	})
}

func TestConsumeTilt(t *testing.T) {
	held := pipeline.Output{Tick: 8, Pose: orientation.Pose{Pitch: 1, Roll: 2}, Skipped: true}
	input := strings.Join([]string{
		telemetry.EncodeTilt(pipeline.Output{Tick: 7, Pose: orientation.Pose{Pitch: 10.5, Roll: -4.25}}),
		"garbage",
		"$GPRMC,220516,A,5133.82,N,00042.24,W,173.8,231.8,130694,004.2,W*70",
		"",
		telemetry.EncodeTilt(held),
	}, "\r\n")

	var buf bytes.Buffer
	err := consumeTilt(context.Background(), strings.NewReader(input), &buf, zaptest.NewLogger(t).Sugar())
	test.That(t, err, test.ShouldBeNil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	test.That(t, len(lines), test.ShouldEqual, 2)
	test.That(t, lines[0], test.ShouldContainSubstring, "PITCH=  10.50")
	test.That(t, lines[0], test.ShouldContainSubstring, "ROLL=  -4.25")
	test.That(t, lines[1], test.ShouldContainSubstring, "(held)")
}

// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"

	"github.com/relabs-tech/tilt_computer/internal/config"
	"github.com/relabs-tech/tilt_computer/internal/sensors"
	"github.com/relabs-tech/tilt_computer/internal/telemetry"
)

const (
	displayW = 128
	displayH = 64

	// ssd1306Addr is where the ssd1306 driver always talks.
	ssd1306Addr = 0x3C

	// Bubble level geometry, right half of the panel.
	levelCX     = 96
	levelCY     = 32
	levelRadius = 28
	bubbleR     = 4
	// levelRange is the tilt in degrees that puts the bubble on the rim.
	levelRange = 30.0
)

// addrBus redirects the ssd1306 driver's fixed address to the configured one.
type addrBus struct {
	i2c.Bus
	from, to uint16
}

func (b *addrBus) Tx(addr uint16, w, r []byte) error {
	if addr == b.from {
		addr = b.to
	}
	return b.Bus.Tx(addr, w, r)
}

func (b *addrBus) String() string {
	return fmt.Sprintf("%s@0x%02X", b.Bus, b.to)
}

// displayState is the latest pose seen on MQTT.
type displayState struct {
	mu   sync.RWMutex
	pose telemetry.PoseMessage
	have bool
}

func (s *displayState) set(m telemetry.PoseMessage) {
	s.mu.Lock()
	s.pose = m
	s.have = true
	s.mu.Unlock()
}

func (s *displayState) get() (telemetry.PoseMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pose, s.have
}

// RunDisplay shows pitch, roll and a bubble level on an SSD1306 OLED.
func RunDisplay(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) error {
	bus, err := sensors.OpenBus(cfg.I2CBus, sensors.FastMode)
	if err != nil {
		return err
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(&addrBus{Bus: bus, from: ssd1306Addr, to: cfg.DisplayI2CAddr}, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	defer dev.Halt()
	logger.Infof("display: initialized at 0x%02X", cfg.DisplayI2CAddr)

	if err := dev.Draw(dev.Bounds(), renderSplash(), image.Point{}); err != nil {
		logger.Warnf("display: error showing splash: %v", err)
	}

	client, err := telemetry.Connect(cfg.MQTTBroker, cfg.MQTTClientIDDisplay, logger)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	state := &displayState{}
	if err := telemetry.SubscribePose(client, cfg.TopicPose, logger, state.set); err != nil {
		return err
	}
	logger.Infof("display: subscribed to %s", cfg.TopicPose)

	ticker := time.NewTicker(time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond)
	defer ticker.Stop()

	logger.Info("display: starting update loop")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		pose, have := state.get()
		if err := dev.Draw(dev.Bounds(), renderPose(pose, have), image.Point{}); err != nil {
			logger.Warnf("display: error updating display: %v", err)
		}
	}
}

func newCanvas() (*image1bit.VerticalLSB, *font.Drawer) {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, displayW, displayH))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	return img, drawer
}

func renderSplash() *image1bit.VerticalLSB {
	img, drawer := newCanvas()
	drawer.Dot = fixed.P(20, 26)
	drawer.DrawBytes([]byte("Tilt Pi"))
	drawer.Dot = fixed.P(5, 43)
	drawer.DrawBytes([]byte("Calibrating.."))
	return img
}

// renderPose draws pitch and roll on the left and a bubble level on the right.
func renderPose(m telemetry.PoseMessage, have bool) *image1bit.VerticalLSB {
	img, drawer := newCanvas()

	if !have {
		drawer.Dot = fixed.P(0, 26)
		drawer.DrawBytes([]byte("Tilt"))
		drawer.Dot = fixed.P(0, 39)
		drawer.DrawBytes([]byte("Waiting..."))
		return img
	}

	drawer.Dot = fixed.P(0, 13)
	drawer.DrawBytes([]byte(fmt.Sprintf("P:%6.1f", m.Pitch)))
	drawer.Dot = fixed.P(0, 26)
	drawer.DrawBytes([]byte(fmt.Sprintf("R:%6.1f", m.Roll)))
	if m.Skipped {
		drawer.Dot = fixed.P(0, 52)
		drawer.DrawBytes([]byte("HOLD"))
	}

	drawCircle(img, levelCX, levelCY, levelRadius)
	bx, by := bubblePos(m.Pitch, m.Roll)
	fillCircle(img, bx, by, bubbleR)
	return img
}

// bubblePos maps roll to x and pitch to y, clamped to the level's rim.
func bubblePos(pitch, roll float64) (int, int) {
	dx := roll / levelRange
	dy := -pitch / levelRange
	if d := math.Hypot(dx, dy); d > 1 {
		dx /= d
		dy /= d
	}
	reach := float64(levelRadius - bubbleR)
	return levelCX + int(math.Round(dx*reach)), levelCY + int(math.Round(dy*reach))
}

func drawCircle(img *image1bit.VerticalLSB, cx, cy, r int) {
	for a := 0; a < 360; a += 3 {
		rad := float64(a) * math.Pi / 180
		x := cx + int(math.Round(float64(r)*math.Cos(rad)))
		y := cy + int(math.Round(float64(r)*math.Sin(rad)))
		img.SetBit(x, y, image1bit.On)
	}
}

func fillCircle(img *image1bit.VerticalLSB, cx, cy, r int) {
	for y := -r; y <= r; y++ {
		for x := -r; x <= r; x++ {
			if x*x+y*y <= r*r {
				img.SetBit(cx+x, cy+y, image1bit.On)
			}
		}
	}
}

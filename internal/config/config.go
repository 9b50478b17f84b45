// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker           string
	MQTTClientIDProducer string
	MQTTClientIDConsole  string
	MQTTClientIDWeb      string
	MQTTClientIDDisplay  string

	// Topics
	TopicPose   string
	TopicIMURaw string
	TopicFaults string

	// IMU Hardware
	I2CBus     string
	IMUI2CAddr uint16
	LEDPin     string // calibration indicator, empty to disable

	// IMU Sensor Ranges
	// Gyroscope full scale in °/s: 250, 500, 1000 or 2000
	GyroFullScale int
	// Accelerometer full scale in g: 2, 4, 8 or 16
	AccelFullScale int

	// Bus timing
	BusTimeoutMS int
	BusRetries   int

	// Estimation
	SamplePeriodUS     int
	CalibrationSamples int
	CalibrationDelayUS int
	CalibrationFile    string
	AccelPitchOffset   float64 // spirit-level correction, degrees
	AccelRollOffset    float64
	YawCoupling        string // "sequential" or "simultaneous"
	TempCompensation   string // "off", "raw" or "celsius"

	// Telemetry
	PublishEvery   int // publish one pose every N ticks
	SerialPort     string
	SerialBaudRate int

	// Web Server / metrics
	WebServerPort int
	MetricsAddr   string

	// Display
	DisplayI2CAddr        uint16
	DisplayUpdateInterval int // milliseconds

	// Logging
	LogLevel string
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: unexported so other packages cannot modify it without locking.
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: RWMutex protects concurrent access. Write lock for initialization,
//     read lock for Get().
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns a Config populated with the firmware defaults: ±250°/s, ±2g,
// 4 ms period, 2000 calibration samples 3 ms apart, zero level offsets.
func Default() *Config {
	return &Config{
		MQTTBroker:           "tcp://localhost:1883",
		MQTTClientIDProducer: "tilt-producer",
		MQTTClientIDConsole:  "tilt-console",
		MQTTClientIDWeb:      "tilt-web",
		MQTTClientIDDisplay:  "tilt-display",

		TopicPose:   "tilt/pose",
		TopicIMURaw: "tilt/imu/raw",
		TopicFaults: "tilt/faults",

		I2CBus:     "1",
		IMUI2CAddr: 0x68,

		GyroFullScale:  250,
		AccelFullScale: 2,

		BusTimeoutMS: 20,
		BusRetries:   3,

		SamplePeriodUS:     4000,
		CalibrationSamples: 2000,
		CalibrationDelayUS: 3000,
		YawCoupling:        "sequential",
		TempCompensation:   "celsius",

		PublishEvery:   25,
		SerialBaudRate: 57600,

		WebServerPort: 8080,
		MetricsAddr:   ":9100",

		DisplayI2CAddr:        0x3C,
		DisplayUpdateInterval: 200,

		LogLevel: "info",
	}
}

// Load reads the configuration file on top of Default() and returns the result.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_PRODUCER":
		c.MQTTClientIDProducer = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value

	// Topics
	case "TOPIC_POSE":
		c.TopicPose = value
	case "TOPIC_IMU_RAW":
		c.TopicIMURaw = value
	case "TOPIC_FAULTS":
		c.TopicFaults = value

	// IMU Hardware
	case "I2C_BUS":
		c.I2CBus = value
	case "IMU_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid IMU_I2C_ADDR %q: %w", value, err)
		}
		c.IMUI2CAddr = uint16(addr)
	case "LED_PIN":
		c.LEDPin = value

	// IMU Sensor Ranges. The values are resolved to scale factors by the
	// units package at startup; an unsupported range fails there.
	case "GYRO_FULL_SCALE":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid GYRO_FULL_SCALE %q: %w", value, err)
		}
		c.GyroFullScale = v
	case "ACCEL_FULL_SCALE":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid ACCEL_FULL_SCALE %q: %w", value, err)
		}
		c.AccelFullScale = v

	// Bus timing
	case "BUS_TIMEOUT_MS":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid BUS_TIMEOUT_MS %q: %w", value, err)
		}
		if v <= 0 {
			return fmt.Errorf("BUS_TIMEOUT_MS must be positive, got %d", v)
		}
		c.BusTimeoutMS = v
	case "BUS_RETRIES":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid BUS_RETRIES %q: %w", value, err)
		}
		if v < 0 || v > 10 {
			return fmt.Errorf("BUS_RETRIES must be 0-10, got %d", v)
		}
		c.BusRetries = v

	// Estimation
	case "SAMPLE_PERIOD_US":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SAMPLE_PERIOD_US %q: %w", value, err)
		}
		c.SamplePeriodUS = v
	case "CALIBRATION_SAMPLES":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid CALIBRATION_SAMPLES %q: %w", value, err)
		}
		c.CalibrationSamples = v
	case "CALIBRATION_DELAY_US":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid CALIBRATION_DELAY_US %q: %w", value, err)
		}
		if v < 0 {
			return fmt.Errorf("CALIBRATION_DELAY_US must not be negative, got %d", v)
		}
		c.CalibrationDelayUS = v
	case "CALIBRATION_FILE":
		c.CalibrationFile = value
	case "ACCEL_PITCH_OFFSET":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid ACCEL_PITCH_OFFSET %q: %w", value, err)
		}
		c.AccelPitchOffset = v
	case "ACCEL_ROLL_OFFSET":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid ACCEL_ROLL_OFFSET %q: %w", value, err)
		}
		c.AccelRollOffset = v
	case "YAW_COUPLING":
		if value != "sequential" && value != "simultaneous" {
			return fmt.Errorf("YAW_COUPLING must be sequential or simultaneous, got %q", value)
		}
		c.YawCoupling = value
	case "TEMP_COMPENSATION":
		if value != "off" && value != "raw" && value != "celsius" {
			return fmt.Errorf("TEMP_COMPENSATION must be off, raw or celsius, got %q", value)
		}
		c.TempCompensation = value

	// Telemetry
	case "PUBLISH_EVERY":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid PUBLISH_EVERY %q: %w", value, err)
		}
		c.PublishEvery = v
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD_RATE":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SERIAL_BAUD_RATE %q: %w", value, err)
		}
		c.SerialBaudRate = rate

	// Web Server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		c.WebServerPort = port
	case "METRICS_ADDR":
		c.MetricsAddr = value

	// Display
	case "DISPLAY_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_I2C_ADDR %q: %w", value, err)
		}
		c.DisplayI2CAddr = uint16(addr)
	case "DISPLAY_UPDATE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_UPDATE_INTERVAL %q: %w", value, err)
		}
		c.DisplayUpdateInterval = interval

	case "LOG_LEVEL":
		c.LogLevel = value

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.I2CBus == "" {
		return fmt.Errorf("I2C_BUS is required")
	}
	if c.SamplePeriodUS <= 0 {
		return fmt.Errorf("SAMPLE_PERIOD_US must be positive, got %d", c.SamplePeriodUS)
	}
	if c.CalibrationSamples <= 0 {
		return fmt.Errorf("CALIBRATION_SAMPLES must be positive, got %d", c.CalibrationSamples)
	}
	if c.PublishEvery <= 0 {
		return fmt.Errorf("PUBLISH_EVERY must be positive, got %d", c.PublishEvery)
	}
	if c.DisplayUpdateInterval <= 0 {
		return fmt.Errorf("DISPLAY_UPDATE_INTERVAL must be positive, got %d", c.DisplayUpdateInterval)
	}
	return nil
}

// SamplePeriod returns the tick period.
func (c *Config) SamplePeriod() time.Duration {
	return time.Duration(c.SamplePeriodUS) * time.Microsecond
}

// SampleRate returns the tick rate in Hz implied by the period.
func (c *Config) SampleRate() float64 {
	return 1e6 / float64(c.SamplePeriodUS)
}

// CalibrationDelay returns the pause between calibration samples.
func (c *Config) CalibrationDelay() time.Duration {
	return time.Duration(c.CalibrationDelayUS) * time.Microsecond
}

// BusTimeout returns the per-attempt bound on a bus transfer.
func (c *Config) BusTimeout() time.Duration {
	return time.Duration(c.BusTimeoutMS) * time.Millisecond
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}

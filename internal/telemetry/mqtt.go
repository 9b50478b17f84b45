// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/relabs-tech/tilt_computer/internal/pipeline"
)

// Publisher is the part of mqtt.Client the sink needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Topics names where each kind of message goes. An empty topic disables it.
type Topics struct {
	Pose   string
	Raw    string
	Faults string
}

// MQTTSink publishes every Nth pose and raw sample, and every fault.
type MQTTSink struct {
	client  Publisher
	topics  Topics
	every   uint64
	timeout time.Duration
}

// NewMQTTSink returns a sink publishing one pose in every `every` ticks.
// Publishes wait at most timeout for the client to accept the message so a
// slow broker cannot stretch a tick.
func NewMQTTSink(client Publisher, topics Topics, every int, timeout time.Duration) *MQTTSink {
	if every < 1 {
		every = 1
	}
	return &MQTTSink{client: client, topics: topics, every: uint64(every), timeout: timeout}
}

// Emit implements pipeline.Sink.
func (s *MQTTSink) Emit(_ context.Context, out pipeline.Output) error {
	var errs error
	if out.Tick%s.every == 0 {
		if s.topics.Pose != "" {
			errs = multierr.Append(errs, s.publish(s.topics.Pose, true, NewPoseMessage(out)))
		}
		if s.topics.Raw != "" && !out.Skipped {
			errs = multierr.Append(errs, s.publish(s.topics.Raw, false, RawMessage{Tick: out.Tick, Time: out.Time, Raw: out.Raw}))
		}
	}
	if s.topics.Faults != "" {
		for _, f := range out.Faults {
			errs = multierr.Append(errs, s.publish(s.topics.Faults, false, f))
		}
	}
	return errs
}

func (s *MQTTSink) publish(topic string, retained bool, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("json marshal (%s): %w", topic, err)
	}
	token := s.client.Publish(topic, 0, retained, payload)
	if !token.WaitTimeout(s.timeout) {
		// Still queued in the client; paho delivers it in the background.
		return nil
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("MQTT publish (%s): %w", topic, err)
	}
	return nil
}

// Connect opens an MQTT client with reconnects enabled.
func Connect(broker, clientID string, logger *zap.SugaredLogger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warnf("mqtt: connection lost: %v", err)
		}).
		SetOnConnectHandler(func(mqtt.Client) {
			logger.Infof("mqtt: connected to %s as %s", broker, clientID)
		})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("MQTT connect %s: %w", broker, token.Error())
	}
	return client, nil
}

// Subscriber is the part of mqtt.Client the pose subscription needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

// SubscribePose decodes pose messages on topic and hands them to fn.
// Malformed payloads are logged and dropped.
func SubscribePose(client Subscriber, topic string, logger *zap.SugaredLogger, fn func(PoseMessage)) error {
	token := client.Subscribe(topic, 0, func(_ mqtt.Client, m mqtt.Message) {
		var msg PoseMessage
		if err := json.Unmarshal(m.Payload(), &msg); err != nil {
			logger.Warnf("mqtt: bad pose payload on %s: %v", m.Topic(), err)
			return
		}
		fn(msg)
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT subscribe %s: %w", topic, token.Error())
	}
	return nil
}

// SubscribeFaults decodes fault messages on topic and hands them to fn.
func SubscribeFaults(client Subscriber, topic string, logger *zap.SugaredLogger, fn func(pipeline.Fault)) error {
	token := client.Subscribe(topic, 0, func(_ mqtt.Client, m mqtt.Message) {
		var f pipeline.Fault
		if err := json.Unmarshal(m.Payload(), &f); err != nil {
			logger.Warnf("mqtt: bad fault payload on %s: %v", m.Topic(), err)
			return
		}
		fn(f)
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT subscribe %s: %w", topic, token.Error())
	}
	return nil
}

// SubscribeRaw decodes raw IMU messages on topic and hands them to fn.
func SubscribeRaw(client Subscriber, topic string, logger *zap.SugaredLogger, fn func(RawMessage)) error {
	token := client.Subscribe(topic, 0, func(_ mqtt.Client, m mqtt.Message) {
		var msg RawMessage
		if err := json.Unmarshal(m.Payload(), &msg); err != nil {
			logger.Warnf("mqtt: bad raw payload on %s: %v", m.Topic(), err)
			return
		}
		fn(msg)
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT subscribe %s: %w", topic, token.Error())
	}
	return nil
}

// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package transport moves frames, inertial batches and poses over MQTT.
package transport

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// DisconnectQuiesce is the grace period, in ms, given to in-flight work on
// disconnect.
const DisconnectQuiesce = 250

// Topics names the MQTT topics used by the node.
type Topics struct {
	Frame       string
	Depth       string
	Features    string
	Reset       string
	IMU         string
	Pose        string
	Passthrough string
}

// Connect opens an MQTT session with automatic reconnects.
func Connect(broker, clientID string, logger *zap.SugaredLogger) (mqtt.Client, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(10 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warnw("mqtt: connection lost", "client", clientID, "error", err)
		}).
		SetOnConnectHandler(func(_ mqtt.Client) {
			logger.Infow("mqtt: connected", "broker", broker, "client", clientID)
		})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, token.Error())
	}
	return client, nil
}

// PublishJSON marshals v and publishes it at QoS 0.
func PublishJSON(client mqtt.Client, topic string, retained bool, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", topic, err)
	}
	if token := client.Publish(topic, 0, retained, payload); token.Wait() && token.Error() != nil {
		return fmt.Errorf("publish %s: %w", topic, token.Error())
	}
	return nil
}

// SubscribeJSON subscribes to topic and hands every decodable payload to fn.
// Payloads that fail to decode are logged and dropped.
func SubscribeJSON[T any](client mqtt.Client, topic string, logger *zap.SugaredLogger, fn func(T)) error {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var v T
		if err := json.Unmarshal(msg.Payload(), &v); err != nil {
			logger.Warnw("mqtt: payload unmarshal error", "topic", msg.Topic(), "error", err)
			return
		}
		fn(v)
	})
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", topic, token.Error())
	}
	logger.Infow("mqtt: subscribed", "topic", topic)
	return nil
}

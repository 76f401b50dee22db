// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package transport

import (
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/relabs-tech/inertial_vio/internal/frame"
	"github.com/relabs-tech/inertial_vio/internal/imu"
)

// Pusher is the producer side of a bounded queue.
type Pusher[T any] interface {
	Push(v T)
}

// Inputs are the destinations for received messages. Nil entries are not
// subscribed.
type Inputs struct {
	Image    Pusher[frame.Frame]
	Depth    Pusher[frame.Frame]
	Features Pusher[frame.Features]
	Reset    Pusher[frame.ResetRequest]
	IMU      imu.Handler
}

// Subscriber feeds the fusion node's queues from MQTT.
type Subscriber struct {
	client mqtt.Client
	topics Topics
	inputs Inputs
	logger *zap.SugaredLogger

	subscribed []string
}

// NewSubscriber returns a subscriber; call Start to subscribe.
func NewSubscriber(client mqtt.Client, topics Topics, inputs Inputs, logger *zap.SugaredLogger) *Subscriber {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Subscriber{client: client, topics: topics, inputs: inputs, logger: logger}
}

// Start subscribes every configured input.
func (s *Subscriber) Start() error {
	if s.inputs.Image != nil {
		if err := subscribeInto(s, s.topics.Frame, s.inputs.Image.Push); err != nil {
			return err
		}
	}
	if s.inputs.Depth != nil {
		if err := subscribeInto(s, s.topics.Depth, s.inputs.Depth.Push); err != nil {
			return err
		}
	}
	if s.inputs.Features != nil {
		if err := subscribeInto(s, s.topics.Features, s.inputs.Features.Push); err != nil {
			return err
		}
	}
	if s.inputs.Reset != nil {
		if err := subscribeInto(s, s.topics.Reset, s.inputs.Reset.Push); err != nil {
			return err
		}
	}
	if s.inputs.IMU != nil {
		if err := subscribeInto[imu.Batch](s, s.topics.IMU, s.inputs.IMU); err != nil {
			return err
		}
	}
	return nil
}

func subscribeInto[T any](s *Subscriber, topic string, fn func(T)) error {
	if topic == "" {
		return fmt.Errorf("transport: empty topic for %T input", *new(T))
	}
	if err := SubscribeJSON(s.client, topic, s.logger, fn); err != nil {
		return err
	}
	s.subscribed = append(s.subscribed, topic)
	return nil
}

// Stop unsubscribes everything Start subscribed.
func (s *Subscriber) Stop() error {
	if len(s.subscribed) == 0 {
		return nil
	}
	token := s.client.Unsubscribe(s.subscribed...)
	token.Wait()
	s.subscribed = nil
	return token.Error()
}

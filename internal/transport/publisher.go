// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package transport

import (
	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/inertial_vio/internal/frame"
	"github.com/relabs-tech/inertial_vio/internal/fusion"
)

// Publisher sends fusion output over MQTT. Poses are retained so late
// subscribers see the latest one.
type Publisher struct {
	client mqtt.Client
	topics Topics
}

// NewPublisher returns a fusion.Sink publishing on topics.Pose and
// topics.Passthrough. An empty passthrough topic disables passthrough.
func NewPublisher(client mqtt.Client, topics Topics) *Publisher {
	return &Publisher{client: client, topics: topics}
}

// SendPose implements fusion.Sink.
func (p *Publisher) SendPose(msg fusion.PoseMessage) error {
	return PublishJSON(p.client, p.topics.Pose, true, msg)
}

// SendPassthrough implements fusion.Sink.
func (p *Publisher) SendPassthrough(f frame.Frame) error {
	if p.topics.Passthrough == "" {
		return nil
	}
	return PublishJSON(p.client, p.topics.Passthrough, false, f)
}

var _ fusion.Sink = (*Publisher)(nil)

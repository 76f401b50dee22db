// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package mqtttest provides an in-memory mqtt.Client for tests.
package mqtttest

import (
	"errors"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ErrNotConnected is returned by operations on a disconnected Client.
var ErrNotConnected = errors.New("mqtttest: not connected")

// Published is one recorded Publish call.
type Published struct {
	Topic    string
	Retained bool
	Payload  []byte
}

// Client routes Publish calls to matching Subscribe handlers in process.
// Only exact topic matches are supported. Methods not overridden panic
// through the nil embedded interface.
type Client struct {
	mqtt.Client

	// PublishErr, when set, fails every Publish.
	PublishErr error

	mu        sync.Mutex
	connected bool
	subs      map[string]mqtt.MessageHandler
	published []Published
}

// NewClient returns a connected client.
func NewClient() *Client {
	return &Client{connected: true, subs: make(map[string]mqtt.MessageHandler)}
}

// IsConnected implements mqtt.Client.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Connect implements mqtt.Client.
func (c *Client) Connect() mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	return Token{}
}

// Disconnect implements mqtt.Client.
func (c *Client) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

// Subscribe implements mqtt.Client.
func (c *Client) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return Token{Err: ErrNotConnected}
	}
	c.subs[topic] = cb
	return Token{}
}

// Unsubscribe implements mqtt.Client.
func (c *Client) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		delete(c.subs, t)
	}
	return Token{}
}

// Publish implements mqtt.Client. The payload is recorded and delivered
// synchronously to a subscriber of the same topic.
func (c *Client) Publish(topic string, _ byte, retained bool, payload any) mqtt.Token {
	c.mu.Lock()
	if c.PublishErr != nil {
		err := c.PublishErr
		c.mu.Unlock()
		return Token{Err: err}
	}
	var data []byte
	switch p := payload.(type) {
	case []byte:
		data = append([]byte(nil), p...)
	case string:
		data = []byte(p)
	}
	c.published = append(c.published, Published{Topic: topic, Retained: retained, Payload: data})
	cb := c.subs[topic]
	c.mu.Unlock()

	if cb != nil {
		cb(c, Message{TopicName: topic, Data: data, IsRetained: retained})
	}
	return Token{}
}

// Deliver injects a message as if it came from the broker.
func (c *Client) Deliver(topic string, payload []byte) bool {
	c.mu.Lock()
	cb := c.subs[topic]
	c.mu.Unlock()
	if cb == nil {
		return false
	}
	cb(c, Message{TopicName: topic, Data: payload})
	return true
}

// Subscribed reports whether topic has a handler.
func (c *Client) Subscribed(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[topic]
	return ok
}

// Published returns a copy of the recorded publishes.
func (c *Client) Published() []Published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Published(nil), c.published...)
}

// Token is an already completed mqtt.Token.
type Token struct {
	Err error
}

func (t Token) Wait() bool                     { return true }
func (t Token) WaitTimeout(time.Duration) bool { return true }
func (t Token) Error() error                   { return t.Err }

func (t Token) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Message is a static mqtt.Message.
type Message struct {
	TopicName  string
	Data       []byte
	IsRetained bool
}

func (m Message) Duplicate() bool   { return false }
func (m Message) Qos() byte         { return 0 }
func (m Message) Retained() bool    { return m.IsRetained }
func (m Message) Topic() string     { return m.TopicName }
func (m Message) MessageID() uint16 { return 0 }
func (m Message) Payload() []byte   { return m.Data }
func (m Message) Ack()              {}

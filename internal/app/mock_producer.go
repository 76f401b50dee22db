// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"math"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relabs-tech/inertial_vio/internal/config"
	"github.com/relabs-tech/inertial_vio/internal/frame"
	"github.com/relabs-tech/inertial_vio/internal/imu"
	"github.com/relabs-tech/inertial_vio/internal/orientation"
	"github.com/relabs-tech/inertial_vio/internal/transport"
)

// Synthetic camera geometry.
const (
	mockWidth    = 640
	mockHeight   = 400
	mockExposure = 0.008 // seconds
	mockFeatures = 12
)

// mockProducer synthesizes frames, depth, tracked features and inertial
// batches from orientation.MockMotion.
type mockProducer struct {
	session string
	motion  orientation.MockMotion
	seq     int64
}

func newMockProducer() *mockProducer {
	return &mockProducer{session: "mock-" + uuid.NewString()}
}

// batch returns one inertial packet at elapsed seconds.
func (p *mockProducer) batch(elapsed float64) imu.Batch {
	s := p.motion.SampleAt(elapsed)
	return imu.Batch{
		Source: p.session,
		Packets: []imu.Packet{{
			Accel:    imu.Reading{Timestamp: elapsed, Value: s.Accel},
			Gyro:     imu.Reading{Timestamp: elapsed, Value: s.Gyro},
			Rotation: imu.RotationReading{Timestamp: elapsed, Value: s.Rotation},
		}},
	}
}

// frames returns the next image, depth map and features, with the exposure
// starting at elapsed seconds.
func (p *mockProducer) frames(elapsed float64) (frame.Frame, frame.Frame, frame.Features) {
	p.seq++
	img := frame.Frame{
		Sequence:  p.seq,
		Instance:  0,
		Width:     mockWidth,
		Height:    mockHeight,
		Timestamp: elapsed,
		Exposure:  mockExposure,
		Encoding:  "gray8",
		Data:      gradient(mockWidth/8, mockHeight/8, p.seq),
	}
	depth := img
	depth.Encoding = "depth16"
	depth.Data = nil

	// Features drift with yaw so consumers see motion.
	yaw := p.motion.EulerAt(elapsed).Yaw * math.Pi / 180
	tracked := make([]frame.TrackedFeature, 0, mockFeatures)
	for i := range mockFeatures {
		angle := float64(i)*2*math.Pi/mockFeatures + yaw
		tracked = append(tracked, frame.TrackedFeature{
			ID:  i,
			X:   mockWidth/2 + 120*math.Cos(angle),
			Y:   mockHeight/2 + 120*math.Sin(angle),
			Age: int(p.seq),
		})
	}
	return img, depth, frame.Features{Sequence: p.seq, Timestamp: elapsed, Tracked: tracked}
}

// gradient is a small thumbnail standing in for pixel data.
func gradient(w, h int, seq int64) []byte {
	out := make([]byte, w*h)
	for y := range h {
		for x := range w {
			out[y*w+x] = byte(x + y + int(seq))
		}
	}
	return out
}

func (p *mockProducer) publishFrames(client mqtt.Client, cfg *config.Config, elapsed float64, logger *zap.SugaredLogger) {
	img, depth, features := p.frames(elapsed)
	if err := transport.PublishJSON(client, cfg.TopicFrame, false, img); err != nil {
		logger.Warnw("producer: MQTT publish error (frame)", "error", err)
		return
	}
	if err := transport.PublishJSON(client, cfg.TopicDepth, false, depth); err != nil {
		logger.Warnw("producer: MQTT publish error (depth)", "error", err)
		return
	}
	if cfg.TopicFeatures != "" {
		if err := transport.PublishJSON(client, cfg.TopicFeatures, false, features); err != nil {
			logger.Warnw("producer: MQTT publish error (features)", "error", err)
		}
	}
}

// RunMockProducer publishes synthetic inputs for the fusion node.
func RunMockProducer() error {
	cfg := config.Get()
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	client, err := transport.Connect(cfg.MQTTBroker, cfg.MQTTClientIDProducer, logger)
	if err != nil {
		return err
	}
	defer client.Disconnect(transport.DisconnectQuiesce)

	p := newMockProducer()
	logger.Infow("producer: publishing mock inputs", "session", p.session,
		"imu_interval_ms", cfg.IMUSampleInterval, "frame_interval_ms", cfg.ProducerFrameInterval)

	imuTicker := time.NewTicker(time.Duration(cfg.IMUSampleInterval) * time.Millisecond)
	defer imuTicker.Stop()
	frameTicker := time.NewTicker(time.Duration(cfg.ProducerFrameInterval) * time.Millisecond)
	defer frameTicker.Stop()

	ctx, stop := signalContext()
	defer stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			logger.Infow("producer: stopped", "frames", p.seq)
			return nil
		case t := <-imuTicker.C:
			if err := transport.PublishJSON(client, cfg.TopicIMU, false, p.batch(t.Sub(start).Seconds())); err != nil {
				logger.Warnw("producer: MQTT publish error (imu)", "error", err)
			}
		case t := <-frameTicker.C:
			// Leave the IMU a sample ahead of the exposure middle.
			elapsed := t.Sub(start).Seconds() - mockExposure
			p.publishFrames(client, cfg, elapsed, logger)
			if p.seq%30 == 0 {
				logger.Infow("producer: tick", "seq", p.seq, "pose", p.motion.EulerAt(elapsed))
			}
		}
	}
}

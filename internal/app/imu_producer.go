// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/relabs-tech/inertial_vio/internal/config"
	"github.com/relabs-tech/inertial_vio/internal/imu"
	"github.com/relabs-tech/inertial_vio/internal/transport"
)

// imuForwarder publishes every batch from a hardware source on one topic.
type imuForwarder struct {
	client mqtt.Client
	topic  string
	logger *zap.SugaredLogger

	batches atomic.Uint64
	packets atomic.Uint64
	errors  atomic.Uint64
}

func (f *imuForwarder) handle(b imu.Batch) {
	if err := transport.PublishJSON(f.client, f.topic, false, b); err != nil {
		f.errors.Add(1)
		f.logger.Warnw("imu_producer: MQTT publish error", "error", err)
		return
	}
	f.batches.Add(1)
	f.packets.Add(uint64(len(b.Packets)))
}

// logEvery prints forwarding counters until ctx is done.
func (f *imuForwarder) logEvery(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.logger.Infow("imu_producer: tick",
				"batches", f.batches.Load(),
				"packets", f.packets.Load(),
				"publish_errors", f.errors.Load())
		}
	}
}

// RunIMUProducer reads the hardware inertial source and publishes imu
// batches as JSON on TOPIC_IMU.
func RunIMUProducer() (err error) {
	cfg := config.Get()
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.IMUSource == config.IMUSourceMQTT {
		return fmt.Errorf("imu_producer needs IMU_SOURCE=serial or spi, got %q", cfg.IMUSource)
	}
	source, err := openIMUSource(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, source.Close()) }()

	client, err := transport.Connect(cfg.MQTTBroker, cfg.MQTTClientIDIMU, logger)
	if err != nil {
		return err
	}
	defer client.Disconnect(transport.DisconnectQuiesce)

	fwd := &imuForwarder{client: client, topic: cfg.TopicIMU, logger: logger}
	source.OnPacket(fwd.handle)

	ctx, stop := signalContext()
	defer stop()
	go fwd.logEvery(ctx, 5*time.Second)

	logger.Infow("imu_producer: publishing", "source", cfg.IMUSource, "topic", cfg.TopicIMU)
	return source.Run(ctx)
}

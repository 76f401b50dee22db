// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/inertial_vio/internal/calib"
	"github.com/relabs-tech/inertial_vio/internal/config"
	"github.com/relabs-tech/inertial_vio/internal/estimator"
	"github.com/relabs-tech/inertial_vio/internal/frame"
	"github.com/relabs-tech/inertial_vio/internal/fusion"
	"github.com/relabs-tech/inertial_vio/internal/imu"
	"github.com/relabs-tech/inertial_vio/internal/queue"
	"github.com/relabs-tech/inertial_vio/internal/transport"
)

// Node is a wired fusion node: MQTT inputs, an optional hardware inertial
// source, the aligner, the calibration gate, the estimator and the loop.
type Node struct {
	Loop    *fusion.Loop
	Aligner *imu.Aligner
	Gate    *calib.Gate

	subscriber *transport.Subscriber
	source     imu.Source
	logger     *zap.SugaredLogger

	image    *queue.Queue[frame.Frame]
	depth    *queue.Queue[frame.Frame]
	features *queue.Queue[frame.Features]
	reset    *queue.Queue[frame.ResetRequest]
}

// NewNode wires a node. source may be nil, in which case inertial batches
// are taken from cfg.TopicIMU.
func NewNode(cfg *config.Config, client mqtt.Client, store calib.Store, source imu.Source, logger *zap.SugaredLogger) (*Node, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	n := &Node{
		Aligner: imu.NewAligner(cfg.StampPolicy()),
		Gate:    calib.NewGate(store, calib.DefaultBoardTable(), cfg.CameraAlphaScaling, logger),
		source:  source,
		logger:  logger,
		image:   queue.New[frame.Frame](cfg.QueueSize),
		depth:   queue.New[frame.Frame](cfg.QueueSize),
		reset:   queue.New[frame.ResetRequest](1),
	}

	topics := topicsFromConfig(cfg)
	inputs := transport.Inputs{
		Image: n.image,
		Depth: n.depth,
		Reset: n.reset,
	}
	if cfg.TopicFeatures != "" {
		n.features = queue.New[frame.Features](cfg.QueueSize)
		inputs.Features = n.features
	}
	if source == nil {
		inputs.IMU = n.Aligner.Ingest
	} else {
		source.OnPacket(n.Aligner.Ingest)
	}
	n.subscriber = transport.NewSubscriber(client, topics, inputs, logger)

	est, err := estimator.NewAttitude(cfg.EstimatorParams, logger)
	if err != nil {
		return nil, err
	}

	deps := fusion.Deps{
		Image:     n.image,
		Depth:     n.depth,
		Reset:     n.reset,
		Aligner:   n.Aligner,
		Gate:      n.Gate,
		Estimator: est,
		Sink:      transport.NewPublisher(client, topics),
		Logger:    logger,
	}
	if n.features != nil {
		deps.Features = n.features
	}
	n.Loop, err = fusion.NewLoop(deps)
	if err != nil {
		return nil, multierr.Append(err, est.Close())
	}
	return n, nil
}

func topicsFromConfig(cfg *config.Config) transport.Topics {
	return transport.Topics{
		Frame:       cfg.TopicFrame,
		Depth:       cfg.TopicDepth,
		Features:    cfg.TopicFeatures,
		Reset:       cfg.TopicReset,
		IMU:         cfg.TopicIMU,
		Pose:        cfg.TopicPose,
		Passthrough: cfg.TopicPassthrough,
	}
}

// Run subscribes, starts the inertial source and runs the fusion loop until
// ctx is done or the loop stops. Teardown errors are combined.
func (n *Node) Run(ctx context.Context) (err error) {
	if err := n.subscriber.Start(); err != nil {
		return multierr.Append(err, n.subscriber.Stop())
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return n.Loop.Run(gctx)
	})
	if n.source != nil {
		g.Go(func() error {
			if err := n.source.Run(gctx); err != nil {
				return fmt.Errorf("inertial source: %w", err)
			}
			return nil
		})
	}

	err = g.Wait()

	err = multierr.Append(err, n.subscriber.Stop())
	n.closeQueues()
	if n.source != nil {
		err = multierr.Append(err, n.source.Close())
	}
	accel, gyro, rot := n.Aligner.Lens()
	n.logger.Infow("vio: node stopped",
		"state", n.Loop.State(),
		"stats", n.Loop.Stats(),
		"buffered", []int{accel, gyro, rot},
		"dropped_frames", n.image.Dropped())
	return err
}

func (n *Node) closeQueues() {
	n.image.Close()
	n.depth.Close()
	n.reset.Close()
	if n.features != nil {
		n.features.Close()
	}
}

// RunVIO runs the fusion node until interrupted.
func RunVIO() error {
	cfg := config.Get()
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.CalibrationFile == "" {
		return errors.New("CALIBRATION_FILE is required")
	}
	store, err := calib.LoadFileStore(cfg.CalibrationFile)
	if err != nil {
		return err
	}

	client, err := transport.Connect(cfg.MQTTBroker, cfg.MQTTClientIDVIO, logger)
	if err != nil {
		return err
	}
	defer client.Disconnect(transport.DisconnectQuiesce)

	source, err := openIMUSource(cfg, logger)
	if err != nil {
		return err
	}

	node, err := NewNode(cfg, client, store, source, logger)
	if err != nil {
		if source != nil {
			err = multierr.Append(err, source.Close())
		}
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	logger.Infow("vio: node running",
		"imu_source", cfg.IMUSource,
		"orientation_stamp", cfg.StampPolicy(),
		"frame_topic", cfg.TopicFrame,
		"pose_topic", cfg.TopicPose)
	return node.Run(ctx)
}

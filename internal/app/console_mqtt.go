// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"io"
	"os"

	"github.com/relabs-tech/inertial_vio/internal/config"
	"github.com/relabs-tech/inertial_vio/internal/frame"
	"github.com/relabs-tech/inertial_vio/internal/fusion"
	"github.com/relabs-tech/inertial_vio/internal/transport"
)

func formatPose(msg fusion.PoseMessage) string {
	e := msg.Pose.Euler()
	t := msg.Pose.Translation
	mode := "VIS"
	if msg.Inertial {
		mode = "IMU"
	}
	return fmt.Sprintf(
		"[POSE]  seq=%-6d ts=%10.4f %s kp=%-3d  X=%7.3f Y=%7.3f Z=%7.3f  ROLL=%7.2f PITCH=%7.2f YAW=%7.2f\n",
		msg.Sequence, msg.Stamp, mode, msg.Keypoints,
		t.X, t.Y, t.Z, e.Roll, e.Pitch, e.Yaw,
	)
}

func formatPassthrough(f frame.Frame) string {
	return fmt.Sprintf(
		"[FRAME] seq=%-6d ts=%10.4f %dx%d %s %d bytes\n",
		f.Sequence, f.CaptureStamp(), f.Width, f.Height, f.Encoding, len(f.Data),
	)
}

func formatReset(r frame.ResetRequest) string {
	return fmt.Sprintf("[RESET] reason=%q\n", r.Reason)
}

// printTo returns a handler writing format(v) to w.
func printTo[T any](w io.Writer, format func(T) string) func(T) {
	return func(v T) {
		_, _ = io.WriteString(w, format(v))
	}
}

// RunConsoleMQTT prints fused poses, passthrough frames and reset requests
// until interrupted.
func RunConsoleMQTT() error {
	cfg := config.Get()
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	client, err := transport.Connect(cfg.MQTTBroker, cfg.MQTTClientIDConsole, logger)
	if err != nil {
		return err
	}
	defer client.Disconnect(transport.DisconnectQuiesce)

	if err := transport.SubscribeJSON(client, cfg.TopicPose, logger, printTo(os.Stdout, formatPose)); err != nil {
		return err
	}
	if cfg.TopicPassthrough != "" {
		if err := transport.SubscribeJSON(client, cfg.TopicPassthrough, logger, printTo(os.Stdout, formatPassthrough)); err != nil {
			return err
		}
	}
	if err := transport.SubscribeJSON(client, cfg.TopicReset, logger, printTo(os.Stdout, formatReset)); err != nil {
		return err
	}

	// Wait for Ctrl+C
	ctx, stop := signalContext()
	defer stop()
	<-ctx.Done()

	logger.Info("console: shutting down")
	return nil
}

// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package app holds the long-running entry points behind cmd/*.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/relabs-tech/inertial_vio/internal/config"
	"github.com/relabs-tech/inertial_vio/internal/imu"
	"github.com/relabs-tech/inertial_vio/internal/imu/hi229"
	"github.com/relabs-tech/inertial_vio/internal/imu/mpu"
	"github.com/relabs-tech/inertial_vio/internal/logging"
)

func newLogger(cfg *config.Config) (*zap.SugaredLogger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config not initialized")
	}
	return logging.New(cfg.LogLevel)
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// openIMUSource opens the hardware inertial source named by IMU_SOURCE. It
// returns nil for "mqtt", where batches arrive on TOPIC_IMU instead.
func openIMUSource(cfg *config.Config, logger *zap.SugaredLogger) (imu.Source, error) {
	switch cfg.IMUSource {
	case config.IMUSourceSerial:
		return hi229.Open(hi229.Config{
			PortName: cfg.IMUSerialPort,
			BaudRate: uint(cfg.IMUSerialBaud),
		}, logger)
	case config.IMUSourceSPI:
		return mpu.Open(mpu.Config{
			Name:       "mpu9250",
			SPIDevice:  cfg.IMUSPIDevice,
			CSPin:      cfg.IMUCSPin,
			AccelRange: cfg.IMUAccelRange,
			GyroRange:  cfg.IMUGyroRange,
			Interval:   time.Duration(cfg.IMUSampleInterval) * time.Millisecond,
		}, logger)
	case config.IMUSourceMQTT:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown IMU_SOURCE %q", cfg.IMUSource)
	}
}

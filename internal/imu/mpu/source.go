// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package mpu polls an MPU9250 over SPI and publishes its readings as imu
// batches.
package mpu

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/golang/geo/r3"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/inertial_vio/internal/imu"
	"github.com/relabs-tech/inertial_vio/internal/orientation"
)

// Device is the subset of the MPU9250 driver the source reads.
type Device interface {
	GetAccelerationX() (int16, error)
	GetAccelerationY() (int16, error)
	GetAccelerationZ() (int16, error)
	GetRotationX() (int16, error)
	GetRotationY() (int16, error)
	GetRotationZ() (int16, error)
}

// Config describes one SPI-attached MPU9250.
type Config struct {
	Name       string
	SPIDevice  string
	CSPin      string
	AccelRange byte // 0..3: ±2, ±4, ±8, ±16 g
	GyroRange  byte // 0..3: ±250, ±500, ±1000, ±2000 °/s
	Interval   time.Duration
}

var (
	accelFullScale = []int{2, 4, 8, 16}
	gyroFullScale  = []int{250, 500, 1000, 2000}
)

// Source polls a Device at a fixed interval.
type Source struct {
	cfg    Config
	dev    Device
	logger *zap.SugaredLogger

	handlers imu.Handlers
	now      func() time.Time
	start    time.Time

	accelScale float64 // m/s² per count
	gyroScale  float64 // rad/s per count

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
}

// Open initializes the periph host, the SPI transport and the device, then
// applies the configured ranges. Self-test and calibration failures are
// logged and tolerated.
func Open(cfg Config, logger *zap.SugaredLogger) (*Source, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	name := cfg.Name
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("%s IMU: periph host init: %w", name, err)
	}

	cs := gpioreg.ByName(cfg.CSPin)
	if cs == nil {
		return nil, fmt.Errorf("%s IMU: CS pin %q not found", name, cfg.CSPin)
	}

	tr, err := mpu9250.NewSpiTransport(cfg.SPIDevice, cs)
	if err != nil {
		return nil, fmt.Errorf("%s IMU: SPI transport (%s): %w", name, cfg.SPIDevice, err)
	}

	dev, err := mpu9250.New(*tr)
	if err != nil {
		return nil, fmt.Errorf("%s IMU: device creation: %w", name, err)
	}
	if err := dev.Init(); err != nil {
		return nil, fmt.Errorf("%s IMU: initialization: %w", name, err)
	}

	if err := dev.SetAccelRange(cfg.AccelRange); err != nil {
		return nil, fmt.Errorf("%s IMU: set accel range: %w", name, err)
	}
	if err := dev.SetGyroRange(cfg.GyroRange); err != nil {
		return nil, fmt.Errorf("%s IMU: set gyro range: %w", name, err)
	}

	if res, err := dev.SelfTest(); err != nil {
		logger.Warnw("mpu: self-test failed", "imu", name, "error", err)
	} else {
		logger.Infow("mpu: self-test passed", "imu", name,
			"accel_deviation", res.AccelDeviation, "gyro_deviation", res.GyroDeviation)
	}
	if err := dev.Calibrate(); err != nil {
		logger.Warnw("mpu: calibration failed", "imu", name, "error", err)
	}

	return NewSource(cfg, dev, logger)
}

// NewSource wraps an initialized device.
func NewSource(cfg Config, dev Device, logger *zap.SugaredLogger) (*Source, error) {
	if int(cfg.AccelRange) >= len(accelFullScale) {
		return nil, fmt.Errorf("%s IMU: accel range %d out of range", cfg.Name, cfg.AccelRange)
	}
	if int(cfg.GyroRange) >= len(gyroFullScale) {
		return nil, fmt.Errorf("%s IMU: gyro range %d out of range", cfg.Name, cfg.GyroRange)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	logger.Infow("mpu: source ready", "imu", cfg.Name,
		"accel_g", accelFullScale[cfg.AccelRange],
		"gyro_dps", gyroFullScale[cfg.GyroRange],
		"interval", cfg.Interval)

	return &Source{
		cfg:        cfg,
		dev:        dev,
		logger:     logger,
		now:        time.Now,
		accelScale: float64(accelFullScale[cfg.AccelRange]) * orientation.Gravity / math.MaxInt16,
		gyroScale:  float64(gyroFullScale[cfg.GyroRange]) * math.Pi / 180 / math.MaxInt16,
	}, nil
}

// OnPacket implements imu.Source.
func (s *Source) OnPacket(h imu.Handler) {
	s.handlers.Add(h)
}

// Run implements imu.Source. Read errors are logged and the sample skipped.
func (s *Source) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.start = s.now()
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p, err := s.Read()
			if err != nil {
				s.logger.Warnw("mpu: read error", "imu", s.cfg.Name, "error", err)
				continue
			}
			s.handlers.Dispatch(imu.Batch{Source: s.cfg.Name, Packets: []imu.Packet{p}})
		}
	}
}

// Read takes one sample. All three readings share the gyro read time.
func (s *Source) Read() (imu.Packet, error) {
	ax, err := s.dev.GetAccelerationX()
	if err != nil {
		return imu.Packet{}, fmt.Errorf("%s IMU accel X: %w", s.cfg.Name, err)
	}
	ay, err := s.dev.GetAccelerationY()
	if err != nil {
		return imu.Packet{}, fmt.Errorf("%s IMU accel Y: %w", s.cfg.Name, err)
	}
	az, err := s.dev.GetAccelerationZ()
	if err != nil {
		return imu.Packet{}, fmt.Errorf("%s IMU accel Z: %w", s.cfg.Name, err)
	}

	ts := s.now().Sub(s.start).Seconds()
	gx, err := s.dev.GetRotationX()
	if err != nil {
		return imu.Packet{}, fmt.Errorf("%s IMU gyro X: %w", s.cfg.Name, err)
	}
	gy, err := s.dev.GetRotationY()
	if err != nil {
		return imu.Packet{}, fmt.Errorf("%s IMU gyro Y: %w", s.cfg.Name, err)
	}
	gz, err := s.dev.GetRotationZ()
	if err != nil {
		return imu.Packet{}, fmt.Errorf("%s IMU gyro Z: %w", s.cfg.Name, err)
	}

	acc := r3.Vector{X: float64(ax), Y: float64(ay), Z: float64(az)}.Mul(s.accelScale)
	gyro := r3.Vector{X: float64(gx), Y: float64(gy), Z: float64(gz)}.Mul(s.gyroScale)

	return imu.Packet{
		Accel: imu.Reading{Timestamp: ts, Value: acc},
		Gyro:  imu.Reading{Timestamp: ts, Value: gyro},
		Rotation: imu.RotationReading{
			Timestamp: ts,
			Value:     orientation.TiltQuaternion(acc.X, acc.Y, acc.Z),
		},
	}, nil
}

// Close implements imu.Source and stops a running poll loop.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

var _ imu.Source = (*Source)(nil)

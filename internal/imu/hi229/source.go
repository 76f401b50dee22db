// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package hi229

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/golang/geo/r3"
	serial "github.com/jacobsa/go-serial/serial"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/num/quat"

	"github.com/relabs-tech/inertial_vio/internal/imu"
	"github.com/relabs-tech/inertial_vio/internal/orientation"
)

const degToRad = math.Pi / 180

// Config selects the serial port.
type Config struct {
	PortName string
	BaudRate uint
}

// Source streams HI229 samples as imu batches.
type Source struct {
	name   string
	port   io.ReadWriteCloser
	logger *zap.SugaredLogger

	handlers imu.Handlers
	dec      Decoder
	clock    stampUnwrapper

	closeOnce sync.Once
	closeErr  error
}

// Open opens the serial port described by cfg.
func Open(cfg Config, logger *zap.SugaredLogger) (*Source, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 115200
	}
	port, err := serial.Open(serial.OpenOptions{
		PortName:              cfg.PortName,
		BaudRate:              cfg.BaudRate,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("hi229: open %s: %w", cfg.PortName, err)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	logger.Infow("hi229: serial port opened", "port", cfg.PortName, "baud", cfg.BaudRate)
	return NewSource("hi229:"+cfg.PortName, port, logger), nil
}

// NewSource wraps an already open byte stream.
func NewSource(name string, port io.ReadWriteCloser, logger *zap.SugaredLogger) *Source {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Source{name: name, port: port, logger: logger}
}

// OnPacket implements imu.Source.
func (s *Source) OnPacket(h imu.Handler) {
	s.handlers.Add(h)
}

// Run implements imu.Source. It returns nil when ctx is cancelled.
func (s *Source) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	buf := make([]byte, 256)
	for {
		n, err := s.port.Read(buf)
		if n > 0 {
			s.dispatch(s.dec.Feed(buf[:n]))
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("hi229: read %s: %w", s.name, err)
		}
	}
}

func (s *Source) dispatch(samples []Sample) {
	if len(samples) == 0 {
		return
	}
	batch := imu.Batch{Source: s.name, Packets: make([]imu.Packet, 0, len(samples))}
	for _, sm := range samples {
		if !sm.HasStamp {
			continue
		}
		batch.Packets = append(batch.Packets, ToPacket(sm, s.clock.seconds(sm.Timestamp)))
	}
	if len(batch.Packets) == 0 {
		return
	}
	s.handlers.Dispatch(batch)
}

// Stats returns decoder error counters.
func (s *Source) Stats() (crcErrors, dropped uint64) {
	return s.dec.CRCErrors(), s.dec.Dropped()
}

// Close implements imu.Source.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.port.Close()
		if errors.Is(s.closeErr, io.ErrClosedPipe) {
			s.closeErr = nil
		}
	})
	return s.closeErr
}

// ToPacket converts a sample to SI units stamped at ts seconds.
func ToPacket(s Sample, ts float64) imu.Packet {
	acc := r3.Vector{X: float64(s.Acc[0]), Y: float64(s.Acc[1]), Z: float64(s.Acc[2])}
	gyro := r3.Vector{X: float64(s.Gyro[0]), Y: float64(s.Gyro[1]), Z: float64(s.Gyro[2])}
	return imu.Packet{
		Accel: imu.Reading{Timestamp: ts, Value: acc.Mul(orientation.Gravity)},
		Gyro:  imu.Reading{Timestamp: ts, Value: gyro.Mul(degToRad)},
		Rotation: imu.RotationReading{Timestamp: ts, Value: quat.Number{
			Real: float64(s.Quat[0]),
			Imag: float64(s.Quat[1]),
			Jmag: float64(s.Quat[2]),
			Kmag: float64(s.Quat[3]),
		}},
	}
}

// stampUnwrapper turns the device's wrapping u32 millisecond counter into
// monotonic seconds.
type stampUnwrapper struct {
	last  uint32
	wraps uint64
	init  bool
}

func (u *stampUnwrapper) seconds(ms uint32) float64 {
	if u.init && ms < u.last && u.last-ms > math.MaxUint32/2 {
		u.wraps++
	}
	u.last = ms
	u.init = true
	return float64(u.wraps<<32|uint64(ms)) / 1000
}

var _ imu.Source = (*Source)(nil)

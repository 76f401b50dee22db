// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package hi229

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/inertial_vio/internal/imu"
	"github.com/relabs-tech/inertial_vio/internal/logging"
	"github.com/relabs-tech/inertial_vio/internal/orientation"
)

func putR4(p []byte, v float32) {
	binary.LittleEndian.PutUint32(p, math.Float32bits(v))
}

func imusolItem(id uint8, stampMS uint32, acc, gyro [3]float32, q [4]float32) []byte {
	p := make([]byte, imusolSize)
	p[0] = itemIMUSOL
	p[1] = id
	binary.LittleEndian.PutUint32(p[8:], stampMS)
	for i := range 3 {
		putR4(p[12+4*i:], acc[i])
		putR4(p[24+4*i:], gyro[i])
	}
	for i := range 4 {
		putR4(p[60+4*i:], q[i])
	}
	return p
}

func buildFrame(payload []byte) []byte {
	f := make([]byte, headerSize+len(payload))
	f[0], f[1] = sync1, sync2
	binary.LittleEndian.PutUint16(f[2:], uint16(len(payload)))
	copy(f[headerSize:], payload)
	crc := crc16(0, f[:4])
	crc = crc16(crc, payload)
	binary.LittleEndian.PutUint16(f[4:], crc)
	return f
}

func TestCRC16CCITT(t *testing.T) {
	// CRC-16/XMODEM check value.
	assert.Equal(t, uint16(0x31C3), crc16(0, []byte("123456789")))
}

func TestDecodeIMUSOL(t *testing.T) {
	frame := buildFrame(imusolItem(3, 1500,
		[3]float32{0, 0, 1},
		[3]float32{90, 0, -45},
		[4]float32{1, 0, 0, 0}))

	var d Decoder
	// Leading noise and byte-at-a-time delivery.
	var got []Sample
	for _, b := range append([]byte{0x00, 0x5A, 0x13}, frame...) {
		got = append(got, d.Feed([]byte{b})...)
	}
	require.Len(t, got, 1)
	s := got[0]
	assert.Equal(t, uint8(3), s.ID)
	assert.True(t, s.HasStamp)
	assert.Equal(t, uint32(1500), s.Timestamp)
	assert.Equal(t, [3]float32{0, 0, 1}, s.Acc)
	assert.Equal(t, [3]float32{90, 0, -45}, s.Gyro)
	assert.Equal(t, [4]float32{1, 0, 0, 0}, s.Quat)
	assert.Zero(t, d.CRCErrors())
}

func TestDecodeRejectsBadCRC(t *testing.T) {
	frame := buildFrame(imusolItem(1, 10, [3]float32{}, [3]float32{}, [4]float32{1}))
	frame[len(frame)-1] ^= 0xFF

	var d Decoder
	assert.Empty(t, d.Feed(frame))
	assert.Equal(t, uint64(1), d.CRCErrors())

	good := buildFrame(imusolItem(1, 20, [3]float32{}, [3]float32{}, [4]float32{1}))
	got := d.Feed(good)
	require.Len(t, got, 1)
	assert.Equal(t, uint32(20), got[0].Timestamp)
}

func TestDecodeRawItems(t *testing.T) {
	payload := []byte{itemID, 7, itemAccRaw}
	payload = binary.LittleEndian.AppendUint16(payload, uint16(1000))
	payload = binary.LittleEndian.AppendUint16(payload, 0)
	payload = binary.LittleEndian.AppendUint16(payload, uint16(0xFFFF&-500))
	payload = append(payload, itemGyrRaw)
	payload = binary.LittleEndian.AppendUint16(payload, 900)
	payload = binary.LittleEndian.AppendUint16(payload, 0)
	payload = binary.LittleEndian.AppendUint16(payload, 0)

	var d Decoder
	got := d.Feed(buildFrame(payload))
	require.Len(t, got, 1)
	assert.Equal(t, uint8(7), got[0].ID)
	assert.False(t, got[0].HasStamp)
	assert.InDelta(t, 1.0, got[0].Acc[0], 1e-6)
	assert.InDelta(t, -0.5, got[0].Acc[2], 1e-6)
	assert.InDelta(t, 90, got[0].Gyro[0], 1e-6)
}

func TestDecodeBackToBackFrames(t *testing.T) {
	var stream []byte
	for i := range 3 {
		stream = append(stream, buildFrame(imusolItem(2, uint32(100+i), [3]float32{0, 0, 1}, [3]float32{}, [4]float32{1}))...)
	}

	var d Decoder
	got := d.Feed(stream)
	require.Len(t, got, 3)
	for i, s := range got {
		assert.Equal(t, uint32(100+i), s.Timestamp)
	}
	assert.Zero(t, d.CRCErrors())
	assert.Zero(t, d.Dropped())
}

func TestDecodeDropsOversizedLength(t *testing.T) {
	var d Decoder
	assert.Empty(t, d.Feed([]byte{sync1, sync2, 0xFF, 0xFF, 0, 0}))
	assert.Equal(t, uint64(1), d.Dropped())
}

func TestToPacketUnits(t *testing.T) {
	p := ToPacket(Sample{
		Acc:  [3]float32{0, 0, 1},
		Gyro: [3]float32{180, 0, 0},
		Quat: [4]float32{0.5, 0.5, 0.5, 0.5},
	}, 2.5)
	assert.Equal(t, 2.5, p.Accel.Timestamp)
	assert.Equal(t, 2.5, p.Gyro.Timestamp)
	assert.Equal(t, 2.5, p.Rotation.Timestamp)
	assert.InDelta(t, orientation.Gravity, p.Accel.Value.Z, 1e-9)
	assert.InDelta(t, math.Pi, p.Gyro.Value.X, 1e-6)
	assert.Equal(t, 0.5, p.Rotation.Value.Real)
	assert.Equal(t, 0.5, p.Rotation.Value.Kmag)
}

func TestStampUnwrap(t *testing.T) {
	var u stampUnwrapper
	assert.Equal(t, 4294967.0, u.seconds(math.MaxUint32-295))
	assert.InDelta(t, 4294967.296+0.704, u.seconds(704), 1e-6)
}

type fakePort struct {
	*bytes.Reader
	closed int
}

func (p *fakePort) Write(b []byte) (int, error) { return len(b), nil }
func (p *fakePort) Close() error               { p.closed++; return nil }

func TestSourceDispatchesBatches(t *testing.T) {
	var stream []byte
	for i := range 3 {
		stream = append(stream, buildFrame(imusolItem(1, uint32(1000+10*i),
			[3]float32{0, 0, 1}, [3]float32{}, [4]float32{1, 0, 0, 0}))...)
	}
	port := &fakePort{Reader: bytes.NewReader(stream)}
	src := NewSource("test", port, logging.NewTest(t))

	var stamps []float64
	src.OnPacket(func(b imu.Batch) {
		assert.Equal(t, "test", b.Source)
		for _, p := range b.Packets {
			stamps = append(stamps, p.Gyro.Timestamp)
		}
	})

	err := src.Run(context.Background())
	require.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []float64{1.0, 1.01, 1.02}, stamps)

	require.NoError(t, src.Close())
	require.NoError(t, src.Close())
	assert.Equal(t, 1, port.closed)
}

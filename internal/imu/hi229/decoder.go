// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package hi229 reads HI229-family serial IMUs speaking the CH binary
// protocol.
package hi229

import (
	"encoding/binary"
	"math"
)

// Frame layout: 0x5A 0xA5, u16 payload length, u16 CRC16-CCITT over the
// first four header bytes and the payload, then the payload items.
const (
	sync1      = 0x5A
	sync2      = 0xA5
	headerSize = 6
	maxRawLen  = 512

	itemID      = 0x90
	itemAccRaw  = 0xA0
	itemGyrRaw  = 0xB0
	itemMagRaw  = 0xC0
	itemEuler   = 0xD0
	itemQuat    = 0xD1
	itemPress   = 0xF0
	itemIMUSOL  = 0x91
	itemGateway = 0x62

	imusolSize = 76
)

// Sample is the latest state reported by one IMU node, in device units:
// accel in g, gyro in deg/s, euler in degrees, quaternion as w, x, y, z.
type Sample struct {
	ID        uint8
	Timestamp uint32 // ms, only set by IMUSOL items
	HasStamp  bool
	Pressure  float32
	Acc       [3]float32
	Gyro      [3]float32
	Mag       [3]float32
	Euler     [3]float32
	Quat      [4]float32
}

// Decoder is a byte-at-a-time CH frame parser. It is not safe for
// concurrent use.
type Decoder struct {
	buf    [maxRawLen]byte
	n      int
	length int

	current   Sample
	crcErrors uint64
	dropped   uint64
}

// CRCErrors returns the number of frames rejected by the checksum.
func (d *Decoder) CRCErrors() uint64 { return d.crcErrors }

// Dropped returns the number of frames discarded for an oversized length.
func (d *Decoder) Dropped() uint64 { return d.dropped }

// Feed consumes data and returns the samples completed by it.
func (d *Decoder) Feed(data []byte) []Sample {
	var out []Sample
	for _, b := range data {
		out = append(out, d.feedByte(b)...)
	}
	return out
}

func (d *Decoder) feedByte(b byte) []Sample {
	if d.n == 0 {
		d.buf[0], d.buf[1] = d.buf[1], b
		if d.buf[0] == sync1 && d.buf[1] == sync2 {
			d.n = 2
		}
		return nil
	}

	d.buf[d.n] = b
	d.n++

	if d.n == headerSize {
		d.length = int(binary.LittleEndian.Uint16(d.buf[2:4]))
		if d.length > maxRawLen-headerSize {
			d.dropped++
			d.reset()
			return nil
		}
	}
	if d.n < headerSize || d.n < d.length+headerSize {
		return nil
	}

	// frame aliases d.buf, so reset only after the CRC and parse are done.
	frame := d.buf[:d.length+headerSize]
	defer d.reset()

	crc := crc16(0, frame[:4])
	crc = crc16(crc, frame[headerSize:])
	if crc != binary.LittleEndian.Uint16(frame[4:6]) {
		d.crcErrors++
		return nil
	}
	return d.parse(frame[headerSize:])
}

func (d *Decoder) reset() {
	d.n = 0
	d.length = 0
	d.buf[0], d.buf[1] = 0, 0
}

func (d *Decoder) parse(p []byte) []Sample {
	if len(p) == 0 {
		return nil
	}
	var out []Sample
	d.current.HasStamp = false

	for ofs := 0; ofs < len(p); {
		switch p[ofs] {
		case itemID:
			if !fits(p, ofs, 2) {
				return out
			}
			d.current.ID = p[ofs+1]
			ofs += 2
		case itemAccRaw:
			if !fits(p, ofs, 7) {
				return out
			}
			d.current.Acc = i2x3(p[ofs+1:], 1000)
			ofs += 7
		case itemGyrRaw:
			if !fits(p, ofs, 7) {
				return out
			}
			d.current.Gyro = i2x3(p[ofs+1:], 10)
			ofs += 7
		case itemMagRaw:
			if !fits(p, ofs, 7) {
				return out
			}
			d.current.Mag = i2x3(p[ofs+1:], 10)
			ofs += 7
		case itemEuler:
			if !fits(p, ofs, 7) {
				return out
			}
			d.current.Euler = [3]float32{
				float32(i2(p[ofs+1:])) / 100,
				float32(i2(p[ofs+3:])) / 100,
				float32(i2(p[ofs+5:])) / 10,
			}
			ofs += 7
		case itemQuat:
			if !fits(p, ofs, 17) {
				return out
			}
			for i := range 4 {
				d.current.Quat[i] = r4(p[ofs+1+4*i:])
			}
			ofs += 17
		case itemPress:
			if !fits(p, ofs, 5) {
				return out
			}
			d.current.Pressure = r4(p[ofs+1:])
			ofs += 5
		case itemIMUSOL:
			if !fits(p, ofs, imusolSize) {
				return out
			}
			d.current = parseIMUSOL(p[ofs : ofs+imusolSize])
			ofs += imusolSize
		case itemGateway:
			if !fits(p, ofs, 8) {
				return out
			}
			nodes := int(p[ofs+2])
			ofs += 8
			for range nodes {
				if !fits(p, ofs, imusolSize) {
					return out
				}
				out = append(out, parseIMUSOL(p[ofs:ofs+imusolSize]))
				ofs += imusolSize
			}
			return out
		default:
			ofs++
		}
	}
	return append(out, d.current)
}

func fits(p []byte, ofs, n int) bool {
	return ofs+n <= len(p)
}

func parseIMUSOL(p []byte) Sample {
	s := Sample{
		ID:        p[1],
		Pressure:  r4(p[4:]),
		Timestamp: binary.LittleEndian.Uint32(p[8:]),
		HasStamp:  true,
	}
	for i := range 3 {
		s.Acc[i] = r4(p[12+4*i:])
		s.Gyro[i] = r4(p[24+4*i:])
		s.Mag[i] = r4(p[36+4*i:])
		s.Euler[i] = r4(p[48+4*i:])
	}
	for i := range 4 {
		s.Quat[i] = r4(p[60+4*i:])
	}
	return s
}

func i2(p []byte) int16 {
	return int16(binary.LittleEndian.Uint16(p))
}

func i2x3(p []byte, scale float32) [3]float32 {
	return [3]float32{
		float32(i2(p[0:])) / scale,
		float32(i2(p[2:])) / scale,
		float32(i2(p[4:])) / scale,
	}
}

func r4(p []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(p))
}

// crc16 continues a CRC16-CCITT (poly 0x1021, MSB first) over src.
func crc16(crc uint16, src []byte) uint16 {
	for _, b := range src {
		crc ^= uint16(b) << 8
		for range 8 {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

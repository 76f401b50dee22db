// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"image"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/inertial_vio/internal/config"
	"github.com/relabs-tech/inertial_vio/internal/fusion"
	"github.com/relabs-tech/inertial_vio/internal/transport"
)

const (
	displayWidth  = 128
	displayHeight = 64

	// ssd1306.NewI2C always binds the controller's default address.
	ssd1306Addr = 0x3C
)

// poseLatch keeps the newest pose for the refresh loop.
type poseLatch struct {
	mu   sync.RWMutex
	msg  fusion.PoseMessage
	have bool
}

func (l *poseLatch) set(msg fusion.PoseMessage) {
	l.mu.Lock()
	l.msg = msg
	l.have = true
	l.mu.Unlock()
}

func (l *poseLatch) get() (fusion.PoseMessage, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.msg, l.have
}

func newCanvas() (*image1bit.VerticalLSB, *font.Drawer) {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, displayWidth, displayHeight))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	return img, drawer
}

func drawLines(drawer *font.Drawer, x int, lines ...string) {
	for i, line := range lines {
		drawer.Dot = fixed.P(x, 13*(i+1))
		drawer.DrawString(line)
	}
}

// renderPose draws the latest pose, or a waiting screen before the first one.
func renderPose(msg fusion.PoseMessage, have bool) *image1bit.VerticalLSB {
	img, drawer := newCanvas()
	if !have {
		drawLines(drawer, 0, "", "VIO pose", "Waiting...")
		return img
	}

	e := msg.Pose.Euler()
	t := msg.Pose.Translation
	mode := "VIS"
	if msg.Inertial {
		mode = "IMU"
	}
	drawLines(drawer, 0,
		fmt.Sprintf("X%6.2f Y%6.2f", t.X, t.Y),
		fmt.Sprintf("Z%6.2f %s", t.Z, mode),
		fmt.Sprintf("R%5.0f P%5.0f", e.Roll, e.Pitch),
		fmt.Sprintf("Y%5.0f #%d", e.Yaw, msg.Sequence),
	)
	return img
}

func renderSplash() *image1bit.VerticalLSB {
	img, drawer := newCanvas()
	drawLines(drawer, 10, "", "Inertial VIO", "Waiting for", "calibration")
	return img
}

// RunDisplay shows the fused pose on an SSD1306 OLED until interrupted.
func RunDisplay() error {
	cfg := config.Get()
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.DisplayI2CAddr != ssd1306Addr {
		return fmt.Errorf("display: unsupported I2C address 0x%02X (driver binds 0x%02X)", cfg.DisplayI2CAddr, ssd1306Addr)
	}

	// Initialize periph
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	// Open I2C bus
	bus, err := i2creg.Open("")
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	logger.Infow("display initialized", "addr", fmt.Sprintf("0x%02X", cfg.DisplayI2CAddr))

	if err := dev.Draw(dev.Bounds(), renderSplash(), image.Point{}); err != nil {
		logger.Warnw("error showing splash", "error", err)
	}

	client, err := transport.Connect(cfg.MQTTBroker, cfg.MQTTClientIDDisplay, logger)
	if err != nil {
		return err
	}
	defer client.Disconnect(transport.DisconnectQuiesce)

	latch := &poseLatch{}
	if err := transport.SubscribeJSON(client, cfg.TopicPose, logger, latch.set); err != nil {
		return fmt.Errorf("failed to subscribe for display: %w", err)
	}

	ctx, stop := signalContext()
	defer stop()

	ticker := time.NewTicker(time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond)
	defer ticker.Stop()

	logger.Info("display: starting update loop")
	for {
		select {
		case <-ctx.Done():
			logger.Info("display: shutting down")
			return dev.Halt()
		case <-ticker.C:
			if err := dev.Draw(dev.Bounds(), renderPose(latch.get()), image.Point{}); err != nil {
				logger.Warnw("error updating display", "error", err)
			}
		}
	}
}

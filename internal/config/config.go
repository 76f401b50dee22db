// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/relabs-tech/inertial_vio/internal/imu"
)

// Inertial source kinds accepted by IMU_SOURCE.
const (
	IMUSourceMQTT   = "mqtt"
	IMUSourceSerial = "serial"
	IMUSourceSPI    = "spi"
)

// estimatorPrefix marks keys passed through to the estimator.
const estimatorPrefix = "ESTIMATOR_"

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker           string
	MQTTClientIDVIO      string
	MQTTClientIDIMU      string
	MQTTClientIDWeb      string
	MQTTClientIDConsole  string
	MQTTClientIDDisplay  string
	MQTTClientIDProducer string

	// Topics
	TopicFrame       string
	TopicDepth       string
	TopicFeatures    string
	TopicReset       string
	TopicIMU         string
	TopicPose        string
	TopicPassthrough string

	// Inertial source: "mqtt", "serial" (HI229) or "spi" (MPU9250)
	IMUSource     string
	IMUSerialPort string
	IMUSerialBaud int
	IMUSPIDevice  string
	IMUCSPin      string

	// IMU Sensor Ranges
	// Accelerometer: 0=±2g, 1=±4g, 2=±8g, 3=±16g
	IMUAccelRange byte
	// Gyroscope: 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
	IMUGyroRange byte

	IMUSampleInterval int // milliseconds

	// Fusion
	OrientationStamp   string // "gyro" or "own"
	CalibrationFile    string
	CameraAlphaScaling float64 // -1 leaves the calibration unscaled
	QueueSize          int

	// Web Server
	WebServerPort int

	// Display
	DisplayI2CAddr        uint16
	DisplayUpdateInterval int // milliseconds

	// Mock producer
	ProducerFrameInterval int // milliseconds

	LogLevel string

	// EstimatorParams holds ESTIMATOR_* keys, prefix stripped and lowercased.
	EstimatorParams map[string]string
}

// Default returns the configuration used for keys missing from the file.
func Default() *Config {
	return &Config{
		MQTTBroker:           "tcp://localhost:1883",
		MQTTClientIDVIO:      "inertial-vio",
		MQTTClientIDIMU:      "inertial-vio-imu-producer",
		MQTTClientIDWeb:      "inertial-vio-web",
		MQTTClientIDConsole:  "inertial-vio-console",
		MQTTClientIDDisplay:  "inertial-vio-display",
		MQTTClientIDProducer: "inertial-vio-producer-mock",

		TopicFrame:       "vio/frame",
		TopicDepth:       "vio/depth",
		TopicFeatures:    "vio/features",
		TopicReset:       "vio/reset",
		TopicIMU:         "vio/imu",
		TopicPose:        "vio/pose",
		TopicPassthrough: "vio/passthrough",

		IMUSource:         IMUSourceMQTT,
		IMUSerialPort:     "/dev/ttyUSB0",
		IMUSerialBaud:     115200,
		IMUSPIDevice:      "/dev/spidev0.0",
		IMUCSPin:          "8",
		IMUSampleInterval: 10,

		OrientationStamp:   "gyro",
		CameraAlphaScaling: -1,
		QueueSize:          8,

		WebServerPort: 8080,

		DisplayI2CAddr:        0x3C,
		DisplayUpdateInterval: 200,

		ProducerFrameInterval: 33,

		LogLevel:        "info",
		EstimatorParams: map[string]string{},
	}
}

// Global configuration, set once by InitGlobal and read through Get.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the configuration file over Default and validates it.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()
	return Parse(file)
}

// Parse reads KEY=VALUE lines from r. Blank lines and lines starting with
// '#' are skipped.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		if err := cfg.setValue(strings.TrimSpace(key), strings.TrimSpace(value)); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	if name, ok := strings.CutPrefix(key, estimatorPrefix); ok {
		if name == "" {
			return fmt.Errorf("empty estimator parameter name")
		}
		c.EstimatorParams[strings.ToLower(name)] = value
		return nil
	}

	var err error
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_VIO":
		c.MQTTClientIDVIO = value
	case "MQTT_CLIENT_ID_IMU":
		c.MQTTClientIDIMU = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value
	case "MQTT_CLIENT_ID_PRODUCER":
		c.MQTTClientIDProducer = value

	// Topics
	case "TOPIC_FRAME":
		c.TopicFrame = value
	case "TOPIC_DEPTH":
		c.TopicDepth = value
	case "TOPIC_FEATURES":
		c.TopicFeatures = value
	case "TOPIC_RESET":
		c.TopicReset = value
	case "TOPIC_IMU":
		c.TopicIMU = value
	case "TOPIC_POSE":
		c.TopicPose = value
	case "TOPIC_PASSTHROUGH":
		c.TopicPassthrough = value

	// Inertial source
	case "IMU_SOURCE":
		c.IMUSource = strings.ToLower(value)
	case "IMU_SERIAL_PORT":
		c.IMUSerialPort = value
	case "IMU_SERIAL_BAUD":
		c.IMUSerialBaud, err = parseInt(key, value, 1, 4_000_000)
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value
	case "IMU_ACCEL_RANGE":
		var v int
		v, err = parseInt(key, value, 0, 3)
		c.IMUAccelRange = byte(v)
	case "IMU_GYRO_RANGE":
		var v int
		v, err = parseInt(key, value, 0, 3)
		c.IMUGyroRange = byte(v)
	case "IMU_SAMPLE_INTERVAL":
		c.IMUSampleInterval, err = parseInt(key, value, 1, 10_000)

	// Fusion
	case "ORIENTATION_STAMP":
		c.OrientationStamp = strings.ToLower(value)
	case "CALIBRATION_FILE":
		c.CalibrationFile = value
	case "CAMERA_ALPHA_SCALING":
		c.CameraAlphaScaling, err = strconv.ParseFloat(value, 64)
		if err != nil {
			err = fmt.Errorf("invalid CAMERA_ALPHA_SCALING %q: %w", value, err)
		}
	case "QUEUE_SIZE":
		c.QueueSize, err = parseInt(key, value, 1, 1024)

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parseInt(key, value, 1, 65535)

	// Display
	case "DISPLAY_I2C_ADDR":
		addr, perr := strconv.ParseUint(value, 0, 16)
		if perr != nil {
			return fmt.Errorf("invalid DISPLAY_I2C_ADDR %q: %w", value, perr)
		}
		c.DisplayI2CAddr = uint16(addr)
	case "DISPLAY_UPDATE_INTERVAL":
		c.DisplayUpdateInterval, err = parseInt(key, value, 1, 60_000)

	case "PRODUCER_FRAME_INTERVAL":
		c.ProducerFrameInterval, err = parseInt(key, value, 1, 60_000)

	case "LOG_LEVEL":
		c.LogLevel = strings.ToLower(value)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

func parseInt(key, value string, lo, hi int) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("%s must be %d-%d, got %d", key, lo, hi, v)
	}
	return v, nil
}

// validate checks cross-field requirements.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	switch c.IMUSource {
	case IMUSourceMQTT:
		if c.TopicIMU == "" {
			return fmt.Errorf("TOPIC_IMU is required when IMU_SOURCE=mqtt")
		}
	case IMUSourceSerial:
		if c.IMUSerialPort == "" {
			return fmt.Errorf("IMU_SERIAL_PORT is required when IMU_SOURCE=serial")
		}
	case IMUSourceSPI:
		if c.IMUSPIDevice == "" || c.IMUCSPin == "" {
			return fmt.Errorf("IMU_SPI_DEVICE and IMU_CS_PIN are required when IMU_SOURCE=spi")
		}
	default:
		return fmt.Errorf("IMU_SOURCE must be one of mqtt, serial, spi, got %q", c.IMUSource)
	}
	if _, err := imu.ParseStampPolicy(c.OrientationStamp); err != nil {
		return fmt.Errorf("ORIENTATION_STAMP: %w", err)
	}
	if c.TopicFrame == "" || c.TopicDepth == "" || c.TopicPose == "" {
		return fmt.Errorf("TOPIC_FRAME, TOPIC_DEPTH and TOPIC_POSE are required")
	}
	return nil
}

// StampPolicy returns the parsed ORIENTATION_STAMP.
func (c *Config) StampPolicy() imu.StampPolicy {
	p, _ := imu.ParseStampPolicy(c.OrientationStamp)
	return p
}

// InitGlobal initializes the global configuration from file. Only the first
// call loads; later calls return its error.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration, or nil before InitGlobal.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}

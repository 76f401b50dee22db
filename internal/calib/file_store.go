// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calib

import (
	"encoding/json"
	"fmt"
	"os"
)

// CameraCalibration is the stored calibration of one sensor at the
// resolution it was calibrated at.
type CameraCalibration struct {
	Instance int     `json:"instance"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Fx       float64 `json:"fx"`
	Fy       float64 `json:"fy"`
	Ppx      float64 `json:"ppx"`
	Ppy      float64 `json:"ppy"`
}

// File is the on-disk calibration document.
type File struct {
	BoardName string              `json:"board_name"`
	Cameras   []CameraCalibration `json:"cameras"`
}

// FileStore serves lookups from a calibration document read once at startup.
type FileStore struct {
	doc File
}

// LoadFileStore reads and validates the calibration document at path.
func LoadFileStore(path string) (*FileStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read calibration file: %w", err)
	}

	var doc File
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse calibration file %s: %w", path, err)
	}
	return NewFileStore(doc)
}

// NewFileStore validates doc and wraps it.
func NewFileStore(doc File) (*FileStore, error) {
	if doc.BoardName == "" {
		return nil, fmt.Errorf("calibration: board_name is required")
	}
	for i, c := range doc.Cameras {
		if c.Width <= 0 || c.Height <= 0 {
			return nil, fmt.Errorf("calibration: camera %d: width and height must be positive", i)
		}
		if c.Fx <= 0 || c.Fy <= 0 {
			return nil, fmt.Errorf("calibration: camera %d: focal lengths must be positive", i)
		}
	}
	return &FileStore{doc: doc}, nil
}

// Lookup scales the stored intrinsics of instance to width x height.
func (s *FileStore) Lookup(instance, width, height int, alpha float64) (Intrinsics, string, error) {
	if width <= 0 || height <= 0 {
		return Intrinsics{}, "", fmt.Errorf("invalid resolution %dx%d", width, height)
	}
	for _, c := range s.doc.Cameras {
		if c.Instance != instance {
			continue
		}
		sx := float64(width) / float64(c.Width)
		sy := float64(height) / float64(c.Height)
		return Intrinsics{
			Width:  width,
			Height: height,
			Fx:     c.Fx * sx,
			Fy:     c.Fy * sy,
			Ppx:    c.Ppx * sx,
			Ppy:    c.Ppy * sy,
			Alpha:  alpha,
		}, s.doc.BoardName, nil
	}
	return Intrinsics{}, "", fmt.Errorf("no calibration for sensor instance %d", instance)
}

package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// CalibrationStore persists the servo pin map and per-channel home pulses.
type CalibrationStore interface {
	PinMap() [numChannels]int
	HomePulses() [numChannels]int
	SetHomePulses(home [numChannels]int)
	Save() error
}

// calibrationFile is the on-disk YAML layout.
type calibrationFile struct {
	Pins [numChannels]int `yaml:"pins"`
	Home [numChannels]int `yaml:"home"`
}

// FileCalibration is a CalibrationStore backed by a YAML file.
// A missing file yields the built-in defaults; Save creates it.
type FileCalibration struct {
	path string

	mu   sync.Mutex
	data calibrationFile
}

// LoadCalibration reads path (after ExpandPath). A missing file is not an error.
func LoadCalibration(path string) (*FileCalibration, error) {
	if path == "" {
		return nil, errors.New("calibration path is empty")
	}
	c := &FileCalibration{
		path: ExpandPath(path),
		data: calibrationFile{Pins: defaultPins, Home: defaultHomes},
	}

	b, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read calibration file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&c.data); err != nil {
		return nil, fmt.Errorf("decode calibration yaml: %w", err)
	}
	for i, h := range c.data.Home {
		if h < pulseMin || h > pulseMax {
			return nil, fmt.Errorf("calibration home[%d]=%d out of range %d..%d", i, h, pulseMin, pulseMax)
		}
	}
	return c, nil
}

func (c *FileCalibration) Path() string { return c.path }

func (c *FileCalibration) PinMap() [numChannels]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data.Pins
}

func (c *FileCalibration) HomePulses() [numChannels]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data.Home
}

func (c *FileCalibration) SetHomePulses(home [numChannels]int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data.Home = home
}

// Save writes the calibration atomically (temp file + rename).
func (c *FileCalibration) Save() error {
	c.mu.Lock()
	b, err := yaml.Marshal(c.data)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode calibration yaml: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create calibration dir: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write calibration file: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("rename calibration file: %w", err)
	}
	return nil
}

// Package detectors - Face detection backends producing NMS candidates.
package detectors

import (
	"github.com/pkg/errors"
)

// Config selects a backend and carries the settings of every backend.
// Only the section of the selected backend is used.
type Config struct {
	Backend Backend    `yaml:"backend"`
	Haar    HaarConfig `yaml:"haar"`
	YOLO    YOLOConfig `yaml:"yolo"`
	Pigo    PigoConfig `yaml:"pigo"`
}

// HaarConfig configures the Haar cascade backend.
type HaarConfig struct {
	// CascadePath is the OpenCV cascade XML file.
	CascadePath string `yaml:"cascade_path"`
	// ScaleFactor is how much the image shrinks between detection scales.
	ScaleFactor float64 `yaml:"scale_factor"`
	// MinNeighbors is how many overlapping hits a face needs to be kept.
	MinNeighbors int `yaml:"min_neighbors"`
	// MinSize is the side of the smallest face searched for, in pixels.
	MinSize int `yaml:"min_size"`
}

// YOLOConfig configures the YOLOv3 backend.
type YOLOConfig struct {
	ConfigPath  string `yaml:"config_path"`
	WeightsPath string `yaml:"weights_path"`
	ClassesPath string `yaml:"classes_path"`
	// InputSize is the side of the square network input.
	InputSize int `yaml:"input_size"`
	// ConfidenceThreshold drops rows before they become candidates. It is not
	// read from YAML; callers copy the NMS confidence threshold into it.
	ConfidenceThreshold float32 `yaml:"-"`
}

// PigoConfig configures the pigo backend.
type PigoConfig struct {
	CascadePath string  `yaml:"cascade_path"`
	MinSize     int     `yaml:"min_size"`
	MaxSize     int     `yaml:"max_size"`
	ShiftFactor float64 `yaml:"shift_factor"`
	ScaleFactor float64 `yaml:"scale_factor"`
	// Angle is the cascade rotation in [0, 1], where 1 is a full turn.
	Angle float64 `yaml:"angle"`
	// IoUThreshold clusters overlapping raw detections.
	IoUThreshold float64 `yaml:"iou_threshold"`
	// MinQuality drops clustered detections scoring below it.
	MinQuality float32 `yaml:"min_quality"`
	// MaxDimension downscales larger inputs before detection. Zero disables it.
	MaxDimension int `yaml:"max_dimension"`
}

// DefaultConfig returns the YOLO backend with the face model's file names.
//
// Returns:
//   - Config: Defaults for every backend.
//
// @example
// cfg := DefaultConfig()
// cfg.Backend = BackendHaar
// detector, err := New(cfg, logger)
func DefaultConfig() Config {
	return Config{
		Backend: BackendYOLO,
		Haar: HaarConfig{
			CascadePath:  "haarcascade_frontalface_default.xml",
			ScaleFactor:  1.1,
			MinNeighbors: 10,
			MinSize:      10,
		},
		YOLO: YOLOConfig{
			ConfigPath:          "yolov3-face.cfg",
			WeightsPath:         "yolov3-wider_16000.weights",
			ClassesPath:         "yolov3_classes.txt",
			InputSize:           416,
			ConfidenceThreshold: 0.35,
		},
		Pigo: PigoConfig{
			CascadePath:  "facefinder",
			MinSize:      20,
			MaxSize:      1000,
			ShiftFactor:  0.1,
			ScaleFactor:  1.1,
			IoUThreshold: 0.2,
			MinQuality:   5,
			MaxDimension: 1024,
		},
	}
}

// Validate checks the settings of the selected backend.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendHaar:
		if c.Haar.CascadePath == "" {
			return errors.New("haar cascade path is required")
		}
		if c.Haar.ScaleFactor <= 1 {
			return errors.Errorf("haar scale factor must be greater than 1, got %v", c.Haar.ScaleFactor)
		}
		if c.Haar.MinNeighbors < 0 || c.Haar.MinSize < 0 {
			return errors.New("haar min neighbors and min size can't be negative")
		}
	case BackendYOLO:
		if c.YOLO.ConfigPath == "" || c.YOLO.WeightsPath == "" {
			return errors.New("yolo config and weights paths are required")
		}
		if c.YOLO.InputSize <= 0 || c.YOLO.InputSize%32 != 0 {
			return errors.Errorf("yolo input size must be a positive multiple of 32, got %d", c.YOLO.InputSize)
		}
		if c.YOLO.ConfidenceThreshold < 0 || c.YOLO.ConfidenceThreshold > 1 {
			return errors.Errorf("yolo confidence threshold %v is outside [0, 1]", c.YOLO.ConfidenceThreshold)
		}
	case BackendPigo:
		if c.Pigo.CascadePath == "" {
			return errors.New("pigo cascade path is required")
		}
		if c.Pigo.MinSize <= 0 || c.Pigo.MaxSize < c.Pigo.MinSize {
			return errors.Errorf("pigo sizes must satisfy 0 < min (%d) <= max (%d)", c.Pigo.MinSize, c.Pigo.MaxSize)
		}
		if c.Pigo.ScaleFactor <= 1 || c.Pigo.ShiftFactor <= 0 {
			return errors.New("pigo scale factor must be greater than 1 and shift factor positive")
		}
		if c.Pigo.MaxDimension < 0 {
			return errors.Errorf("pigo max dimension can't be negative, got %d", c.Pigo.MaxDimension)
		}
	default:
		return errors.Errorf("invalid backend %d", int(c.Backend))
	}
	return nil
}

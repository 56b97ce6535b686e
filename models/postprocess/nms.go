package postprocess

import (
	"math"
	"sort"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-faceblur/images"
)

var (
	// ErrInvalidConfig is returned when NMS thresholds are missing or out of range.
	ErrInvalidConfig = errors.New("invalid nms config")
	// ErrInvalidCandidate is returned when a candidate can't be ranked.
	ErrInvalidCandidate = errors.New("invalid candidate")
)

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	// ConfidenceThreshold rejects candidates whose score does not strictly exceed it.
	ConfidenceThreshold float32 `json:"confidence_threshold" yaml:"confidence_threshold"`
	// IoUThreshold is the overlap above which a lower-ranked candidate is suppressed.
	IoUThreshold float32 `json:"iou_threshold" yaml:"iou_threshold"`
	// ClassAware restricts suppression to candidates sharing a class.
	ClassAware bool `json:"class_aware" yaml:"class_aware"`
}

// DefaultNMSConfig returns the thresholds used for face detection.
func DefaultNMSConfig() NMSConfig {
	return NMSConfig{
		ConfidenceThreshold: 0.35,
		IoUThreshold:        0.4,
	}
}

// Validate checks that both thresholds are finite values in [0, 1].
func (c *NMSConfig) Validate() error {
	if c == nil {
		return errors.Wrap(ErrInvalidConfig, "config is nil")
	}
	if !unitInterval(c.ConfidenceThreshold) {
		return errors.Wrapf(ErrInvalidConfig, "confidence threshold %v is outside [0, 1]", c.ConfidenceThreshold)
	}
	if !unitInterval(c.IoUThreshold) {
		return errors.Wrapf(ErrInvalidConfig, "iou threshold %v is outside [0, 1]", c.IoUThreshold)
	}
	return nil
}

func unitInterval(v float32) bool {
	return !math.IsNaN(float64(v)) && v >= 0 && v <= 1
}

// ApplyGreedyNMS performs standard greedy Non-Maximum Suppression.
//
// Candidates scoring at or below the confidence threshold are dropped, the rest
// are ranked by descending score (ties keep their input order) and, repeatedly,
// the best remaining candidate is accepted and every remaining candidate whose
// IoU with it exceeds the IoU threshold is discarded. A discarded candidate is
// never reconsidered. The input slice is not modified.
//
// Arguments:
//   - candidates: Raw detections for one image, in any order.
//   - config: NMS configuration. If ClassAware is set, only candidates of the same
//     class suppress each other.
//
// Returns:
//   - The accepted detections ordered by descending score. Empty when nothing survives.
//   - An error wrapping ErrInvalidConfig on bad thresholds, or ErrInvalidCandidate
//     when a score is NaN, infinite or outside [0, 1].
//
// @example
// accepted, err := ApplyGreedyNMS(candidates, &NMSConfig{ConfidenceThreshold: 0.35, IoUThreshold: 0.4})
func ApplyGreedyNMS(candidates []Result, config *NMSConfig) ([]Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	ranked := make([]Result, 0, len(candidates))
	for i, c := range candidates {
		if !unitInterval(c.Score) {
			return nil, errors.Wrapf(ErrInvalidCandidate, "candidate %d has score %v outside [0, 1]", i, c.Score)
		}
		if c.Score > config.ConfidenceThreshold {
			ranked = append(ranked, c)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	filtered := make([]Result, 0, len(ranked))
	used := make([]bool, len(ranked))

	for i := range ranked {
		if used[i] {
			continue
		}

		anchor := ranked[i]
		filtered = append(filtered, anchor)
		used[i] = true

		for j := i + 1; j < len(ranked); j++ {
			if used[j] {
				continue
			}
			if suppresses(anchor, ranked[j], config) {
				used[j] = true
			}
		}
	}

	return filtered, nil
}

// IsSuppressionStable reports whether no member of accepted would suppress a
// lower-ranked member, i.e. running the suppression step over accepted again
// removes nothing. accepted must be ordered by descending score.
func IsSuppressionStable(accepted []Result, config *NMSConfig) bool {
	for i := range accepted {
		for j := i + 1; j < len(accepted); j++ {
			if suppresses(accepted[i], accepted[j], config) {
				return false
			}
		}
	}
	return true
}

func suppresses(anchor, other Result, config *NMSConfig) bool {
	if config.ClassAware && anchor.Class != other.Class {
		return false
	}
	return images.CalculateIoU(anchor.Box, other.Box) > config.IoUThreshold
}

// Package postprocess - Postprocessing of raw detector output.
package postprocess

import (
	"fmt"

	"github.com/nvr-ai/go-faceblur/images"
)

// FaceClass is the class index of a face. The detectors used here are single-class.
const FaceClass = 0

// Result represents a single detection result.
type Result struct {
	// The bounding box of the result.
	Box images.Rect
	// The confidence score of the result.
	Score float32
	// The predicted class index of the result.
	Class int
	// Label is the class name, if the detector knows it.
	Label string
}

func (r Result) String() string {
	label := r.Label
	if label == "" {
		label = fmt.Sprintf("class_%d", r.Class)
	}
	return fmt.Sprintf("%s %.2f at %s", label, r.Score, r.Box)
}

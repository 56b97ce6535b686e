package detectors

import (
	"context"
	"image"
	"log/slog"
	"os"
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-faceblur/images"
	"github.com/nvr-ai/go-faceblur/models/postprocess"
)

// cascadeScaleImage is OpenCV's CASCADE_SCALE_IMAGE flag.
const cascadeScaleImage = 2

// HaarDetector finds faces with an OpenCV Haar cascade.
//
// The cascade reports no confidence, so every face it returns is a candidate
// with score 1.0.
type HaarDetector struct {
	cfg        HaarConfig
	logger     *slog.Logger
	mu         sync.Mutex
	classifier gocv.CascadeClassifier
}

// NewHaarDetector loads the cascade XML file named by cfg.CascadePath.
func NewHaarDetector(cfg HaarConfig, logger *slog.Logger) (*HaarDetector, error) {
	if _, err := os.Stat(cfg.CascadePath); err != nil {
		return nil, errors.Wrapf(err, "haar cascade %s", cfg.CascadePath)
	}

	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(cfg.CascadePath) {
		classifier.Close()
		return nil, errors.Errorf("failed to load haar cascade %s", cfg.CascadePath)
	}

	logger.Info("haar cascade loaded", "path", cfg.CascadePath)
	return &HaarDetector{cfg: cfg, logger: logger, classifier: classifier}, nil
}

func (d *HaarDetector) Name() string { return BackendHaar.String() }

// Detect runs the cascade over the grayscale image.
func (d *HaarDetector) Detect(ctx context.Context, img image.Image) ([]postprocess.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := toMat(img)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(mat, &gray, gocv.ColorBGRToGray)

	minSize := image.Pt(d.cfg.MinSize, d.cfg.MinSize)

	d.mu.Lock()
	rects := d.classifier.DetectMultiScaleWithParams(gray, d.cfg.ScaleFactor, d.cfg.MinNeighbors, cascadeScaleImage, minSize, image.Point{})
	d.mu.Unlock()

	// Detections are relative to the Mat, which starts at the origin.
	offset := img.Bounds().Min
	results := make([]postprocess.Result, 0, len(rects))
	for _, r := range rects {
		results = append(results, postprocess.Result{
			Box:   images.FromRectangle(r.Add(offset)),
			Score: 1.0,
			Class: postprocess.FaceClass,
			Label: "face",
		})
	}

	d.logger.Debug("haar detection finished", "faces", len(results))
	return results, nil
}

// Close releases the native classifier.
func (d *HaarDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.classifier.Close()
}

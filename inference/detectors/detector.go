package detectors

import (
	"context"
	"image"
	"log/slog"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-faceblur/models/postprocess"
)

// Detector produces raw face candidates for one image. Candidates still need
// to go through non-maximum suppression.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]postprocess.Result, error)
	Name() string
	Close() error
}

// New builds the detector selected by cfg.Backend and loads its model files.
//
// Arguments:
//   - cfg: The backend and its settings.
//   - logger: The logger the detector reports to.
//
// Returns:
//   - Detector: A ready detector. The caller must Close it.
//   - error: An error if cfg is invalid or a model file can't be loaded.
func New(cfg Config, logger *slog.Logger) (Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid detector config")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("backend", cfg.Backend.String())

	var (
		d   Detector
		err error
	)
	switch cfg.Backend {
	case BackendHaar:
		d, err = NewHaarDetector(cfg.Haar, logger)
	case BackendYOLO:
		d, err = NewYOLODetector(cfg.YOLO, logger)
	default:
		d, err = NewPigoDetector(cfg.Pigo, logger)
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// toMat converts img into an 8-bit BGR Mat as OpenCV expects.
func toMat(img image.Image) (gocv.Mat, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return gocv.Mat{}, errors.Wrap(err, "failed to convert image to mat")
	}
	if mat.Empty() {
		mat.Close()
		return gocv.Mat{}, errors.New("image is empty")
	}
	return mat, nil
}

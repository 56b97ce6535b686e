package detectors

import (
	"context"
	"image"
	"log/slog"
	"os"

	pigo "github.com/esimov/pigo/core"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-faceblur/images"
	"github.com/nvr-ai/go-faceblur/models/postprocess"
)

// PigoDetector finds faces with a pigo cascade. It needs no native libraries.
//
// Pigo's quality value is not a probability, so detections at or above
// MinQuality become candidates with score 1.0.
type PigoDetector struct {
	cfg        PigoConfig
	logger     *slog.Logger
	classifier *pigo.Pigo
}

// NewPigoDetector unpacks the binary cascade at cfg.CascadePath.
func NewPigoDetector(cfg PigoConfig, logger *slog.Logger) (*PigoDetector, error) {
	data, err := os.ReadFile(cfg.CascadePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read pigo cascade %s", cfg.CascadePath)
	}

	classifier, err := pigo.NewPigo().Unpack(data)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to unpack pigo cascade %s", cfg.CascadePath)
	}

	logger.Info("pigo cascade loaded", "path", cfg.CascadePath)
	return &PigoDetector{cfg: cfg, logger: logger, classifier: classifier}, nil
}

func (d *PigoDetector) Name() string { return BackendPigo.String() }

// Detect runs the cascade, clusters overlapping hits and maps them back to the
// coordinates of img. The unpacked cascade is read-only, so Detect may be
// called concurrently.
func (d *PigoDetector) Detect(ctx context.Context, img image.Image) ([]postprocess.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, errors.New("image is empty")
	}

	src, scale := d.downscale(img)
	sb := src.Bounds()
	cols, rows := sb.Dx(), sb.Dy()

	params := pigo.CascadeParams{
		MinSize:     d.cfg.MinSize,
		MaxSize:     min(d.cfg.MaxSize, cols, rows),
		ShiftFactor: d.cfg.ShiftFactor,
		ScaleFactor: d.cfg.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pigo.RgbToGrayscale(src),
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	dets := d.classifier.RunCascade(params, d.cfg.Angle)
	dets = d.classifier.ClusterDetections(dets, d.cfg.IoUThreshold)

	results := make([]postprocess.Result, 0, len(dets))
	for _, det := range dets {
		if det.Q < d.cfg.MinQuality {
			continue
		}
		results = append(results, postprocess.Result{
			Box:   detectionBox(det, scale, bounds.Min),
			Score: 1.0,
			Class: postprocess.FaceClass,
			Label: "face",
		})
	}

	d.logger.Debug("pigo detection finished", "raw", len(dets), "faces", len(results), "scale", scale)
	return results, nil
}

// Close is a no-op; the cascade lives in Go memory.
func (d *PigoDetector) Close() error { return nil }

// downscale shrinks img so its longest side is at most MaxDimension.
// It returns the image to run on and the factor mapping its coordinates back.
func (d *PigoDetector) downscale(img image.Image) (image.Image, float32) {
	b := img.Bounds()
	longest := max(b.Dx(), b.Dy())
	if d.cfg.MaxDimension <= 0 || longest <= d.cfg.MaxDimension {
		return img, 1
	}

	scale := float32(longest) / float32(d.cfg.MaxDimension)
	w := uint(float32(b.Dx()) / scale)
	h := uint(float32(b.Dy()) / scale)
	return resize.Resize(max(w, 1), max(h, 1), img, resize.Bilinear), scale
}

// detectionBox converts a pigo center/scale detection to a box in the source image.
func detectionBox(det pigo.Detection, scale float32, origin image.Point) images.Rect {
	side := float32(det.Scale) * scale
	r := images.FromCenter(float32(det.Col)*scale, float32(det.Row)*scale, side, side)
	r.X1 += origin.X
	r.X2 += origin.X
	r.Y1 += origin.Y
	r.Y2 += origin.Y
	return r
}

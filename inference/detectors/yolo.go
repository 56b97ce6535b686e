package detectors

import (
	"context"
	"image"
	"log/slog"
	"os"
	"sync"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-faceblur/images"
	"github.com/nvr-ai/go-faceblur/models/postprocess"
)

// yoloScale maps 8-bit pixel values to [0, 1].
const yoloScale = 0.00392

// YOLODetector runs a darknet YOLOv3 face model through OpenCV's dnn module.
type YOLODetector struct {
	cfg     YOLOConfig
	logger  *slog.Logger
	classes []string

	mu          sync.Mutex
	net         gocv.Net
	outputNames []string
}

// NewYOLODetector reads the network from cfg.ConfigPath and cfg.WeightsPath.
//
// Arguments:
//   - cfg: The model files and decoding settings.
//   - logger: The logger to report to.
//
// Returns:
//   - *YOLODetector: The loaded detector.
//   - error: An error if a model file is missing or the network can't be read.
func NewYOLODetector(cfg YOLOConfig, logger *slog.Logger) (*YOLODetector, error) {
	for _, path := range []string{cfg.ConfigPath, cfg.WeightsPath} {
		if _, err := os.Stat(path); err != nil {
			return nil, errors.Wrapf(err, "yolo model file %s", path)
		}
	}

	classes := []string{"face"}
	if cfg.ClassesPath != "" {
		loaded, err := LoadClasses(cfg.ClassesPath)
		if err != nil {
			return nil, err
		}
		classes = loaded
	}

	net := gocv.ReadNet(cfg.WeightsPath, cfg.ConfigPath)
	if net.Empty() {
		net.Close()
		return nil, errors.Errorf("failed to read yolo network from %s and %s", cfg.ConfigPath, cfg.WeightsPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	names := net.GetLayerNames()
	var outputNames []string
	for _, id := range net.GetUnconnectedOutLayers() {
		// Layer ids are 1-based.
		if id < 1 || id > len(names) {
			net.Close()
			return nil, errors.Errorf("output layer id %d out of range", id)
		}
		outputNames = append(outputNames, names[id-1])
	}

	logger.Info("yolo network loaded",
		"config", cfg.ConfigPath,
		"weights", cfg.WeightsPath,
		"classes", len(classes),
		"outputs", outputNames,
	)

	return &YOLODetector{
		cfg:         cfg,
		logger:      logger,
		classes:     classes,
		net:         net,
		outputNames: outputNames,
	}, nil
}

func (d *YOLODetector) Name() string { return BackendYOLO.String() }

// Detect forwards the image through the network and decodes every output row.
func (d *YOLODetector) Detect(ctx context.Context, img image.Image) ([]postprocess.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := toMat(img)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	size := image.Pt(d.cfg.InputSize, d.cfg.InputSize)
	blob := gocv.BlobFromImage(mat, yoloScale, size, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.mu.Lock()
	d.net.SetInput(blob, "")
	outs := d.net.ForwardLayers(d.outputNames)
	d.mu.Unlock()

	var rows [][]float32
	for i := range outs {
		rows = append(rows, matRows(outs[i])...)
		outs[i].Close()
	}

	results := decodeYOLO(rows, mat.Cols(), mat.Rows(), d.cfg.ConfidenceThreshold, d.classes)
	d.logger.Debug("yolo detection finished", "rows", len(rows), "candidates", len(results))
	return results, nil
}

// Close releases the native network.
func (d *YOLODetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

// matRows copies a 2-D float32 Mat into rows.
func matRows(m gocv.Mat) [][]float32 {
	rows := make([][]float32, m.Rows())
	for r := range rows {
		row := make([]float32, m.Cols())
		for c := range row {
			row[c] = m.GetFloatAt(r, c)
		}
		rows[r] = row
	}
	return rows
}

// decodeYOLO turns YOLOv3 output rows into candidates.
//
// A row is [cx, cy, w, h, objectness, class scores...] with coordinates
// normalized to the image size. The candidate's class is the best scoring
// class and its score is that class score; objectness is not folded in.
// Rows whose score does not exceed threshold are dropped.
//
// Arguments:
//   - rows: The raw output rows of every output layer.
//   - width, height: The size of the source image in pixels.
//   - threshold: The minimum class score, exclusive.
//   - classes: Class names indexed by class id.
//
// Returns:
//   - []postprocess.Result: The candidates in row order.
func decodeYOLO(rows [][]float32, width, height int, threshold float32, classes []string) []postprocess.Result {
	w, h := float32(width), float32(height)

	var results []postprocess.Result
	for _, row := range rows {
		if len(row) <= 5 {
			continue
		}

		scores := row[5:]
		classID := 0
		for i, s := range scores {
			if s > scores[classID] {
				classID = i
			}
		}
		confidence := scores[classID]
		if !(confidence > threshold) {
			continue
		}

		// Center and size are truncated to whole pixels before the corner is derived.
		cx := math32.Trunc(row[0] * w)
		cy := math32.Trunc(row[1] * h)
		bw := math32.Trunc(row[2] * w)
		bh := math32.Trunc(row[3] * h)

		results = append(results, postprocess.Result{
			Box:   images.FromCenter(cx, cy, bw, bh),
			Score: confidence,
			Class: classID,
			Label: className(classes, classID),
		})
	}
	return results
}

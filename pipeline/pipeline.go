// Package pipeline - Batch face blurring over a directory of images.
package pipeline

import (
	"context"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/nvr-ai/go-faceblur/blur"
	"github.com/nvr-ai/go-faceblur/images"
	"github.com/nvr-ai/go-faceblur/models/postprocess"
	"github.com/nvr-ai/go-faceblur/profiler"
	"github.com/nvr-ai/go-faceblur/util"
)

// Detector produces raw face candidates for one image.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]postprocess.Result, error)
	Name() string
}

// Config is the explicit input of a run. Nothing is read from the working
// directory implicitly.
type Config struct {
	InputDir  string
	OutputDir string
	// Suffix is appended to the base name of every output file.
	Suffix string
	// OutputExt picks the output format. Empty keeps the input's extension
	// when it can be written and falls back to .png.
	OutputExt string
	// Workers is the number of images processed at once.
	Workers int
	// StopOnError aborts the run at the first failed image.
	StopOnError bool
	// Annotate outlines accepted faces after blurring them.
	Annotate bool
	NMS      postprocess.NMSConfig
}

// FileResult is the outcome for one input image.
type FileResult struct {
	Input    string
	Output   string
	Faces    int
	Duration time.Duration
	Err      error
	// Skipped is set when the run was stopped before the image was started or
	// while it was in flight.
	Skipped bool
}

// Summary aggregates a run.
type Summary struct {
	Processed int
	Failed    int
	Skipped   int
	Faces     int
	Files     []FileResult
}

// Pipeline runs detect, suppress, blur and write over every image of a directory.
type Pipeline struct {
	cfg      Config
	detector Detector
	blurrer  blur.Blurrer
	logger   *slog.Logger
	profiler *profiler.RuntimeProfiler
}

// New validates cfg and wires the pipeline.
//
// Arguments:
//   - cfg: The directories, output naming and thresholds of the run.
//   - detector: The face detector. The caller keeps ownership.
//   - blurrer: The region blur applied to every accepted face.
//   - logger: The logger to report progress to. Nil uses slog.Default.
//
// Returns:
//   - *Pipeline: The pipeline.
//   - error: An error if cfg is invalid.
func New(cfg Config, detector Detector, blurrer blur.Blurrer, logger *slog.Logger) (*Pipeline, error) {
	if cfg.InputDir == "" || cfg.OutputDir == "" {
		return nil, errors.New("input and output directories are required")
	}
	if detector == nil || blurrer == nil {
		return nil, errors.New("detector and blurrer are required")
	}
	if err := cfg.NMS.Validate(); err != nil {
		return nil, err
	}
	if cfg.OutputExt != "" {
		if f, ok := images.FormatFromPath("out" + cfg.OutputExt); !ok || !f.Writable() {
			return nil, errors.Errorf("unsupported output extension %q", cfg.OutputExt)
		}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		cfg:      cfg,
		detector: detector,
		blurrer:  blurrer,
		logger:   logger,
		profiler: profiler.NewRuntimeProfiler(),
	}, nil
}

// Profiler returns the stage timings collected so far.
func (p *Pipeline) Profiler() *profiler.RuntimeProfiler {
	return p.profiler
}

// Run processes every supported image in the input directory.
//
// Images are independent and processed by up to Workers goroutines. A failed
// image is logged and counted without stopping the run unless StopOnError is
// set. Cancelling ctx stops the run; images not yet started are skipped.
//
// Returns:
//   - Summary: Per-file outcomes in lexical input order plus totals.
//   - error: Setup failures, the first image error with StopOnError, or the
//     context error if the run was cancelled.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	if err := os.MkdirAll(p.cfg.OutputDir, 0o755); err != nil {
		return Summary{}, errors.Wrapf(err, "failed to create output directory %s", p.cfg.OutputDir)
	}

	files, err := util.LoadDirectoryImageFiles(p.cfg.InputDir)
	if err != nil {
		return Summary{}, err
	}

	p.logger.Info("face blurring started",
		"detector", p.detector.Name(),
		"input", p.cfg.InputDir,
		"output", p.cfg.OutputDir,
		"images", len(files),
		"workers", p.cfg.Workers,
	)

	results := make([]FileResult, len(files))
	for i, f := range files {
		results[i] = FileResult{Input: f.Path, Skipped: true}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)

	for i, f := range files {
		if gctx.Err() != nil {
			break
		}
		i, f := i, f
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			res := p.ProcessImage(gctx, f)
			if res.Err != nil && gctx.Err() != nil && interrupted(res.Err) {
				res.Skipped = true
			}
			results[i] = res
			if res.Err == nil || res.Skipped {
				return nil
			}

			p.logger.Error("image failed", "file", f.Path, "error", res.Err)
			if p.cfg.StopOnError {
				return errors.Wrapf(res.Err, "stopped at %s", f.Path)
			}
			return nil
		})
	}
	runErr := g.Wait()

	summary := Summary{Files: results}
	for _, r := range results {
		switch {
		case r.Skipped:
			summary.Skipped++
		case r.Err != nil:
			summary.Failed++
		default:
			summary.Processed++
			summary.Faces += r.Faces
		}
	}

	p.logger.Info("face blurring finished",
		"processed", summary.Processed,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"faces", summary.Faces,
	)
	p.profiler.Report(p.logger)

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, runErr
}

func interrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// ProcessImage loads one image, blurs every accepted face and writes the result.
func (p *Pipeline) ProcessImage(ctx context.Context, f util.ImageFile) FileResult {
	start := time.Now()
	defer p.profiler.StartOperation("image")()

	res := FileResult{Input: f.Path, Output: OutputPath(p.cfg.OutputDir, f, p.cfg.Suffix, p.cfg.OutputExt)}
	faces, err := p.blurFile(ctx, f.Path, res.Output)
	res.Faces = faces
	res.Err = err
	res.Duration = time.Since(start)

	if err == nil {
		p.logger.Info("image completed", "file", f.Path, "output", res.Output, "faces", faces, "duration", res.Duration)
	}
	return res
}

func (p *Pipeline) blurFile(ctx context.Context, in, out string) (int, error) {
	done := p.profiler.StartOperation("load")
	img, err := images.Load(in)
	done()
	if err != nil {
		return 0, err
	}

	done = p.profiler.StartOperation("detect")
	candidates, err := p.detector.Detect(ctx, img)
	done()
	if err != nil {
		return 0, errors.Wrapf(err, "detection failed on %s", in)
	}

	done = p.profiler.StartOperation("nms")
	accepted, err := postprocess.ApplyGreedyNMS(candidates, &p.cfg.NMS)
	done()
	if err != nil {
		return 0, errors.Wrapf(err, "suppression failed on %s", in)
	}
	p.logger.Debug("faces accepted",
		"file", in,
		"candidates", len(candidates),
		"accepted", len(accepted),
		"stable", postprocess.IsSuppressionStable(accepted, &p.cfg.NMS),
	)

	done = p.profiler.StartOperation("blur")
	for _, face := range accepted {
		if _, err := p.blurrer.Blur(img, face.Box); err != nil {
			done()
			return 0, errors.Wrapf(err, "failed to blur %s in %s", face.Box, in)
		}
	}
	if p.cfg.Annotate {
		blur.Annotate(img, accepted)
	}
	done()

	done = p.profiler.StartOperation("save")
	err = images.Save(img, out)
	done()
	if err != nil {
		return 0, err
	}
	return len(accepted), nil
}

// OutputPath names the output of f as <dir>/<base><suffix><ext>.
//
// @example
// OutputPath("out_images_yolo", util.ImageFile{Base: "people", Ext: ".jpg"}, "_output", ".png")
// // out_images_yolo/people_output.png
func OutputPath(dir string, f util.ImageFile, suffix, ext string) string {
	if ext == "" {
		ext = f.Ext
		if !f.Format.Writable() {
			ext = ".png"
		}
	}
	return filepath.Join(dir, f.Base+suffix+ext)
}

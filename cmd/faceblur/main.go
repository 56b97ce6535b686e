package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/nvr-ai/go-faceblur/blur"
	"github.com/nvr-ai/go-faceblur/config"
	"github.com/nvr-ai/go-faceblur/inference/detectors"
	"github.com/nvr-ai/go-faceblur/pipeline"
)

const usageBanner = `faceblur - detect faces in a directory of images and blur them.

Usage: faceblur [flags]

`

// cliFlags holds the raw command line values before they are merged into a config.Config.
type cliFlags struct {
	configPath string
	saveConfig string

	detect   string
	input    string
	output   string
	xml      string
	username string

	scaling      float64
	size         int
	minNeighbors int

	yoloConfig  string
	weights     string
	classes     string
	pigoCascade string

	confidence float64
	nms        float64
	classAware bool

	blurMethod string
	blurRadius int
	blurSigma  float64

	suffix      string
	outputExt   string
	workers     int
	annotate    bool
	stopOnError bool
	verbose     bool
}

func newFlagSet(f *cliFlags, output io.Writer) *flag.FlagSet {
	d := config.Default()

	fs := flag.NewFlagSet("faceblur", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		fmt.Fprint(output, usageBanner)
		fs.PrintDefaults()
	}

	fs.StringVar(&f.configPath, "config", "", "YAML config file; flags set on the command line override it")
	fs.StringVar(&f.saveConfig, "save-config", "", "Write the merged config to this file and exit")

	fs.StringVar(&f.detect, "detect", "1", "Detection backend: 0=haar, 1=yolo, 2=pigo (names work too)")
	fs.StringVar(&f.input, "input", d.Input, "Directory containing the input images")
	fs.StringVar(&f.output, "output", "", "Output directory (default out_images_<backend>)")
	fs.StringVar(&f.xml, "xml", d.Detector.Haar.CascadePath, "Haar cascade XML file")
	fs.StringVar(&f.username, "username", d.Username, "Resolve -xml under /home/<username>/opencv/data/haarcascades")

	fs.Float64Var(&f.scaling, "scaling", d.Detector.Haar.ScaleFactor, "Haar scale factor between detection scales")
	fs.IntVar(&f.size, "size", d.Detector.Haar.MinSize, "Haar minimum face size in pixels")
	fs.IntVar(&f.minNeighbors, "min-neighbors", d.Detector.Haar.MinNeighbors, "Haar neighbors needed to keep a face")

	fs.StringVar(&f.yoloConfig, "yolo-config", d.Detector.YOLO.ConfigPath, "YOLO darknet config file")
	fs.StringVar(&f.weights, "weights", d.Detector.YOLO.WeightsPath, "YOLO weights file")
	fs.StringVar(&f.classes, "classes", d.Detector.YOLO.ClassesPath, "YOLO classes file")
	fs.StringVar(&f.pigoCascade, "pigo-cascade", d.Detector.Pigo.CascadePath, "Pigo binary cascade file")

	fs.Float64Var(&f.confidence, "confidence", float64(d.NMS.ConfidenceThreshold), "Minimum confidence of a face, exclusive")
	fs.Float64Var(&f.nms, "nms", float64(d.NMS.IoUThreshold), "Overlap above which the weaker of two faces is suppressed")
	fs.BoolVar(&f.classAware, "class-aware", d.NMS.ClassAware, "Only suppress detections of the same class")

	fs.StringVar(&f.blurMethod, "blur", string(d.Blur.Method), "Blur method: kernel, gaussian or imaging")
	fs.IntVar(&f.blurRadius, "blur-radius", d.Blur.Radius, "Kernel radius of the kernel and gaussian methods")
	fs.Float64Var(&f.blurSigma, "blur-sigma", d.Blur.Sigma, "Sigma of the imaging method")

	fs.StringVar(&f.suffix, "suffix", d.Suffix, "Appended to the base name of every output file")
	fs.StringVar(&f.outputExt, "output-ext", d.OutputExt, "Extension and format of every output file; empty keeps the input's")
	fs.IntVar(&f.workers, "workers", d.Workers, "Number of images processed concurrently")
	fs.BoolVar(&f.annotate, "annotate", d.Annotate, "Outline and label blurred faces")
	fs.BoolVar(&f.stopOnError, "stop-on-error", d.StopOnError, "Abort at the first image that fails")
	fs.BoolVar(&f.verbose, "v", false, "Enable debug logging")

	return fs
}

// buildConfig merges defaults, the optional YAML file and the flags that were
// set explicitly, in increasing order of precedence.
func buildConfig(fs *flag.FlagSet, f *cliFlags) (config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	setters := map[string]func() error{
		"detect": func() error {
			b, err := detectors.ParseBackend(f.detect)
			cfg.Detector.Backend = b
			return err
		},
		"input":         func() error { cfg.Input = f.input; return nil },
		"output":        func() error { cfg.Output = f.output; return nil },
		"xml":           func() error { cfg.Detector.Haar.CascadePath = f.xml; return nil },
		"username":      func() error { cfg.Username = f.username; return nil },
		"scaling":       func() error { cfg.Detector.Haar.ScaleFactor = f.scaling; return nil },
		"size":          func() error { cfg.Detector.Haar.MinSize = f.size; return nil },
		"min-neighbors": func() error { cfg.Detector.Haar.MinNeighbors = f.minNeighbors; return nil },
		"yolo-config":   func() error { cfg.Detector.YOLO.ConfigPath = f.yoloConfig; return nil },
		"weights":       func() error { cfg.Detector.YOLO.WeightsPath = f.weights; return nil },
		"classes":       func() error { cfg.Detector.YOLO.ClassesPath = f.classes; return nil },
		"pigo-cascade":  func() error { cfg.Detector.Pigo.CascadePath = f.pigoCascade; return nil },
		"confidence":    func() error { cfg.NMS.ConfidenceThreshold = float32(f.confidence); return nil },
		"nms":           func() error { cfg.NMS.IoUThreshold = float32(f.nms); return nil },
		"class-aware":   func() error { cfg.NMS.ClassAware = f.classAware; return nil },
		"blur":          func() error { cfg.Blur.Method = blur.Method(f.blurMethod); return nil },
		"blur-radius":   func() error { cfg.Blur.Radius = f.blurRadius; return nil },
		"blur-sigma":    func() error { cfg.Blur.Sigma = f.blurSigma; return nil },
		"suffix":        func() error { cfg.Suffix = f.suffix; return nil },
		"output-ext":    func() error { cfg.OutputExt = f.outputExt; return nil },
		"workers":       func() error { cfg.Workers = f.workers; return nil },
		"annotate":      func() error { cfg.Annotate = f.annotate; return nil },
		"stop-on-error": func() error { cfg.StopOnError = f.stopOnError; return nil },
	}

	var err error
	fs.Visit(func(fl *flag.Flag) {
		if set, ok := setters[fl.Name]; ok && err == nil {
			err = errors.Wrapf(set(), "flag -%s", fl.Name)
		}
	})
	if err != nil {
		return cfg, err
	}

	cfg.Resolve()
	return cfg, cfg.Validate()
}

// newLogger writes human readable logs to a terminal and JSON otherwise.
func newLogger(w *os.File, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	if term.IsTerminal(int(w.Fd())) {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func run(args []string) int {
	var f cliFlags
	fs := newFlagSet(&f, os.Stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	logger := newLogger(os.Stderr, f.verbose)

	cfg, err := buildConfig(fs, &f)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		return 1
	}

	if f.saveConfig != "" {
		if err := config.Save(cfg, f.saveConfig); err != nil {
			logger.Error("failed to save configuration", "error", err)
			return 1
		}
		logger.Info("configuration saved", "path", f.saveConfig)
		return 0
	}

	detector, err := detectors.New(cfg.Detector, logger)
	if err != nil {
		logger.Error("failed to create detector", "error", err)
		return 1
	}
	defer func() {
		if err := detector.Close(); err != nil {
			logger.Warn("failed to close detector", "error", err)
		}
	}()

	blurrer, err := blur.New(cfg.Blur)
	if err != nil {
		logger.Error("failed to create blurrer", "error", err)
		return 1
	}

	p, err := pipeline.New(pipeline.Config{
		InputDir:    cfg.Input,
		OutputDir:   cfg.Output,
		Suffix:      cfg.Suffix,
		OutputExt:   cfg.OutputExt,
		Workers:     cfg.Workers,
		StopOnError: cfg.StopOnError,
		Annotate:    cfg.Annotate,
		NMS:         cfg.NMS,
	}, detector, blurrer, logger)
	if err != nil {
		logger.Error("failed to create pipeline", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := p.Run(ctx)
	if err != nil {
		logger.Error("run failed", "error", err)
		return 1
	}
	if summary.Failed > 0 {
		return 1
	}
	return 0
}

func main() {
	os.Exit(run(os.Args[1:]))
}

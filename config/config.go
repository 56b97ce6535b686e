// Package config - Run configuration for the face blurring tool.
package config

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-faceblur/blur"
	"github.com/nvr-ai/go-faceblur/images"
	"github.com/nvr-ai/go-faceblur/inference/detectors"
	"github.com/nvr-ai/go-faceblur/models/postprocess"
)

// DefaultUsername leaves the Haar cascade path as given.
const DefaultUsername = "test"

// Config is everything one batch run needs.
type Config struct {
	// Input is the directory scanned for images.
	Input string `yaml:"input"`
	// Output is the directory results are written to. Empty means out_images_<backend>.
	Output string `yaml:"output"`
	// Suffix is appended to the base name of every output file.
	Suffix string `yaml:"suffix"`
	// OutputExt is the extension, and so the format, of every output file.
	// Empty keeps each input's extension when it can be written, .png otherwise.
	OutputExt string `yaml:"output_ext"`
	// Username locates the Haar cascade under the user's OpenCV checkout.
	Username string `yaml:"username"`

	Workers     int  `yaml:"workers"`
	StopOnError bool `yaml:"stop_on_error"`
	Annotate    bool `yaml:"annotate"`

	Detector detectors.Config      `yaml:"detector"`
	NMS      postprocess.NMSConfig `yaml:"nms"`
	Blur     blur.Options          `yaml:"blur"`
}

// Default returns the settings of a plain run over ./images with the YOLO backend.
func Default() Config {
	return Config{
		Input:     "images",
		Suffix:    "_output",
		OutputExt: ".png",
		Username:  DefaultUsername,
		Workers:   runtime.NumCPU(),
		Detector:  detectors.DefaultConfig(),
		NMS:       postprocess.DefaultNMSConfig(),
		Blur:      blur.DefaultOptions(),
	}
}

// Load reads a YAML file over the defaults. Keys missing from the file keep
// their default value and unknown keys are an error.
//
// Arguments:
//   - path: The YAML file to read.
//
// Returns:
//   - Config: The merged configuration. It is not validated.
//   - error: An error if the file can't be read or parsed.
//
// @example
// cfg, err := config.Load("faceblur.yaml")
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "failed to read config %s", path)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, errors.Wrapf(err, "failed to parse config %s", path)
	}
	return cfg, nil
}

// Save writes cfg to path as YAML.
func Save(cfg Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to encode config")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write config %s", path)
	}
	return nil
}

// Resolve fills in the values derived from other settings: the output
// directory, the Haar cascade location and the YOLO row filter, which always
// follows the NMS confidence threshold.
func (c *Config) Resolve() {
	c.Detector.YOLO.ConfidenceThreshold = c.NMS.ConfidenceThreshold
	if c.Output == "" {
		c.Output = DefaultOutputDir(c.Detector.Backend)
	}
	c.Detector.Haar.CascadePath = ResolveCascadePath(c.Username, c.Detector.Haar.CascadePath)
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
}

// Validate checks every section of the configuration.
func (c Config) Validate() error {
	if c.Input == "" {
		return errors.New("input directory is required")
	}
	if c.Output == "" {
		return errors.New("output directory is required")
	}
	if c.Workers <= 0 {
		return errors.Errorf("workers must be positive, got %d", c.Workers)
	}
	if strings.ContainsAny(c.Suffix, `/\`) {
		return errors.Errorf("suffix %q can't contain a path separator", c.Suffix)
	}

	if c.OutputExt != "" {
		format, ok := images.FormatFromPath("out" + c.OutputExt)
		if !ok || !format.Writable() {
			return errors.Errorf("unsupported output extension %q", c.OutputExt)
		}
	}

	if err := c.Detector.Validate(); err != nil {
		return err
	}
	if err := c.NMS.Validate(); err != nil {
		return err
	}
	if _, err := blur.New(c.Blur); err != nil {
		return err
	}
	return nil
}

// DefaultOutputDir names the output directory after the backend, e.g. out_images_yolo.
func DefaultOutputDir(b detectors.Backend) string {
	return "out_images_" + b.String()
}

// ResolveCascadePath locates a Haar cascade file.
//
// With no username (or the placeholder "test") xml is returned unchanged.
// Otherwise a bare file name resolves inside the user's OpenCV checkout, e.g.
// /home/<username>/opencv/data/haarcascades/<xml>. Paths with a directory
// component are always returned unchanged.
func ResolveCascadePath(username, xml string) string {
	if username == "" || username == DefaultUsername {
		return xml
	}
	if filepath.Base(xml) != xml {
		return xml
	}
	return filepath.Join(string(filepath.Separator), "home", username, "opencv", "data", "haarcascades", xml)
}

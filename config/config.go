// Package config - Loading and validation of the demo configuration file.
package config

import (
	"math"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/yosuke-furukawa/json5/encoding/json5"

	"github.com/nvr-ai/go-mcdetect/models"
	"github.com/nvr-ai/go-mcdetect/models/postprocess"
	"github.com/nvr-ai/go-mcdetect/pipeline"
)

// Environment variables that override the file.
const (
	EnvInferenceDevice = "MCDETECT_INFERENCE_DEVICE"
	EnvDisplay         = "MCDETECT_DISPLAY"
	EnvLogLevel        = "MCDETECT_LOG_LEVEL"
)

// Model defaults of the DL Streamer container image.
const (
	DefaultModelPath = "/home/dlstreamer/models/yolov8n_int8_ppp.xml"
	DefaultModelProc = "/home/dlstreamer/dlstreamer_gst/samples/gstreamer/model_proc/public/yolo-v8.json"
)

// ErrInvalid is returned for configuration that fails validation.
var ErrInvalid = errors.New("invalid configuration")

// Camera is one named stream.
type Camera struct {
	Name string
	URL  string
}

// Detection holds the post-processing settings.
type Detection struct {
	NumClasses             int     `json:"num_classes"`
	ConfidenceThreshold    float32 `json:"confidence_threshold"`
	NMSScoreThreshold      float32 `json:"nms_score_threshold"`
	NMSIoUThreshold        float32 `json:"nms_iou_threshold"`
	NMSEta                 float32 `json:"nms_eta"`
	NMSTopK                int     `json:"nms_top_k"`
	DetectThreshold        float32 `json:"detect_threshold"`
	EnforceDetectThreshold bool    `json:"enforce_detect_threshold"`
	ClassAware             bool    `json:"class_aware"`
	// Labels is "index" or "coco".
	Labels string `json:"labels"`
}

// Log holds the logger settings.
type Log struct {
	Level       string `json:"level"`
	File        string `json:"file"`
	Development bool   `json:"development"`
	MaxSizeMB   int    `json:"max_size_mb"`
	MaxBackups  int    `json:"max_backups"`
	MaxAgeDays  int    `json:"max_age_days"`
}

// Config is the validated demo configuration.
type Config struct {
	NumberCameras int
	// Cameras are ordered by name, numeric runs compared by value.
	Cameras            []Camera
	Display            bool
	InferenceDevice    pipeline.Device
	ModelPath          string
	ModelProc          string
	ONNXModelPath      string
	ONNXRuntimeLibrary string
	Detection          Detection
	Log                Log
}

type file struct {
	NumberCameras      interface{}       `json:"number_cameras"`
	CamURL             map[string]string `json:"cam_url"`
	Display            string            `json:"display"`
	InferenceDevice    string            `json:"inference_device"`
	ModelPath          string            `json:"model_path"`
	ModelProc          string            `json:"model_proc"`
	ONNXModelPath      string            `json:"onnx_model_path"`
	ONNXRuntimeLibrary string            `json:"onnxruntime_library"`
	Detection          Detection         `json:"detection"`
	Log                Log               `json:"log"`
}

// DefaultDetection returns the reference post-processing settings.
func DefaultDetection() Detection {
	return Detection{
		NumClasses:          80,
		ConfidenceThreshold: 0.25,
		NMSScoreThreshold:   postprocess.DefaultScoreThreshold,
		NMSIoUThreshold:     postprocess.DefaultIoUThreshold,
		NMSEta:              postprocess.DefaultEta,
		DetectThreshold:     0.5,
		Labels:              string(models.LabelsIndex),
	}
}

// DefaultLog returns the logger defaults.
func DefaultLog() Log {
	return Log{
		Level:      "info",
		MaxSizeMB:  100,
		MaxBackups: 3,
		MaxAgeDays: 28,
	}
}

// Load reads, parses and validates a configuration file.
//
// Environment overrides are applied after parsing, so a .env file loaded with
// LoadEnv beforehand takes effect.
//
// Arguments:
//   - path: The path to config.json. JSON5 syntax is accepted.
//
// Returns:
//   - *Config: The validated configuration.
//   - error: An error wrapping ErrInvalid for invalid content.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}

	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnv loads .env style files into the process environment. Missing files
// are ignored; variables already set are kept.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(errors.Cause(err)) {
			return errors.Wrapf(err, "load %s", f)
		}
	}
	return nil
}

// Parse decodes configuration content without validating it.
func Parse(data []byte) (*Config, error) {
	raw := file{
		Detection: DefaultDetection(),
		Log:       DefaultLog(),
	}
	if err := json5.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "decode")
	}

	n, err := cameraCount(raw.NumberCameras)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		NumberCameras:      n,
		Cameras:            sortedCameras(raw.CamURL),
		Display:            strings.EqualFold(raw.Display, "yes"),
		InferenceDevice:    pipeline.ParseDevice(raw.InferenceDevice),
		ModelPath:          raw.ModelPath,
		ModelProc:          raw.ModelProc,
		ONNXModelPath:      raw.ONNXModelPath,
		ONNXRuntimeLibrary: raw.ONNXRuntimeLibrary,
		Detection:          raw.Detection,
		Log:                raw.Log,
	}
	if cfg.ModelPath == "" {
		cfg.ModelPath = DefaultModelPath
		if cfg.ModelProc == "" {
			cfg.ModelProc = DefaultModelProc
		}
	}
	return cfg, nil
}

func cameraCount(v interface{}) (int, error) {
	switch n := v.(type) {
	case nil:
		return 0, errors.Wrap(ErrInvalid, "number_cameras is required")
	case float64:
		if n != math.Trunc(n) {
			return 0, errors.Wrap(ErrInvalid, "number_cameras should only be integer value")
		}
		return int(n), nil
	default:
		return 0, errors.Wrap(ErrInvalid, "number_cameras should only be integer value")
	}
}

func sortedCameras(urls map[string]string) []Camera {
	cams := make([]Camera, 0, len(urls))
	for name, url := range urls {
		cams = append(cams, Camera{Name: name, URL: url})
	}
	sort.Slice(cams, func(i, j int) bool { return naturalLess(cams[i].Name, cams[j].Name) })
	return cams
}

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvInferenceDevice); ok && v != "" {
		c.InferenceDevice = pipeline.ParseDevice(strings.ToUpper(v))
	}
	if v, ok := lookup(EnvDisplay); ok && v != "" {
		c.Display = strings.EqualFold(v, "yes")
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
}

// Validate checks ranges and cross-field constraints.
func (c *Config) Validate() error {
	if c.NumberCameras < 1 || c.NumberCameras > pipeline.MaxCameras {
		return errors.Wrapf(ErrInvalid, "number_cameras %d not in [1,%d]", c.NumberCameras, pipeline.MaxCameras)
	}
	if len(c.Cameras) < c.NumberCameras {
		return errors.Wrapf(ErrInvalid, "number_cameras is %d but cam_url has %d entries", c.NumberCameras, len(c.Cameras))
	}
	for _, cam := range c.Cameras[:c.NumberCameras] {
		if cam.URL == "" {
			return errors.Wrapf(ErrInvalid, "camera %q has no url", cam.Name)
		}
	}

	d := c.Detection
	if d.NumClasses < 1 {
		return errors.Wrapf(ErrInvalid, "num_classes %d must be positive", d.NumClasses)
	}
	for name, v := range map[string]float32{
		"confidence_threshold": d.ConfidenceThreshold,
		"nms_score_threshold":  d.NMSScoreThreshold,
		"detect_threshold":     d.DetectThreshold,
	} {
		if v < 0 || v > 1 {
			return errors.Wrapf(ErrInvalid, "%s %v not in [0,1]", name, v)
		}
	}
	if err := c.NMSConfig().Validate(); err != nil {
		return errors.Wrap(ErrInvalid, err.Error())
	}
	if _, err := models.ParseLabelMode(d.Labels); err != nil {
		return errors.Wrap(ErrInvalid, err.Error())
	}
	return nil
}

// NMSConfig returns the suppression settings.
func (c *Config) NMSConfig() postprocess.NMSConfig {
	return postprocess.NMSConfig{
		ScoreThreshold: c.Detection.NMSScoreThreshold,
		IoUThreshold:   c.Detection.NMSIoUThreshold,
		Eta:            c.Detection.NMSEta,
		TopK:           c.Detection.NMSTopK,
		ClassAware:     c.Detection.ClassAware,
	}
}

// ActiveCameras returns the first NumberCameras cameras.
func (c *Config) ActiveCameras() []Camera {
	if c.NumberCameras > len(c.Cameras) {
		return c.Cameras
	}
	return c.Cameras[:c.NumberCameras]
}

// PipelineOptions returns the launch description options.
func (c *Config) PipelineOptions() pipeline.Options {
	cams := c.ActiveCameras()
	sources := make([]string, len(cams))
	for i, cam := range cams {
		sources[i] = cam.URL
	}
	return pipeline.Options{
		Sources:   sources,
		Device:    c.InferenceDevice,
		Display:   c.Display,
		ModelPath: c.ModelPath,
		ModelProc: c.ModelProc,
	}
}

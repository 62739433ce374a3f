// Package detector - Post-inference callback turning raw YOLOv8 output into
// region annotations.
package detector

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-mcdetect/frame"
	"github.com/nvr-ai/go-mcdetect/models"
	"github.com/nvr-ai/go-mcdetect/models/model"
	"github.com/nvr-ai/go-mcdetect/models/postprocess"
	"github.com/nvr-ai/go-mcdetect/models/yolov8"
	"github.com/nvr-ai/go-mcdetect/pipeline"
	"github.com/nvr-ai/go-mcdetect/profiler"
)

const (
	// CallbackName is the name the processor registers under.
	CallbackName = "yolov8_postprocess"
	// DefaultDetectThreshold is the global detection threshold passed to ProcessFrame.
	DefaultDetectThreshold = 0.5

	metricMalformed = "malformed_tensors"
	metricRegions   = "regions_per_frame"
	operation       = "process_frame"
)

// Config configures a Processor.
type Config struct {
	// Model decodes and suppresses one tensor. Defaults to YOLOv8 with 80 classes.
	Model model.Model
	// NMS is passed to the model for every tensor. Defaults to the model's options.
	NMS *postprocess.NMSConfig
	// DetectThreshold is the threshold the registered callback passes to ProcessFrame.
	// Nil selects DefaultDetectThreshold.
	DetectThreshold *float32
	// EnforceDetectThreshold drops regions scoring below the threshold given to
	// ProcessFrame. When false the threshold is accepted and ignored.
	EnforceDetectThreshold bool
	// Labels selects how region labels are rendered.
	Labels models.LabelMode
	Logger *zap.Logger
	// Profiler receives timings and counters. Defaults to profiler.Nop.
	Profiler profiler.Recorder
}

// Processor attaches detections to frames.
//
// A Processor holds no per-call state; ProcessFrame may be called
// concurrently for different frames.
type Processor struct {
	model     model.Model
	nms       postprocess.NMSConfig
	threshold float32
	enforce   bool
	labels    models.LabelMode
	logger    *zap.Logger
	profiler  profiler.Recorder
}

// New creates a Processor.
//
// Arguments:
//   - cfg: The processor configuration. Zero values select defaults.
//
// Returns:
//   - *Processor: The processor.
//   - error: An error if the model cannot be created or the NMS settings are invalid.
func New(cfg Config) (*Processor, error) {
	m := cfg.Model
	if m == nil {
		var err error
		if m, err = yolov8.NewModel(model.NewModelArgs{}); err != nil {
			return nil, errors.Wrap(err, "default model")
		}
	}

	nms := m.Options().NMS
	if cfg.NMS != nil {
		nms = *cfg.NMS
	}
	if err := nms.Validate(); err != nil {
		return nil, err
	}

	threshold := float32(DefaultDetectThreshold)
	if cfg.DetectThreshold != nil {
		threshold = *cfg.DetectThreshold
	}

	labels := cfg.Labels
	if labels == "" {
		labels = models.LabelsIndex
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	rec := cfg.Profiler
	if rec == nil {
		rec = profiler.Nop
	}

	return &Processor{
		model:     m,
		nms:       nms,
		threshold: threshold,
		enforce:   cfg.EnforceDetectThreshold,
		labels:    labels,
		logger:    logger,
		profiler:  rec,
	}, nil
}

// ProcessFrame decodes every output tensor of f and attaches the surviving
// detections to it as regions, in pixel coordinates.
//
// Tensors are processed independently. A tensor that does not match the model
// layout is logged, counted and skipped; the remaining tensors are still
// processed.
//
// Arguments:
//   - f: The frame. Its tensors are not modified.
//   - threshold: The global detection threshold. Only applied when the
//     processor enforces it.
//
// Returns:
//   - bool: false only when f is nil.
//
// Example:
//
// ```go
//
//	f := frame.NewVideoFrame(640, 640, frame.Tensor{Data: out, Shape: []int{1, 84, 8400}})
//	p.ProcessFrame(f, 0.5)
//	for _, r := range f.Regions() {
//	    fmt.Println(r.Label, r.Score, r.Box)
//	}
//
// ```
func (p *Processor) ProcessFrame(f frame.Frame, threshold float32) bool {
	if f == nil {
		return false
	}
	defer p.profiler.StartOperation(operation)()

	width, height := float32(f.Width()), float32(f.Height())
	attached := 0

	for i, t := range f.Tensors() {
		results, err := p.model.PostProcess(t, p.nms)
		if err != nil {
			p.profiler.Increment(metricMalformed)
			p.logger.Warn("skipping tensor",
				zap.Int("index", i),
				zap.String("name", t.Name),
				zap.Ints("shape", t.Shape),
				zap.Int("elements", len(t.Data)),
				zap.Error(err),
			)
			continue
		}

		for _, r := range results {
			if p.enforce && r.Score < threshold {
				continue
			}
			f.AddRegion(frame.Region{
				Box:     r.Box.Scale(width, height),
				ClassID: r.Class,
				Label:   models.LabelFor(r.Class, p.labels),
				Score:   r.Score,
			})
			attached++
		}
	}

	p.profiler.RecordMetric(metricRegions, float64(attached))
	return true
}

// Callback adapts the processor to a pipeline callback using the configured
// detection threshold.
func (p *Processor) Callback() pipeline.Callback {
	return func(f frame.Frame) bool {
		return p.ProcessFrame(f, p.threshold)
	}
}

// Register adds the processor to the registry under CallbackName.
func Register(r *pipeline.Registry, p *Processor) error {
	return r.Register(CallbackName, p.Callback())
}

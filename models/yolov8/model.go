// Package yolov8 - YOLOv8 model.
package yolov8

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-mcdetect/models/model"
	"github.com/nvr-ai/go-mcdetect/models/postprocess"
)

// YOLOv8 is the instance of the YOLOv8 model.
type YOLOv8 struct {
	options    model.Options
	layout     Layout
	suppressor postprocess.Suppressor
}

// Options returns the options for the YOLOv8 model.
//
// Returns:
//   - The options for the YOLOv8 model.
func (m *YOLOv8) Options() model.Options {
	return m.options
}

// Layout returns the output layout the model decodes.
func (m *YOLOv8) Layout() Layout {
	return m.layout
}

// NewModel creates a new model.
//
// Unset fields fall back to the stock export: 80 classes, a 0.25 confidence
// gate, the default suppression settings, input "images" and output "output0".
//
// Arguments:
//   - args: The arguments for creating a new model.
//
// Returns:
//   - The model.
//   - An error if the arguments are out of range.
func NewModel(args model.NewModelArgs) (*YOLOv8, error) {
	numClasses := args.NumClasses
	if numClasses == 0 {
		numClasses = DefaultNumClasses
	}
	if numClasses < 0 {
		return nil, errors.Errorf("NewModel requires a positive class count, got %d", numClasses)
	}

	threshold := float32(DefaultConfidenceThreshold)
	if args.ConfidenceThreshold != nil {
		threshold = *args.ConfidenceThreshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, errors.Errorf("NewModel requires a confidence threshold in [0,1], got %v", threshold)
	}

	nms := postprocess.DefaultNMSConfig()
	if args.NMS != nil {
		nms = *args.NMS
	}
	if err := nms.Validate(); err != nil {
		return nil, errors.Wrap(err, "NewModel")
	}

	inputs := args.Inputs
	if len(inputs) == 0 {
		inputs = []string{"images"}
	}
	outputs := args.Outputs
	if len(outputs) == 0 {
		outputs = []string{"output0"}
	}

	suppressor := args.Suppressor
	if suppressor == nil {
		suppressor = postprocess.Greedy
	}

	return &YOLOv8{
		options: model.Options{
			Name:                model.ModelNameYOLOv8,
			Family:              model.ModelFamilyYOLO,
			Path:                args.Path,
			NumClasses:          numClasses,
			ConfidenceThreshold: threshold,
			NMS:                 nms,
			Precision:           args.Precision,
			Inputs:              inputs,
			Outputs:             outputs,
		},
		layout:     Layout{NumClasses: numClasses},
		suppressor: suppressor,
	}, nil
}

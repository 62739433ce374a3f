// Package model - Definitions shared by every detection model.
package model

import (
	"github.com/nvr-ai/go-mcdetect/frame"
	"github.com/nvr-ai/go-mcdetect/models/postprocess"
)

// Family is the family of models.
type Family string

const (
	// ModelFamilyCOCO is the COCO model family.
	ModelFamilyCOCO Family = "coco"
	// ModelFamilyYOLO is the YOLO model family.
	ModelFamilyYOLO Family = "yolo"
)

// Name is the unique identifier of a model.
type Name string

const (
	// ModelNameYOLOv8 is the name of the YOLOv8 detection model.
	ModelNameYOLOv8 Name = "yolov8"
)

// Options describes a configured model.
type Options struct {
	Name   Name   `json:"name"   yaml:"name"`
	Family Family `json:"family" yaml:"family"`
	Path   string `json:"path"   yaml:"path"`
	// NumClasses is the number of per-class confidence fields in each candidate.
	NumClasses int `json:"num_classes" yaml:"num_classes"`
	// ConfidenceThreshold is the minimum class confidence a candidate needs to
	// reach suppression.
	ConfidenceThreshold float32               `json:"confidence_threshold" yaml:"confidence_threshold"`
	NMS                 postprocess.NMSConfig `json:"nms"                  yaml:"nms"`
	Precision           Precision             `json:"precision"            yaml:"precision"`
	Inputs              []string              `json:"inputs"               yaml:"inputs"`
	Outputs             []string              `json:"outputs"              yaml:"outputs"`
}

// Model turns raw output tensors into detection results.
type Model interface {
	Options() Options
	// PostProcess decodes one output tensor and suppresses overlapping candidates.
	// Boxes are normalized to [0,1].
	PostProcess(t frame.Tensor, config postprocess.NMSConfig) ([]postprocess.Result, error)
}

// NewModelArgs is the arguments for creating a new model.
type NewModelArgs struct {
	Name                Name                   `json:"name"                 yaml:"name"`
	Path                string                 `json:"path"                 yaml:"path"`
	Family              Family                 `json:"family"               yaml:"family"`
	NumClasses          int                    `json:"num_classes"          yaml:"num_classes"`
	// ConfidenceThreshold is the class gate. Nil selects the model default; zero keeps every candidate.
	ConfidenceThreshold *float32               `json:"confidence_threshold" yaml:"confidence_threshold"`
	NMS                 *postprocess.NMSConfig `json:"nms"                  yaml:"nms"`
	Precision           Precision              `json:"precision"            yaml:"precision"`
	Inputs              []string               `json:"inputs"               yaml:"inputs"`
	Outputs             []string               `json:"outputs"              yaml:"outputs"`
	// Suppressor overrides the pure Go greedy suppressor.
	Suppressor postprocess.Suppressor `json:"-" yaml:"-"`
}

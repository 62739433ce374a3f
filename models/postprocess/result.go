// Package postprocess - Postprocessing utilities for models.
package postprocess

import "github.com/nvr-ai/go-mcdetect/images"

// Result represents a single detection candidate.
type Result struct {
	// The bounding box of the result, in corner form.
	Box images.Rect
	// The confidence score of the result.
	Score float32
	// The predicted class index of the result.
	Class int
}

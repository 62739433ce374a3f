// Package yolov8 - postprocess YOLOv8 model outputs.
package yolov8

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-mcdetect/frame"
	"github.com/nvr-ai/go-mcdetect/images"
	"github.com/nvr-ai/go-mcdetect/models/postprocess"
)

const (
	// DefaultNumClasses is the size of the COCO class set YOLOv8 is trained on.
	DefaultNumClasses = 80
	// DefaultConfidenceThreshold is the minimum class confidence of a candidate.
	DefaultConfidenceThreshold = 0.25

	boxFields = 4
)

// ErrShape is returned when a tensor does not match the output layout.
var ErrShape = errors.New("unexpected yolov8 output shape")

// Layout describes one YOLOv8 output tensor.
//
// The native layout is channel-major: (4 + NumClasses, N), optionally with
// leading unit dimensions such as (1, 84, 8400). Each of the N candidates is
// (cx, cy, w, h) normalized to [0,1] followed by NumClasses confidences.
type Layout struct {
	NumClasses int
}

// ObjectSize is the number of fields per candidate.
func (l Layout) ObjectSize() int {
	return boxFields + l.NumClasses
}

// Candidates validates the tensor against the layout and returns the number of
// candidates it holds.
//
// When the tensor has two or more dimensions, the second to last must equal
// ObjectSize, every leading dimension must be 1 and the product must equal the
// buffer length. A tensor without a shape only needs a buffer length divisible
// by ObjectSize.
//
// Arguments:
//   - t: The output tensor.
//
// Returns:
//   - int: The number of candidates.
//   - error: ErrShape wrapped with the offending shape.
func (l Layout) Candidates(t frame.Tensor) (int, error) {
	size := l.ObjectSize()
	if l.NumClasses < 1 {
		return 0, errors.Wrapf(ErrShape, "layout has %d classes", l.NumClasses)
	}

	switch len(t.Shape) {
	case 0, 1:
		if len(t.Shape) == 1 && t.Shape[0] != len(t.Data) {
			return 0, errors.Wrapf(ErrShape, "shape %v does not match %d elements", t.Shape, len(t.Data))
		}
		if len(t.Data)%size != 0 {
			return 0, errors.Wrapf(ErrShape, "%d elements not divisible by object size %d", len(t.Data), size)
		}
		return len(t.Data) / size, nil
	}

	dims := t.Shape
	for i, d := range dims[:len(dims)-2] {
		if d != 1 {
			return 0, errors.Wrapf(ErrShape, "shape %v has non-unit leading dimension %d", dims, i)
		}
	}
	if dims[len(dims)-2] != size {
		return 0, errors.Wrapf(ErrShape, "shape %v expects %d fields per object", dims, size)
	}
	n := dims[len(dims)-1]
	if n < 0 || t.Elements() != len(t.Data) {
		return 0, errors.Wrapf(ErrShape, "shape %v does not match %d elements", dims, len(t.Data))
	}
	return n, nil
}

// Transpose converts a channel-major (objectSize, n) buffer into row-major
// (n, objectSize) candidates. The input buffer is left untouched.
func Transpose(data []float32, objectSize, n int) ([]float32, error) {
	if n == 1 || objectSize == 1 {
		return append([]float32(nil), data...), nil
	}
	src := tensor.New(tensor.WithShape(objectSize, n), tensor.WithBacking(data))
	t, err := tensor.Transpose(src, 1, 0)
	if err != nil {
		return nil, errors.Wrap(err, "transpose")
	}

	rows, ok := t.Data().([]float32)
	if !ok {
		return nil, errors.Errorf("transpose returned %T", t.Data())
	}
	return rows, nil
}

// Decode extracts candidates from one output tensor.
//
// For every candidate the class with the highest confidence is selected, the
// first one winning ties. NaN confidences never win. Candidates whose best confidence is below gate are
// dropped; the rest are converted from center to corner form.
//
// Arguments:
//   - t: The output tensor. Not modified.
//   - layout: The expected output layout.
//   - gate: The minimum class confidence.
//
// Returns:
//   - []postprocess.Result: Normalized candidates in tensor order.
//   - error: ErrShape if the tensor does not match the layout.
//
// Example:
//
// ```go
//
//	candidates, err := Decode(frame.Tensor{Data: out, Shape: []int{1, 84, 8400}}, Layout{NumClasses: 80}, 0.25)
//
// ```
func Decode(t frame.Tensor, layout Layout, gate float32) ([]postprocess.Result, error) {
	n, err := layout.Candidates(t)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	size := layout.ObjectSize()
	rows, err := Transpose(t.Data, size, n)
	if err != nil {
		return nil, err
	}

	var results []postprocess.Result
	for i := 0; i < n; i++ {
		row := rows[i*size : (i+1)*size]

		classID := -1
		maxScore := math32.Inf(-1)
		for j, score := range row[boxFields:] {
			if score > maxScore {
				maxScore = score
				classID = j
			}
		}

		if classID < 0 || maxScore < gate {
			continue
		}

		results = append(results, postprocess.Result{
			Box:   images.FromCenter(row[0], row[1], row[2], row[3]),
			Score: maxScore,
			Class: classID,
		})
	}

	return results, nil
}

// PostProcess postprocesses one output tensor of the YOLOv8 model.
//
// Arguments:
//   - t: The output tensor.
//   - config: The suppression configuration.
//
// Returns:
//   - A slice of normalized results, highest score first.
//   - ErrShape if the tensor does not match the layout.
func (m *YOLOv8) PostProcess(t frame.Tensor, config postprocess.NMSConfig) ([]postprocess.Result, error) {
	candidates, err := Decode(t, m.layout, m.options.ConfidenceThreshold)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	return postprocess.Select(candidates, m.suppressor.Suppress(candidates, config)), nil
}

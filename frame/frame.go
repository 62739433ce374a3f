// Package frame - Video frames, their inference tensors and region annotations.
package frame

import (
	"time"

	"github.com/nvr-ai/go-mcdetect/images"
)

// Tensor is a raw inference output: a flat float32 buffer plus its shape.
type Tensor struct {
	// Name is the output layer name reported by the runtime.
	Name string
	// Data is the flat buffer in row-major order.
	Data []float32
	// Shape lists the dimensions of Data. May be empty when unknown.
	Shape []int
}

// Elements returns the product of the shape dimensions, or len(Data) when the
// shape is unknown.
func (t Tensor) Elements() int {
	if len(t.Shape) == 0 {
		return len(t.Data)
	}
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// Region is a detection annotation attached to a frame, in pixel coordinates.
type Region struct {
	Box     images.Rect
	ClassID int
	Label   string
	Score   float32
}

// Frame is the view of a video frame a post-inference callback receives.
type Frame interface {
	// Width is the frame width in pixels.
	Width() int
	// Height is the frame height in pixels.
	Height() int
	// Tensors returns the inference outputs of this frame.
	Tensors() []Tensor
	// AddRegion attaches a detection to the frame.
	AddRegion(r Region)
	// Regions returns the attached detections in attachment order.
	Regions() []Region
}

// VideoFrame is the concrete Frame produced by the local host.
//
// A VideoFrame is owned by a single goroutine; it is not safe for concurrent use.
type VideoFrame struct {
	// Sequence is the frame number within its source, starting at 0.
	Sequence uint64
	// Source names the camera the frame came from.
	Source string
	// Timestamp is the capture time.
	Timestamp time.Time

	width   int
	height  int
	tensors []Tensor
	regions []Region
}

// NewVideoFrame creates a frame of the given size carrying tensors.
//
// Arguments:
//   - width: The frame width in pixels.
//   - height: The frame height in pixels.
//   - tensors: The inference outputs. The frame takes ownership.
//
// Returns:
//   - *VideoFrame: A frame with no regions.
//
// Example:
//
// ```go
//
//	f := NewVideoFrame(640, 360, Tensor{Data: out, Shape: []int{1, 84, 8400}})
//	ok := processor.ProcessFrame(f, 0.5)
//
// ```
func NewVideoFrame(width, height int, tensors ...Tensor) *VideoFrame {
	return &VideoFrame{
		width:   width,
		height:  height,
		tensors: tensors,
	}
}

func (f *VideoFrame) Width() int { return f.width }

func (f *VideoFrame) Height() int { return f.height }

func (f *VideoFrame) Tensors() []Tensor { return f.tensors }

func (f *VideoFrame) AddRegion(r Region) { f.regions = append(f.regions, r) }

func (f *VideoFrame) Regions() []Region { return f.regions }

// AddTensor appends another inference output.
func (f *VideoFrame) AddTensor(t Tensor) { f.tensors = append(f.tensors, t) }

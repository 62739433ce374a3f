package controller

import (
	"image"
	"io"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-mcdetect/frame"
)

// maxEmptyReads bounds consecutive empty frames before a capture is treated as ended.
const maxEmptyReads = 30

// Source yields decoded frames of one camera.
type Source interface {
	// Read returns the next frame, or io.EOF when the stream has ended.
	Read() (image.Image, error)
	Close() error
}

// Inferer runs the detection model on one frame.
type Inferer interface {
	Infer(img image.Image) (frame.Tensor, error)
	Close()
}

// CaptureSource reads frames through an OpenCV video capture.
type CaptureSource struct {
	location string
	capture  *gocv.VideoCapture
	mat      gocv.Mat
}

// OpenCaptureSource opens a V4L2 device, URI or file.
//
// Arguments:
//   - location: The camera location as written in cam_url.
//
// Returns:
//   - *CaptureSource: The source. Call Close when done.
//   - error: An error if OpenCV cannot open the location.
func OpenCaptureSource(location string) (*CaptureSource, error) {
	capture, err := gocv.OpenVideoCapture(location)
	if err != nil {
		return nil, errors.Wrapf(err, "open capture %q", location)
	}
	return &CaptureSource{
		location: location,
		capture:  capture,
		mat:      gocv.NewMat(),
	}, nil
}

// Read implements Source.
func (s *CaptureSource) Read() (image.Image, error) {
	for empty := 0; empty < maxEmptyReads; empty++ {
		if ok := s.capture.Read(&s.mat); !ok {
			return nil, io.EOF
		}
		if s.mat.Empty() {
			continue
		}
		img, err := s.mat.ToImage()
		if err != nil {
			return nil, errors.Wrapf(err, "convert frame from %q", s.location)
		}
		return img, nil
	}
	return nil, io.EOF
}

// Close implements Source.
func (s *CaptureSource) Close() error {
	err := multierr.Combine(s.capture.Close(), s.mat.Close())
	return errors.Wrapf(err, "close capture %q", s.location)
}

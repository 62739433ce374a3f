package inference

import (
	"image"
	"strconv"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/nvr-ai/go-mcdetect/frame"
	"github.com/nvr-ai/go-mcdetect/models/model"
	"github.com/nvr-ai/go-mcdetect/pipeline"
)

// Stock YOLOv8 export dimensions.
const (
	DefaultInputSize  = 640
	DefaultCandidates = 8400
)

// SessionConfig configures an inference session.
type SessionConfig struct {
	ModelPath string
	Device    pipeline.Device
	// Precision is passed to OpenVINO on GPU. Defaults per device.
	Precision  model.Precision
	InputName  string
	OutputName string
	InputSize  int
	NumClasses int
	Candidates int
	// IntraOpThreads bounds the CPU threads of one session. Zero keeps the runtime default.
	IntraOpThreads int
	// PixelBoxes keeps box rows in input-pixel units. By default Infer divides
	// them by InputSize so the output matches the normalized DL Streamer tensor.
	PixelBoxes bool
}

func (c *SessionConfig) defaults() {
	if c.InputName == "" {
		c.InputName = "images"
	}
	if c.OutputName == "" {
		c.OutputName = "output0"
	}
	if c.InputSize == 0 {
		c.InputSize = DefaultInputSize
	}
	if c.NumClasses == 0 {
		c.NumClasses = 80
	}
	if c.Candidates == 0 {
		c.Candidates = DefaultCandidates
	}
	if c.Precision == "" {
		c.Precision = model.DefaultPrecision(string(c.Device))
	}
}

// OpenVINOOptions returns the execution provider options for cfg.
//
// See:
// https://onnxruntime.ai/docs/execution-providers/OpenVINO-ExecutionProvider.html#summary-of-options
func OpenVINOOptions(cfg SessionConfig) map[string]string {
	opts := map[string]string{
		"device_type": string(cfg.Device),
		"precision":   string(cfg.Precision),
	}
	if cfg.IntraOpThreads > 0 {
		opts["num_of_threads"] = strconv.Itoa(cfg.IntraOpThreads)
	}
	return opts
}

// Session is one onnxruntime session with preallocated input and output tensors.
//
// A Session is not safe for concurrent use; each camera stream owns its own.
type Session struct {
	cfg     SessionConfig
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// NewSession creates a session for a YOLOv8 ONNX model.
//
// On GPU the OpenVINO execution provider is appended; on CPU the default
// provider is used.
//
// Arguments:
//   - cfg: The session configuration.
//
// Returns:
//   - *Session: The session. Call Close when done.
//   - error: An error if the tensors or session cannot be created.
func NewSession(cfg SessionConfig) (*Session, error) {
	cfg.defaults()

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(cfg.InputSize), int64(cfg.InputSize)))
	if err != nil {
		return nil, errors.Wrap(err, "create input tensor")
	}

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(4+cfg.NumClasses), int64(cfg.Candidates)))
	if err != nil {
		input.Destroy()
		return nil, errors.Wrap(err, "create output tensor")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrap(err, "create session options")
	}
	defer options.Destroy()

	if cfg.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(cfg.IntraOpThreads); err != nil {
			input.Destroy()
			output.Destroy()
			return nil, errors.Wrap(err, "set intra op threads")
		}
	}

	if cfg.Device == pipeline.DeviceGPU {
		if err := options.AppendExecutionProviderOpenVINO(OpenVINOOptions(cfg)); err != nil {
			input.Destroy()
			output.Destroy()
			return nil, errors.Wrap(err, "enable OpenVINO")
		}
	}

	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrapf(err, "create session for %s", cfg.ModelPath)
	}

	return &Session{
		cfg:     cfg,
		session: session,
		input:   input,
		output:  output,
	}, nil
}

// Infer runs the model on img.
//
// Returns:
//   - frame.Tensor: A copy of the output, owned by the caller. Boxes are
//     normalized to [0,1] unless PixelBoxes is set.
//   - error: An error if preprocessing or the run fails.
func (s *Session) Infer(img image.Image) (frame.Tensor, error) {
	if s.session == nil {
		return frame.Tensor{}, errors.New("session is closed")
	}
	if err := PrepareInput(img, s.cfg.InputSize, s.cfg.InputSize, s.input.GetData()); err != nil {
		return frame.Tensor{}, err
	}
	if err := s.session.Run(); err != nil {
		return frame.Tensor{}, errors.Wrap(err, "run session")
	}

	out := s.output.GetData()
	shape := s.output.GetShape()
	dims := make([]int, len(shape))
	for i, d := range shape {
		dims[i] = int(d)
	}

	t := frame.Tensor{
		Name:  s.cfg.OutputName,
		Data:  append([]float32(nil), out...),
		Shape: dims,
	}
	if !s.cfg.PixelBoxes {
		if err := NormalizeBoxes(t, s.cfg.InputSize); err != nil {
			return frame.Tensor{}, err
		}
	}
	return t, nil
}

// NormalizeBoxes divides the cx, cy, w and h rows of a channel-major output in
// place by the model input size, mapping input-pixel coordinates to [0,1].
//
// Arguments:
//   - t: The output tensor, shaped (..., 4+classes, n).
//   - inputSize: The square model input edge in pixels.
//
// Returns:
//   - error: An error if the size is not positive or the shape holds no box rows.
func NormalizeBoxes(t frame.Tensor, inputSize int) error {
	if inputSize <= 0 {
		return errors.Errorf("input size must be positive, got %d", inputSize)
	}
	if len(t.Shape) < 2 || t.Shape[len(t.Shape)-2] < 4 {
		return errors.Errorf("shape %v has no box rows", t.Shape)
	}
	n := t.Shape[len(t.Shape)-1]
	if n < 0 || 4*n > len(t.Data) {
		return errors.Errorf("shape %v does not match %d elements", t.Shape, len(t.Data))
	}

	scale := 1 / float32(inputSize)
	for i := range t.Data[:4*n] {
		t.Data[i] *= scale
	}
	return nil
}

// Close releases the resources associated with the Session.
func (s *Session) Close() {
	if s.input != nil {
		s.input.Destroy()
		s.input = nil
	}
	if s.output != nil {
		s.output.Destroy()
		s.output = nil
	}
	if s.session != nil {
		s.session.Destroy()
		s.session = nil
	}
}

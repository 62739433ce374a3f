package pipeline

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Device is the inference device.
type Device string

const (
	// DeviceCPU runs inference on the CPU and draws with gvawatermark.
	DeviceCPU Device = "CPU"
	// DeviceGPU runs inference on the GPU with VA surface sharing.
	DeviceGPU Device = "GPU"
)

// ParseDevice maps a configured device name to a Device. Anything other than
// "GPU" selects the CPU.
func ParseDevice(s string) Device {
	if Device(s) == DeviceGPU {
		return DeviceGPU
	}
	return DeviceCPU
}

// Options describes the multi-camera pipeline.
type Options struct {
	// Sources are the camera URLs or paths, one per stream in sink order.
	Sources   []string
	Device    Device
	Display   bool
	ModelPath string
	ModelProc string
}

// Source returns the source element for a camera location.
//
// Locations containing "/dev/video" are V4L2 devices, locations containing
// "://" are URIs and anything else is a file.
func Source(location string) string {
	quoted := `"` + location + `"`
	switch {
	case strings.Contains(location, "/dev/video"):
		return "v4l2src device=" + quoted
	case strings.Contains(location, "://"):
		return "urisourcebin buffer-size=4096 uri=" + quoted
	default:
		return "filesrc location=" + quoted
	}
}

// Decode returns the decoding stage for a device.
func Decode(device Device) string {
	if device == DeviceGPU {
		return " decodebin ! video/x-raw(memory:VASurface) "
	}
	return "decodebin"
}

// Model returns the gvadetect model properties.
func Model(device Device, path, proc string) string {
	s := `"` + path + `"`
	if proc != "" {
		s += ` model-proc="` + proc + `"`
	}
	if device == DeviceGPU {
		s += " pre-process-backend=vaapi-surface-sharing"
	}
	return s
}

// DetectParams returns what follows the gvadetect device property.
func DetectParams(device Device, cameras int) string {
	if device == DeviceGPU {
		return fmt.Sprintf(" batch-size=%d nireq=2 model-instance-id=1 ! meta_overlay device=GPU "+
			"preprocess-queue-size=25 process-queue-size=25 postprocess-queue-size=25 ", cameras)
	}
	return " ! gvawatermark"
}

// Sink returns the display stage of the composited output.
func Sink(display bool) string {
	if display {
		return "videoconvert ! fpsdisplaysink video-sink=xvimagesink sync=false"
	}
	return "gvafpscounter ! fakesink async=false"
}

// Scale returns the caps every stream is scaled to before compositing.
func Scale() string {
	return fmt.Sprintf("video/x-raw,width=%d,height=%d", TileWidth, TileHeight)
}

// Build assembles the launch description.
//
// Each stream is decoded, run through gvadetect, scaled to a tile and fed to
// its compositor sink in source order.
//
// Arguments:
//   - opts: The pipeline options.
//
// Returns:
//   - string: The launch description.
//   - error: An error when the number of sources is out of range or no model is set.
//
// Example:
//
// ```go
//
//	desc, err := Build(Options{
//	    Sources:   []string{"/dev/video0"},
//	    Device:    DeviceCPU,
//	    ModelPath: "/models/yolov8n_int8_ppp.xml",
//	})
//
// ```
func Build(opts Options) (string, error) {
	n := len(opts.Sources)
	layout, err := Layout(n)
	if err != nil {
		return "", err
	}
	if opts.ModelPath == "" {
		return "", errors.New("model path is required")
	}

	device := ParseDevice(string(opts.Device))
	decode := Decode(device)
	model := Model(device, opts.ModelPath, opts.ModelProc)
	params := DetectParams(device, n)

	var streams strings.Builder
	for i, src := range opts.Sources {
		streams.WriteString(Source(src))
		streams.WriteString(" ! ")
		streams.WriteString(decode)
		streams.WriteString(" ! gvadetect model=")
		streams.WriteString(model)
		streams.WriteString(" device=")
		streams.WriteString(string(device))
		streams.WriteString(params)
		streams.WriteString(" ! ")
		streams.WriteString(Scale())
		fmt.Fprintf(&streams, " ! mix.sink_%d ", i+1)
	}

	return "compositor name=mix background=1 " + layout + " ! " + Sink(opts.Display) + " " + streams.String(), nil
}

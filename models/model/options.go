// Package model - Model options.
//
// See:
// https://onnxruntime.ai/docs/execution-providers/OpenVINO-ExecutionProvider.html#summary-of-options
package model

// Precision represents the inference precision requested from OpenVINO.
type Precision string

const (
	// PrecisionAccuracy runs the model with its default input precision.
	PrecisionAccuracy Precision = "ACCURACY"
	// PrecisionFP32 represents 32-bit floating point precision.
	PrecisionFP32 Precision = "FP32"
	// PrecisionFP16 represents 16-bit floating point precision.
	PrecisionFP16 Precision = "FP16"
)

// DefaultPrecision returns the precision OpenVINO picks for a device.
//
// Arguments:
//   - device: The inference device, "CPU" or "GPU".
//
// Returns:
//   - Precision: FP16 for GPU, FP32 otherwise.
func DefaultPrecision(device string) Precision {
	if device == "GPU" {
		return PrecisionFP16
	}
	return PrecisionFP32
}

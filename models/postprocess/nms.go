// Package postprocess - provides Non-Maximum Suppression for detection results.
package postprocess

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-mcdetect/images"
)

const (
	// DefaultScoreThreshold drops candidates whose score does not exceed it.
	DefaultScoreThreshold = 0.25
	// DefaultIoUThreshold is the overlap above which a candidate is suppressed.
	DefaultIoUThreshold = 0.45
	// DefaultEta is the adaptive threshold factor.
	DefaultEta = 0.5
)

// ErrInvalidNMSConfig is returned by NMSConfig.Validate.
var ErrInvalidNMSConfig = errors.New("invalid nms config")

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	// ScoreThreshold keeps only candidates with a score strictly above it.
	ScoreThreshold float32 `json:"score_threshold" yaml:"score_threshold"`
	// IoUThreshold is the overlap threshold for suppression.
	IoUThreshold float32 `json:"iou_threshold" yaml:"iou_threshold"`
	// Eta scales the IoU threshold after every kept box while the threshold is
	// above 0.5. A value of 1 disables adaptation.
	Eta float32 `json:"eta" yaml:"eta"`
	// TopK caps the number of candidates considered. Zero means no cap.
	TopK int `json:"top_k" yaml:"top_k"`
	// ClassAware restricts suppression to candidates of the same class.
	ClassAware bool `json:"class_aware" yaml:"class_aware"`
}

// DefaultNMSConfig returns the cutoff 0.25, IoU 0.45 and eta 0.5 configuration.
func DefaultNMSConfig() NMSConfig {
	return NMSConfig{
		ScoreThreshold: DefaultScoreThreshold,
		IoUThreshold:   DefaultIoUThreshold,
		Eta:            DefaultEta,
	}
}

// Validate checks the configuration ranges.
//
// Returns:
//   - error: ErrInvalidNMSConfig wrapped with the offending field, or nil.
func (c NMSConfig) Validate() error {
	if c.IoUThreshold < 0 || c.IoUThreshold > 1 {
		return errors.Wrapf(ErrInvalidNMSConfig, "iou threshold %v not in [0,1]", c.IoUThreshold)
	}
	if c.Eta <= 0 || c.Eta > 1 {
		return errors.Wrapf(ErrInvalidNMSConfig, "eta %v not in (0,1]", c.Eta)
	}
	if c.TopK < 0 {
		return errors.Wrapf(ErrInvalidNMSConfig, "top k %d is negative", c.TopK)
	}
	return nil
}

// Suppressor selects the candidates that survive Non-Maximum Suppression.
//
// Implementations return indices into results ordered by descending score and
// must not retain or modify results.
type Suppressor interface {
	Suppress(results []Result, config NMSConfig) []int
}

// SuppressorFunc adapts a plain function to the Suppressor interface.
type SuppressorFunc func(results []Result, config NMSConfig) []int

// Suppress calls f.
func (f SuppressorFunc) Suppress(results []Result, config NMSConfig) []int {
	return f(results, config)
}

// Greedy is the pure Go greedy suppressor.
var Greedy Suppressor = SuppressorFunc(GreedyIndices)

// GreedyIndices performs greedy Non-Maximum Suppression with score cutoff,
// top-k and adaptive threshold semantics matching OpenCV's NMSBoxes.
//
// Candidates scoring above config.ScoreThreshold are stably sorted by
// descending score, so ties keep their input order. Each candidate is kept
// when its IoU with every already kept box is at most the current threshold.
// After a keep, the threshold is multiplied by Eta while it is above 0.5.
//
// Arguments:
//   - results: Candidates in any order. Not modified.
//   - config: NMS configuration.
//
// Returns:
//   - Indices of the kept candidates, highest score first. Nil if none survive.
func GreedyIndices(results []Result, config NMSConfig) []int {
	order := make([]int, 0, len(results))
	for i := range results {
		if results[i].Score > config.ScoreThreshold {
			order = append(order, i)
		}
	}
	if len(order) == 0 {
		return nil
	}

	sort.SliceStable(order, func(a, b int) bool {
		return results[order[a]].Score > results[order[b]].Score
	})
	if config.TopK > 0 && len(order) > config.TopK {
		order = order[:config.TopK]
	}

	threshold := config.IoUThreshold
	kept := make([]int, 0, len(order))
	for _, idx := range order {
		keep := true
		for _, k := range kept {
			if config.ClassAware && results[k].Class != results[idx].Class {
				continue
			}
			if images.CalculateIoU(results[idx].Box, results[k].Box) > threshold {
				keep = false
				break
			}
		}
		if !keep {
			continue
		}

		kept = append(kept, idx)
		if config.Eta < 1 && threshold > 0.5 {
			threshold *= config.Eta
		}
	}

	return kept
}

// ApplyGreedyNMS performs standard greedy Non-Maximum Suppression.
//
// Arguments:
//   - detections: Candidates in any order.
//   - config: NMS configuration.
//
// Returns:
//   - Filtered slice of detections, highest score first.
func ApplyGreedyNMS(detections []Result, config NMSConfig) []Result {
	return Select(detections, GreedyIndices(detections, config))
}

// Select gathers results at the given indices.
func Select(results []Result, indices []int) []Result {
	if len(indices) == 0 {
		return nil
	}
	out := make([]Result, 0, len(indices))
	for _, i := range indices {
		out = append(out, results[i])
	}
	return out
}

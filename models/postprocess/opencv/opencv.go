// Package opencv - Non-Maximum Suppression backed by OpenCV's dnn.NMSBoxes.
package opencv

import (
	"image"
	"sort"

	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-mcdetect/models/postprocess"
)

// DefaultGrid is the integer grid normalized boxes are projected onto.
// IoU is invariant under per-axis scaling, so only rounding error is added.
const DefaultGrid = 10000

// Suppressor calls gocv.NMSBoxesWithParams.
type Suppressor struct {
	// Grid scales box coordinates before rounding to image.Rectangle.
	Grid float32
}

// New returns a Suppressor projecting onto DefaultGrid.
func New() *Suppressor {
	return &Suppressor{Grid: DefaultGrid}
}

// Suppress implements postprocess.Suppressor.
func (s *Suppressor) Suppress(results []postprocess.Result, config postprocess.NMSConfig) []int {
	if len(results) == 0 {
		return nil
	}
	if !config.ClassAware {
		all := make([]int, len(results))
		for i := range all {
			all[i] = i
		}
		return s.suppress(results, all, config)
	}

	groups := make(map[int][]int)
	for i, r := range results {
		groups[r.Class] = append(groups[r.Class], i)
	}

	var kept []int
	for _, members := range groups {
		kept = append(kept, s.suppress(results, members, config)...)
	}
	sort.SliceStable(kept, func(a, b int) bool {
		ra, rb := results[kept[a]], results[kept[b]]
		if ra.Score != rb.Score {
			return ra.Score > rb.Score
		}
		return kept[a] < kept[b]
	})
	return kept
}

func (s *Suppressor) suppress(results []postprocess.Result, members []int, config postprocess.NMSConfig) []int {
	grid := s.Grid
	if grid <= 0 {
		grid = DefaultGrid
	}

	boxes := make([]image.Rectangle, len(members))
	scores := make([]float32, len(members))
	for i, idx := range members {
		boxes[i] = results[idx].Box.Scale(grid, grid).ToRectangle()
		scores[i] = results[idx].Score
	}

	local := gocv.NMSBoxesWithParams(boxes, scores, config.ScoreThreshold, config.IoUThreshold, config.Eta, config.TopK)
	if len(local) == 0 {
		return nil
	}

	out := make([]int, len(local))
	for i, j := range local {
		out[i] = members[j]
	}
	return out
}

package detector

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nvr-ai/go-mcdetect/frame"
	"github.com/nvr-ai/go-mcdetect/images"
	"github.com/nvr-ai/go-mcdetect/models"
	"github.com/nvr-ai/go-mcdetect/pipeline"
	"github.com/nvr-ai/go-mcdetect/profiler"
)

const numClasses = 80

type box struct {
	cx, cy, w, h float32
	class        int
	score        float32
}

// output builds a (1, 84, n) tensor with the given candidates; every other
// candidate scores zero on all classes.
func output(n int, boxes map[int]box) frame.Tensor {
	size := 4 + numClasses
	data := make([]float32, size*n)
	for i, b := range boxes {
		data[0*n+i] = b.cx
		data[1*n+i] = b.cy
		data[2*n+i] = b.w
		data[3*n+i] = b.h
		data[(4+b.class)*n+i] = b.score
	}
	return frame.Tensor{Name: "output0", Data: data, Shape: []int{1, size, n}}
}

func newProcessor(t *testing.T, cfg Config) *Processor {
	t.Helper()
	p, err := New(cfg)
	require.NoError(t, err)
	return p
}

func TestProcessFrame_SingleDetection(t *testing.T) {
	p := newProcessor(t, Config{})
	f := frame.NewVideoFrame(640, 640, output(100, map[int]box{
		0: {cx: 0.4, cy: 0.4, w: 0.2, h: 0.2, class: 5, score: 0.9},
	}))

	assert.True(t, p.ProcessFrame(f, 0.5))

	regions := f.Regions()
	require.Len(t, regions, 1)
	r := regions[0]
	assert.Equal(t, 5, r.ClassID)
	assert.Equal(t, "5", r.Label)
	assert.InDelta(t, 0.9, r.Score, 1e-6)
	assert.InDelta(t, 192, r.Box.X, 1e-3)
	assert.InDelta(t, 192, r.Box.Y, 1e-3)
	assert.InDelta(t, 128, r.Box.Width, 1e-3)
	assert.InDelta(t, 128, r.Box.Height, 1e-3)
}

func TestProcessFrame_CenterToCorner(t *testing.T) {
	p := newProcessor(t, Config{})
	f := frame.NewVideoFrame(640, 640, output(100, map[int]box{
		0: {cx: 0.5, cy: 0.5, w: 0.2, h: 0.2, class: 5, score: 0.9},
	}))

	assert.True(t, p.ProcessFrame(f, 0.5))

	regions := f.Regions()
	require.Len(t, regions, 1)
	assert.Equal(t, 5, regions[0].ClassID)
	assert.InDelta(t, 256, regions[0].Box.X, 1e-3)
	assert.InDelta(t, 256, regions[0].Box.Y, 1e-3)
	assert.InDelta(t, 128, regions[0].Box.Width, 1e-3)
	assert.InDelta(t, 128, regions[0].Box.Height, 1e-3)
}

func TestProcessFrame_NothingPassesGate(t *testing.T) {
	p := newProcessor(t, Config{})
	f := frame.NewVideoFrame(640, 360, output(50, map[int]box{
		7: {cx: 0.5, cy: 0.5, w: 0.2, h: 0.2, class: 1, score: 0.2},
	}))

	assert.True(t, p.ProcessFrame(f, 0.5))
	assert.Empty(t, f.Regions())
}

func TestProcessFrame_ExactGateScoreIsSuppressed(t *testing.T) {
	// A candidate at exactly 0.25 passes the class gate but not the strict
	// NMS score cutoff.
	p := newProcessor(t, Config{})
	f := frame.NewVideoFrame(640, 360, output(3, map[int]box{
		1: {cx: 0.5, cy: 0.5, w: 0.2, h: 0.2, class: 1, score: 0.25},
	}))

	assert.True(t, p.ProcessFrame(f, 0.5))
	assert.Empty(t, f.Regions())
}

func TestProcessFrame_OverlapKeepsHighest(t *testing.T) {
	p := newProcessor(t, Config{})
	f := frame.NewVideoFrame(1000, 500, output(10, map[int]box{
		2: {cx: 0.5, cy: 0.5, w: 0.2, h: 0.2, class: 0, score: 0.8},
		6: {cx: 0.55, cy: 0.5, w: 0.2, h: 0.2, class: 3, score: 0.9},
	}))

	assert.True(t, p.ProcessFrame(f, 0.5))
	require.Len(t, f.Regions(), 1)
	assert.Equal(t, 3, f.Regions()[0].ClassID)
}

func TestProcessFrame_PixelScaling(t *testing.T) {
	p := newProcessor(t, Config{})
	f := frame.NewVideoFrame(1920, 1080, output(4, map[int]box{
		3: {cx: 0.5, cy: 0.25, w: 0.5, h: 0.1, class: 9, score: 0.7},
	}))

	assert.True(t, p.ProcessFrame(f, 0.5))
	require.Len(t, f.Regions(), 1)

	got := f.Regions()[0].Box
	want := images.Rect{X: 0.25 * 1920, Y: 0.2 * 1080, Width: 0.5 * 1920, Height: 0.1 * 1080}
	assert.InDelta(t, want.X, got.X, 1e-2)
	assert.InDelta(t, want.Y, got.Y, 1e-2)
	assert.InDelta(t, want.Width, got.Width, 1e-2)
	assert.InDelta(t, want.Height, got.Height, 1e-2)
}

func TestProcessFrame_MultipleTensors(t *testing.T) {
	p := newProcessor(t, Config{})
	f := frame.NewVideoFrame(640, 360,
		output(5, map[int]box{0: {cx: 0.2, cy: 0.2, w: 0.1, h: 0.1, class: 1, score: 0.6}}),
		output(5, map[int]box{4: {cx: 0.2, cy: 0.2, w: 0.1, h: 0.1, class: 2, score: 0.7}}),
	)

	assert.True(t, p.ProcessFrame(f, 0.5))
	// Tensors are suppressed independently so identical boxes both survive.
	require.Len(t, f.Regions(), 2)
	assert.Equal(t, 1, f.Regions()[0].ClassID)
	assert.Equal(t, 2, f.Regions()[1].ClassID)
}

func TestProcessFrame_MalformedTensorSkipped(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	rp := profiler.NewRuntimeProfiler(profiler.ProfilingOptions{})
	p := newProcessor(t, Config{Logger: zap.New(core), Profiler: rp})

	f := frame.NewVideoFrame(640, 360,
		frame.Tensor{Name: "bad", Data: make([]float32, 85*3), Shape: []int{1, 85, 3}},
		output(5, map[int]box{0: {cx: 0.5, cy: 0.5, w: 0.1, h: 0.1, class: 4, score: 0.8}}),
	)

	assert.True(t, p.ProcessFrame(f, 0.5))
	require.Len(t, f.Regions(), 1)
	assert.Equal(t, 4, f.Regions()[0].ClassID)

	require.Equal(t, 1, logs.FilterMessage("skipping tensor").Len())
	assert.Equal(t, "bad", logs.All()[0].ContextMap()["name"])
	assert.Equal(t, int64(1), rp.Snapshot().Counters[metricMalformed])
}

func TestProcessFrame_NilFrame(t *testing.T) {
	p := newProcessor(t, Config{})
	assert.False(t, p.ProcessFrame(nil, 0.5))
}

func TestProcessFrame_EnforceDetectThreshold(t *testing.T) {
	boxes := map[int]box{
		0: {cx: 0.2, cy: 0.2, w: 0.1, h: 0.1, class: 1, score: 0.4},
		1: {cx: 0.7, cy: 0.7, w: 0.1, h: 0.1, class: 2, score: 0.9},
	}

	lenient := newProcessor(t, Config{})
	f := frame.NewVideoFrame(640, 360, output(2, boxes))
	lenient.ProcessFrame(f, 0.5)
	assert.Len(t, f.Regions(), 2)

	strict := newProcessor(t, Config{EnforceDetectThreshold: true})
	f = frame.NewVideoFrame(640, 360, output(2, boxes))
	strict.ProcessFrame(f, 0.5)
	require.Len(t, f.Regions(), 1)
	assert.Equal(t, 2, f.Regions()[0].ClassID)
}

func TestCallback_ZeroDetectThreshold(t *testing.T) {
	zero := float32(0)
	boxes := map[int]box{
		0: {cx: 0.2, cy: 0.2, w: 0.1, h: 0.1, class: 1, score: 0.4},
	}

	p := newProcessor(t, Config{DetectThreshold: &zero, EnforceDetectThreshold: true})
	f := frame.NewVideoFrame(640, 360, output(1, boxes))
	assert.True(t, p.Callback()(f))
	assert.Len(t, f.Regions(), 1)

	defaults := newProcessor(t, Config{EnforceDetectThreshold: true})
	f = frame.NewVideoFrame(640, 360, output(1, boxes))
	assert.True(t, defaults.Callback()(f))
	assert.Empty(t, f.Regions())
}

func TestProcessFrame_COCOLabels(t *testing.T) {
	p := newProcessor(t, Config{Labels: models.LabelsCOCO})
	f := frame.NewVideoFrame(640, 360, output(1, map[int]box{
		0: {cx: 0.5, cy: 0.5, w: 0.1, h: 0.1, class: 0, score: 0.8},
	}))

	p.ProcessFrame(f, 0.5)
	require.Len(t, f.Regions(), 1)
	assert.Equal(t, "person", f.Regions()[0].Label)
}

func TestProcessFrame_Invariants(t *testing.T) {
	p := newProcessor(t, Config{})
	rng := rand.New(rand.NewSource(42))

	const n = 1000
	boxes := make(map[int]box, n)
	for i := 0; i < n; i++ {
		boxes[i] = box{
			cx:    rng.Float32(),
			cy:    rng.Float32(),
			w:     0.02 + rng.Float32()*0.3,
			h:     0.02 + rng.Float32()*0.3,
			class: rng.Intn(numClasses),
			score: rng.Float32(),
		}
	}
	f := frame.NewVideoFrame(1, 1, output(n, boxes))

	assert.True(t, p.ProcessFrame(f, 0.5))
	regions := f.Regions()
	require.NotEmpty(t, regions)

	for i, a := range regions {
		assert.GreaterOrEqual(t, a.Score, float32(0.25))
		for _, b := range regions[i+1:] {
			assert.LessOrEqual(t, images.CalculateIoU(a.Box, b.Box), float32(0.45))
		}
	}
}

func TestProcessFrame_Concurrent(t *testing.T) {
	p := newProcessor(t, Config{})
	tensor := output(20, map[int]box{
		3:  {cx: 0.3, cy: 0.3, w: 0.2, h: 0.2, class: 1, score: 0.9},
		11: {cx: 0.7, cy: 0.7, w: 0.2, h: 0.2, class: 2, score: 0.8},
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				f := frame.NewVideoFrame(640, 360, tensor)
				p.ProcessFrame(f, 0.5)
				assert.Len(t, f.Regions(), 2)
			}
		}()
	}
	wg.Wait()
}

func TestRegister(t *testing.T) {
	r := pipeline.NewRegistry(nil)
	p := newProcessor(t, Config{})

	require.NoError(t, Register(r, p))
	assert.Equal(t, []string{CallbackName}, r.Names())
	assert.Error(t, Register(r, p))

	f := frame.NewVideoFrame(640, 640, output(1, map[int]box{
		0: {cx: 0.5, cy: 0.5, w: 0.1, h: 0.1, class: 3, score: 0.6},
	}))
	assert.True(t, r.Dispatch(f))
	assert.Len(t, f.Regions(), 1)
}

package controller

import (
	"context"
	"image"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-mcdetect/detector"
	"github.com/nvr-ai/go-mcdetect/frame"
	"github.com/nvr-ai/go-mcdetect/pipeline"
)

// MockSource yields a fixed number of frames, then io.EOF or err.
type MockSource struct {
	frames int
	size   image.Rectangle
	err    error
	block  bool

	mu     sync.Mutex
	read   int
	closed bool
}

func (m *MockSource) Read() (image.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.read >= m.frames {
		if m.block {
			m.mu.Unlock()
			time.Sleep(time.Millisecond)
			m.mu.Lock()
			return image.NewRGBA(m.size), nil
		}
		if m.err != nil {
			return nil, m.err
		}
		return nil, io.EOF
	}
	m.read++
	return image.NewRGBA(m.size), nil
}

func (m *MockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// MockInferer returns one candidate centered in the frame.
type MockInferer struct {
	err    error
	closed bool
}

func (m *MockInferer) Infer(image.Image) (frame.Tensor, error) {
	if m.err != nil {
		return frame.Tensor{}, m.err
	}
	const n, size = 2, 84
	data := make([]float32, size*n)
	data[0*n] = 0.5
	data[1*n] = 0.5
	data[2*n] = 0.2
	data[3*n] = 0.2
	data[(4+7)*n] = 0.8
	return frame.Tensor{Name: "output0", Data: data, Shape: []int{1, size, n}}, nil
}

func (m *MockInferer) Close() { m.closed = true }

type shown struct {
	index   int
	regions []frame.Region
}

type recordingSink struct {
	mu    sync.Mutex
	shown []shown
}

func (s *recordingSink) Show(index int, _ image.Image, regions []frame.Region) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shown = append(s.shown, shown{index: index, regions: regions})
	return nil
}

func newRegistry(t *testing.T) *pipeline.Registry {
	t.Helper()
	p, err := detector.New(detector.Config{})
	require.NoError(t, err)
	r := pipeline.NewRegistry(nil)
	require.NoError(t, detector.Register(r, p))
	return r
}

func TestController_ProcessesAllStreams(t *testing.T) {
	sink := &recordingSink{}
	sources := []*MockSource{
		{frames: 3, size: image.Rect(0, 0, 640, 360)},
		{frames: 2, size: image.Rect(0, 0, 1280, 720)},
	}
	inferers := []*MockInferer{{}, {}}

	c, err := New(Config{
		Streams: []Stream{
			{Name: "cam1", Source: sources[0], Inferer: inferers[0]},
			{Name: "cam2", Source: sources[1], Inferer: inferers[1]},
		},
		Registry: newRegistry(t),
		Sink:     sink,
	})
	require.NoError(t, err)
	require.NoError(t, c.Run(context.Background()))

	stats := c.Stats()
	assert.Equal(t, Stats{Frames: 3, Regions: 3}, stats["cam1"])
	assert.Equal(t, Stats{Frames: 2, Regions: 2}, stats["cam2"])

	require.Len(t, sink.shown, 5)
	for _, s := range sink.shown {
		require.Len(t, s.regions, 1)
		r := s.regions[0]
		assert.Equal(t, 7, r.ClassID)
		if s.index == 1 {
			assert.InDelta(t, 0.4*1280, r.Box.X, 1e-2)
			assert.InDelta(t, 0.4*720, r.Box.Y, 1e-2)
		} else {
			assert.InDelta(t, 0.4*640, r.Box.X, 1e-2)
			assert.InDelta(t, 0.4*360, r.Box.Y, 1e-2)
		}
	}

	for i := range sources {
		assert.True(t, sources[i].closed)
		assert.True(t, inferers[i].closed)
	}
}

func TestController_StreamErrorCancelsOthers(t *testing.T) {
	failing := &MockInferer{err: errors.New("device lost")}
	endless := &MockSource{frames: 0, size: image.Rect(0, 0, 64, 64), block: true}

	c, err := New(Config{
		Streams: []Stream{
			{Name: "cam1", Source: &MockSource{frames: 5, size: image.Rect(0, 0, 64, 64)}, Inferer: failing},
			{Name: "cam2", Source: endless, Inferer: &MockInferer{}},
		},
		Registry: newRegistry(t),
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "stream cam1")
		assert.Contains(t, err.Error(), "device lost")
	case <-time.After(5 * time.Second):
		t.Fatal("controller did not stop")
	}
	assert.True(t, endless.closed)
}

func TestController_ReadError(t *testing.T) {
	c, err := New(Config{
		Streams: []Stream{
			{Name: "cam1", Source: &MockSource{frames: 1, size: image.Rect(0, 0, 8, 8), err: errors.New("rtsp timeout")}, Inferer: &MockInferer{}},
		},
		Registry: newRegistry(t),
	})
	require.NoError(t, err)

	err = c.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rtsp timeout")
	assert.Equal(t, uint64(1), c.Stats()["cam1"].Frames)
}

func TestController_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &MockSource{size: image.Rect(0, 0, 8, 8), block: true}

	c, err := New(Config{
		Streams:  []Stream{{Name: "cam1", Source: src, Inferer: &MockInferer{}}},
		Registry: newRegistry(t),
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("controller did not stop")
	}
	assert.True(t, src.closed)
}

func TestController_MaxFrames(t *testing.T) {
	c, err := New(Config{
		Streams:   []Stream{{Name: "cam1", Source: &MockSource{size: image.Rect(0, 0, 8, 8), block: true}, Inferer: &MockInferer{}}},
		Registry:  newRegistry(t),
		MaxFrames: 4,
	})
	require.NoError(t, err)
	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, uint64(4), c.Stats()["cam1"].Frames)
}

func TestController_CallbackFailureCounted(t *testing.T) {
	r := pipeline.NewRegistry(nil)
	require.NoError(t, r.Register("fails", func(frame.Frame) bool { return false }))

	c, err := New(Config{
		Streams:  []Stream{{Name: "cam1", Source: &MockSource{frames: 2, size: image.Rect(0, 0, 8, 8)}, Inferer: &MockInferer{}}},
		Registry: r,
	})
	require.NoError(t, err)
	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, Stats{Frames: 2, Failures: 2}, c.Stats()["cam1"])
}

func TestNew_Validation(t *testing.T) {
	r := pipeline.NewRegistry(nil)

	_, err := New(Config{Registry: r})
	assert.Error(t, err)

	streams := make([]Stream, 10)
	for i := range streams {
		streams[i] = Stream{Source: &MockSource{}, Inferer: &MockInferer{}}
	}
	_, err = New(Config{Streams: streams, Registry: r})
	assert.True(t, errors.Is(err, pipeline.ErrTooManyCameras))

	_, err = New(Config{Streams: []Stream{{Name: "cam1"}}, Registry: r})
	assert.Error(t, err)

	_, err = New(Config{Streams: []Stream{{Source: &MockSource{}, Inferer: &MockInferer{}}}})
	assert.Error(t, err)
}

// Package controller - Runs camera streams through inference and the
// registered post-inference callbacks.
package controller

import (
	"context"
	"image"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nvr-ai/go-mcdetect/frame"
	"github.com/nvr-ai/go-mcdetect/pipeline"
	"github.com/nvr-ai/go-mcdetect/profiler"
)

// Sink receives every processed frame.
type Sink interface {
	// Show publishes the frame of the stream at index with its regions.
	Show(index int, img image.Image, regions []frame.Region) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(index int, img image.Image, regions []frame.Region) error

// Show calls f.
func (f SinkFunc) Show(index int, img image.Image, regions []frame.Region) error {
	return f(index, img, regions)
}

// Stream is one camera with the resources it owns exclusively.
type Stream struct {
	Name    string
	Source  Source
	Inferer Inferer
}

// Config configures a Controller.
type Config struct {
	Streams  []Stream
	Registry *pipeline.Registry
	// Sink defaults to discarding frames.
	Sink     Sink
	Logger   *zap.Logger
	Profiler profiler.Recorder
	// MaxFrames stops each stream after that many frames. Zero means unlimited.
	MaxFrames uint64
}

// Controller drives every stream on its own goroutine.
type Controller struct {
	streams   []Stream
	registry  *pipeline.Registry
	sink      Sink
	logger    *zap.Logger
	profiler  profiler.Recorder
	maxFrames uint64

	mu    sync.Mutex
	stats map[string]Stats
}

// Stats counts the frames of one stream.
type Stats struct {
	Frames   uint64
	Regions  uint64
	Failures uint64
}

// New creates a Controller.
func New(cfg Config) (*Controller, error) {
	if _, err := pipeline.Tiles(len(cfg.Streams)); err != nil {
		return nil, err
	}
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	for i, s := range cfg.Streams {
		if s.Source == nil || s.Inferer == nil {
			return nil, errors.Errorf("stream %d (%s) needs a source and an inferer", i, s.Name)
		}
	}

	sink := cfg.Sink
	if sink == nil {
		sink = SinkFunc(func(int, image.Image, []frame.Region) error { return nil })
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	rec := cfg.Profiler
	if rec == nil {
		rec = profiler.Nop
	}

	return &Controller{
		streams:   cfg.Streams,
		registry:  cfg.Registry,
		sink:      sink,
		logger:    logger,
		profiler:  rec,
		maxFrames: cfg.MaxFrames,
		stats:     make(map[string]Stats, len(cfg.Streams)),
	}, nil
}

// Run processes every stream until its source ends, ctx is cancelled or a
// stream fails. A failing stream cancels the others.
//
// Sources and inferers are closed before Run returns.
//
// Returns:
//   - error: The stream errors combined, nil when every stream ended or ctx was cancelled.
func (c *Controller) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	var (
		mu   sync.Mutex
		errs error
	)
	for i, s := range c.streams {
		i, s := i, s
		g.Go(func() error {
			err := c.runStream(ctx, i, s)
			if err != nil {
				mu.Lock()
				errs = multierr.Append(errs, errors.Wrapf(err, "stream %s", s.Name))
				mu.Unlock()
			}
			return err
		})
	}
	_ = g.Wait()

	for _, s := range c.streams {
		s.Inferer.Close()
		errs = multierr.Append(errs, s.Source.Close())
	}
	return errs
}

func (c *Controller) runStream(ctx context.Context, index int, s Stream) error {
	log := c.logger.With(zap.String("stream", s.Name), zap.Int("index", index))
	log.Info("stream started")

	var seq uint64
	for c.maxFrames == 0 || seq < c.maxFrames {
		if ctx.Err() != nil {
			log.Info("stream cancelled", zap.Uint64("frames", seq))
			return nil
		}

		img, err := s.Source.Read()
		if errors.Is(err, io.EOF) {
			log.Info("stream ended", zap.Uint64("frames", seq))
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "read")
		}

		f, err := c.infer(s, img, seq)
		if err != nil {
			return err
		}

		ok := c.registry.Dispatch(f)
		c.record(s.Name, f, ok)
		if !ok {
			log.Warn("callback failed", zap.Uint64("sequence", seq))
		}

		if err := c.sink.Show(index, img, f.Regions()); err != nil {
			return errors.Wrap(err, "show")
		}
		seq++
	}
	log.Info("stream reached frame limit", zap.Uint64("frames", seq))
	return nil
}

func (c *Controller) infer(s Stream, img image.Image, seq uint64) (*frame.VideoFrame, error) {
	defer c.profiler.StartOperation("inference")()

	t, err := s.Inferer.Infer(img)
	if err != nil {
		return nil, errors.Wrap(err, "infer")
	}

	b := img.Bounds()
	f := frame.NewVideoFrame(b.Dx(), b.Dy(), t)
	f.Sequence = seq
	f.Source = s.Name
	f.Timestamp = time.Now()
	return f, nil
}

func (c *Controller) record(name string, f frame.Frame, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.stats[name]
	st.Frames++
	st.Regions += uint64(len(f.Regions()))
	if !ok {
		st.Failures++
	}
	c.stats[name] = st
}

// Stats returns the per-stream counters.
func (c *Controller) Stats() map[string]Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]Stats, len(c.stats))
	for k, v := range c.stats {
		out[k] = v
	}
	return out
}

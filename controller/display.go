package controller

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-mcdetect/frame"
	"github.com/nvr-ai/go-mcdetect/pipeline"
)

var (
	boxColor  = color.RGBA{R: 0, G: 255, B: 0, A: 0}
	textColor = color.RGBA{R: 255, G: 255, B: 255, A: 0}
)

// Overlay draws region boxes and labels onto img.
func Overlay(img *gocv.Mat, regions []frame.Region) {
	for _, r := range regions {
		rect := r.Box.ToRectangle()
		gocv.Rectangle(img, rect, boxColor, 2)

		text := fmt.Sprintf("%s %.2f", r.Label, r.Score)
		origin := image.Pt(rect.Min.X, rect.Min.Y-4)
		if origin.Y < 12 {
			origin.Y = rect.Min.Y + 14
		}
		gocv.PutText(img, text, origin, gocv.FontHersheySimplex, 0.5, textColor, 1)
	}
}

// Mosaic composites annotated tiles of every stream into one canvas, placed
// the way the compositor lays out its sinks.
type Mosaic struct {
	mu     sync.Mutex
	tiles  []image.Point
	canvas gocv.Mat
}

// NewMosaic allocates the canvas for n streams.
func NewMosaic(n int) (*Mosaic, error) {
	tiles, err := pipeline.Tiles(n)
	if err != nil {
		return nil, err
	}
	size, err := pipeline.Canvas(n)
	if err != nil {
		return nil, err
	}
	return &Mosaic{
		tiles:  tiles,
		canvas: gocv.NewMatWithSize(size.Dy(), size.Dx(), gocv.MatTypeCV8UC3),
	}, nil
}

// Show implements Sink. The frame is annotated, resized to a tile and copied
// into place.
func (m *Mosaic) Show(index int, img image.Image, regions []frame.Region) error {
	if index < 0 || index >= len(m.tiles) {
		return errors.Errorf("stream index %d outside mosaic of %d", index, len(m.tiles))
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return errors.Wrap(err, "convert frame")
	}
	defer mat.Close()
	Overlay(&mat, regions)

	tile := gocv.NewMat()
	defer tile.Close()
	gocv.Resize(mat, &tile, image.Pt(pipeline.TileWidth, pipeline.TileHeight), 0, 0, gocv.InterpolationLinear)

	origin := m.tiles[index]
	m.mu.Lock()
	defer m.mu.Unlock()

	dst := m.canvas.Region(image.Rect(origin.X, origin.Y, origin.X+pipeline.TileWidth, origin.Y+pipeline.TileHeight))
	defer dst.Close()
	tile.CopyTo(&dst)
	return nil
}

// Display shows the canvas in a window until ctx is done or the window is
// closed with ESC. It must run on the main goroutine on platforms that
// require it.
func (m *Mosaic) Display(ctx context.Context, title string, interval time.Duration) {
	window := gocv.NewWindow(title)
	defer window.Close()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			window.IMShow(m.canvas)
			m.mu.Unlock()
			if window.WaitKey(1) == 27 {
				return
			}
		}
	}
}

// Close releases the canvas.
func (m *Mosaic) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canvas.Close()
}

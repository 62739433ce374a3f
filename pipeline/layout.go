package pipeline

import (
	"fmt"
	"image"
	"strings"

	"github.com/pkg/errors"
)

const (
	// MaxCameras is the largest supported mosaic.
	MaxCameras = 9
	// TileWidth is the width every stream is scaled to before compositing.
	TileWidth = 640
	// TileHeight is the height every stream is scaled to before compositing.
	TileHeight = 360
)

// ErrTooManyCameras is returned for more than MaxCameras streams.
var ErrTooManyCameras = errors.Errorf("at most %d camera streams are supported", MaxCameras)

// tileOrigins lists where each compositor sink is placed. The mosaic grows as
// a square: the 2x2 block first, then the third column, then the third row.
var tileOrigins = [MaxCameras]image.Point{
	{0, 0},
	{TileWidth, 0},
	{0, TileHeight},
	{TileWidth, TileHeight},
	{2 * TileWidth, 0},
	{2 * TileWidth, TileHeight},
	{0, 2 * TileHeight},
	{TileWidth, 2 * TileHeight},
	{2 * TileWidth, 2 * TileHeight},
}

func checkCameras(n int) error {
	if n < 1 {
		return errors.Errorf("at least one camera stream is required, got %d", n)
	}
	if n > MaxCameras {
		return errors.Wrapf(ErrTooManyCameras, "got %d", n)
	}
	return nil
}

// Tiles returns the top-left corner of each of the n camera tiles.
func Tiles(n int) ([]image.Point, error) {
	if err := checkCameras(n); err != nil {
		return nil, err
	}
	out := make([]image.Point, n)
	copy(out, tileOrigins[:n])
	return out, nil
}

// Canvas returns the size of the composited mosaic for n cameras.
func Canvas(n int) (image.Rectangle, error) {
	tiles, err := Tiles(n)
	if err != nil {
		return image.Rectangle{}, err
	}
	r := image.Rectangle{}
	for _, p := range tiles {
		r = r.Union(image.Rect(p.X, p.Y, p.X+TileWidth, p.Y+TileHeight))
	}
	return r, nil
}

// Layout returns the compositor sink properties placing n streams.
//
// Example:
//
// ```go
//
//	Layout(3) // "sink_1::xpos=0 sink_2::xpos=640 sink_3::ypos=360"
//
// ```
func Layout(n int) (string, error) {
	tiles, err := Tiles(n)
	if err != nil {
		return "", err
	}
	if n == 1 {
		return "sink_1::alpha=1", nil
	}

	props := []string{"sink_1::xpos=0"}
	for i, p := range tiles[1:] {
		sink := i + 2
		if p.X != 0 {
			props = append(props, fmt.Sprintf("sink_%d::xpos=%d", sink, p.X))
		}
		if p.Y != 0 {
			props = append(props, fmt.Sprintf("sink_%d::ypos=%d", sink, p.Y))
		}
	}
	return strings.Join(props, " "), nil
}

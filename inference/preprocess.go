package inference

import (
	"image"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// PrepareInput resizes img and writes it into dst as planar RGB scaled to [0,1],
// the layout YOLOv8 expects for a (1, 3, height, width) input.
//
// Arguments:
//   - img: The image to prepare.
//   - width, height: The model input size.
//   - dst: The destination buffer, at least 3*width*height long.
//
// Returns:
//   - error: An error if dst is too small.
func PrepareInput(img image.Image, width, height int, dst []float32) error {
	channelSize := width * height
	if width <= 0 || height <= 0 {
		return errors.Errorf("invalid input size %dx%d", width, height)
	}
	if len(dst) < channelSize*3 {
		return errors.Errorf("destination holds %d floats, needs %d", len(dst), channelSize*3)
	}
	red := dst[0:channelSize]
	green := dst[channelSize : channelSize*2]
	blue := dst[channelSize*2 : channelSize*3]

	b := img.Bounds()
	if b.Dx() != width || b.Dy() != height {
		img = resize.Resize(uint(width), uint(height), img, resize.Lanczos3)
		b = img.Bounds()
	}

	i := 0
	for y := b.Min.Y; y < b.Min.Y+height; y++ {
		for x := b.Min.X; x < b.Min.X+width; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			red[i] = float32(r>>8) / 255.0
			green[i] = float32(g>>8) / 255.0
			blue[i] = float32(bl>>8) / 255.0
			i++
		}
	}
	return nil
}

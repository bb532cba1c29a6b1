// Package preprocess turns uploaded image bytes into the fixed-shape input tensor of the
// thickness regression model.
package preprocess

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// TargetSize is the side length the model expects.
const TargetSize = 128

// ErrEmptyImage is returned for images with zero width or height.
var ErrEmptyImage = errors.New("image has no pixels")

// Tensor is a dense float32 tensor in NHWC order.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// Decode reads an encoded raster image and returns it with its format name.
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return img, format, nil
}

// FromImage converts img to a 1 x size x size x 1 tensor with values in [0, 1].
// The image is converted to grayscale, then stretched to size x size without
// preserving the aspect ratio.
func FromImage(img image.Image, size int) (*Tensor, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid target size: %d", size)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, ErrEmptyImage
	}

	resized := resize.Resize(uint(size), uint(size), Grayscale(img), resize.Bicubic)

	gray, ok := resized.(*image.Gray)
	if !ok {
		gray = Grayscale(resized)
	}

	data := make([]float32, 0, size*size)
	gb := gray.Bounds()
	for y := gb.Min.Y; y < gb.Max.Y; y++ {
		row := gray.Pix[(y-gb.Min.Y)*gray.Stride:]
		for x := 0; x < gb.Dx(); x++ {
			data = append(data, float32(row[x])/255.0)
		}
	}

	if len(data) != size*size {
		return nil, fmt.Errorf("resized image has %d pixels, expected %d", len(data), size*size)
	}

	return &Tensor{
		Shape: []int64{1, int64(size), int64(size), 1},
		Data:  data,
	}, nil
}

// Grayscale returns img as an 8-bit single channel image using ITU-R 601 luma weights.
// Alpha is dropped: luma is computed from the straight (non-premultiplied) colour, so a
// fully transparent white pixel is white.
func Grayscale(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := gray.Pix[(y-b.Min.Y)*gray.Stride:]
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			row[x-b.Min.X] = luma(c.R, c.G, c.B)
		}
	}
	return gray
}

// luma uses the same fixed-point weights as image/color's GrayModel, on 8-bit channels.
func luma(r, g, b uint8) uint8 {
	return uint8((19595*uint32(r) + 38470*uint32(g) + 7471*uint32(b) + 1<<15) >> 16)
}

// FromReader decodes r and converts it with FromImage.
func FromReader(r io.Reader, size int) (*Tensor, error) {
	img, _, err := Decode(r)
	if err != nil {
		return nil, err
	}
	return FromImage(img, size)
}

// Package ocr prepares receipt photos for text recognition and runs the
// recognition engine over them.
package ocr

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	// Receipt photos from phones often arrive as WebP.
	_ "golang.org/x/image/webp"
)

const (
	// ThresholdBlockSize is the side of the neighbourhood used for the local mean.
	ThresholdBlockSize = 15
	// ThresholdOffset is subtracted from the local mean before comparison.
	ThresholdOffset = 12
)

// ErrUndecodableImage is returned when the bytes are not a supported image.
var ErrUndecodableImage = errors.New("image could not be decoded")

// Preprocess decodes an image, converts it to grayscale, binarizes it with a
// local mean threshold and removes isolated noise with a 3x3 median filter.
func Preprocess(data []byte) (*image.Gray, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodableImage, err)
	}

	gray := toGray(imaging.Grayscale(img))
	binary := AdaptiveThreshold(gray, ThresholdBlockSize, ThresholdOffset)
	return MedianFilter3(binary), nil
}

func toGray(img *image.NRGBA) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		src := img.Pix[y*img.Stride : y*img.Stride+b.Dx()*4]
		dst := out.Pix[y*out.Stride : y*out.Stride+b.Dx()]
		for x := range dst {
			// Grayscale output has equal channels; red is enough.
			dst[x] = src[x*4]
		}
	}
	return out
}

// AdaptiveThreshold sets a pixel white when it is brighter than the mean of
// its block x block neighbourhood minus offset, black otherwise. Edge pixels
// are replicated past the border.
func AdaptiveThreshold(src *image.Gray, block, offset int) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return out
	}

	r := block / 2
	pw, ph := w+2*r, h+2*r

	// Summed-area table over the replicated-border image, one extra row and
	// column of zeros in front.
	sat := make([]int64, (pw+1)*(ph+1))
	for py := 0; py < ph; py++ {
		sy := clamp(py-r, 0, h-1)
		var rowSum int64
		for px := 0; px < pw; px++ {
			sx := clamp(px-r, 0, w-1)
			rowSum += int64(src.Pix[sy*src.Stride+sx])
			sat[(py+1)*(pw+1)+px+1] = sat[py*(pw+1)+px+1] + rowSum
		}
	}

	area := int64(block * block)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// Window in padded coordinates is [x, x+block) x [y, y+block).
			x0, y0, x1, y1 := x, y, x+block, y+block
			sum := sat[y1*(pw+1)+x1] - sat[y0*(pw+1)+x1] - sat[y1*(pw+1)+x0] + sat[y0*(pw+1)+x0]
			mean := (sum + area/2) / area

			v := int64(src.Pix[y*src.Stride+x])
			if v-mean > -int64(offset) {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out
}

// MedianFilter3 replaces every pixel with the median of its 3x3
// neighbourhood, replicating edge pixels.
func MedianFilter3(src *image.Gray) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))

	var window [9]uint8
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := 0
			for dy := -1; dy <= 1; dy++ {
				sy := clamp(y+dy, 0, h-1)
				for dx := -1; dx <= 1; dx++ {
					sx := clamp(x+dx, 0, w-1)
					window[i] = src.Pix[sy*src.Stride+sx]
					i++
				}
			}
			out.Pix[y*out.Stride+x] = median9(&window)
		}
	}
	return out
}

// median9 insertion-sorts the window in place and returns its middle value.
func median9(w *[9]uint8) uint8 {
	for i := 1; i < len(w); i++ {
		for j := i; j > 0 && w[j] < w[j-1]; j-- {
			w[j], w[j-1] = w[j-1], w[j]
		}
	}
	return w[4]
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

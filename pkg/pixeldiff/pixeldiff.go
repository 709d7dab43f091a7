// Package pixeldiff compares two equally-sized raster images pixel by
// pixel and renders a human-inspectable diff image.
package pixeldiff

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
)

// DefaultThreshold is the per-channel tolerance (on a 0–1 scale) below
// which two pixels are still considered identical. It absorbs
// anti-aliasing and sub-pixel rendering noise between captures.
const DefaultThreshold = 0.1

// grayAlpha controls how far matched pixels are washed toward white in
// the diff image, so mismatches stand out.
const grayAlpha = 0.1

// ErrDimensionMismatch is returned when the two images do not share the
// same width and height. Comparing differently-sized captures is a
// defined failure, never silently cropped or scaled.
var ErrDimensionMismatch = errors.New("image dimensions differ")

var mismatchColor = color.NRGBA{R: 255, G: 0, B: 0, A: 255}

// Result holds the outcome of a comparison.
type Result struct {
	// MismatchedPixels is the number of pixel positions classified as
	// differing beyond the threshold.
	MismatchedPixels int
	// MismatchRatio is MismatchedPixels / (width × height), in [0,1].
	MismatchRatio float64
	// Diff has the same dimensions as the inputs: mismatched pixels are
	// painted red, matched pixels are dimmed grayscale.
	Diff *image.NRGBA
}

// Compare classifies every pixel position of baseline and candidate as
// match or mismatch using a per-channel threshold on a 0–1 scale.
// threshold <= 0 selects DefaultThreshold. The result is deterministic
// for identical input bytes.
func Compare(baseline, candidate image.Image, threshold float64) (*Result, error) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	bb := baseline.Bounds()
	cb := candidate.Bounds()
	if bb.Dx() != cb.Dx() || bb.Dy() != cb.Dy() {
		return nil, fmt.Errorf("%w: baseline %dx%d, candidate %dx%d",
			ErrDimensionMismatch, bb.Dx(), bb.Dy(), cb.Dx(), cb.Dy())
	}

	// Clone normalizes both inputs to NRGBA with a zero-origin bounds,
	// so the two Pix slices can be walked in lockstep.
	base := imaging.Clone(baseline)
	cand := imaging.Clone(candidate)

	w, h := base.Rect.Dx(), base.Rect.Dy()

	diff := image.NewNRGBA(image.Rect(0, 0, w, h))
	gray := imaging.Grayscale(base)
	draw.Copy(diff, image.Point{}, gray, gray.Bounds(), draw.Src, nil)

	maxDelta := threshold * 255
	mismatched := 0

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := base.PixOffset(x, y)
			if pixelDiffers(base.Pix[i:i+4], cand.Pix[i:i+4], maxDelta) {
				mismatched++
				diff.SetNRGBA(x, y, mismatchColor)
			} else {
				dimPixel(diff, diff.PixOffset(x, y))
			}
		}
	}

	return &Result{
		MismatchedPixels: mismatched,
		MismatchRatio:    float64(mismatched) / float64(w*h),
		Diff:             diff,
	}, nil
}

// pixelDiffers reports whether any RGBA channel of the two pixels
// differs by more than maxDelta.
func pixelDiffers(a, b []uint8, maxDelta float64) bool {
	for c := 0; c < 4; c++ {
		if delta(a[c], b[c]) > maxDelta {
			return true
		}
	}
	return false
}

func delta(a, b uint8) float64 {
	if a > b {
		return float64(a - b)
	}
	return float64(b - a)
}

// dimPixel blends the (already grayscale) pixel at offset i toward
// white so that matched regions read as faded context.
func dimPixel(img *image.NRGBA, i int) {
	for c := 0; c < 3; c++ {
		v := float64(img.Pix[i+c])
		img.Pix[i+c] = uint8(255 - (255-v)*grayAlpha)
	}
	img.Pix[i+3] = 255
}

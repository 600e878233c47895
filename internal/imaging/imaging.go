/*
Copyright © 2025 Cropd Authors.

Released under MIT license.
*/

// Package imaging implements the geometric transformations applied by the service:
// region selection (crop) and the fixed set of rotate/flip operations.
package imaging

import (
	"fmt"
	"image"
	"image/draw"
)

// Op is one of the supported image operations.
type Op int

// Supported operations.
const (
	OpRotateCW Op = iota + 1
	OpRotateCCW
	OpFlipVertical
	OpFlipHorizontal
)

// Operation names as they appear in requests.
const (
	opNameRotateCW       = "rotate-cw"
	opNameRotateCCW      = "rotate-ccw"
	opNameFlipVertical   = "flip-v"
	opNameFlipHorizontal = "flip-h"
)

// ParseOp parses an operation name. Returns an error for unknown names.
func ParseOp(s string) (Op, error) {
	switch s {
	case opNameRotateCW:
		return OpRotateCW, nil
	case opNameRotateCCW:
		return OpRotateCCW, nil
	case opNameFlipVertical:
		return OpFlipVertical, nil
	case opNameFlipHorizontal:
		return OpFlipHorizontal, nil
	}
	return 0, fmt.Errorf("unknown operation %q", s)
}

// String returns the request-facing name of the operation.
func (op Op) String() string {
	switch op {
	case OpRotateCW:
		return opNameRotateCW
	case OpRotateCCW:
		return opNameRotateCCW
	case OpFlipVertical:
		return opNameFlipVertical
	case OpFlipHorizontal:
		return opNameFlipHorizontal
	}
	return fmt.Sprintf("Op(%d)", int(op))
}

// NormalizeRect builds a rectangle from a possibly reversed span:
// negative width or height means the span extends in the negative direction
// from (x, y). The result is always canonical (Min <= Max).
func NormalizeRect(x, y, w, h int) image.Rectangle {
	return image.Rect(x, y, x+w, y+h) // image.Rect swaps coordinates to the canonical form
}

// Crop returns a copy of the region r of img. The region is assumed
// to lie within the image bounds; use Intersect before calling Crop.
func Crop(img image.Image, r image.Rectangle) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}

// Transform applies op to src and returns the result as a new image.
func Transform(src *image.NRGBA, op Op) *image.NRGBA {
	switch op {
	case OpRotateCW:
		return rotate90(src)
	case OpRotateCCW:
		return rotate270(src)
	case OpFlipVertical:
		return flipVertical(src)
	case OpFlipHorizontal:
		return flipHorizontal(src)
	}
	return src
}

// rotate90 rotates src by 90 degrees clockwise:
// the source pixel (x, y) moves to (h-1-y, x).
func rotate90(src *image.NRGBA) *image.NRGBA {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, h, w))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			copyPixel(dst, h-1-y, x, src, x, y)
		}
	}
	return dst
}

// rotate270 rotates src by 90 degrees counterclockwise:
// the source pixel (x, y) moves to (y, w-1-x).
func rotate270(src *image.NRGBA) *image.NRGBA {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, h, w))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			copyPixel(dst, y, w-1-x, src, x, y)
		}
	}
	return dst
}

// flipHorizontal mirrors src across the vertical axis.
func flipHorizontal(src *image.NRGBA) *image.NRGBA {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			copyPixel(dst, w-1-x, y, src, x, y)
		}
	}
	return dst
}

// flipVertical mirrors src across the horizontal axis.
func flipVertical(src *image.NRGBA) *image.NRGBA {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			copyPixel(dst, x, h-1-y, src, x, y)
		}
	}
	return dst
}

func copyPixel(dst *image.NRGBA, dx, dy int, src *image.NRGBA, sx, sy int) {
	di := dst.PixOffset(dx, dy)
	si := src.PixOffset(src.Bounds().Min.X+sx, src.Bounds().Min.Y+sy)
	copy(dst.Pix[di:di+4], src.Pix[si:si+4])
}

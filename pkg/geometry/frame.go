// Package geometry turns raw captured frames into model input images,
// and maps points and boxes between the two coordinate spaces.
package geometry

import (
	"errors"
	"fmt"
	"image"
	"time"
)

// ErrInvalidFrame is returned for frames whose dimensions or buffer don't agree with each other
var ErrInvalidFrame = errors.New("invalid frame")

// Frame is a raw captured image, exactly as it came out of the capture source.
// Rows may be padded, so RowStride can be larger than Width*PixelStride.
// A Frame is immutable once captured.
type Frame struct {
	Pixels      []byte
	Width       int
	Height      int
	PixelStride int // Bytes per pixel. Only 4 (RGBA) is supported.
	RowStride   int // Bytes per row, including padding
	ID          int64
	CapturedAt  time.Time
}

// NewFrame wraps an NRGBA image as a frame, without copying pixels
func NewFrame(img *image.NRGBA, id int64, capturedAt time.Time) *Frame {
	b := img.Rect
	off := img.PixOffset(b.Min.X, b.Min.Y)
	return &Frame{
		Pixels:      img.Pix[off:],
		Width:       b.Dx(),
		Height:      b.Dy(),
		PixelStride: 4,
		RowStride:   img.Stride,
		ID:          id,
		CapturedAt:  capturedAt,
	}
}

// RowPadding is the number of bytes at the end of each row that aren't part of the image
func (f *Frame) RowPadding() int {
	return f.RowStride - f.Width*f.PixelStride
}

func (f *Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("%w: size %v x %v", ErrInvalidFrame, f.Width, f.Height)
	}
	if f.PixelStride != 4 {
		return fmt.Errorf("%w: pixel stride %v (only RGBA is supported)", ErrInvalidFrame, f.PixelStride)
	}
	if f.RowStride < f.Width*f.PixelStride {
		return fmt.Errorf("%w: row stride %v is less than %v x %v", ErrInvalidFrame, f.RowStride, f.Width, f.PixelStride)
	}
	if f.RowPadding()%f.PixelStride != 0 {
		return fmt.Errorf("%w: row padding %v is not a whole number of pixels", ErrInvalidFrame, f.RowPadding())
	}
	need := f.RowStride*(f.Height-1) + f.Width*f.PixelStride
	if len(f.Pixels) < need {
		return fmt.Errorf("%w: buffer is %v bytes, but %v x %v with stride %v needs %v", ErrInvalidFrame, len(f.Pixels), f.Width, f.Height, f.RowStride, need)
	}
	return nil
}

// Image returns the frame as an image, with the row padding stripped.
// The padded buffer is viewed as an image of width Width + RowPadding/PixelStride,
// and the padding columns are sliced away. No pixels are copied, so the result
// must be treated as read-only.
func (f *Frame) Image() (*image.NRGBA, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	paddedWidth := f.Width + f.RowPadding()/f.PixelStride
	padded := &image.NRGBA{
		Pix:    f.Pixels,
		Stride: f.RowStride,
		Rect:   image.Rect(0, 0, paddedWidth, f.Height),
	}
	return padded.SubImage(image.Rect(0, 0, f.Width, f.Height)).(*image.NRGBA), nil
}

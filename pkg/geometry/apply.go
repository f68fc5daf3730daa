package geometry

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Apply produces the model input image for a frame.
// The frame is never modified.
func (p *Plan) Apply(frame *Frame) (*image.NRGBA, error) {
	if !p.Matches(frame.Width, frame.Height) {
		return nil, &GeometryError{
			FrameWidth:  frame.Width,
			FrameHeight: frame.Height,
			Crop:        p.Crop,
			Reason:      fmt.Sprintf("plan was computed for %vx%v", p.FrameWidth, p.FrameHeight),
		}
	}
	src, err := frame.Image()
	if err != nil {
		return nil, err
	}
	cropped := imaging.Crop(src, p.Crop)
	var rotated *image.NRGBA
	switch p.Rotation {
	case Rotate90:
		rotated = imaging.Rotate90(cropped)
	case Rotate180:
		rotated = imaging.Rotate180(cropped)
	case Rotate270:
		rotated = imaging.Rotate270(cropped)
	default:
		rotated = cropped
	}
	if rotated.Rect.Dx() == p.TargetWidth && rotated.Rect.Dy() == p.TargetHeight {
		return rotated, nil
	}
	return imaging.Resize(rotated, p.TargetWidth, p.TargetHeight, imaging.Linear), nil
}

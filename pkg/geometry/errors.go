package geometry

import (
	"fmt"
	"image"
)

// GeometryError means the frame can't be transformed with the current policy,
// typically because the crop would leave the frame.
type GeometryError struct {
	FrameWidth  int
	FrameHeight int
	Crop        image.Rectangle
	Reason      string
}

func (e *GeometryError) Error() string {
	if e.Crop.Empty() {
		return fmt.Sprintf("Geometry error on %vx%v frame: %v", e.FrameWidth, e.FrameHeight, e.Reason)
	}
	return fmt.Sprintf("Geometry error on %vx%v frame, crop %v: %v", e.FrameWidth, e.FrameHeight, e.Crop, e.Reason)
}

// UnsupportedRotationError is returned for any angle that isn't a quarter turn
type UnsupportedRotationError struct {
	Degrees int
}

func (e *UnsupportedRotationError) Error() string {
	return fmt.Sprintf("Unsupported rotation %v degrees (must be a multiple of 90)", e.Degrees)
}

package geometry

import "fmt"

// Rotation is a counter-clockwise quarter turn, as seen on screen (y down): 0, 90, 180 or 270 degrees.
// This is the opposite sign to Android's Matrix.postRotate, which turns clockwise for positive angles.
type Rotation int

const (
	Rotate0   Rotation = 0
	Rotate90  Rotation = 90
	Rotate180 Rotation = 180
	Rotate270 Rotation = 270
)

// ParseRotation normalizes a counter-clockwise angle in degrees.
// Negative angles are clockwise, so -90 is the same as 270.
func ParseRotation(degrees int) (Rotation, error) {
	switch degrees {
	case 0:
		return Rotate0, nil
	case 90, -270:
		return Rotate90, nil
	case 180, -180:
		return Rotate180, nil
	case 270, -90:
		return Rotate270, nil
	}
	return 0, &UnsupportedRotationError{Degrees: degrees}
}

func (r Rotation) String() string {
	return fmt.Sprintf("%d°", int(r))
}

// SwapsAxes is true for 90 and 270
func (r Rotation) SwapsAxes() bool {
	return r == Rotate90 || r == Rotate270
}

// RotatedSize returns the size of a w x h image after rotation
func (r Rotation) RotatedSize(w, h int) (int, int) {
	if r.SwapsAxes() {
		return h, w
	}
	return w, h
}

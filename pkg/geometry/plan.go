package geometry

import (
	"fmt"
	"image"

	"gonum.org/v1/gonum/mat"
)

// Aspect is a width:height ratio, in lowest terms.
// The crop and the detection adapter must use the same Aspect.
type Aspect struct {
	W int `json:"w"`
	H int `json:"h"`
}

// DefaultAspect is 3 wide by 4 high (a portrait 4:3 region)
var DefaultAspect = Aspect{W: 3, H: 4}

func (a Aspect) String() string {
	return fmt.Sprintf("%v:%v", a.W, a.H)
}

func (a Aspect) Valid() bool {
	return a.W > 0 && a.H > 0
}

type Anchor int

const (
	AnchorTopLeft Anchor = iota // x = 0, y = OffsetY
	AnchorTop                   // horizontally centered, y = OffsetY
	AnchorCenter                // centered, then shifted down by OffsetY
)

func (a Anchor) String() string {
	switch a {
	case AnchorTopLeft:
		return "topleft"
	case AnchorTop:
		return "top"
	case AnchorCenter:
		return "center"
	}
	return fmt.Sprintf("Anchor(%d)", int(a))
}

func ParseAnchor(s string) (Anchor, error) {
	switch s {
	case "topleft", "":
		return AnchorTopLeft, nil
	case "top":
		return AnchorTop, nil
	case "center":
		return AnchorCenter, nil
	}
	return 0, fmt.Errorf("Unknown crop anchor '%v'", s)
}

// Policy controls how a frame is turned into a model input image
type Policy struct {
	Aspect       Aspect
	Anchor       Anchor
	OffsetY      int     // Vertical offset of the crop, in frame pixels
	Rotation     int     // Degrees counter-clockwise. Must be a multiple of 90.
	TargetWidth  int     // Model input width. If zero, use DivisorX.
	TargetHeight int     // Model input height. If zero, use DivisorY.
	DivisorX     float64 // Target width = crop width / DivisorX
	DivisorY     float64 // Target height = crop height / DivisorY
}

// DefaultPolicy is the policy used for a portrait phone screen capture
func DefaultPolicy() Policy {
	return Policy{
		Aspect:   DefaultAspect,
		Anchor:   AnchorTopLeft,
		OffsetY:  300,
		Rotation: 90,
		DivisorX: 2.25,
		DivisorY: 3.75,
	}
}

// Plan is the complete recipe for turning one frame size into a model input image.
// It is pure data, computed deterministically from the frame size and the Policy.
type Plan struct {
	FrameWidth    int
	FrameHeight   int
	Aspect        Aspect
	Crop          image.Rectangle // Within the raw frame
	Rotation      Rotation
	RotatedWidth  int
	RotatedHeight int
	TargetWidth   int
	TargetHeight  int
	ScaleX        float64 // Target / rotated, horizontal
	ScaleY        float64 // Target / rotated, vertical

	forward *mat.Dense
	inverse *mat.Dense
}

// CropSize returns the largest (A.W*k, A.H*k) that fits inside width x height.
func CropSize(width, height int, a Aspect) (cropWidth, cropHeight int) {
	if width*a.H <= height*a.W {
		// width limited
		k := width / a.W
		return k * a.W, k * a.H
	}
	k := height / a.H
	return k * a.W, k * a.H
}

// NewPlan computes the transform plan for a frame of the given size.
// An out-of-bounds crop is an error, and is never clamped.
func NewPlan(frameWidth, frameHeight int, policy Policy) (*Plan, error) {
	if frameWidth <= 0 || frameHeight <= 0 {
		return nil, &GeometryError{FrameWidth: frameWidth, FrameHeight: frameHeight, Reason: "frame has no area"}
	}
	if !policy.Aspect.Valid() {
		return nil, &GeometryError{FrameWidth: frameWidth, FrameHeight: frameHeight, Reason: fmt.Sprintf("invalid aspect %v", policy.Aspect)}
	}
	rot, err := ParseRotation(policy.Rotation)
	if err != nil {
		return nil, err
	}

	cw, ch := CropSize(frameWidth, frameHeight, policy.Aspect)
	var x, y int
	switch policy.Anchor {
	case AnchorTopLeft:
		x, y = 0, policy.OffsetY
	case AnchorTop:
		x, y = (frameWidth-cw)/2, policy.OffsetY
	case AnchorCenter:
		x, y = (frameWidth-cw)/2, (frameHeight-ch)/2+policy.OffsetY
	default:
		return nil, fmt.Errorf("Unknown crop anchor %v", policy.Anchor)
	}
	crop := image.Rect(x, y, x+cw, y+ch)
	if cw == 0 || ch == 0 || !crop.In(image.Rect(0, 0, frameWidth, frameHeight)) {
		return nil, &GeometryError{FrameWidth: frameWidth, FrameHeight: frameHeight, Crop: crop, Reason: "crop is out of bounds"}
	}

	p := &Plan{
		FrameWidth:  frameWidth,
		FrameHeight: frameHeight,
		Aspect:      policy.Aspect,
		Crop:        crop,
		Rotation:    rot,
	}
	p.RotatedWidth, p.RotatedHeight = rot.RotatedSize(cw, ch)

	if policy.TargetWidth > 0 && policy.TargetHeight > 0 {
		p.TargetWidth, p.TargetHeight = policy.TargetWidth, policy.TargetHeight
	} else {
		if policy.DivisorX <= 0 || policy.DivisorY <= 0 {
			return nil, &GeometryError{FrameWidth: frameWidth, FrameHeight: frameHeight, Crop: crop, Reason: "no target size and no scale divisors"}
		}
		p.TargetWidth = int(float64(cw) / policy.DivisorX)
		p.TargetHeight = int(float64(ch) / policy.DivisorY)
	}
	if p.TargetWidth <= 0 || p.TargetHeight <= 0 {
		return nil, &GeometryError{FrameWidth: frameWidth, FrameHeight: frameHeight, Crop: crop, Reason: fmt.Sprintf("target size %v x %v is empty", p.TargetWidth, p.TargetHeight)}
	}
	p.ScaleX = float64(p.TargetWidth) / float64(p.RotatedWidth)
	p.ScaleY = float64(p.TargetHeight) / float64(p.RotatedHeight)

	p.buildMatrices()
	return p, nil
}

func (p *Plan) String() string {
	return fmt.Sprintf("frame %vx%v crop %v rotate %v -> %vx%v (scale %.3f, %.3f)", p.FrameWidth, p.FrameHeight, p.Crop, p.Rotation, p.TargetWidth, p.TargetHeight, p.ScaleX, p.ScaleY)
}

// Matches returns true if the plan was computed for a frame of this size
func (p *Plan) Matches(frameWidth, frameHeight int) bool {
	return p.FrameWidth == frameWidth && p.FrameHeight == frameHeight
}

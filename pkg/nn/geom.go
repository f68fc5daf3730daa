package nn

import (
	"github.com/chewxy/math32"
)

type Point struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

func (p Point) Distance(b Point) float32 {
	return math32.Sqrt((p.X-b.X)*(p.X-b.X) + (p.Y-b.Y)*(p.Y-b.Y))
}

// RectF is an axis aligned box, stored as edges.
// Detections travel through several coordinate spaces (normalized, model input, display),
// so we keep float precision until the very end, when something is drawn.
type RectF struct {
	Left   float32 `json:"left"`
	Top    float32 `json:"top"`
	Right  float32 `json:"right"`
	Bottom float32 `json:"bottom"`
}

func (r RectF) Width() float32 {
	return r.Right - r.Left
}

func (r RectF) Height() float32 {
	return r.Bottom - r.Top
}

func (r RectF) Area() float32 {
	if r.Right <= r.Left || r.Bottom <= r.Top {
		return 0
	}
	return r.Width() * r.Height()
}

func (r RectF) Empty() bool {
	return r.Area() == 0
}

// Canonical returns the rectangle with Left <= Right and Top <= Bottom.
// A quarter-turn inverse mapping can swap edges, so every mapped box passes through here.
func (r RectF) Canonical() RectF {
	return RectF{
		Left:   min(r.Left, r.Right),
		Top:    min(r.Top, r.Bottom),
		Right:  max(r.Left, r.Right),
		Bottom: max(r.Top, r.Bottom),
	}
}

func (r RectF) Intersection(b RectF) RectF {
	x1 := max(r.Left, b.Left)
	y1 := max(r.Top, b.Top)
	x2 := min(r.Right, b.Right)
	y2 := min(r.Bottom, b.Bottom)
	return RectF{
		Left:   x1,
		Top:    y1,
		Right:  max(x1, x2),
		Bottom: max(y1, y2),
	}
}

// Intersection over Union
func (r RectF) IOU(b RectF) float32 {
	intersection := r.Intersection(b).Area()
	union := r.Area() + b.Area() - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}

func (r RectF) Center() Point {
	return Point{
		X: (r.Left + r.Right) / 2,
		Y: (r.Top + r.Bottom) / 2,
	}
}

// Scale multiplies every edge by (sx, sy)
func (r RectF) Scale(sx, sy float32) RectF {
	return RectF{
		Left:   r.Left * sx,
		Top:    r.Top * sy,
		Right:  r.Right * sx,
		Bottom: r.Bottom * sy,
	}
}

func (r RectF) Offset(dx, dy float32) RectF {
	return RectF{
		Left:   r.Left + dx,
		Top:    r.Top + dy,
		Right:  r.Right + dx,
		Bottom: r.Bottom + dy,
	}
}

// Bounds returns the smallest integer box that contains r
func (r RectF) Bounds() (x1, y1, x2, y2 int32) {
	return int32(math32.Floor(r.Left)), int32(math32.Floor(r.Top)), int32(math32.Ceil(r.Right)), int32(math32.Ceil(r.Bottom))
}

package geometry

import (
	"github.com/cyclopcam/warmcold/pkg/nn"
	"gonum.org/v1/gonum/mat"
)

// Points are in continuous pixel coordinates, where a w x h image spans [0,w] x [0,h].
//
// The forward mapping takes a raw frame point to a model input point:
//   translate (subtract crop origin) -> rotate (quarter turn) -> scale
// The inverse mapping is composed from the inverse of each step, in reverse order.

func translation(dx, dy float64) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		1, 0, dx,
		0, 1, dy,
		0, 0, 1,
	})
}

func scaling(sx, sy float64) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		sx, 0, 0,
		0, sy, 0,
		0, 0, 1,
	})
}

// rotation of a w x h image, counter-clockwise.
// 90:  (x,y) -> (y, w-x)
// 180: (x,y) -> (w-x, h-y)
// 270: (x,y) -> (h-y, x)
func rotation(r Rotation, w, h float64) *mat.Dense {
	switch r {
	case Rotate90:
		return mat.NewDense(3, 3, []float64{
			0, 1, 0,
			-1, 0, w,
			0, 0, 1,
		})
	case Rotate180:
		return mat.NewDense(3, 3, []float64{
			-1, 0, w,
			0, -1, h,
			0, 0, 1,
		})
	case Rotate270:
		return mat.NewDense(3, 3, []float64{
			0, -1, h,
			1, 0, 0,
			0, 0, 1,
		})
	}
	return translation(0, 0)
}

// inverse of rotation(r, w, h), where w x h is the size *before* rotation
func unrotation(r Rotation, w, h float64) *mat.Dense {
	switch r {
	case Rotate90:
		return mat.NewDense(3, 3, []float64{
			0, -1, w,
			1, 0, 0,
			0, 0, 1,
		})
	case Rotate180:
		return rotation(Rotate180, w, h)
	case Rotate270:
		return mat.NewDense(3, 3, []float64{
			0, 1, 0,
			-1, 0, h,
			0, 0, 1,
		})
	}
	return translation(0, 0)
}

// compose returns steps[n-1] * ... * steps[0], so steps are applied in order
func compose(steps ...*mat.Dense) *mat.Dense {
	m := translation(0, 0)
	for _, s := range steps {
		var next mat.Dense
		next.Mul(s, m)
		m = &next
	}
	return m
}

func (p *Plan) buildMatrices() {
	cw := float64(p.Crop.Dx())
	ch := float64(p.Crop.Dy())
	ox := float64(p.Crop.Min.X)
	oy := float64(p.Crop.Min.Y)
	p.forward = compose(
		translation(-ox, -oy),
		rotation(p.Rotation, cw, ch),
		scaling(p.ScaleX, p.ScaleY),
	)
	p.inverse = compose(
		scaling(1/p.ScaleX, 1/p.ScaleY),
		unrotation(p.Rotation, cw, ch),
		translation(ox, oy),
	)
}

func apply(m *mat.Dense, x, y float64) (float64, float64) {
	return m.At(0, 0)*x + m.At(0, 1)*y + m.At(0, 2),
		m.At(1, 0)*x + m.At(1, 1)*y + m.At(1, 2)
}

// Forward maps a raw frame point to a model input point
func (p *Plan) Forward(x, y float64) (float64, float64) {
	return apply(p.forward, x, y)
}

// Inverse maps a model input point back to a raw frame point
func (p *Plan) Inverse(x, y float64) (float64, float64) {
	return apply(p.inverse, x, y)
}

// ForwardRect maps a raw frame box into model input space
func (p *Plan) ForwardRect(r nn.RectF) nn.RectF {
	return mapRect(p.Forward, r)
}

// InverseRect maps a model input box back to raw frame space.
// Rotation swaps edges, so the result is made canonical.
func (p *Plan) InverseRect(r nn.RectF) nn.RectF {
	return mapRect(p.Inverse, r)
}

func mapRect(f func(x, y float64) (float64, float64), r nn.RectF) nn.RectF {
	x1, y1 := f(float64(r.Left), float64(r.Top))
	x2, y2 := f(float64(r.Right), float64(r.Bottom))
	return nn.RectF{
		Left:   float32(x1),
		Top:    float32(y1),
		Right:  float32(x2),
		Bottom: float32(y2),
	}.Canonical()
}

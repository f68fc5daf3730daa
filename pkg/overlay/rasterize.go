package overlay

import (
	"image"

	"github.com/fogleman/gg"
	"golang.org/x/image/font"
)

type faceKey struct {
	size float64
	bold bool
}

// Rasterize draws a scene onto a transparent canvas of the scene's size.
// The indicator strip is drawn over the top of the boxes.
func Rasterize(scene *Scene) image.Image {
	width := max(scene.Width, scene.IndicatorWidth, 1)
	height := max(scene.Height, scene.IndicatorHeight, 1)
	dc := gg.NewContext(width, height)
	faces := map[faceKey]font.Face{}
	draw(dc, scene.Boxes, faces)
	draw(dc, scene.Indicator, faces)
	return dc.Image()
}

// Composite draws a scene over a copy of background. Box coordinates are in the
// background's pixel space when the scene's scale factor is 1.
func Composite(background image.Image, scene *Scene) image.Image {
	dc := gg.NewContextForImage(background)
	faces := map[faceKey]font.Face{}
	draw(dc, scene.Boxes, faces)
	draw(dc, scene.Indicator, faces)
	return dc.Image()
}

// Draw executes commands on a gg context
func Draw(dc *gg.Context, cmds []Command) {
	draw(dc, cmds, map[faceKey]font.Face{})
}

func draw(dc *gg.Context, cmds []Command, faces map[faceKey]font.Face) {
	for i := range cmds {
		c := &cmds[i]
		switch c.Kind {
		case CommandRect:
			dc.DrawRectangle(c.Rect.X1, c.Rect.Y1, c.Rect.Width(), c.Rect.Height())
			paint(dc, &c.Paint)
		case CommandRoundRect:
			dc.DrawRoundedRectangle(c.Rect.X1, c.Rect.Y1, c.Rect.Width(), c.Rect.Height(), c.Radius)
			paint(dc, &c.Paint)
		case CommandText:
			key := faceKey{size: c.FontSize, bold: c.Paint.Bold}
			face := faces[key]
			if face == nil {
				face = NewFace(c.FontSize, c.Paint.Bold)
				faces[key] = face
			}
			dc.SetFontFace(face)
			dc.SetColor(c.Paint.Color)
			ax := 0.0
			if c.Align == AlignCenter {
				ax = 0.5
			}
			dc.DrawStringAnchored(c.Text, c.X, c.Y, ax, 0)
		}
	}
}

func paint(dc *gg.Context, p *Paint) {
	if p.Gradient != nil {
		g := gg.NewLinearGradient(p.Gradient.X1, 0, p.Gradient.X2, 0)
		for _, s := range p.Gradient.Stops {
			g.AddColorStop(s.Offset, s.Color)
		}
		dc.SetFillStyle(g)
		dc.SetStrokeStyle(g)
	} else {
		dc.SetColor(p.Color)
	}
	if p.StrokeWidth > 0 {
		dc.SetLineWidth(p.StrokeWidth)
		dc.Stroke()
	} else {
		dc.Fill()
	}
}

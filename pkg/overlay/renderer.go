package overlay

import (
	"fmt"
	"image/color"
	"sync"

	"github.com/cyclopcam/warmcold/pkg/gen"
	"github.com/cyclopcam/warmcold/pkg/nn"
	"golang.org/x/image/font"
)

var (
	White = color.NRGBA{255, 255, 255, 255}
	Black = color.NRGBA{0, 0, 0, 255}
	Amber = color.NRGBA{0xFF, 0xC1, 0x07, 0xFF}
)

// Style holds all the sizes and colors of the overlay
type Style struct {
	BoxColor    color.NRGBA
	BoxStroke   float64
	TextSize    float64
	TextPadding float64

	MarginHorizontal float64
	MarginTop        float64
	BarHeight        float64
	BarRadius        float64
	MarkerWidth      float64
	MarkerHeight     float64
	MarkerRadius     float64
	LabelOffset      float64 // COLD/HOT are this far inside the bar ends, and this far below it
	LabelAreaPadding float64 // Extra space below the labels
	BackgroundAlpha  uint8
	Gradient         []color.NRGBA // Cold to hot
}

func hex(v uint32) color.NRGBA {
	return color.NRGBA{uint8(v >> 16), uint8(v >> 8), uint8(v), 0xFF}
}

func DefaultStyle() Style {
	return Style{
		BoxColor:    Amber,
		BoxStroke:   8,
		TextSize:    50,
		TextPadding: 8,

		MarginHorizontal: 40,
		MarginTop:        20,
		BarHeight:        120,
		BarRadius:        8,
		MarkerWidth:      24,
		MarkerHeight:     60,
		MarkerRadius:     4,
		LabelOffset:      40,
		LabelAreaPadding: 60,
		BackgroundAlpha:  180,
		Gradient: []color.NRGBA{
			hex(0x2196F3), // blue
			hex(0x03A9F4), // light blue
			hex(0x00BCD4), // cyan
			hex(0x4CAF50), // green
			hex(0x8BC34A), // light green
			hex(0xCDDC39), // lime
			hex(0xFFEB3B), // yellow
			hex(0xFFC107), // amber
			hex(0xFF9800), // orange
			hex(0xFF5722), // deep orange
		},
	}
}

// Renderer turns overlay state into draw commands.
// It is a pure function of its inputs. Text measurement uses a shared font face,
// which is guarded by a mutex.
type Renderer struct {
	Style Style

	faceLock sync.Mutex
	face     font.Face
}

func NewRenderer(style Style) *Renderer {
	return &Renderer{
		Style: style,
		face:  NewFace(style.TextSize, false),
	}
}

// BoxLabel is the text drawn above a detection
func BoxLabel(d nn.Detection) string {
	return fmt.Sprintf("%s %.2f", d.Category.Label, d.Category.Confidence)
}

func (r *Renderer) measure(s string) (float64, float64) {
	r.faceLock.Lock()
	defer r.faceLock.Unlock()
	return TextBounds(r.face, s)
}

// Boxes returns the commands for the detection overlay.
// Detection boxes are multiplied by scale to get to view coordinates.
// An empty list, or visible=false, produces no commands.
func (r *Renderer) Boxes(dets []nn.Detection, scale float64, visible bool) []Command {
	if !visible || len(dets) == 0 {
		return nil
	}
	s := &r.Style
	cmds := make([]Command, 0, len(dets)*3)
	for _, d := range dets {
		box := Rect{
			X1: float64(d.Box.Left) * scale,
			Y1: float64(d.Box.Top) * scale,
			X2: float64(d.Box.Right) * scale,
			Y2: float64(d.Box.Bottom) * scale,
		}
		cmds = append(cmds, Command{
			Kind:  CommandRect,
			Rect:  box,
			Paint: Paint{Color: s.BoxColor, StrokeWidth: s.BoxStroke},
		})

		label := BoxLabel(d)
		tw, th := r.measure(label)
		cmds = append(cmds, Command{
			Kind:  CommandRect,
			Rect:  Rect{X1: box.X1, Y1: box.Y1, X2: box.X1 + tw + s.TextPadding, Y2: box.Y1 + th + s.TextPadding},
			Paint: Paint{Color: Black},
		})
		cmds = append(cmds, Command{
			Kind:     CommandText,
			Text:     label,
			X:        box.X1,
			Y:        box.Y1 + th,
			Align:    AlignLeft,
			FontSize: s.TextSize,
			Paint:    Paint{Color: White},
		})
	}
	return cmds
}

// IndicatorHeight is the height of the strip that Indicator draws into
func (r *Renderer) IndicatorHeight() int {
	s := &r.Style
	return int(s.MarginTop + s.BarHeight + s.TextSize + s.LabelAreaPadding)
}

// MarkerX returns the horizontal center of the marker
func (r *Renderer) MarkerX(width int, current, maxScore float64) float64 {
	s := &r.Style
	barLeft := s.MarginHorizontal
	barRight := float64(width) - s.MarginHorizontal
	ratio := 0.0
	if maxScore > 0 {
		ratio = gen.Clamp(current/maxScore, 0, 1)
	}
	return barLeft + (barRight-barLeft)*ratio
}

// Indicator returns the commands for the warm/cold bar.
// current is the smoothed score, which positions the marker. target is the score that is printed.
func (r *Renderer) Indicator(width int, current, target, maxScore float64) []Command {
	s := &r.Style
	w := float64(width)
	barLeft := s.MarginHorizontal
	barRight := w - s.MarginHorizontal
	barTop := s.MarginTop
	barBottom := barTop + s.BarHeight

	bg := Black
	bg.A = s.BackgroundAlpha

	grad := &Gradient{X1: barLeft, X2: barRight}
	for i, c := range s.Gradient {
		offset := 0.0
		if len(s.Gradient) > 1 {
			offset = float64(i) / float64(len(s.Gradient)-1)
		}
		grad.Stops = append(grad.Stops, GradientStop{Offset: offset, Color: c})
	}

	markerX := r.MarkerX(width, current, maxScore)
	markerTop := barTop - (s.MarkerHeight-s.BarHeight)/2

	labelY := barBottom + s.LabelOffset
	text := func(str string, x float64) Command {
		return Command{
			Kind:     CommandText,
			Text:     str,
			X:        x,
			Y:        labelY,
			Align:    AlignCenter,
			FontSize: s.TextSize,
			Paint:    Paint{Color: White, Bold: true},
		}
	}

	return []Command{
		{
			Kind:   CommandRoundRect,
			Rect:   Rect{X1: 0, Y1: barTop, X2: w, Y2: barBottom + s.TextSize + s.LabelAreaPadding},
			Radius: s.BarRadius,
			Paint:  Paint{Color: bg},
		},
		{
			Kind:   CommandRoundRect,
			Rect:   Rect{X1: barLeft, Y1: barTop, X2: barRight, Y2: barBottom},
			Radius: s.BarRadius,
			Paint:  Paint{Gradient: grad},
		},
		{
			Kind:   CommandRoundRect,
			Rect:   Rect{X1: markerX - s.MarkerWidth/2, Y1: markerTop, X2: markerX + s.MarkerWidth/2, Y2: markerTop + s.MarkerHeight},
			Radius: s.MarkerRadius,
			Paint:  Paint{Color: White},
		},
		text("COLD", barLeft+s.LabelOffset),
		text("HOT", barRight-s.LabelOffset),
		text(fmt.Sprintf("Score: %.2f", target), w/2),
	}
}

// Package overlay produces draw commands for the detection box overlay and the
// warm/cold indicator, and can rasterize them.
// Command lists are plain data, so they can be sent to a remote display, compared in tests,
// or turned into pixels by Rasterize.
package overlay

import (
	"image/color"
)

type CommandKind int

const (
	CommandRect      CommandKind = iota // Axis aligned rectangle, filled or stroked
	CommandRoundRect                    // Filled rectangle with rounded corners
	CommandText                         // Single line of text, anchored at its baseline
)

func (k CommandKind) String() string {
	switch k {
	case CommandRect:
		return "rect"
	case CommandRoundRect:
		return "roundrect"
	case CommandText:
		return "text"
	}
	return "unknown"
}

type Align int

const (
	AlignLeft Align = iota
	AlignCenter
)

type Rect struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

func (r Rect) Width() float64 {
	return r.X2 - r.X1
}

func (r Rect) Height() float64 {
	return r.Y2 - r.Y1
}

type GradientStop struct {
	Offset float64     `json:"offset"` // 0..1
	Color  color.NRGBA `json:"color"`
}

// Horizontal linear gradient from X1 to X2
type Gradient struct {
	X1    float64        `json:"x1"`
	X2    float64        `json:"x2"`
	Stops []GradientStop `json:"stops"`
}

// Paint describes how a shape is filled or stroked.
// If Gradient is not nil, it overrides Color.
type Paint struct {
	Color       color.NRGBA `json:"color"`
	Gradient    *Gradient   `json:"gradient,omitempty"`
	StrokeWidth float64     `json:"strokeWidth,omitempty"` // Zero means fill
	Bold        bool        `json:"bold,omitempty"`
}

type Command struct {
	Kind     CommandKind `json:"kind"`
	Rect     Rect        `json:"rect"`
	Radius   float64     `json:"radius,omitempty"`
	Text     string      `json:"text,omitempty"`
	X        float64     `json:"x,omitempty"` // Text anchor
	Y        float64     `json:"y,omitempty"` // Text baseline
	Align    Align       `json:"align,omitempty"`
	FontSize float64     `json:"fontSize,omitempty"`
	Paint    Paint       `json:"paint"`
}

// Scene is everything that is drawn in one render tick.
// Boxes are in overlay coordinates. Indicator commands are in their own strip,
// which is IndicatorWidth x IndicatorHeight, and is drawn at the top of the overlay.
type Scene struct {
	Width           int       `json:"width"`
	Height          int       `json:"height"`
	Boxes           []Command `json:"boxes"`
	IndicatorWidth  int       `json:"indicatorWidth"`
	IndicatorHeight int       `json:"indicatorHeight"`
	Indicator       []Command `json:"indicator"`
	Score           float64   `json:"score"`  // Displayed (smoothed) score
	Target          float64   `json:"target"` // Score that the display is moving toward
}

package surface

// Layout places the two overlay windows on a screen
type Layout struct {
	OverlayY        int
	OverlayHeight   int
	IndicatorY      int
	IndicatorHeight int
}

// LayoutForScreen puts the box overlay over the middle of the screen,
// and the indicator near the top.
func LayoutForScreen(screenWidth, screenHeight int) Layout {
	h := float64(screenHeight)
	return Layout{
		OverlayY:        int(h / 8),
		OverlayHeight:   int(h / 1.7),
		IndicatorY:      int(h / 48),
		IndicatorHeight: int(h / 10.9),
	}
}

// Options returns surface options sized for this layout
func (l Layout) Options(screenWidth int) Options {
	opts := DefaultOptions()
	opts.Width = screenWidth
	opts.Height = l.OverlayHeight
	opts.IndicatorWidth = screenWidth
	return opts
}

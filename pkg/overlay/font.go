package overlay

import (
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"
)

var regularFont *truetype.Font
var boldFont *truetype.Font

func init() {
	var err error
	regularFont, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
	boldFont, err = truetype.Parse(gobold.TTF)
	if err != nil {
		panic(err)
	}
}

// NewFace returns a font face of the given pixel size.
// Faces are not safe for concurrent use.
func NewFace(size float64, bold bool) font.Face {
	f := regularFont
	if bold {
		f = boldFont
	}
	return truetype.NewFace(f, &truetype.Options{Size: size, DPI: 72, Hinting: font.HintingFull})
}

// TextBounds returns the width and height of the ink of s, like a tight bounding box
func TextBounds(face font.Face, s string) (width, height float64) {
	b, _ := font.BoundString(face, s)
	return fixedToFloat(b.Max.X - b.Min.X), fixedToFloat(b.Max.Y - b.Min.Y)
}

func fixedToFloat(v fixed.Int26_6) float64 {
	return float64(v) / 64
}

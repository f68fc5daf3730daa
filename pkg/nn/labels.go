package nn

import (
	"fmt"
	"strings"
)

// Category is the class of a detected object
type Category struct {
	Label      string  `json:"label"`
	Confidence float32 `json:"confidence"` // 0..1
}

// Detection is an object that a neural network has found in an image.
// Once the detection adapter has produced it, Box is in display coordinates.
type Detection struct {
	Box      RectF    `json:"box"`
	Category Category `json:"category"`
}

func (d Detection) String() string {
	return fmt.Sprintf("%v %.2f [%.1f,%.1f,%.1f,%.1f]", d.Category.Label, d.Category.Confidence, d.Box.Left, d.Box.Top, d.Box.Right, d.Box.Bottom)
}

// IsLabel does a case insensitive comparison of the label
func (d Detection) IsLabel(label string) bool {
	return strings.EqualFold(d.Category.Label, label)
}

// RawDetection is what an inference engine emits.
// Box is normalized to [0,1] within the model input image.
type RawDetection struct {
	Box        RectF   `json:"box"`
	Label      string  `json:"label"`
	Confidence float32 `json:"confidence"`
}

// VideoLabels contains raw labels for a sequence of frames.
// The replay engine reads this format.
type VideoLabels struct {
	Classes []string       `json:"classes"`
	Frames  []*ImageLabels `json:"frames"`
}

type ImageLabels struct {
	Frame   int            `json:"frame,omitempty"` // For video, this is the frame number
	Objects []RawDetection `json:"objects"`
}

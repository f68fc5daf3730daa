package detect

import (
	"github.com/cyclopcam/warmcold/pkg/geometry"
	"github.com/cyclopcam/warmcold/pkg/nn"
)

// Denormalize scales a [0,1] box to a width x height image
func Denormalize(box nn.RectF, width, height int) nn.RectF {
	return box.Scale(float32(width), float32(height))
}

// ReferenceSize is the image size that boxes are de-normalized against in BoxMappingReference mode.
// For a quarter turn, the model height is the base, and the width is derived from the aspect.
// Otherwise the model width is the base, and the height is derived from the aspect.
// Either way, the result has the same aspect as the crop.
// Note the unrotated height is width*A.H/A.W (400 for a 300 wide 3:4 crop), and not the
// landscape width*3/4 (225), which would squash boxes on a portrait crop.
func ReferenceSize(modelWidth, modelHeight int, rotation geometry.Rotation, aspect geometry.Aspect) (width, height int) {
	if rotation.SwapsAxes() {
		return modelHeight * aspect.W / aspect.H, modelHeight
	}
	return modelWidth, modelWidth * aspect.H / aspect.W
}

// MapToDisplay takes a box in model input pixels back to raw frame pixels
func MapToDisplay(box nn.RectF, plan *geometry.Plan) nn.RectF {
	return plan.InverseRect(box)
}

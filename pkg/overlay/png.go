package overlay

import (
	"bytes"

	"github.com/disintegration/imaging"
)

// EncodePNG rasterizes the scene and encodes it as a PNG
func EncodePNG(scene *Scene) ([]byte, error) {
	buf := bytes.Buffer{}
	if err := imaging.Encode(&buf, Rasterize(scene), imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

package engine

import (
	"image"

	"github.com/bmharper/cimg/v2"
)

// ToCImageRGB copies an NRGBA image into a packed RGB cimg image
func ToCImageRGB(img *image.NRGBA) *cimg.Image {
	w := img.Rect.Dx()
	h := img.Rect.Dy()
	rgb := make([]byte, w*h*3)
	for y := 0; y < h; y++ {
		src := img.Pix[img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y+y):]
		dst := rgb[y*w*3:]
		for x := 0; x < w; x++ {
			dst[x*3] = src[x*4]
			dst[x*3+1] = src[x*4+1]
			dst[x*3+2] = src[x*4+2]
		}
	}
	return cimg.WrapImage(w, h, cimg.PixelFormatRGB, rgb)
}

// EncodeJPEG compresses an image with libjpeg-turbo
func EncodeJPEG(img *image.NRGBA, quality int) ([]byte, error) {
	return cimg.Compress(ToCImageRGB(img), cimg.MakeCompressParams(cimg.Sampling420, quality, 0))
}

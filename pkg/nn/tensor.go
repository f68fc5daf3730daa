package nn

import "image"

// ImageToTensor converts an image into a planar-interleaved float32 RGB tensor,
// with values scaled to [0,1]. Alpha is discarded.
// The layout is HWC: tensor[(y*width + x)*3 + channel]
func ImageToTensor(img *image.NRGBA) []float32 {
	w := img.Rect.Dx()
	h := img.Rect.Dy()
	tensor := make([]float32, w*h*3)
	const inv = float32(1) / 255
	for y := 0; y < h; y++ {
		off := img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y+y)
		src := img.Pix[off : off+w*4]
		dst := tensor[y*w*3 : (y+1)*w*3]
		for x := 0; x < w; x++ {
			dst[x*3] = float32(src[x*4]) * inv
			dst[x*3+1] = float32(src[x*4+1]) * inv
			dst[x*3+2] = float32(src[x*4+2]) * inv
		}
	}
	return tensor
}

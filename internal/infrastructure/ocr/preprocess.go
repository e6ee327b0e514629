package ocr

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

const binarizeThreshold = 200

// Preprocess normalizes a photo or scan before recognition: grayscale,
// doubled contrast, light sharpening, then binarization. Dark pixels go
// black, light pixels white, which strips shadows and paper texture.
func Preprocess(img image.Image) *image.NRGBA {
	out := imaging.Grayscale(img)
	out = imaging.AdjustContrast(out, 100)
	out = imaging.Sharpen(out, 1.0)
	return binarize(out, binarizeThreshold)
}

func binarize(img *image.NRGBA, threshold uint8) *image.NRGBA {
	bounds := img.Bounds()
	out := imaging.New(bounds.Dx(), bounds.Dy(), color.White)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			// Grayscale input, any channel carries the luminance.
			i := img.PixOffset(x, y)
			if img.Pix[i] < threshold {
				j := out.PixOffset(x-bounds.Min.X, y-bounds.Min.Y)
				out.Pix[j] = 0
				out.Pix[j+1] = 0
				out.Pix[j+2] = 0
			}
		}
	}
	return out
}

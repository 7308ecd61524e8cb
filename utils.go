package butteraugli

import (
	"context"
	"image"
	"image/color"
	"math"

	"github.com/pkg/errors"
)

var kSrgbToLinearTable = func() [256]float64 {
	var table [256]float64
	for i := range table {
		srgb := float64(i) / 255.0
		var m float64
		if srgb <= 0.04045 {
			m = srgb / 12.92
		} else {
			m = math.Pow((srgb+0.055)/1.055, 2.4)
		}
		table[i] = 255.0 * m
	}
	return table
}()

// SrgbToLinear returns the linear intensity of an 8-bit sRGB value, scaled
// to [0, 255].
func SrgbToLinear(v uint8) float64 {
	return kSrgbToLinearTable[v]
}

// imageToLinear converts img to linear planes, blending translucent pixels
// over the grey level bg.
func imageToLinear(img image.Image, bg uint32) (Image3, bool) {
	var (
		bnds     = img.Bounds()
		xsize    = bnds.Dx()
		ysize    = bnds.Dy()
		rgb      = NewImage3(xsize, ysize)
		hasAlpha bool
	)

	for y := 0; y < ysize; y++ {
		rowR, rowG, rowB := rgb[0].Row(y), rgb[1].Row(y), rgb[2].Row(y)
		for x := 0; x < xsize; x++ {
			c := color.NRGBAModel.Convert(img.At(bnds.Min.X+x, bnds.Min.Y+y)).(color.NRGBA)
			r, g, b, a := uint32(c.R), uint32(c.G), uint32(c.B), uint32(c.A)
			switch a {
			case 255:
			case 0:
				r, g, b = bg, bg, bg
			default:
				hasAlpha = true
				fgWeight := a
				bgw := bg*(255-fgWeight) + 127
				r = (r*fgWeight + bgw) / 255
				g = (g*fgWeight + bgw) / 255
				b = (b*fgWeight + bgw) / 255
			}
			rowR[x] = kSrgbToLinearTable[r]
			rowG[x] = kSrgbToLinearTable[g]
			rowB[x] = kSrgbToLinearTable[b]
		}
	}

	return rgb, hasAlpha
}

// Translate R, G, B channels from sRGB to linear space. If an alpha channel
// is present, overlay the image over a black or white background. Overlaying
// is done in the sRGB space; while technically incorrect, this is aligned with
// many other software (web browsers, WebP near lossless).
func ImageToLinearOnBlack(img image.Image) (Image3, bool) {
	return imageToLinear(img, 0)
}

func ImageToLinearOnWhite(img image.Image) Image3 {
	rgb, _ := imageToLinear(img, 255)
	return rgb
}

// CompareImagesContext compares two decoded images. When either carries
// translucent pixels, both are compared over black and over white and the
// worse score is returned.
func CompareImagesContext(ctx context.Context, img1, img2 image.Image, opts ...Option) (*Score, error) {
	size1 := img1.Bounds().Size()
	size2 := img2.Bounds().Size()

	if size1 != size2 {
		return nil, errors.Wrapf(ErrDifferentSizes, "%v vs %v", size1, size2)
	}

	linear1, hasAlpha1 := ImageToLinearOnBlack(img1)
	linear2, hasAlpha2 := ImageToLinearOnBlack(img2)

	score, err := Compare(ctx, linear1, linear2, opts...)
	if err != nil {
		return nil, err
	}

	if hasAlpha1 || hasAlpha2 {
		linear1 = ImageToLinearOnWhite(img1)
		linear2 = ImageToLinearOnWhite(img2)

		scoreOnWhite, err := Compare(ctx, linear1, linear2, opts...)
		if err != nil {
			return nil, err
		}
		if scoreOnWhite.Distance > score.Distance {
			score = scoreOnWhite
		}
	}

	return score, nil
}

// CompareImages returns the butteraugli distance between two decoded images.
func CompareImages(img1, img2 image.Image, opts ...Option) (float64, error) {
	score, err := CompareImagesContext(context.Background(), img1, img2, opts...)
	if err != nil {
		return 0, err
	}
	return score.Distance, nil
}

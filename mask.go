package butteraugli

import (
	"math"

	"github.com/ajroetker/go-highway/hwy/contrib/workerpool"
)

// Purpose of kInternalGoodQualityThreshold:
// Normalize 'ok' image degradation to 1.0 across different versions of
// butteraugli.
const (
	kInternalGoodQualityThreshold = 20.35
	kGlobalScale                  = 1.0 / kInternalGoodQualityThreshold
)

const maskLUTSize = 512

// MaskLUT is a masking response curve sampled at integer indices.
type MaskLUT [maskLUTSize]float64

// MakeMask builds a response curve from five tuned parameters.
func MakeMask(extmul, extoff, mul, offset, scaler float64) *MaskLUT {
	var lut MaskLUT
	for i := range lut {
		c := mul / ((0.01 * scaler * float64(i)) + offset)
		lut[i] = kGlobalScale * (1.0 + extmul*(c+extoff))
		if lut[i] < 1e-5 {
			lut[i] = 1e-5
		}
		lut[i] *= lut[i]
	}
	return &lut
}

// The four curves are pure functions of constants; they are built once and
// shared read-only.
var (
	maskXLUT   = MakeMask(2.59885507073, 3.08805636789, 5.62939030582, 0.315424196682, 16.2770141832)
	maskYLUT   = MakeMask(0.9613705131, -0.581933100068, 6.64307621174, 1.00846207765, 2.2342321176)
	maskDcXLUT = MakeMask(10.0470705878, 3.18472654033, 0.373092999662, 0.0551512255218, 70.0)
	maskDcYLUT = MakeMask(0.0115640939227, 45.9483175519, 2.52611324247, 0.0142290066313, 5.0)
)

// InterpolateClampNegative reads table at the continuous index ix with
// linear interpolation. Indices below 0 or NaN read table[0], indices at or past
// the last entry read the last entry.
func InterpolateClampNegative(table []float64, ix float64) float64 {
	size := len(table)
	if !(ix > 0) {
		ix = 0
	}
	if ix >= float64(size-1) {
		return table[size-1]
	}
	baseix := int(ix)
	mix := ix - float64(baseix)
	return table[baseix] + mix*(table[baseix+1]-table[baseix])
}

func MaskX(delta float64) float64   { return InterpolateClampNegative(maskXLUT[:], delta) }
func MaskY(delta float64) float64   { return InterpolateClampNegative(maskYLUT[:], delta) }
func MaskDcX(delta float64) float64 { return InterpolateClampNegative(maskDcXLUT[:], delta) }
func MaskDcY(delta float64) float64 { return InterpolateClampNegative(maskDcYLUT[:], delta) }

// RemoveRangeAroundZero shrinks x towards zero by w; |x| <= w maps to 0.
func RemoveRangeAroundZero(w, x float64) float64 {
	if x > w {
		return x - w
	}
	if x < -w {
		return x + w
	}
	return 0.0
}

// AmplifyRangeAroundZero pushes x away from zero by w; inside [-w, w] the
// value is doubled.
func AmplifyRangeAroundZero(w, x float64) float64 {
	if x > w {
		return x + w
	}
	if x < -w {
		return x - w
	}
	return 2.0 * x
}

// MaximumClamp compresses the part of v beyond +-maxval instead of clipping it.
func MaximumClamp(v, maxval float64) float64 {
	const kMul = 0.688059627878
	if v >= maxval {
		v -= maxval
		v *= kMul
		v += maxval
	} else if v < -maxval {
		v += maxval
		v *= kMul
		v -= maxval
	}
	return v
}

// SuppressHfInBrightness scales high frequency content down in bright areas.
func SuppressHfInBrightness(hf, brightness, mul, reg float64) float64 {
	scalar := mul * reg / (reg + brightness)
	return scalar * hf
}

// SuppressUfInBrightness is SuppressHfInBrightness for the ultra-high band.
func SuppressUfInBrightness(hf, brightness, mul, reg float64) float64 {
	scalar := mul * reg / (reg + brightness)
	return scalar * hf
}

// diffPrecompute measures local contrast: the sum of the absolute horizontal
// and vertical neighbour differences, the smaller of the two images, capped.
func diffPrecompute(pool *workerpool.Pool, xyb0, xyb1 *Plane) *Plane {
	const (
		mul0   = 0.918416534734
		cutoff = 55.0184555849
	)
	xsize, ysize := xyb0.Width(), xyb0.Height()
	out := NewPlane(xsize, ysize)
	parallelRows(pool, ysize, func(start, end int) {
		for y := start; y < end; y++ {
			y2 := y + 1
			if y2 >= ysize {
				y2 = max(0, y-1)
			}
			row0, row0y2 := xyb0.Row(y), xyb0.Row(y2)
			row1, row1y2 := xyb1.Row(y), xyb1.Row(y2)
			rowOut := out.Row(y)
			for x := 0; x < xsize; x++ {
				x2 := x + 1
				if x2 >= xsize {
					x2 = max(0, x-1)
				}
				sup0 := math.Abs(row0[x]-row0[x2]) + math.Abs(row0[x]-row0y2[x])
				sup1 := math.Abs(row1[x]-row1[x2]) + math.Abs(row1[x]-row1y2[x])
				rowOut[x] = min(mul0*min(sup0, sup1), cutoff)
			}
		}
	})
	return out
}

// mask turns the local contrast of two images into per-pixel AC and DC
// weights for X, Y and B. B has no curve of its own and follows Y.
func mask(pool *workerpool.Pool, xyb0, xyb1 Image3) (ac, dc Image3) {
	const (
		r0 = 2.3770330432
		r1 = 9.04353323561
		r2 = 9.24456601467
	)
	muls := [2]float64{0.207017089891, 0.267138152891}
	normalizer := 1.0 / (muls[0] + muls[1])

	xsize, ysize := xyb0.Width(), xyb0.Height()

	blurredX := blur(pool, diffPrecompute(pool, xyb0[0], xyb1[0]), r2, 0.0)
	diffY := diffPrecompute(pool, xyb0[1], xyb1[1])
	blurredY1 := blur(pool, diffY, r0, 0.0)
	blurredY2 := blur(pool, diffY, r1, 0.0)

	const (
		mulX    = 16.6963293877
		mulY    = 2.1364621982
		w00     = 36.4671237619
		w11     = 2.1887170895
		wYtoBHf = 0.086624184478
		wYtoBLf = 21.6804277046
		p1ToP0  = 0.0513061271723
	)
	ac = NewImage3(xsize, ysize)
	dc = NewImage3(xsize, ysize)
	parallelRows(pool, ysize, func(start, end int) {
		for y := start; y < end; y++ {
			rowX := blurredX.Row(y)
			rowY1, rowY2 := blurredY1.Row(y), blurredY2.Row(y)
			ac0, ac1, ac2 := ac[0].Row(y), ac[1].Row(y), ac[2].Row(y)
			dc0, dc1, dc2 := dc[0].Row(y), dc[1].Row(y), dc[2].Row(y)
			for x := 0; x < xsize; x++ {
				s0 := rowX[x]
				s1 := normalizer * (muls[0]*rowY1[x] + muls[1]*rowY2[x])
				p1 := mulY * w11 * s1
				p0 := mulX*w00*s0 + p1ToP0*p1

				ac0[x] = MaskX(p0)
				ac1[x] = MaskY(p1)
				ac2[x] = wYtoBHf * MaskY(p1)
				dc0[x] = MaskDcX(p0)
				dc1[x] = MaskDcY(p1)
				dc2[x] = wYtoBLf * MaskDcY(p1)
			}
		}
	})
	return ac, dc
}

// Mask returns the AC and DC masking weights for a pair of XYB images.
func Mask(xyb0, xyb1 Image3) (ac, dc Image3) {
	return mask(defaultPool(), xyb0, xyb1)
}

// maskPsychoImage feeds a weighted sum of the uhf and hf bands of X and Y to
// mask. The B input stays zero.
func maskPsychoImage(pool *workerpool.Pool, pi0, pi1 *PsychoImage) (ac, dc Image3) {
	muls := [4]float64{0, 1.64178305129, 0.831081703362, 3.23680933546}
	xsize, ysize := pi0.LF[0].Width(), pi0.LF[0].Height()
	in0 := NewImage3(xsize, ysize)
	in1 := NewImage3(xsize, ysize)
	for i := 0; i < 2; i++ {
		a, b := muls[2*i], muls[2*i+1]
		parallelRows(pool, ysize, func(start, end int) {
			for y := start; y < end; y++ {
				uhf0, hf0 := pi0.UHF[i].Row(y), pi0.HF[i].Row(y)
				uhf1, hf1 := pi1.UHF[i].Row(y), pi1.HF[i].Row(y)
				out0, out1 := in0[i].Row(y), in1[i].Row(y)
				for x := 0; x < xsize; x++ {
					out0[x] = a*uhf0[x] + b*hf0[x]
					out1[x] = a*uhf1[x] + b*hf1[x]
				}
			}
		})
	}
	return mask(pool, in0, in1)
}

// MaskPsychoImage is Mask driven by the high frequency bands of two
// decomposed images.
func MaskPsychoImage(pi0, pi1 *PsychoImage) (ac, dc Image3) {
	return maskPsychoImage(defaultPool(), pi0, pi1)
}

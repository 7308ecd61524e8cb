package butteraugli

import (
	"github.com/ajroetker/go-highway/hwy/contrib/workerpool"
)

// Sigma of the blur that feeds the gamma sensitivity in OpsinDynamicsImage.
const kOpsinSigma = 1.2

var opsinMix = [12]float64{
	0.254462330846, 0.488238255095, 0.0635278003854, 1.01681026909,
	0.195214015766, 0.568019861857, 0.0860755536007, 1.1510118369,
	0.07374607900105684, 0.06142425304154509, 0.24416850520714256, 1.20481945273,
}

// OpsinAbsorbance maps linear RGB in [0, 255] to the three cone-like
// absorbance channels.
func OpsinAbsorbance(in0, in1, in2 float64) (out0, out1, out2 float64) {
	mix := &opsinMix
	out0 = mix[0]*in0 + mix[1]*in1 + mix[2]*in2 + mix[3]
	out1 = mix[4]*in0 + mix[5]*in1 + mix[6]*in2 + mix[7]
	out2 = mix[8]*in0 + mix[9]*in1 + mix[10]*in2 + mix[11]
	return
}

// GammaMin is the smallest absorbance value, reached at black.
func GammaMin() float64 {
	o0, o1, o2 := OpsinAbsorbance(0, 0, 0)
	return min(o0, o1, o2)
}

// GammaMax is the largest absorbance value, reached at white.
func GammaMax() float64 {
	o0, o1, o2 := OpsinAbsorbance(255, 255, 255)
	return max(o0, o1, o2)
}

// RationalPolynomial is the ratio of two Chebyshev series defined on
// [Min, Max]. Outside the domain it extrapolates.
type RationalPolynomial struct {
	Min, Max float64

	// Coefficients of T_n (Chebyshev polynomials of the first kind).
	// Degree 5/5 is a compromise between accuracy (0.1%) and numerical stability.
	P, Q [6]float64
}

// evaluatePolynomial sums the Chebyshev series with Clenshaw's recurrence.
func evaluatePolynomial(x float64, coefficients []float64) float64 {
	var b1, b2 float64
	for i := len(coefficients) - 1; i >= 1; i-- {
		xb1 := x * b1
		t := (xb1 + xb1) - b2 + coefficients[i]
		b2 = b1
		b1 = t
	}
	// The final iteration differs - no 2 * x_b1 here.
	return x*b1 - b2 + coefficients[0]
}

// Evaluate returns P(x)/Q(x), or 0 where Q vanishes.
func (rp RationalPolynomial) Evaluate(x float64) float64 {
	// First normalize to [0, 1].
	x01 := (x - rp.Min) / (rp.Max - rp.Min)
	// And then to [-1, 1] domain of Chebyshev polynomials.
	xc := 2.0*x01 - 1.0

	yp := evaluatePolynomial(xc, rp.P[:])
	yq := evaluatePolynomial(xc, rp.Q[:])
	if yq == 0.0 {
		return 0.0
	}
	return yp / yq
}

var gammaPolynomial = RationalPolynomial{
	Min: 0.971783,
	Max: 590.188894,
	P: [6]float64{
		98.7821300963361, 164.273222212631, 92.948112871376,
		33.8165311212688, 6.91626704983562, 0.556380877028234,
	},
	Q: [6]float64{
		1.0, 1.64339473427892, 0.89392405219969,
		0.298947051776379, 0.0507146002577288, 0.00226495093949756,
	},
}

// Gamma is the perceptual response to an absorbance value.
func Gamma(v float64) float64 {
	return gammaPolynomial.Evaluate(v)
}

func rgbToXyb(r, g, b float64) (x, y, z float64) {
	return r - g, r + g, b
}

// XybLowFreqToVals scales low frequency XYB into perceptual units.
func XybLowFreqToVals(x, y, b float64) (valx, valy, valb float64) {
	const (
		xmul    = 5.57547552483
		ymul    = 1.20828034498
		bmul    = 6.08319517575
		yToBmul = -0.628811683685
	)
	valb = (b + yToBmul*y) * bmul
	valx = x * xmul
	valy = y * ymul
	return
}

// opsinImage applies absorbance and Gamma to every pixel independently.
func opsinImage(pool *workerpool.Pool, rgb Image3) Image3 {
	xsize, ysize := rgb.Width(), rgb.Height()
	xyb := NewImage3(xsize, ysize)
	parallelRows(pool, ysize, func(start, end int) {
		for y := start; y < end; y++ {
			rowR, rowG, rowB := rgb[0].Row(y), rgb[1].Row(y), rgb[2].Row(y)
			rowX, rowY, rowZ := xyb[0].Row(y), xyb[1].Row(y), xyb[2].Row(y)
			for x := 0; x < xsize; x++ {
				o0, o1, o2 := OpsinAbsorbance(rowR[x], rowG[x], rowB[x])
				rowX[x], rowY[x], rowZ[x] = rgbToXyb(Gamma(o0), Gamma(o1), Gamma(o2))
			}
		}
	})
	return xyb
}

// OpsinImage converts linear RGB planes to XYB by applying Gamma to the
// absorbance of each pixel.
func OpsinImage(rgb Image3) Image3 {
	return opsinImage(defaultPool(), rgb)
}

func opsinDynamicsImage(pool *workerpool.Pool, rgb Image3) Image3 {
	xsize, ysize := rgb.Width(), rgb.Height()
	var blurred Image3
	for i := range blurred {
		blurred[i] = blur(pool, rgb[i], kOpsinSigma, 0.0)
	}
	xyb := NewImage3(xsize, ysize)
	parallelRows(pool, ysize, func(start, end int) {
		for y := start; y < end; y++ {
			rowR, rowG, rowB := rgb[0].Row(y), rgb[1].Row(y), rgb[2].Row(y)
			rowBR, rowBG, rowBB := blurred[0].Row(y), blurred[1].Row(y), blurred[2].Row(y)
			rowX, rowY, rowZ := xyb[0].Row(y), xyb[1].Row(y), xyb[2].Row(y)
			for x := 0; x < xsize; x++ {
				// Calculate sensitivity based on the smoothed image gamma derivative.
				pre0, pre1, pre2 := OpsinAbsorbance(rowBR[x], rowBG[x], rowBB[x])
				s0 := Gamma(pre0) / pre0
				s1 := Gamma(pre1) / pre1
				s2 := Gamma(pre2) / pre2

				cur0, cur1, cur2 := OpsinAbsorbance(rowR[x], rowG[x], rowB[x])
				rowX[x], rowY[x], rowZ[x] = rgbToXyb(cur0*s0, cur1*s1, cur2*s2)
			}
		}
	})
	return xyb
}

// OpsinDynamicsImage converts linear RGB planes to XYB. The gamma response is
// taken at the locally blurred colour, so in flat regions the result matches
// OpsinImage up to rounding.
func OpsinDynamicsImage(rgb Image3) Image3 {
	return opsinDynamicsImage(defaultPool(), rgb)
}

package butteraugli

import (
	"math"
	"sync"

	"github.com/ajroetker/go-highway/hwy/contrib/algo"
	"github.com/ajroetker/go-highway/hwy/contrib/workerpool"
)

// Accuracy increases when kernelM is increased.
const kernelM = 2.25

var kernelCache sync.Map // float64 sigma -> []float64

// ComputeKernel returns the Gaussian kernel for sigma, of length
// 2*floor(max(1, 2.25*|sigma|)) + 1 and symmetric around its centre.
// Kernels are cached per sigma; the result must not be modified.
func ComputeKernel(sigma float64) []float64 {
	if k, ok := kernelCache.Load(sigma); ok {
		return k.([]float64)
	}
	scaler := -1.0 / (2 * sigma * sigma)
	diff := int(math.Max(1, kernelM*math.Abs(sigma)))
	args := make([]float64, 2*diff+1)
	for i := -diff; i <= diff; i++ {
		args[i+diff] = scaler * float64(i*i)
	}
	kernel := make([]float64, len(args))
	algo.ExpTransform(args, kernel)
	k, _ := kernelCache.LoadOrStore(sigma, kernel)
	return k.([]float64)
}

// convolution applies kernel along the rows of in and returns the result
// transposed. Near the left and right edges the kernel is cut to the
// in-bounds samples; the cut weight is blended with the full weight by
// borderRatio before normalising.
func convolution(pool *workerpool.Pool, in *Plane, kernel []float64, borderRatio float64) *Plane {
	xsize, ysize := in.Width(), in.Height()
	out := NewPlane(ysize, xsize)
	offset := len(kernel) / 2

	var weightNoBorder float64
	for _, k := range kernel {
		weightNoBorder += k
	}
	scaleNoBorder := 1.0 / weightNoBorder

	parallelRows(pool, xsize, func(start, end int) {
		for x := start; x < end; x++ {
			minx := max(0, x-offset)
			maxx := min(xsize-1, x+offset)
			scale := scaleNoBorder
			if minx != x-offset || maxx != x+offset {
				var weight float64
				for j := minx; j <= maxx; j++ {
					weight += kernel[j-x+offset]
				}
				// Interpolate linearly between the no-border scaling and border scaling.
				weight = (1.0-borderRatio)*weight + borderRatio*weightNoBorder
				scale = 1.0 / weight
			}
			rowOut := out.Row(x)
			for y := 0; y < ysize; y++ {
				rowIn := in.Row(y)
				var sum float64
				for j := minx; j <= maxx; j++ {
					sum += rowIn[j] * kernel[j-x+offset]
				}
				rowOut[y] = sum * scale
			}
		}
	})
	return out
}

// Convolution applies kernel along the rows of in. The result is transposed:
// applying it twice convolves both axes and restores the orientation.
func Convolution(in *Plane, kernel []float64, borderRatio float64) *Plane {
	return convolution(defaultPool(), in, kernel, borderRatio)
}

func blur(pool *workerpool.Pool, in *Plane, sigma, borderRatio float64) *Plane {
	kernel := ComputeKernel(sigma)
	tmp := convolution(pool, in, kernel, borderRatio)
	return convolution(pool, tmp, kernel, borderRatio)
}

// Blur returns a new plane holding in blurred by a separable Gaussian of the
// given sigma. borderRatio 0 renormalises truncated kernels at the edges
// fully; 1 keeps the full kernel weight (edges darken).
func Blur(in *Plane, sigma, borderRatio float64) *Plane {
	return blur(defaultPool(), in, sigma, borderRatio)
}

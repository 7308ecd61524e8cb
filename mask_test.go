package butteraugli

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterpolateClampNegative(t *testing.T) {
	table := []float64{4, 8, 2, 6}

	assert.Equal(t, 4.0, InterpolateClampNegative(table, -3))
	assert.Equal(t, 4.0, InterpolateClampNegative(table, 0))
	assert.Equal(t, 6.0, InterpolateClampNegative(table, 3))
	assert.Equal(t, 6.0, InterpolateClampNegative(table, 3.5))
	assert.Equal(t, 6.0, InterpolateClampNegative(table, 1e9))
	assert.Equal(t, 6.0, InterpolateClampNegative(table, 1e20))
	assert.Equal(t, 6.0, InterpolateClampNegative(table, math.Inf(1)))
	assert.Equal(t, maskYLUT[maskLUTSize-1], MaskY(1e20))
	assert.Equal(t, 4.0, InterpolateClampNegative(table, math.NaN()))

	for i, v := range table {
		assert.Equal(t, v, InterpolateClampNegative(table, float64(i)))
	}
	assert.InDelta(t, 6.0, InterpolateClampNegative(table, 0.5), 1e-15)
	assert.InDelta(t, 3.5, InterpolateClampNegative(table, 1.75), 1e-15)
}

func TestMakeMask(t *testing.T) {
	lut := MakeMask(2.59885507073, 3.08805636789, 5.62939030582, 0.315424196682, 16.2770141832)

	c := 5.62939030582 / 0.315424196682
	v := kGlobalScale * (1 + 2.59885507073*(c+3.08805636789))
	assert.InDelta(t, v*v, lut[0], 1e-12)

	for i, v := range lut {
		require.GreaterOrEqual(t, v, 1e-10, "entry %d", i)
	}

	// A strongly negative offset drives every entry to the floor.
	floor := MakeMask(1, -100, 1, 1, 1)
	for _, v := range floor {
		assert.InDelta(t, 1e-10, v, 1e-24)
	}
}

func TestMaskCurves_Decrease(t *testing.T) {
	for name, fn := range map[string]func(float64) float64{
		"MaskX":   MaskX,
		"MaskY":   MaskY,
		"MaskDcX": MaskDcX,
		"MaskDcY": MaskDcY,
	} {
		prev := fn(0)
		assert.Greater(t, prev, 0.0, name)
		for d := 0.5; d < 600; d += 0.5 {
			v := fn(d)
			require.LessOrEqual(t, v, prev, "%s at %v", name, d)
			prev = v
		}
		assert.Equal(t, fn(0), fn(-5), name)
	}
}

func TestRangeAroundZero(t *testing.T) {
	assert.Zero(t, RemoveRangeAroundZero(1, 0.5))
	assert.Zero(t, RemoveRangeAroundZero(1, -1))
	assert.Equal(t, 2.0, RemoveRangeAroundZero(1, 3))
	assert.Equal(t, -2.0, RemoveRangeAroundZero(1, -3))

	assert.Equal(t, 1.0, AmplifyRangeAroundZero(1, 0.5))
	assert.Equal(t, -1.0, AmplifyRangeAroundZero(1, -0.5))
	assert.Equal(t, 4.0, AmplifyRangeAroundZero(1, 3))
	assert.Equal(t, -4.0, AmplifyRangeAroundZero(1, -3))
}

func TestMaximumClamp(t *testing.T) {
	const maxval = 5.0
	for _, v := range []float64{0, 1, -4.9, 4.999} {
		assert.Equal(t, v, MaximumClamp(v, maxval))
	}

	const eps = 1e-9
	assert.InDelta(t, maxval, MaximumClamp(maxval+eps, maxval), 2*eps)
	assert.InDelta(t, maxval, MaximumClamp(maxval-eps, maxval), 2*eps)
	assert.InDelta(t, -maxval, MaximumClamp(-maxval-eps, maxval), 2*eps)
	assert.InDelta(t, -maxval, MaximumClamp(-maxval+eps, maxval), 2*eps)

	assert.InDelta(t, maxval+0.688059627878, MaximumClamp(maxval+1, maxval), 1e-12)
	assert.InDelta(t, -maxval-2*0.688059627878, MaximumClamp(-maxval-2, maxval), 1e-12)
}

func TestSuppressInBrightness(t *testing.T) {
	assert.Equal(t, 3.0, SuppressHfInBrightness(3, 0, 1, 180))
	assert.InDelta(t, 1.5, SuppressHfInBrightness(3, 180, 1, 180), 1e-12)
	assert.InDelta(t, 1.0, SuppressUfInBrightness(2, 240, 1, 240), 1e-12)
	assert.Less(t, SuppressUfInBrightness(2, 500, 1, 240), SuppressUfInBrightness(2, 100, 1, 240))
}

func TestMask_FlatImage(t *testing.T) {
	xyb := NewImage3(16, 16)
	xyb[0].Fill(0.3)
	xyb[1].Fill(40)
	xyb[2].Fill(20)

	ac, dc := Mask(xyb, xyb)
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			require.InDelta(t, MaskX(0), ac[0].At(x, y), 1e-12)
			require.InDelta(t, MaskY(0), ac[1].At(x, y), 1e-12)
			require.InDelta(t, 0.086624184478*MaskY(0), ac[2].At(x, y), 1e-12)
			require.InDelta(t, MaskDcX(0), dc[0].At(x, y), 1e-12)
			require.InDelta(t, MaskDcY(0), dc[1].At(x, y), 1e-12)
			require.InDelta(t, 21.6804277046*MaskDcY(0), dc[2].At(x, y), 1e-12)
		}
	}
}

func TestDiffPrecompute_TakesSmallerContrast(t *testing.T) {
	flat := NewPlane(8, 8)
	edge := NewPlane(8, 8)
	for y := 0; y < 8; y++ {
		for x := 4; x < 8; x++ {
			edge.Set(x, y, 10)
		}
	}
	assert.Zero(t, diffPrecompute(nil, flat, edge).At(3, 3))
	assert.InDelta(t, 0.918416534734*10, diffPrecompute(nil, edge, edge).At(3, 3), 1e-12)
	// The last column looks back one pixel.
	assert.InDelta(t, 0.0, diffPrecompute(nil, edge, edge).At(7, 3), 1e-12)

	big := NewPlane(8, 8)
	big.Set(2, 2, 1000)
	assert.Equal(t, 55.0184555849, diffPrecompute(nil, big, big).At(2, 2))
}

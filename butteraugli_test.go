package butteraugli

import (
	"bytes"
	"context"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// grayImage returns a linear RGB image of one sRGB level.
func grayImage(xsize, ysize int, level uint8) Image3 {
	rgb := NewImage3(xsize, ysize)
	for c := range rgb {
		rgb[c].Fill(SrgbToLinear(level))
	}
	return rgb
}

func cloneImage(rgb Image3) Image3 {
	return Image3{rgb[0].Clone(), rgb[1].Clone(), rgb[2].Clone()}
}

func noiseImage(seed int64, xsize, ysize int) Image3 {
	rng := rand.New(rand.NewSource(seed))
	rgb := NewImage3(xsize, ysize)
	for y := 0; y < ysize; y++ {
		for c := range rgb {
			row := rgb[c].Row(y)
			for x := range row {
				row[x] = SrgbToLinear(uint8(rng.Intn(256)))
			}
		}
	}
	return rgb
}

// checkerImage draws a 6x6 checker pattern at (ox, oy) on a grey field.
// With distort set, one square of the pattern changes level.
func checkerImage(xsize, ysize, ox, oy int, distort bool) Image3 {
	rgb := grayImage(xsize, ysize, 100)
	for dy := 0; dy < 6; dy++ {
		for dx := 0; dx < 6; dx++ {
			v := uint8(60)
			if (dx+dy)%2 == 0 {
				v = 200
			}
			if distort && dx == 2 && dy == 3 {
				v = 130
			}
			rgb[0].Set(ox+dx, oy+dy, SrgbToLinear(v))
			rgb[1].Set(ox+dx, oy+dy, SrgbToLinear(v))
			rgb[2].Set(ox+dx, oy+dy, SrgbToLinear(min(255, v+20)))
		}
	}
	return rgb
}

func TestCompare_IdenticalIsZero(t *testing.T) {
	rgb := noiseImage(1, 40, 32)
	score, err := Compare(context.Background(), rgb, cloneImage(rgb))
	require.NoError(t, err)

	assert.Zero(t, score.Distance)
	assert.Equal(t, ButteraugliFuzzyClass(0), score.FuzzyClass)
	for y := 0; y < 32; y++ {
		for x := 0; x < 40; x++ {
			require.Zero(t, score.DiffMap.At(x, y), "(%d, %d)", x, y)
		}
	}
}

func TestCompare_OnePixelSmallImage(t *testing.T) {
	a := grayImage(8, 8, 128)
	b := grayImage(8, 8, 128)
	b[0].Set(3, 3, SrgbToLinear(255))

	self, err := Compare(context.Background(), a, cloneImage(a))
	require.NoError(t, err)
	score, err := Compare(context.Background(), a, b)
	require.NoError(t, err)

	assert.Greater(t, score.Distance, self.Distance)
	x, y := score.Worst()
	assert.Equal(t, 3, x)
	assert.Equal(t, 3, y)
}

func TestCompare_OnePixelIsLocal(t *testing.T) {
	const size = 96
	a := grayImage(size, size, 128)
	b := grayImage(size, size, 128)
	b[0].Set(20, 20, SrgbToLinear(255))

	score, err := Compare(context.Background(), a, b)
	require.NoError(t, err)
	require.Greater(t, score.Distance, 0.0)

	x, y := score.Worst()
	assert.Equal(t, 20, x)
	assert.Equal(t, 20, y)

	// Nothing reaches further than the sum of the filter radii.
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if x > 54 || y > 54 {
				require.Zero(t, score.DiffMap.At(x, y), "(%d, %d)", x, y)
			}
		}
	}
	assert.Greater(t, score.DiffMap.At(20, 30), 0.0)
}

func TestCompare_GrowsWithChange(t *testing.T) {
	a := grayImage(96, 96, 128)
	prev := 0.0
	for _, level := range []uint8{129, 130, 132, 140, 160} {
		b := grayImage(96, 96, 128)
		for c := range b {
			b[c].Set(48, 48, SrgbToLinear(level))
		}
		score, err := Compare(context.Background(), a, b)
		require.NoError(t, err)
		assert.Greater(t, score.Distance, prev, "level %d", level)
		prev = score.Distance
	}
	// A single grey level on one pixel is below the just noticeable
	// difference, a step of 32 levels is well above it.
	assert.Greater(t, prev, kButteraugliBad)
}

func TestCompare_TranslationInvariant(t *testing.T) {
	const size = 128
	var scores []float64
	for _, o := range [][2]int{{56, 56}, {64, 60}} {
		ref := checkerImage(size, size, o[0], o[1], false)
		dist := checkerImage(size, size, o[0], o[1], true)
		score, err := Compare(context.Background(), ref, dist)
		require.NoError(t, err)
		scores = append(scores, score.Distance)
	}
	assert.Greater(t, scores[0], 0.0)
	assert.InDelta(t, scores[0], scores[1], 1e-9)
}

func TestComparator_ReuseMatchesCompare(t *testing.T) {
	ref := noiseImage(2, 36, 36)
	c, err := NewComparator(ref)
	require.NoError(t, err)
	defer c.Close()

	for seed := int64(3); seed < 5; seed++ {
		dist := noiseImage(seed, 36, 36)
		want, err := Compare(context.Background(), ref, dist)
		require.NoError(t, err)
		got, err := c.Compare(context.Background(), dist)
		require.NoError(t, err)

		assert.Equal(t, want.Distance, got.Distance)
		assert.Empty(t, cmp.Diff(want.DiffMap.Data(), got.DiffMap.Data()))
	}
}

func TestCompare_WorkersDoNotChangeResult(t *testing.T) {
	ref := checkerImage(64, 64, 20, 30, false)
	dist := checkerImage(64, 64, 20, 30, true)

	seq, err := Compare(context.Background(), ref, dist, WithWorkers(1))
	require.NoError(t, err)
	par, err := Compare(context.Background(), ref, dist, WithWorkers(4))
	require.NoError(t, err)
	shared, err := Compare(context.Background(), ref, dist, WithPool(defaultPool()))
	require.NoError(t, err)

	assert.Empty(t, cmp.Diff(seq.DiffMap.Data(), par.DiffMap.Data()))
	assert.Empty(t, cmp.Diff(seq.DiffMap.Data(), shared.DiffMap.Data(), cmpopts.EquateApprox(0, 1e-12)))
}

func TestCompare_Options(t *testing.T) {
	ref := checkerImage(48, 48, 20, 20, false)
	dist := checkerImage(48, 48, 20, 20, true)
	ctx := context.Background()

	base, err := Compare(ctx, ref, dist)
	require.NoError(t, err)
	asym, err := Compare(ctx, ref, dist, WithHFAsymmetry(2))
	require.NoError(t, err)
	assert.NotEqual(t, base.Distance, asym.Distance)

	ignored, err := Compare(ctx, ref, dist, WithHFAsymmetry(-1), WithNorm(0.5))
	require.NoError(t, err)
	assert.Equal(t, base.Distance, ignored.Distance)

	p3, err := Compare(ctx, ref, dist, WithNorm(3))
	require.NoError(t, err)
	assert.Less(t, p3.Distance, base.Distance)
	assert.Equal(t, 3.0, p3.Norm)
	assert.InDelta(t, PNorm(base.DiffMap, 3), p3.Distance, 1e-12)
}

func TestCompare_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := Compare(ctx, grayImage(16, 16, 0), grayImage(16, 17, 0))
	assert.True(t, errors.Is(err, ErrDifferentSizes), "%v", err)

	_, err = Compare(ctx, grayImage(7, 16, 0), grayImage(7, 16, 0))
	assert.True(t, errors.Is(err, ErrTooSmall), "%v", err)

	_, err = NewComparator(grayImage(16, 4, 0))
	assert.True(t, errors.Is(err, ErrTooSmall), "%v", err)

	mixed := grayImage(16, 16, 0)
	mixed[2] = NewPlane(15, 16)
	_, err = NewComparator(mixed)
	assert.True(t, errors.Is(err, ErrDifferentSizes), "%v", err)

	c, err := NewComparator(grayImage(16, 16, 0))
	require.NoError(t, err)
	defer c.Close()
	_, err = c.Diffmap(ctx, grayImage(17, 16, 0))
	assert.True(t, errors.Is(err, ErrDifferentSizes), "%v", err)
}

func TestCompare_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Compare(ctx, grayImage(16, 16, 10), grayImage(16, 16, 20))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled), "%v", err)

	c, err := NewComparator(grayImage(16, 16, 10))
	require.NoError(t, err)
	_, err = c.Compare(ctx, grayImage(16, 16, 20))
	assert.True(t, errors.Is(err, context.Canceled), "%v", err)
}

func TestButteraugliInterface(t *testing.T) {
	a := checkerImage(32, 32, 10, 10, false)
	b := checkerImage(32, 32, 10, 10, true)
	dist, diffmap, err := ButteraugliInterface(a, b)
	require.NoError(t, err)
	assert.Greater(t, dist, 0.0)
	assert.Equal(t, ButteraugliDistanceFromMap(diffmap), dist)
}

func TestButteraugliAdaptiveQuantization(t *testing.T) {
	quant, err := ButteraugliAdaptiveQuantization(checkerImage(32, 32, 8, 8, false))
	require.NoError(t, err)
	require.Equal(t, 32, quant.Width())
	require.Equal(t, 32, quant.Height())
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			require.Greater(t, quant.At(x, y), 0.0)
		}
	}
	// Busy areas mask more than flat ones.
	assert.Less(t, quant.At(10, 10), quant.At(30, 30))

	_, err = ButteraugliAdaptiveQuantization(grayImage(12, 12, 50))
	assert.True(t, errors.Is(err, ErrTooSmall), "%v", err)
}

func TestSetLogger_StageRecords(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	defer SetLogger(nil)

	_, err := Compare(context.Background(), grayImage(16, 16, 10), grayImage(16, 16, 20), WithWorkers(1))
	require.NoError(t, err)

	out := buf.String()
	for _, stage := range []string{"opsin", "frequencies", "malta", "l2", "mask"} {
		assert.Contains(t, out, "stage="+stage)
	}
	assert.Contains(t, out, "xsize=16")
}

func TestSetLogger_SilentByDefault(t *testing.T) {
	SetLogger(nil)
	assert.False(t, Logger().Enabled(context.Background(), slog.LevelError))
}

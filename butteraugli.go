package butteraugli

import (
	"context"
	"math"
	"time"

	"github.com/ajroetker/go-highway/hwy/contrib/workerpool"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Smallest image edge the comparison is defined for. Every Malta window
// then overlaps the image by at least half.
const kMinImageSize = 8

var (
	ErrTooSmall       = errors.New("butteraugli is undefined for small images")
	ErrDifferentSizes = errors.New("images are not the same size")
)

// PsychoImage is an XYB image split into four frequency bands. Only X and Y
// carry the two highest bands.
type PsychoImage struct {
	UHF [2]*Plane
	HF  [2]*Plane
	MF  [3]*Plane
	LF  [3]*Plane
}

func subtract(a, b *Plane) *Plane {
	out := NewPlane(a.Width(), a.Height())
	for y := 0; y < a.Height(); y++ {
		rowA, rowB, rowOut := a.Row(y), b.Row(y), out.Row(y)
		for x := range rowOut {
			rowOut[x] = rowA[x] - rowB[x]
		}
	}
	return out
}

func mapPlane(pool *workerpool.Pool, p *Plane, fn func(x, y int, v float64) float64) {
	parallelRows(pool, p.Height(), func(start, end int) {
		for y := start; y < end; y++ {
			row := p.Row(y)
			for x, v := range row {
				row[x] = fn(x, y, v)
			}
		}
	})
}

func separateFrequencies(pool *workerpool.Pool, xyb Image3) *PsychoImage {
	const (
		kSigmaLf  = 7.46953768697
		kSigmaHf  = kSigmaLf * 0.5
		kSigmaUhf = kSigmaHf * 0.5
	)
	ps := &PsychoImage{}

	for i := 0; i < 3; i++ {
		ps.LF[i] = blur(pool, xyb[i], kSigmaLf, 0.0)
		mf := subtract(xyb[i], ps.LF[i])
		ps.MF[i] = blur(pool, mf, kSigmaHf, 0.0)
		if i < 2 {
			ps.HF[i] = subtract(mf, ps.MF[i])
		}
	}

	const (
		kRemoveMfRange = 0.3
		kAddMfRange    = 0.1
	)
	mapPlane(pool, ps.MF[0], func(_, _ int, v float64) float64 { return RemoveRangeAroundZero(kRemoveMfRange, v) })
	mapPlane(pool, ps.MF[1], func(_, _ int, v float64) float64 { return AmplifyRangeAroundZero(kAddMfRange, v) })

	for i := 0; i < 2; i++ {
		hf := blur(pool, ps.HF[i], kSigmaUhf, 0.0)
		ps.UHF[i] = subtract(ps.HF[i], hf)
		ps.HF[i] = hf
	}

	const (
		kRemoveHfRange  = 0.04
		kRemoveUhfRange = 0.04
		kMaxclampHf     = 28.4691806922
		kMaxclampUhf    = 5.19175294647
		kAddHfRange     = 0.132
		kSuppressHfReg  = 180.0
		kSuppressUhfReg = 240.0
	)
	mapPlane(pool, ps.HF[0], func(_, _ int, v float64) float64 { return RemoveRangeAroundZero(kRemoveHfRange, v) })
	mapPlane(pool, ps.UHF[0], func(_, _ int, v float64) float64 { return RemoveRangeAroundZero(kRemoveUhfRange, v) })

	// Brightness comes from the Y low band before it is scaled into vals.
	lfY := ps.LF[1]
	mapPlane(pool, ps.HF[1], func(x, y int, v float64) float64 {
		v = MaximumClamp(v, kMaxclampHf)
		v = SuppressHfInBrightness(v, lfY.Row(y)[x], 1.0, kSuppressHfReg)
		return AmplifyRangeAroundZero(kAddHfRange, v)
	})
	mapPlane(pool, ps.UHF[1], func(x, y int, v float64) float64 {
		v = MaximumClamp(v, kMaxclampUhf)
		return SuppressUfInBrightness(v, lfY.Row(y)[x], 1.0, kSuppressUhfReg)
	})

	lf := NewImage3(xyb.Width(), xyb.Height())
	parallelRows(pool, xyb.Height(), func(start, end int) {
		for y := start; y < end; y++ {
			inX, inY, inB := ps.LF[0].Row(y), ps.LF[1].Row(y), ps.LF[2].Row(y)
			outX, outY, outB := lf[0].Row(y), lf[1].Row(y), lf[2].Row(y)
			for x := range outX {
				outX[x], outY[x], outB[x] = XybLowFreqToVals(inX[x], inY[x], inB[x])
			}
		}
	})
	ps.LF = lf
	return ps
}

// SeparateFrequencies splits an XYB image into its uhf, hf, mf and lf bands.
func SeparateFrequencies(xyb Image3) *PsychoImage {
	return separateFrequencies(defaultPool(), xyb)
}

func l2Diff(pool *workerpool.Pool, i0, i1 *Plane, w float64, diffmap *Plane) {
	if w == 0 {
		return
	}
	parallelRows(pool, i0.Height(), func(start, end int) {
		for y := start; y < end; y++ {
			row0, row1, rowDiff := i0.Row(y), i1.Row(y), diffmap.Row(y)
			for x := range rowDiff {
				diff := row0[x] - row1[x]
				rowDiff[x] += w * diff * diff
			}
		}
	})
}

// l2DiffAsymmetric adds the squared difference weighted by w0gt1, plus a
// penalty weighted by w0lt1 when i1 leaves [0.4, 1.0] times i0.
func l2DiffAsymmetric(pool *workerpool.Pool, i0, i1 *Plane, w0gt1, w0lt1 float64, diffmap *Plane) {
	if w0gt1 == 0 && w0lt1 == 0 {
		return
	}
	vw0gt1 := w0gt1 * 0.8
	vw0lt1 := w0lt1 * 0.8
	parallelRows(pool, i0.Height(), func(start, end int) {
		for y := start; y < end; y++ {
			row0, row1, rowDiff := i0.Row(y), i1.Row(y), diffmap.Row(y)
			for x := range rowDiff {
				val0, val1 := row0[x], row1[x]

				// Primary symmetric quadratic objective.
				diff := val0 - val1
				total := rowDiff[x] + diff*diff*vw0gt1

				// Secondary half-open quadratic objectives.
				fabs0 := math.Abs(val0)
				tooSmall := 0.4 * fabs0
				tooBig := 1.0 * fabs0
				if val0 < 0 {
					if val1 > -tooSmall {
						v := val1 + tooSmall
						total += vw0lt1 * v * v
					} else if val1 < -tooBig {
						v := -val1 - tooBig
						total += vw0lt1 * v * v
					}
				} else {
					if val1 < tooSmall {
						v := tooSmall - val1
						total += vw0lt1 * v * v
					} else if val1 > tooBig {
						v := val1 - tooBig
						total += vw0lt1 * v * v
					}
				}
				rowDiff[x] = total
			}
		}
	})
}

func combineChannels(pool *workerpool.Pool, mask, maskDc, blockDiffDc, blockDiffAc Image3) *Plane {
	xsize, ysize := mask.Width(), mask.Height()
	out := NewPlane(xsize, ysize)
	parallelRows(pool, ysize, func(start, end int) {
		for y := start; y < end; y++ {
			rowOut := out.Row(y)
			for c := 0; c < 3; c++ {
				rowMask, rowMaskDc := mask[c].Row(y), maskDc[c].Row(y)
				rowDc, rowAc := blockDiffDc[c].Row(y), blockDiffAc[c].Row(y)
				for x := range rowOut {
					rowOut[x] += rowDc[x]*rowMaskDc[x] + rowAc[x]*rowMask[x]
				}
			}
		}
	})
	return out
}

// calculateDiffmap takes the square root, with a linear segment near zero
// where sqrt is too steep.
func calculateDiffmap(pool *workerpool.Pool, diffmap *Plane) {
	const kInitialSlope = 100.0
	mapPlane(pool, diffmap, func(_, _ int, v float64) float64 {
		if v < 1.0/(kInitialSlope*kInitialSlope) {
			return kInitialSlope * v
		}
		return math.Sqrt(v)
	})
}

// Comparator holds the decomposition of a reference image so that many
// candidates can be compared against it.
type Comparator struct {
	xsize, ysize int
	opts         options
	pool         *workerpool.Pool
	ownPool      bool
	pi0          *PsychoImage
}

func checkImage(rgb Image3) error {
	for _, p := range rgb {
		if p == nil {
			return errors.New("image has a nil channel")
		}
		if !p.SameSize(rgb[0]) {
			return errors.Wrap(ErrDifferentSizes, "channels differ in size")
		}
	}
	if rgb.Width() < kMinImageSize || rgb.Height() < kMinImageSize {
		return errors.Wrapf(ErrTooSmall, "image is %dx%d", rgb.Width(), rgb.Height())
	}
	return nil
}

func newComparator(xsize, ysize int, opts []Option) *Comparator {
	c := &Comparator{xsize: xsize, ysize: ysize, opts: newOptions(opts)}
	switch {
	case c.opts.pool != nil:
		c.pool = c.opts.pool
	case c.opts.workers == 1:
		c.pool = nil
	case c.opts.workers > 1:
		c.pool = workerpool.New(c.opts.workers)
		c.ownPool = true
	default:
		c.pool = defaultPool()
	}
	return c
}

// NewComparator decomposes the linear RGB reference rgb0 (values in
// [0, 255]) for later comparisons.
func NewComparator(rgb0 Image3, opts ...Option) (*Comparator, error) {
	if err := checkImage(rgb0); err != nil {
		return nil, err
	}
	c := newComparator(rgb0.Width(), rgb0.Height(), opts)
	pi0, err := c.psychoImage(context.Background(), rgb0)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.pi0 = pi0
	return c, nil
}

// Close releases the worker pool created by WithWorkers.
func (c *Comparator) Close() {
	if c.ownPool {
		c.pool.Close()
		c.ownPool = false
	}
}

func logStage(stage string, xsize, ysize int, since time.Time) {
	Logger().Debug("butteraugli: stage done",
		"stage", stage,
		"xsize", xsize,
		"ysize", ysize,
		"elapsed", time.Since(since))
}

func (c *Comparator) psychoImage(ctx context.Context, rgb Image3) (*PsychoImage, error) {
	t := time.Now()
	xyb := opsinDynamicsImage(c.pool, rgb)
	logStage("opsin", c.xsize, c.ysize, t)
	if err := ctx.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	t = time.Now()
	pi := separateFrequencies(c.pool, xyb)
	logStage("frequencies", c.xsize, c.ysize, t)
	if err := ctx.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	return pi, nil
}

func (c *Comparator) diffmapPsychoImage(ctx context.Context, pi1 *PsychoImage) (*Plane, error) {
	const (
		wUhfMalta  = 1.10039032555
		norm1Uhf   = 71.7800275169
		wUhfMaltaX = 173.5
		norm1UhfX  = 5.0
		wHfMalta   = 18.7237414387
		norm1Hf    = 4498534.45232
		wHfMaltaX  = 6923.99476109
		norm1HfX   = 8051.15833247
		wMfMalta   = 37.0819870399
		norm1Mf    = 130262059.556
		wMfMaltaX  = 8246.75321353
		norm1MfX   = 270.0
	)
	wmul := [9]float64{
		400.0, 1.50815703118, 0,
		2150.0, 10.6195433239, 16.2176043152,
		29.2353797994, 0.844626970982, 0.703646627719,
	}
	pool, pi0 := c.pool, c.pi0
	asym := c.opts.hfAsymmetry
	sqrtAsym := math.Sqrt(asym)

	t := time.Now()
	blockDiffDc := NewImage3(c.xsize, c.ysize)
	blockDiffAc := NewImage3(c.xsize, c.ysize)
	maltaDiffMap(pool, pi0.UHF[1], pi1.UHF[1], wUhfMalta*asym, wUhfMalta/asym, norm1Uhf, false, blockDiffAc[1])
	maltaDiffMap(pool, pi0.UHF[0], pi1.UHF[0], wUhfMaltaX*asym, wUhfMaltaX/asym, norm1UhfX, false, blockDiffAc[0])
	maltaDiffMap(pool, pi0.HF[1], pi1.HF[1], wHfMalta*sqrtAsym, wHfMalta/sqrtAsym, norm1Hf, true, blockDiffAc[1])
	maltaDiffMap(pool, pi0.HF[0], pi1.HF[0], wHfMaltaX*sqrtAsym, wHfMaltaX/sqrtAsym, norm1HfX, true, blockDiffAc[0])
	maltaDiffMap(pool, pi0.MF[1], pi1.MF[1], wMfMalta, wMfMalta, norm1Mf, true, blockDiffAc[1])
	maltaDiffMap(pool, pi0.MF[0], pi1.MF[0], wMfMaltaX, wMfMaltaX, norm1MfX, true, blockDiffAc[0])
	logStage("malta", c.xsize, c.ysize, t)
	if err := ctx.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	t = time.Now()
	for ch := 0; ch < 3; ch++ {
		if ch < 2 {
			l2DiffAsymmetric(pool, pi0.HF[ch], pi1.HF[ch], wmul[ch]*asym, wmul[ch]/asym, blockDiffAc[ch])
		}
		l2Diff(pool, pi0.MF[ch], pi1.MF[ch], wmul[3+ch], blockDiffAc[ch])
		l2Diff(pool, pi0.LF[ch], pi1.LF[ch], wmul[6+ch], blockDiffDc[ch])
	}
	logStage("l2", c.xsize, c.ysize, t)

	t = time.Now()
	mask, maskDc := maskPsychoImage(pool, pi0, pi1)
	logStage("mask", c.xsize, c.ysize, t)
	if err := ctx.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	diffmap := combineChannels(pool, mask, maskDc, blockDiffDc, blockDiffAc)
	calculateDiffmap(pool, diffmap)
	return diffmap, nil
}

// Diffmap compares the linear RGB image rgb1 with the reference and returns
// the per-pixel distance.
func (c *Comparator) Diffmap(ctx context.Context, rgb1 Image3) (*Plane, error) {
	if err := checkImage(rgb1); err != nil {
		return nil, err
	}
	if rgb1.Width() != c.xsize || rgb1.Height() != c.ysize {
		return nil, errors.Wrapf(ErrDifferentSizes, "%dx%d vs %dx%d",
			c.xsize, c.ysize, rgb1.Width(), rgb1.Height())
	}
	pi1, err := c.psychoImage(ctx, rgb1)
	if err != nil {
		return nil, err
	}
	return c.diffmapPsychoImage(ctx, pi1)
}

// Compare is Diffmap pooled into a Score.
func (c *Comparator) Compare(ctx context.Context, rgb1 Image3) (*Score, error) {
	diffmap, err := c.Diffmap(ctx, rgb1)
	if err != nil {
		return nil, err
	}
	return newScore(diffmap, c.opts), nil
}

// Compare computes the perceptual distance between two linear RGB images.
// The two images are decomposed concurrently.
func Compare(ctx context.Context, rgb0, rgb1 Image3, opts ...Option) (*Score, error) {
	if err := checkImage(rgb0); err != nil {
		return nil, err
	}
	if err := checkImage(rgb1); err != nil {
		return nil, err
	}
	if !rgb0.sameSize(rgb1) {
		return nil, errors.Wrapf(ErrDifferentSizes, "%dx%d vs %dx%d",
			rgb0.Width(), rgb0.Height(), rgb1.Width(), rgb1.Height())
	}

	c := newComparator(rgb0.Width(), rgb0.Height(), opts)
	defer c.Close()

	var pi1 *PsychoImage
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		c.pi0, err = c.psychoImage(gctx, rgb0)
		return err
	})
	g.Go(func() error {
		var err error
		pi1, err = c.psychoImage(gctx, rgb1)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	diffmap, err := c.diffmapPsychoImage(ctx, pi1)
	if err != nil {
		return nil, err
	}
	return newScore(diffmap, c.opts), nil
}

// ButteraugliInterface returns the maximum distance and the diffmap of two
// linear RGB images.
func ButteraugliInterface(rgb0, rgb1 Image3) (float64, *Plane, error) {
	score, err := Compare(context.Background(), rgb0, rgb1)
	if err != nil {
		return 0, nil, err
	}
	return score.Distance, score.DiffMap, nil
}

// Returns a map which can be used for adaptive quantization. Low values
// require coarse quantization (e.g. near random noise), high values require
// fine quantization (e.g. in smooth bright areas).
func ButteraugliAdaptiveQuantization(rgb Image3, opts ...Option) (*Plane, error) {
	if err := checkImage(rgb); err != nil {
		return nil, err
	}
	if rgb.Width() < 16 || rgb.Height() < 16 {
		return nil, errors.Wrapf(ErrTooSmall, "image is %dx%d", rgb.Width(), rgb.Height())
	}
	c := newComparator(rgb.Width(), rgb.Height(), opts)
	defer c.Close()

	pi, err := c.psychoImage(context.Background(), rgb)
	if err != nil {
		return nil, err
	}
	// The intensity channel of the AC mask.
	mask, _ := maskPsychoImage(c.pool, pi, pi)
	return mask[1], nil
}

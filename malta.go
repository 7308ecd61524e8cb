package butteraugli

import (
	"math"

	"github.com/ajroetker/go-highway/hwy/contrib/workerpool"
)

// offset is a tap position relative to the centre pixel.
type offset struct{ dx, dy int }

// Sixteen oriented line segments through the centre: horizontal, vertical,
// both diagonals and twelve directions in between. The response of a pixel
// is the sum of the squared segment sums.
var maltaPatterns = [16][]offset{
	{{-4, 0}, {-3, 0}, {-2, 0}, {-1, 0}, {0, 0}, {1, 0}, {2, 0}, {3, 0}, {4, 0}},
	{{0, -4}, {0, -3}, {0, -2}, {0, -1}, {0, 0}, {0, 1}, {0, 2}, {0, 3}, {0, 4}},
	{{-3, -3}, {-2, -2}, {-1, -1}, {0, 0}, {1, 1}, {2, 2}, {3, 3}},
	{{3, -3}, {2, -2}, {1, -1}, {0, 0}, {-1, 1}, {-2, 2}, {-3, 3}},
	{{1, -4}, {1, -3}, {1, -2}, {0, -1}, {0, 0}, {0, 1}, {-1, 2}, {-1, 3}, {-1, 4}},
	{{-1, -4}, {-1, -3}, {-1, -2}, {0, -1}, {0, 0}, {0, 1}, {1, 2}, {1, 3}, {1, 4}},
	{{-4, -1}, {-3, -1}, {-2, -1}, {-1, 0}, {0, 0}, {1, 0}, {2, 1}, {3, 1}, {4, 1}},
	{{-4, 1}, {-3, 1}, {-2, 1}, {-1, 0}, {0, 0}, {1, 0}, {2, -1}, {3, -1}, {4, -1}},
	{{-2, -3}, {-1, -2}, {-1, -1}, {0, 0}, {1, 1}, {1, 2}, {2, 3}},
	{{2, -3}, {1, -2}, {1, -1}, {0, 0}, {-1, 1}, {-1, 2}, {-2, 3}},
	{{-3, -2}, {-2, -1}, {-1, -1}, {0, 0}, {1, 1}, {2, 1}, {3, 2}},
	{{3, -2}, {2, -1}, {1, -1}, {0, 0}, {-1, 1}, {-2, 1}, {-3, 2}},
	{{-4, 2}, {-3, 2}, {-2, 1}, {-1, 1}, {0, 0}, {1, 0}, {2, -1}, {3, -1}},
	{{-4, -2}, {-3, -2}, {-2, -1}, {-1, -1}, {0, 0}, {1, 0}, {2, 1}, {3, 1}},
	{{-2, -4}, {-2, -3}, {-1, -2}, {-1, -1}, {0, 0}, {0, 1}, {1, 2}, {1, 3}},
	{{2, -4}, {2, -3}, {1, -2}, {1, -1}, {0, 0}, {0, 1}, {-1, 2}, {-1, 3}},
}

// Sparse variant for the lower bands: five taps per direction, every other
// sample along the line.
var maltaPatternsLF = [16][]offset{
	{{-4, 0}, {-2, 0}, {0, 0}, {2, 0}, {4, 0}},
	{{0, -4}, {0, -2}, {0, 0}, {0, 2}, {0, 4}},
	{{-3, -3}, {-2, -2}, {0, 0}, {2, 2}, {3, 3}},
	{{3, -3}, {2, -2}, {0, 0}, {-2, 2}, {-3, 3}},
	{{1, -4}, {1, -2}, {0, 0}, {-1, 2}, {-1, 4}},
	{{-1, -4}, {-1, -2}, {0, 0}, {1, 2}, {1, 4}},
	{{-4, -1}, {-2, -1}, {0, 0}, {2, 1}, {4, 1}},
	{{-4, 1}, {-2, 1}, {0, 0}, {2, -1}, {4, -1}},
	{{-2, -3}, {-1, -2}, {0, 0}, {1, 2}, {2, 3}},
	{{2, -3}, {1, -2}, {0, 0}, {-1, 2}, {-2, 3}},
	{{-3, -2}, {-2, -1}, {0, 0}, {2, 1}, {3, 2}},
	{{3, -2}, {2, -1}, {0, 0}, {-2, 1}, {-3, 2}},
	{{-4, 2}, {-2, 1}, {0, 0}, {2, -1}, {4, -2}},
	{{-4, -2}, {-2, -1}, {0, 0}, {2, 1}, {4, 2}},
	{{-2, -4}, {-1, -2}, {0, 0}, {1, 2}, {2, 4}},
	{{2, -4}, {1, -2}, {0, 0}, {-1, 2}, {-2, 4}},
}

// Every pattern stays inside a 9x9 window.
const maltaRadius = 4

func maltaSum(patterns *[16][]offset, d *Plane, x, y int) float64 {
	var retval float64
	for _, p := range patterns {
		var sum float64
		for _, o := range p {
			sum += d.At(x+o.dx, y+o.dy)
		}
		retval += sum * sum
	}
	return retval
}

// maltaSumRows is maltaSum for a pixel whose whole window is in bounds.
// rows[4+dy] holds row y+dy. The summation order matches maltaSum.
func maltaSumRows(patterns *[16][]offset, rows *[2*maltaRadius + 1][]float64, x int) float64 {
	var retval float64
	for _, p := range patterns {
		var sum float64
		for _, o := range p {
			sum += rows[maltaRadius+o.dy][x+o.dx]
		}
		retval += sum * sum
	}
	return retval
}

// MaltaUnit is the edge-detector response of d at (x, y). Samples outside
// the plane read as zero.
func MaltaUnit(d *Plane, x, y int) float64 {
	return maltaSum(&maltaPatterns, d, x, y)
}

// MaltaUnitLF is the sparse form of MaltaUnit used for the hf and mf bands.
func MaltaUnitLF(d *Plane, x, y int) float64 {
	return maltaSum(&maltaPatternsLF, d, x, y)
}

func maltaDiffMap(pool *workerpool.Pool, lum0, lum1 *Plane, w0gt1, w0lt1, norm1 float64, lf bool, out *Plane) {
	const (
		kWeight0 = 0.5
		kWeight1 = 0.33
		kLen     = 3.75
	)
	patterns := &maltaPatterns
	mulli := 0.39905817637
	if lf {
		patterns = &maltaPatternsLF
		mulli = 0.611612573796
	}

	wPre0gt1 := mulli * math.Sqrt(kWeight0*w0gt1/(kLen*2+1))
	wPre0lt1 := mulli * math.Sqrt(kWeight1*w0lt1/(kLen*2+1))
	norm2Gt1 := wPre0gt1 * norm1
	norm2Lt1 := wPre0lt1 * norm1

	xsize, ysize := lum0.Width(), lum0.Height()
	diffs := NewPlane(xsize, ysize)
	parallelRows(pool, ysize, func(start, end int) {
		for y := start; y < end; y++ {
			row0, row1 := lum0.Row(y), lum1.Row(y)
			rowDiff := diffs.Row(y)
			for x := 0; x < xsize; x++ {
				absval := 0.5 * (math.Abs(row0[x]) + math.Abs(row1[x]))
				diff := row0[x] - row1[x]
				scaler := norm2Gt1 / (norm1 + absval)

				// Primary symmetric quadratic objective.
				rowDiff[x] = scaler * diff

				scaler2 := norm2Lt1 / (norm1 + absval)
				fabs0 := math.Abs(row0[x])

				// Secondary half-open quadratic objectives.
				tooSmall := 0.55 * fabs0
				tooBig := 1.05 * fabs0

				if row0[x] < 0 {
					if row1[x] > -tooSmall {
						impact := scaler2 * (row1[x] + tooSmall)
						if diff < 0 {
							rowDiff[x] -= impact
						} else {
							rowDiff[x] += impact
						}
					} else if row1[x] < -tooBig {
						impact := scaler2 * (-row1[x] - tooBig)
						if diff < 0 {
							rowDiff[x] -= impact
						} else {
							rowDiff[x] += impact
						}
					}
				} else {
					if row1[x] < tooSmall {
						impact := scaler2 * (tooSmall - row1[x])
						if diff < 0 {
							rowDiff[x] -= impact
						} else {
							rowDiff[x] += impact
						}
					} else if row1[x] > tooBig {
						impact := scaler2 * (row1[x] - tooBig)
						if diff < 0 {
							rowDiff[x] -= impact
						} else {
							rowDiff[x] += impact
						}
					}
				}
			}
		}
	})

	maltaAccumulate(pool, patterns, diffs, out)
}

// maltaAccumulate adds the Malta response of every pixel of diffs to out.
// Rows whose window lies fully inside the plane read cached row slices.
func maltaAccumulate(pool *workerpool.Pool, patterns *[16][]offset, diffs, out *Plane) {
	xsize, ysize := diffs.Width(), diffs.Height()
	parallelRows(pool, ysize, func(start, end int) {
		var rows [2*maltaRadius + 1][]float64
		for y := start; y < end; y++ {
			rowOut := out.Row(y)
			if y < maltaRadius || y+maltaRadius >= ysize || xsize <= 2*maltaRadius {
				for x := 0; x < xsize; x++ {
					rowOut[x] += maltaSum(patterns, diffs, x, y)
				}
				continue
			}
			for dy := -maltaRadius; dy <= maltaRadius; dy++ {
				rows[maltaRadius+dy] = diffs.Row(y + dy)
			}
			for x := 0; x < maltaRadius; x++ {
				rowOut[x] += maltaSum(patterns, diffs, x, y)
			}
			for x := maltaRadius; x < xsize-maltaRadius; x++ {
				rowOut[x] += maltaSumRows(patterns, &rows, x)
			}
			for x := xsize - maltaRadius; x < xsize; x++ {
				rowOut[x] += maltaSum(patterns, diffs, x, y)
			}
		}
	})
}

// MaltaDiffMap adds the Malta response of the weighted difference between
// lum0 and lum1 to out. w0gt1 weighs the symmetric term, w0lt1 the penalty
// for values of lum1 that fall outside [0.55, 1.05] times lum0.
func MaltaDiffMap(lum0, lum1 *Plane, w0gt1, w0lt1, norm1 float64, out *Plane) {
	maltaDiffMap(defaultPool(), lum0, lum1, w0gt1, w0lt1, norm1, false, out)
}

// MaltaDiffMapLF is MaltaDiffMap using the sparse patterns.
func MaltaDiffMapLF(lum0, lum1 *Plane, w0gt1, w0lt1, norm1 float64, out *Plane) {
	maltaDiffMap(defaultPool(), lum0, lum1, w0gt1, w0lt1, norm1, true, out)
}

package butteraugli

import (
	"math"

	"github.com/ajroetker/go-highway/hwy/contrib/vec"
)

const (
	kButteraugliGood float64 = 1.000
	kButteraugliBad  float64 = 1.088091
)

// GoodThreshold is the score at which differences start to be noticeable.
func GoodThreshold() float64 { return kButteraugliGood }

// BadThreshold is the score at which differences are clearly visible.
func BadThreshold() float64 { return kButteraugliBad }

// Score is the result of one comparison.
type Score struct {
	// Distance pools DiffMap with the configured norm.
	Distance float64
	// Norm is the p used for Distance; +Inf means the maximum.
	Norm float64
	// DiffMap holds the perceptual distance of every pixel.
	DiffMap *Plane
	// FuzzyClass is ButteraugliFuzzyClass(Distance).
	FuzzyClass float64

	good, bad float64
}

func newScore(diffmap *Plane, o options) *Score {
	var distance float64
	if math.IsInf(o.norm, 1) {
		distance = ButteraugliDistanceFromMap(diffmap)
	} else {
		distance = PNorm(diffmap, o.norm)
	}
	return &Score{
		Distance:   distance,
		Norm:       o.norm,
		DiffMap:    diffmap,
		FuzzyClass: ButteraugliFuzzyClass(distance),
		good:       o.goodThreshold,
		bad:        o.badThreshold,
	}
}

// Worst returns the coordinates of the largest diffmap value.
func (s *Score) Worst() (x, y int) {
	var best float64
	for yy := 0; yy < s.DiffMap.Height(); yy++ {
		row := s.DiffMap.Row(yy)
		ix := vec.Argmax(row)
		if row[ix] > best {
			best, x, y = row[ix], ix, yy
		}
	}
	return x, y
}

// HeatMap renders DiffMap with the thresholds the score was computed with.
func (s *Score) HeatMap() []uint8 {
	return CreateHeatMapImage(s.DiffMap, s.good, s.bad)
}

// ButteraugliDistanceFromMap returns the largest value of the diffmap.
func ButteraugliDistanceFromMap(distmap *Plane) float64 {
	var retval float64
	for y := 0; y < distmap.Height(); y++ {
		retval = max(retval, vec.Max(distmap.Row(y)))
	}
	return retval
}

// PNorm returns (mean(d^p))^(1/p) over the diffmap.
func PNorm(distmap *Plane, p float64) float64 {
	xsize, ysize := distmap.Width(), distmap.Height()
	var sum float64
	for y := 0; y < ysize; y++ {
		for _, d := range distmap.Row(y) {
			sum += math.Pow(d, p)
		}
	}
	return math.Pow(sum/float64(xsize*ysize), 1/p)
}

// Converts the butteraugli score into fuzzy class values that are continuous
// at the class boundary. The class boundary location is based on human
// raters, but the slope is arbitrary. Particularly, it does not reflect
// the expectation value of probabilities of the human raters. It is just
// expected that a smoother class boundary will allow for higher-level
// optimization algorithms to work faster.
//
// Returns 2.0 for a perfect match, and 1.0 for 'ok', 0.0 for bad. Because the
// scoring is fuzzy, a butteraugli score of 0.96 would return a class of
// around 1.9.
func ButteraugliFuzzyClass(score float64) float64 {
	const (
		fuzzy_width_up   float64 = 6.07887388532
		fuzzy_width_down float64 = 5.50793514384
		m0               float64 = 2.0
		scaler           float64 = 0.840253347958
	)
	var val float64
	if score < 1.0 {
		// val in [scaler .. 2.0]
		val = m0 / (1.0 + math.Exp((score-1.0)*fuzzy_width_down))
		val -= 1.0          // from [1 .. 2] to [0 .. 1]
		val *= 2.0 - scaler // from [0 .. 1] to [0 .. 2.0 - scaler]
		val += scaler       // from [0 .. 2.0 - scaler] to [scaler .. 2.0]
	} else {
		// val in [0 .. scaler]
		val = m0 / (1.0 + math.Exp((score-1.0)*fuzzy_width_up))
		val *= scaler
	}
	return val
}

// ButteraugliFuzzyInverse returns the score whose fuzzy class is seek. The
// class falls as the score grows, so the search bisects [0, 64].
func ButteraugliFuzzyInverse(seek float64) float64 {
	lo, hi := 0.0, 64.0
	for i := 0; i < 64; i++ {
		mid := 0.5 * (lo + hi)
		if ButteraugliFuzzyClass(mid) < seek {
			hi = mid
		} else {
			lo = mid
		}
	}
	return 0.5 * (lo + hi)
}

var heatmap = [12][3]float64{
	{0, 0, 0},
	{0, 0, 1},
	{0, 1, 1},
	{0, 1, 0}, // Good level
	{1, 1, 0},
	{1, 0, 0}, // Bad level
	{1, 0, 1},
	{0.5, 0.5, 1.0},
	{1.0, 0.5, 0.5}, // Pastel colors for the very bad quality range.
	{1.0, 1.0, 0.5},
	{1, 1, 1},
	{1, 1, 1},
}

// ScoreToRGB maps a per-pixel score onto the heat map colour ramp.
func ScoreToRGB(score, goodThreshold, badThreshold float64) [3]uint8 {
	if score < goodThreshold {
		score = (score / goodThreshold) * 0.3
	} else if score < badThreshold {
		score = 0.3 + (score-goodThreshold)/(badThreshold-goodThreshold)*0.15
	} else {
		score = 0.45 + (score-badThreshold)/(badThreshold*12)*0.5
	}
	// Degenerate thresholds give NaN.
	if !(score > 0) {
		score = 0
	}
	tableSize := float64(len(heatmap))
	score = min(score*(tableSize-1), tableSize-2)
	ix := int(score)
	mix := score - float64(ix)

	var rgb [3]uint8
	for i := range rgb {
		v := mix*heatmap[ix+1][i] + (1-mix)*heatmap[ix][i]
		rgb[i] = uint8(255*math.Pow(v, 0.5) + 0.5)
	}
	return rgb
}

// CreateHeatMapImage renders the diffmap as interleaved 8-bit RGB.
func CreateHeatMapImage(distmap *Plane, goodThreshold, badThreshold float64) []uint8 {
	xsize, ysize := distmap.Width(), distmap.Height()
	heat := make([]uint8, 0, 3*xsize*ysize)
	for y := 0; y < ysize; y++ {
		for _, d := range distmap.Row(y) {
			rgb := ScoreToRGB(d, goodThreshold, badThreshold)
			heat = append(heat, rgb[:]...)
		}
	}
	return heat
}

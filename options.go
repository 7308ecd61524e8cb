package butteraugli

import (
	"math"

	"github.com/ajroetker/go-highway/hwy/contrib/workerpool"
)

// Option configures a Comparator.
//
// Example:
//
//	c, err := butteraugli.NewComparator(ref,
//	    butteraugli.WithHFAsymmetry(1.5),
//	    butteraugli.WithNorm(3),
//	)
type Option func(*options)

type options struct {
	hfAsymmetry   float64
	norm          float64
	workers       int
	pool          *workerpool.Pool
	goodThreshold float64
	badThreshold  float64
}

func defaultOptions() options {
	return options{
		hfAsymmetry:   1.0,
		norm:          math.Inf(1),
		goodThreshold: kButteraugliGood,
		badThreshold:  kButteraugliBad,
	}
}

func newOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithHFAsymmetry weights high frequency artefacts that appear in the
// distorted image by a against those removed from it by 1/a. Values <= 0
// are ignored.
func WithHFAsymmetry(a float64) Option {
	return func(o *options) {
		if a > 0 {
			o.hfAsymmetry = a
		}
	}
}

// WithNorm selects the norm used to pool the diffmap into Score.Distance.
// +Inf (the default) takes the maximum. Values < 1 are ignored.
func WithNorm(p float64) Option {
	return func(o *options) {
		if p >= 1 {
			o.norm = p
		}
	}
}

// WithWorkers runs row-parallel stages on a pool of n workers owned by the
// comparator; Close releases it. n == 1 runs everything on the calling
// goroutine.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
		o.pool = nil
	}
}

// WithPool shares an existing pool. The caller keeps ownership.
func WithPool(p *workerpool.Pool) Option {
	return func(o *options) {
		o.pool = p
		o.workers = 0
	}
}

// WithThresholds sets the good and bad levels used by Score.HeatMap.
func WithThresholds(good, bad float64) Option {
	return func(o *options) {
		if good > 0 && bad > good {
			o.goodThreshold = good
			o.badThreshold = bad
		}
	}
}

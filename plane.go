package butteraugli

import (
	hwyimage "github.com/ajroetker/go-highway/hwy/contrib/image"
)

// Plane is one channel of float64 samples. Rows are padded to the SIMD lane
// width of the running CPU; the padding is never read.
//
// Planes are created by each pipeline stage and handed forward. A stage never
// writes into a plane it received.
type Plane struct {
	img *hwyimage.Image[float64]
}

// NewPlane returns a zeroed xsize x ysize plane.
func NewPlane(xsize, ysize int) *Plane {
	return &Plane{img: hwyimage.NewImage[float64](xsize, ysize)}
}

// NewPlaneFromData copies row-major samples (len xsize*ysize) into a new plane.
func NewPlaneFromData(xsize, ysize int, data []float64) *Plane {
	p := NewPlane(xsize, ysize)
	for y := 0; y < ysize; y++ {
		copy(p.Row(y), data[y*xsize:(y+1)*xsize])
	}
	return p
}

func (p *Plane) Width() int  { return p.img.Width() }
func (p *Plane) Height() int { return p.img.Height() }

// Stride is the number of samples between the starts of two rows.
func (p *Plane) Stride() int { return p.img.Stride() }

// Row returns row y limited to the plane width. Writes go to the plane.
func (p *Plane) Row(y int) []float64 {
	return p.img.RowSlice(y)
}

// At returns the sample at (x, y), or 0 when (x, y) lies outside the plane.
func (p *Plane) At(x, y int) float64 {
	return p.img.At(x, y)
}

func (p *Plane) Set(x, y int, v float64) {
	p.img.Set(x, y, v)
}

func (p *Plane) Fill(v float64) {
	p.img.Fill(v)
}

func (p *Plane) Clone() *Plane {
	return &Plane{img: p.img.Clone()}
}

func (p *Plane) SameSize(o *Plane) bool {
	return hwyimage.SameSize(p.img, o.img)
}

// Data returns the samples in row-major order without row padding.
func (p *Plane) Data() []float64 {
	xsize, ysize := p.Width(), p.Height()
	out := make([]float64, 0, xsize*ysize)
	for y := 0; y < ysize; y++ {
		out = append(out, p.Row(y)...)
	}
	return out
}

// Image3 holds three same-sized planes: linear R, G, B on input, X, Y, B
// after the opsin transform.
type Image3 [3]*Plane

// NewImage3 returns three zeroed planes.
func NewImage3(xsize, ysize int) Image3 {
	return Image3{
		NewPlane(xsize, ysize),
		NewPlane(xsize, ysize),
		NewPlane(xsize, ysize),
	}
}

func (im Image3) Width() int  { return im[0].Width() }
func (im Image3) Height() int { return im[0].Height() }

func (im Image3) sameSize(o Image3) bool {
	return im[0].SameSize(o[0])
}

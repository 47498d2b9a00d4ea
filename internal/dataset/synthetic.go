package dataset

import (
	"fmt"
	"image"
	"image/color"
	"math/rand"
)

// Synthetic generates colored-square images whose class is encoded by hue
// and quadrant, so a small network can separate them quickly.
type Synthetic struct {
	classes []string
	size    int
	seeds   []int64
	labels  []int
}

// NewSynthetic returns n deterministic samples of size×size pixels spread
// round-robin over classes.
func NewSynthetic(n, size int, classes []string, seed int64) (*Synthetic, error) {
	if n <= 0 || size <= 0 {
		return nil, fmt.Errorf("synthetic dataset needs positive count and size")
	}
	if len(classes) < 2 {
		return nil, fmt.Errorf("synthetic dataset needs at least 2 classes")
	}
	rng := rand.New(rand.NewSource(seed))
	s := &Synthetic{classes: append([]string(nil), classes...), size: size}
	for i := 0; i < n; i++ {
		s.labels = append(s.labels, i%len(classes))
		s.seeds = append(s.seeds, rng.Int63())
	}
	return s, nil
}

func (s *Synthetic) Len() int          { return len(s.labels) }
func (s *Synthetic) Classes() []string { return append([]string(nil), s.classes...) }
func (s *Synthetic) Label(i int) int   { return s.labels[i] }

// Image renders sample i. The same index always yields the same pixels.
func (s *Synthetic) Image(i int) (image.Image, error) {
	if i < 0 || i >= s.Len() {
		return nil, fmt.Errorf("index %d out of range [0,%d)", i, s.Len())
	}
	rng := rand.New(rand.NewSource(s.seeds[i]))
	label := s.labels[i]
	k := len(s.classes)
	fg := hueColor(float64(label) / float64(k))
	img := image.NewNRGBA(image.Rect(0, 0, s.size, s.size))
	half := s.size / 2
	ox, oy := (label%2)*half, ((label/2)%2)*half
	for y := 0; y < s.size; y++ {
		for x := 0; x < s.size; x++ {
			c := color.NRGBA{A: 0xff}
			if x >= ox && x < ox+half && y >= oy && y < oy+half {
				c.R, c.G, c.B = fg.R, fg.G, fg.B
			}
			n := uint8(rng.Intn(24))
			c.R, c.G, c.B = sat(c.R, n), sat(c.G, n), sat(c.B, n)
			img.SetNRGBA(x, y, c)
		}
	}
	return img, nil
}

func sat(v, n uint8) uint8 {
	if int(v)+int(n) > 0xff {
		return 0xff
	}
	return v + n
}

// hueColor maps h in [0,1) onto a fully saturated color.
func hueColor(h float64) color.NRGBA {
	h6 := h * 6
	x := uint8((1 - abs(mod2(h6)-1)) * 0xff)
	switch int(h6) {
	case 0:
		return color.NRGBA{0xff, x, 0, 0xff}
	case 1:
		return color.NRGBA{x, 0xff, 0, 0xff}
	case 2:
		return color.NRGBA{0, 0xff, x, 0xff}
	case 3:
		return color.NRGBA{0, x, 0xff, 0xff}
	case 4:
		return color.NRGBA{x, 0, 0xff, 0xff}
	default:
		return color.NRGBA{0xff, 0, x, 0xff}
	}
}

func mod2(v float64) float64 {
	for v >= 2 {
		v -= 2
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

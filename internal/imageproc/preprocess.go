package imageproc

import (
	"image"
	"image/color"

	"github.com/nfnt/resize"
)

// Channels is the number of color channels fed to the network.
const Channels = 3

// Pipeline is the deterministic preprocessing applied before inference:
// RGB conversion, resize to Size×Size, scale to [0,1], CHW layout.
type Pipeline struct {
	Size   int
	Interp resize.InterpolationFunction
}

// NewPipeline returns a bilinear pipeline producing size×size inputs.
func NewPipeline(size int) *Pipeline {
	return &Pipeline{Size: size, Interp: resize.Bilinear}
}

// Shape is the (channels, height, width) of Apply's output.
func (p *Pipeline) Shape() [3]int { return [3]int{Channels, p.Size, p.Size} }

// Len is the number of values Apply returns.
func (p *Pipeline) Len() int { return Channels * p.Size * p.Size }

// Apply converts img into a CHW float32 tensor with values in [0,1].
func (p *Pipeline) Apply(img image.Image) []float32 {
	rgb := ToRGB(img)
	resized := resize.Resize(uint(p.Size), uint(p.Size), rgb, p.Interp)
	b := resized.Bounds()
	plane := p.Size * p.Size
	out := make([]float32, Channels*plane)
	for y := 0; y < p.Size; y++ {
		for x := 0; x < p.Size; x++ {
			r, g, bl, _ := resized.At(b.Min.X+x, b.Min.Y+y).RGBA()
			i := y*p.Size + x
			out[i] = float32(r) / 0xffff
			out[plane+i] = float32(g) / 0xffff
			out[2*plane+i] = float32(bl) / 0xffff
		}
	}
	return out
}

// ToRGB drops alpha and returns an opaque copy of img with its origin at (0,0).
// Color channels keep their straight (non-premultiplied) values.
func ToRGB(img image.Image) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			c.A = 0xff
			dst.SetNRGBA(x, y, c)
		}
	}
	return dst
}

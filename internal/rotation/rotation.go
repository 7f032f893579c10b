package rotation

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// #region provider

// Provider renders an image file at a set of clockwise rotation angles.
type Provider interface {
	Load(ctx context.Context, path string, angles []float64) (map[float64]image.Image, error)
}

// FileProvider decodes PNG, JPEG and GIF files from disk.
type FileProvider struct{}

// Load decodes path once and renders one variant per distinct angle.
func (FileProvider) Load(ctx context.Context, path string, angles []float64) (map[float64]image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image %s: %w", path, err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", path, err)
	}

	out := make(map[float64]image.Image, len(angles))
	for _, a := range angles {
		if _, ok := out[a]; ok {
			continue
		}
		out[a] = Rotate(src, a)
	}
	return out, nil
}

// #endregion provider

// #region rotate

// Rotate returns img turned clockwise by degrees. Multiples of 90 are exact
// pixel remaps; other angles are resampled bilinearly onto a white canvas
// large enough to hold the rotated bounds.
func Rotate(img image.Image, degrees float64) image.Image {
	d := math.Mod(degrees, 360)
	if d < 0 {
		d += 360
	}
	switch d {
	case 0:
		return img
	case 90, 180, 270:
		return rotateRightAngle(img, int(d))
	}
	return rotateArbitrary(img, d)
}

func rotateRightAngle(img image.Image, d int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	var dst *image.NRGBA
	if d == 180 {
		dst = image.NewNRGBA(image.Rect(0, 0, w, h))
	} else {
		dst = image.NewNRGBA(image.Rect(0, 0, h, w))
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := img.At(b.Min.X+x, b.Min.Y+y)
			switch d {
			case 90:
				dst.Set(h-1-y, x, c)
			case 180:
				dst.Set(w-1-x, h-1-y, c)
			case 270:
				dst.Set(y, w-1-x, c)
			}
		}
	}
	return dst
}

func rotateArbitrary(img image.Image, degrees float64) image.Image {
	b := img.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	rad := degrees * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)

	dw := int(math.Ceil(math.Abs(w*cos) + math.Abs(h*sin)))
	dh := int(math.Ceil(math.Abs(w*sin) + math.Abs(h*cos)))
	dst := image.NewNRGBA(image.Rect(0, 0, dw, dh))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	// Map source centre onto destination centre; y grows downward so this
	// matrix turns clockwise on screen.
	cx, cy := float64(b.Min.X)+w/2, float64(b.Min.Y)+h/2
	dcx, dcy := float64(dw)/2, float64(dh)/2
	s2d := f64.Aff3{
		cos, -sin, dcx - cos*cx + sin*cy,
		sin, cos, dcy - sin*cx - cos*cy,
	}
	xdraw.BiLinear.Transform(dst, s2d, img, b, xdraw.Over, nil)
	return dst
}

// #endregion rotate

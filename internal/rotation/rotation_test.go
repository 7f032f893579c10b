package rotation

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	red   = color.NRGBA{R: 255, A: 255}
	green = color.NRGBA{G: 255, A: 255}
	blue  = color.NRGBA{B: 255, A: 255}
)

// 3x1 strip: red, green, blue from left to right.
func strip() image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 1))
	img.Set(0, 0, red)
	img.Set(1, 0, green)
	img.Set(2, 0, blue)
	return img
}

func nrgba(img image.Image, x, y int) color.NRGBA {
	return color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
}

func TestRotate_Zero(t *testing.T) {
	src := strip()
	assert.Same(t, src, Rotate(src, 0))
	assert.Same(t, src, Rotate(src, 360))
}

func TestRotate_Clockwise90(t *testing.T) {
	got := Rotate(strip(), 90)
	require.Equal(t, image.Rect(0, 0, 1, 3), got.Bounds())
	// Left end of the strip ends up on top.
	assert.Equal(t, red, nrgba(got, 0, 0))
	assert.Equal(t, green, nrgba(got, 0, 1))
	assert.Equal(t, blue, nrgba(got, 0, 2))
}

func TestRotate_180(t *testing.T) {
	got := Rotate(strip(), 180)
	require.Equal(t, image.Rect(0, 0, 3, 1), got.Bounds())
	assert.Equal(t, blue, nrgba(got, 0, 0))
	assert.Equal(t, red, nrgba(got, 2, 0))
}

func TestRotate_270MatchesNegative90(t *testing.T) {
	a := Rotate(strip(), 270)
	b := Rotate(strip(), -90)
	require.Equal(t, image.Rect(0, 0, 1, 3), a.Bounds())
	assert.Equal(t, blue, nrgba(a, 0, 0))
	assert.Equal(t, red, nrgba(a, 0, 2))
	assert.Equal(t, a, b)
}

func TestRotate_ArbitraryGrowsCanvas(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 20, 10))
	got := Rotate(src, 45)
	b := got.Bounds()
	assert.Greater(t, b.Dx(), 20)
	assert.Greater(t, b.Dy(), 10)
	// Corners fall outside the rotated source and keep the white canvas.
	assert.Equal(t, color.NRGBA{255, 255, 255, 255}, nrgba(got, 0, 0))
}

func TestFileProvider_LoadDistinctAngles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strip.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, strip()))
	require.NoError(t, f.Close())

	got, err := FileProvider{}.Load(context.Background(), path, []float64{0, 90, 90, 180})
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, image.Rect(0, 0, 1, 3), got[90].Bounds())
}

func TestFileProvider_MissingFile(t *testing.T) {
	_, err := FileProvider{}.Load(context.Background(), filepath.Join(t.TempDir(), "none.png"), []float64{0})
	assert.Error(t, err)
}

func TestFileProvider_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := FileProvider{}.Load(ctx, "ignored.png", []float64{0})
	assert.ErrorIs(t, err, context.Canceled)
}

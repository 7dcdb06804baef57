package fingerprint

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"
)

func gradientImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8((x * 255) / w)
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func splitImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{A: 255}
			if x >= w/2 {
				c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func TestComputeSelfMatch(t *testing.T) {
	img := gradientImage(600, 200)
	a := Compute(img)
	b := Compute(img)

	require.Equal(t, Size*Size, a.BitLen())
	require.Equal(t, 0, Distance(a, b))
	require.True(t, IsMatch(a, b, DefaultTolerance))
}

func TestComputeScaleInvariance(t *testing.T) {
	// The same banner rendered at different resolutions must still match:
	// normalization removes scale sensitivity up to resampling noise.
	a := Compute(splitImage(1500, 500))
	b := Compute(splitImage(750, 250))

	require.True(t, IsMatch(a, b, DefaultTolerance))
}

func TestToleranceBoundary(t *testing.T) {
	const n = 800 // bits
	zeros := make([]byte, n/8)
	a := Fingerprint{bits: zeros, n: n}

	flip := func(k int) Fingerprint {
		b := make([]byte, n/8)
		for i := 0; i < k; i++ {
			b[i/8] |= 1 << (7 - uint(i%8))
		}
		return Fingerprint{bits: b, n: n}
	}

	threshold := int(float64(n) * DefaultTolerance) // 80

	within := flip(threshold)
	require.Equal(t, threshold, Distance(a, within))
	require.True(t, IsMatch(a, within, DefaultTolerance))

	beyond := flip(threshold + 1)
	require.Equal(t, threshold+1, Distance(a, beyond))
	require.False(t, IsMatch(a, beyond, DefaultTolerance))
}

func TestDistanceLengthMismatch(t *testing.T) {
	a := Fingerprint{bits: make([]byte, 100), n: 800}
	b := Fingerprint{bits: make([]byte, 50), n: 400}

	require.Equal(t, 800, Distance(a, b))
	require.False(t, IsMatch(a, b, DefaultTolerance))
}

func TestFromBytesRoundTrip(t *testing.T) {
	orig := Compute(gradientImage(300, 300))

	restored, err := FromBytes(orig.Bytes())
	require.NoError(t, err)
	require.Equal(t, orig.BitLen(), restored.BitLen())
	require.Equal(t, 0, Distance(orig, restored))

	_, err = FromBytes(nil)
	require.Error(t, err)
}

func TestCropTop(t *testing.T) {
	img := gradientImage(100, 200)
	top := CropTop(img, 0.20)

	require.Equal(t, 100, top.Bounds().Dx())
	require.Equal(t, 40, top.Bounds().Dy())
}

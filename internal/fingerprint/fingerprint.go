// Package fingerprint computes coarse perceptual fingerprints of banner
// images and compares them by Hamming distance. The signal is deliberately
// tolerant of compression and re-rendering noise: images are normalized to a
// fixed small square and thresholded against their own mean luminance, one
// bit per pixel. It is not robust to cropping or rotation.
package fingerprint

import (
	"encoding/hex"
	"fmt"
	"image"
	"math/bits"

	xdraw "golang.org/x/image/draw"
)

const (
	// Size is the normalized square edge in pixels.
	Size = 300
	// DefaultTolerance is the fraction of bits allowed to differ for a match.
	DefaultTolerance = 0.10
)

// Fingerprint is a packed bitstring, one bit per normalized pixel.
type Fingerprint struct {
	bits []byte
	n    int
}

// BitLen returns the number of bits in the fingerprint.
func (f Fingerprint) BitLen() int { return f.n }

// IsZero reports whether the fingerprint is empty.
func (f Fingerprint) IsZero() bool { return f.n == 0 }

// Bytes returns the packed bit representation for persistence.
func (f Fingerprint) Bytes() []byte { return f.bits }

// String returns the hex encoding of the packed bits.
func (f Fingerprint) String() string { return hex.EncodeToString(f.bits) }

// FromBytes reconstructs a fingerprint from its packed representation.
// The bit length is derived from the byte length; Compute always emits
// Size*Size bits, which is byte-aligned.
func FromBytes(b []byte) (Fingerprint, error) {
	if len(b) == 0 {
		return Fingerprint{}, fmt.Errorf("empty fingerprint")
	}
	return Fingerprint{bits: b, n: len(b) * 8}, nil
}

// Compute fingerprints an image: resize to Size x Size, convert to
// luminance, then emit 1 for every pixel brighter than the global mean.
func Compute(img image.Image) Fingerprint {
	lum := luminance(img)

	var sum uint64
	for _, v := range lum {
		sum += uint64(v)
	}
	mean := uint8(sum / uint64(len(lum)))

	packed := make([]byte, (len(lum)+7)/8)
	for i, v := range lum {
		if v > mean {
			packed[i/8] |= 1 << (7 - uint(i%8))
		}
	}
	return Fingerprint{bits: packed, n: len(lum)}
}

// Distance returns the Hamming distance between two fingerprints. Differing
// bit lengths should not happen given fixed normalization; they are treated
// as maximal dissimilarity (the longer length) as a fail-safe.
func Distance(a, b Fingerprint) int {
	if a.n != b.n {
		if a.n > b.n {
			return a.n
		}
		return b.n
	}
	d := 0
	for i := range a.bits {
		d += bits.OnesCount8(a.bits[i] ^ b.bits[i])
	}
	return d
}

// IsMatch reports whether two fingerprints differ in at most
// floor(bitLen * tolerance) positions.
func IsMatch(a, b Fingerprint, tolerance float64) bool {
	threshold := int(float64(a.n) * tolerance)
	return Distance(a, b) <= threshold
}

// CropTop returns the top fraction of an image, the region where profile
// banner content is conventionally rendered.
func CropTop(img image.Image, fraction float64) image.Image {
	b := img.Bounds()
	h := int(float64(b.Dy()) * fraction)
	if h < 1 {
		h = 1
	}
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), h))
	xdraw.Draw(out, out.Bounds(), img, b.Min, xdraw.Src)
	return out
}

// luminance resizes the image to Size x Size and returns per-pixel
// luminance values in row-major order.
func luminance(img image.Image) []uint8 {
	scaled := image.NewRGBA(image.Rect(0, 0, Size, Size))
	xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), img, img.Bounds(), xdraw.Src, nil)

	out := make([]uint8, Size*Size)
	for y := 0; y < Size; y++ {
		for x := 0; x < Size; x++ {
			r, g, b, _ := scaled.At(x, y).RGBA()
			// ITU-R BT.601 luma, 16-bit channels scaled back to 8 bits.
			l := (299*r + 587*g + 114*b) / 1000
			out[y*Size+x] = uint8(l >> 8)
		}
	}
	return out
}

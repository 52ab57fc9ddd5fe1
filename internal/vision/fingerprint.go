package vision

import (
	"errors"
	"fmt"
	"image"
	"math/bits"
	"strconv"

	"github.com/corona10/goimagehash"
)

var errNilImage = errors.New("vision: nil image")

// Fingerprint computes the 64-bit average perceptual hash of an image,
// encoded as a fixed-width lowercase hex string. Visually similar images
// produce hashes with a small Hamming distance.
func Fingerprint(img image.Image) (string, error) {
	if img == nil {
		return "", errNilImage
	}
	h, err := goimagehash.AverageHash(img)
	if err != nil {
		return "", fmt.Errorf("average hash: %w", err)
	}
	return fmt.Sprintf("%016x", h.GetHash()), nil
}

// HammingDistance returns the number of differing bits between two hex-encoded
// fingerprints produced by Fingerprint.
func HammingDistance(a, b string) (int, error) {
	pa, err := strconv.ParseUint(a, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse fingerprint %q: %w", a, err)
	}
	pb, err := strconv.ParseUint(b, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse fingerprint %q: %w", b, err)
	}
	return bits.OnesCount64(pa ^ pb), nil
}

package modq

import (
	"context"
	"image"
	"sort"
)

// TextSpan is one OCR-recognized text run, in card-local space.
type TextSpan struct {
	Text       string
	Box        image.Rectangle
	Confidence float64
}

// Center returns the center of the span's bounding box.
func (s TextSpan) Center() CardPoint {
	return CardPoint{
		X: (s.Box.Min.X + s.Box.Max.X) / 2,
		Y: (s.Box.Min.Y + s.Box.Max.Y) / 2,
	}
}

// SortSpans orders spans by vertical center, approximating reading order.
func SortSpans(spans []TextSpan) {
	sort.SliceStable(spans, func(i, j int) bool {
		return spans[i].Center().Y < spans[j].Center().Y
	})
}

// Recognizer runs OCR over a card crop. Implementations are expected to be
// slow (seconds per card); the scanner only calls it when the fingerprint
// matcher cannot resolve the card.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image) ([]TextSpan, error)
}

package testutil

import (
	"fmt"
	"image"
	"sync"

	"modq-go/internal/modq"
)

// FakeVision serves pre-segmented cards and queued fingerprints, bypassing
// pixel analysis entirely. Fingerprints are consumed in Segment card order,
// which matches the scanner's call order.
type FakeVision struct {
	mu sync.Mutex

	// Cards is returned by Segment as-is.
	Cards      []modq.Card
	SegmentErr error

	// Fingerprints are returned by Fingerprint in call order; when the queue
	// runs dry every further call fails.
	Fingerprints []string

	// Modal, when set, is returned by ExtractModal with ok=true.
	Modal image.Image

	MarkedClicks []modq.ViewportPoint
}

var _ modq.Vision = (*FakeVision)(nil)

func (v *FakeVision) Segment(page image.Image) ([]modq.Card, error) {
	if v.SegmentErr != nil {
		return nil, v.SegmentErr
	}
	return v.Cards, nil
}

func (v *FakeVision) Fingerprint(img image.Image) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.Fingerprints) == 0 {
		return "", fmt.Errorf("fake vision: no more queued fingerprints")
	}
	fp := v.Fingerprints[0]
	v.Fingerprints = v.Fingerprints[1:]
	return fp, nil
}

func (v *FakeVision) TrimToText(img image.Image, spans []modq.TextSpan, exclude func(modq.TextSpan) bool) image.Image {
	return img
}

func (v *FakeVision) ExtractModal(viewport image.Image) (image.Image, bool) {
	if v.Modal != nil {
		return v.Modal, true
	}
	return nil, false
}

func (v *FakeVision) MarkClick(img image.Image, p modq.ViewportPoint) image.Image {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.MarkedClicks = append(v.MarkedClicks, p)
	return img
}

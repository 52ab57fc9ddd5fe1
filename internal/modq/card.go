package modq

import (
	"fmt"
	"image"
)

// Card is one segmented rectangular region of a page render, holding a single
// moderation-queue item. Cards live for one scan pass only; identity persists
// through the decision store, never through Card values.
type Card struct {
	// Index is the zero-based position within the current scan, top to bottom.
	Index int

	// StartY and EndY bound the card vertically in page space.
	StartY int
	EndY   int

	// Image is the card crop, in card-local space.
	Image image.Image

	// CropKey is set once the crop has been archived, empty before that.
	CropKey string
}

// Width returns the card crop width in pixels.
func (c Card) Width() int {
	if c.Image == nil {
		return 0
	}
	return c.Image.Bounds().Dx()
}

// Height returns the card span height in pixels.
func (c Card) Height() int { return c.EndY - c.StartY }

// Validate checks the card's geometric invariants. Everything downstream
// (fingerprinting, OCR, button fallbacks) reads the crop, so a nil image is
// rejected here too.
func (c Card) Validate(minHeight int) error {
	if c.Image == nil {
		return fmt.Errorf("card %d: nil crop image", c.Index)
	}
	if c.EndY <= c.StartY {
		return fmt.Errorf("card %d: end %d not below start %d", c.Index, c.EndY, c.StartY)
	}
	if c.Height() < minHeight {
		return fmt.Errorf("card %d: height %d below minimum %d", c.Index, c.Height(), minHeight)
	}
	return nil
}

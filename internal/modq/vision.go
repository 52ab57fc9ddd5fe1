package modq

import "image"

// Vision bundles the pixel-level capabilities the scanner needs. The
// production implementation lives in internal/vision; tests substitute
// deterministic fakes or drive the real one with synthetic images.
type Vision interface {
	// Segment splits a full-page render into cards, ordered top to bottom in
	// page space. A page with no recognizable cards yields an empty slice,
	// not an error.
	Segment(page image.Image) ([]Card, error)

	// Fingerprint computes the perceptual hash of a card crop, formatted as
	// 16 hex digits.
	Fingerprint(img image.Image) (string, error)

	// TrimToText crops a card image to the union of its text boxes plus
	// padding, skipping spans for which exclude returns true. Returns the
	// input image unchanged when no boxes qualify.
	TrimToText(img image.Image, spans []TextSpan, exclude func(TextSpan) bool) image.Image

	// ExtractModal locates the centered modal rectangle in a viewport
	// screenshot and returns its crop. ok is false when no plausible modal
	// was found.
	ExtractModal(viewport image.Image) (modal image.Image, ok bool)

	// MarkClick returns a copy of img with a cross-and-circle marker drawn at
	// the given viewport point, for click diagnostics.
	MarkClick(img image.Image, p ViewportPoint) image.Image
}

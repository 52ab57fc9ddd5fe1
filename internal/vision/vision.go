// Package vision implements page segmentation, perceptual fingerprinting and
// the image crops used by the request scanner. All heuristics target the
// desktop light theme of the moderated page.
package vision

import (
	"image"

	"modq-go/internal/modq"
)

// Pipeline bundles the image operations behind a single value satisfying
// modq.Vision.
type Pipeline struct {
	seg *Segmenter
}

var _ modq.Vision = (*Pipeline)(nil)

func NewPipeline(cfg Config) *Pipeline {
	return &Pipeline{seg: NewSegmenter(cfg)}
}

func (p *Pipeline) Segment(page image.Image) ([]modq.Card, error) {
	return p.seg.Segment(page)
}

func (p *Pipeline) Fingerprint(img image.Image) (string, error) {
	return Fingerprint(img)
}

func (p *Pipeline) TrimToText(img image.Image, spans []modq.TextSpan, exclude func(modq.TextSpan) bool) image.Image {
	return TrimToText(img, spans, exclude)
}

func (p *Pipeline) ExtractModal(viewport image.Image) (image.Image, bool) {
	return ExtractModal(viewport)
}

func (p *Pipeline) MarkClick(img image.Image, pt modq.ViewportPoint) image.Image {
	return MarkClick(img, pt)
}

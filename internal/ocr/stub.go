package ocr

import (
	"context"
	"fmt"
	"image"

	"modq-go/internal/modq"
)

// StubRecognizer recognizes nothing. It lets the rest of the pipeline run on
// hosts without a Tesseract install: every card falls through extraction as
// "no identity text" instead of failing the pass.
type StubRecognizer struct{}

var _ modq.Recognizer = StubRecognizer{}

func NewStubRecognizer() StubRecognizer { return StubRecognizer{} }

func (StubRecognizer) Recognize(ctx context.Context, img image.Image) ([]modq.TextSpan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if img == nil {
		return nil, fmt.Errorf("ocr: nil image")
	}
	return nil, nil
}

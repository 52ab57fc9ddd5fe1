// Package ocr provides text recognition backends for card images.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"modq-go/internal/modq"
)

// TesseractRecognizer runs OCR through a shared Tesseract client. The client
// is not safe for concurrent use, so calls are serialized.
type TesseractRecognizer struct {
	mu            sync.Mutex
	client        *gosseract.Client
	minConfidence float64
}

var _ modq.Recognizer = (*TesseractRecognizer)(nil)

// NewTesseractRecognizer creates a recognizer for the given languages
// ("ita+eng" style list). Lines below minConfidence are dropped; OCR noise at
// very low confidence tends to be fragments of icons, not text.
func NewTesseractRecognizer(languages string, minConfidence float64) (*TesseractRecognizer, error) {
	client := gosseract.NewClient()
	if languages != "" {
		if err := client.SetLanguage(strings.Split(languages, "+")...); err != nil {
			client.Close()
			return nil, fmt.Errorf("setting OCR languages: %w", err)
		}
	}
	return &TesseractRecognizer{client: client, minConfidence: minConfidence}, nil
}

// Recognize runs line-level OCR over the image and returns one span per
// recognized text line, with boxes in the image's own coordinate space.
func (r *TesseractRecognizer) Recognize(ctx context.Context, img image.Image) ([]modq.TextSpan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if img == nil {
		return nil, fmt.Errorf("ocr: nil image")
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding image for OCR: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("loading image into OCR engine: %w", err)
	}
	boxes, err := r.client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("running OCR: %w", err)
	}

	var spans []modq.TextSpan
	for _, box := range boxes {
		text := strings.TrimSpace(box.Word)
		if text == "" {
			continue
		}
		if box.Confidence < r.minConfidence {
			continue
		}
		spans = append(spans, modq.TextSpan{
			Text:       text,
			Box:        box.Box,
			Confidence: box.Confidence,
		})
	}
	return spans, nil
}

// Close releases the Tesseract client.
func (r *TesseractRecognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.client.Close()
}

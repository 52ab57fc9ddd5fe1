package ocr

import (
	"fmt"

	"modq-go/internal/config"
	"modq-go/internal/modq"
)

// NewRecognizerFromConfig creates a Recognizer implementation based on the
// OCR config type.
func NewRecognizerFromConfig(cfg config.OCRConfig) (modq.Recognizer, error) {
	switch cfg.Type {
	case "", "tesseract":
		languages := cfg.Languages
		if languages == "" {
			languages = "ita+eng"
		}
		return NewTesseractRecognizer(languages, cfg.MinConfidence)
	case "stub":
		return NewStubRecognizer(), nil
	default:
		return nil, fmt.Errorf("unknown ocr type: %s", cfg.Type)
	}
}

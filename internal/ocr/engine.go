package ocr

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/otiai10/gosseract/v2"
)

// Engine is the character-recognition capability consumed by the Extractor.
// Recognize returns the extracted text plus the per-token confidence values
// reported by the engine; tokens the engine has no confidence for are
// omitted from the slice.
type Engine interface {
	Recognize(img image.Image) (text string, confidences []float64, err error)
	Close() error
}

// TesseractEngine recognizes text with Tesseract via gosseract. A fresh
// client is created per call; gosseract clients are not safe to share across
// images with different dimensions.
type TesseractEngine struct {
	language string
}

// NewTesseractEngine returns an engine recognizing the given language
// (Tesseract code, e.g. "eng" or "eng+fra").
func NewTesseractEngine(language string) *TesseractEngine {
	if language == "" {
		language = "eng"
	}
	return &TesseractEngine{language: language}
}

func (t *TesseractEngine) Recognize(img image.Image) (string, []float64, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", nil, fmt.Errorf("encode image for ocr: %w", err)
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.language); err != nil {
		return "", nil, fmt.Errorf("set ocr language %q: %w", t.language, err)
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", nil, fmt.Errorf("set ocr image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", nil, fmt.Errorf("ocr text extraction: %w", err)
	}

	// Word-level boxes carry per-token confidence; boxes for non-text
	// regions come back non-positive and are dropped here.
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return "", nil, fmt.Errorf("ocr confidence extraction: %w", err)
	}
	confidences := make([]float64, 0, len(boxes))
	for _, b := range boxes {
		if b.Confidence > 0 {
			confidences = append(confidences, b.Confidence)
		}
	}

	return text, confidences, nil
}

// Close is a no-op; clients are per-call.
func (t *TesseractEngine) Close() error { return nil }

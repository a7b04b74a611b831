//go:build tesseract

package ocr

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/otiai10/gosseract/v2"
)

// TesseractRecognizer runs the local Tesseract engine. A gosseract client is
// not safe for concurrent use, so calls are serialized.
type TesseractRecognizer struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// NewTesseractRecognizer creates a local recognizer. lang defaults to "eng".
func NewTesseractRecognizer(lang string) (*TesseractRecognizer, error) {
	const op = "NewTesseractRecognizer"

	if lang == "" {
		lang = "eng"
	}
	client := gosseract.NewClient()
	if err := client.SetLanguage(lang); err != nil {
		client.Close()
		return nil, WrapOCRError(op, err, "failed to set language")
	}
	if err := client.SetPageSegMode(gosseract.PSM_SPARSE_TEXT); err != nil {
		client.Close()
		return nil, WrapOCRError(op, err, "failed to set page segmentation mode")
	}
	return &TesseractRecognizer{client: client}, nil
}

// Recognize performs OCR on one page image.
func (t *TesseractRecognizer) Recognize(ctx context.Context, img []byte) (*Result, error) {
	const op = "Recognize"
	startTime := time.Now()

	width, height, _, err := checkImage(op, img)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, WrapOCRError(op, err, "canceled before recognition")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.client.SetImageFromBytes(img); err != nil {
		return nil, WrapOCRError(op, ErrInvalidImage, err.Error())
	}
	text, err := t.client.Text()
	if err != nil {
		return nil, WrapOCRError(op, ErrOCRFailed, err.Error())
	}
	if strings.TrimSpace(text) == "" {
		return nil, WrapOCRError(op, ErrEmptyDocument, "")
	}

	result := &Result{Text: strings.TrimSpace(text), Provider: ProviderTesseract}
	boxes, err := t.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err == nil {
		var sum float64
		for _, b := range boxes {
			if strings.TrimSpace(b.Word) == "" {
				continue
			}
			result.Words = append(result.Words, Word{
				Text:       b.Word,
				Confidence: b.Confidence / 100,
				Region: pixelRegion(float64(b.Box.Min.X), float64(b.Box.Min.Y),
					float64(b.Box.Max.X), float64(b.Box.Max.Y), float64(width), float64(height)),
			})
			sum += b.Confidence / 100
		}
		if len(result.Words) > 0 {
			result.Confidence = sum / float64(len(result.Words))
		}
	}

	result.ProcessedAt = time.Now()
	result.ProcessingDuration = result.ProcessedAt.Sub(startTime)
	return result, nil
}

// Close releases the Tesseract client.
func (t *TesseractRecognizer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client != nil {
		return t.client.Close()
	}
	return nil
}

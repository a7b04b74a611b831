//go:build !tesseract

package ocr

import "context"

// TesseractRecognizer is unavailable without the "tesseract" build tag.
type TesseractRecognizer struct{}

// NewTesseractRecognizer reports ErrRecognizerUnavailable. Build with
// -tags tesseract to link gosseract.
func NewTesseractRecognizer(string) (*TesseractRecognizer, error) {
	return nil, WrapOCRError("NewTesseractRecognizer", ErrRecognizerUnavailable, "built without the tesseract tag")
}

// Recognize always fails.
func (t *TesseractRecognizer) Recognize(context.Context, []byte) (*Result, error) {
	return nil, WrapOCRError("Recognize", ErrRecognizerUnavailable, "")
}

// Close is a no-op.
func (t *TesseractRecognizer) Close() error { return nil }

package ocr

import (
	"errors"
	"fmt"
)

var (
	// ErrImageTooLarge is returned when the page image exceeds MaxImageSizeBytes.
	ErrImageTooLarge = errors.New("page image exceeds the maximum size (20MB)")

	// ErrInvalidImage is returned when the data is not a decodable page image.
	ErrInvalidImage = errors.New("invalid or unsupported page image")

	// ErrOCRFailed is returned when the provider fails to process the image.
	ErrOCRFailed = errors.New("OCR processing failed")

	// ErrMissingCredentials is returned when no Google credentials are available.
	ErrMissingCredentials = errors.New("missing Google Cloud credentials: set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS environment variable")

	ErrInvalidConfiguration = errors.New("invalid OCR configuration")

	// ErrEmptyDocument is returned when the image contains no readable text.
	// The pipeline treats it as a page without raster tokens.
	ErrEmptyDocument = errors.New("image contains no readable text")

	ErrUnknownProvider = errors.New("unknown OCR provider")

	// ErrRecognizerUnavailable is returned when a provider was not compiled in.
	ErrRecognizerUnavailable = errors.New("OCR provider not available in this build")
)

// OCRError records which provider operation failed.
type OCRError struct {
	Provider string // empty until the factory tags it
	Op       string
	Err      error
	Details  string
}

func (e *OCRError) Error() string {
	prefix := "ocr"
	if e.Provider != "" {
		prefix = "ocr[" + e.Provider + "]"
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %s failed: %s: %v", prefix, e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("%s: %s failed: %v", prefix, e.Op, e.Err)
}

func (e *OCRError) Unwrap() error {
	return e.Err
}

func (e *OCRError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapOCRError wraps err as an OCRError unless it already is one.
func WrapOCRError(op string, err error, details string) error {
	if err == nil {
		return nil
	}
	var ocrErr *OCRError
	if errors.As(err, &ocrErr) {
		return err
	}
	return &OCRError{Op: op, Err: err, Details: details}
}

// tagProvider names the provider on an OCRError inside err.
func tagProvider(err error, provider string) error {
	var ocrErr *OCRError
	if errors.As(err, &ocrErr) && ocrErr.Provider == "" {
		ocrErr.Provider = provider
	}
	return err
}

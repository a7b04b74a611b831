// Package ocr recognizes text on rasterized drawing pages.
//
// The pipeline only calls a Recognizer when a page carries too few native text
// tokens. Three providers are available:
//   - vision: Google Cloud Vision DOCUMENT_TEXT_DETECTION on the page image
//   - documentai: a Google Document AI OCR processor
//   - tesseract: local Tesseract via gosseract (build tag "tesseract")
//
// Credentials for the Google providers come from GOOGLE_CREDENTIALS (inline
// JSON) or GOOGLE_APPLICATION_CREDENTIALS (file path), falling back to the
// default credentials chain.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"time"

	_ "golang.org/x/image/tiff"
	"google.golang.org/api/option"

	"balloon/pkg/models"
)

// Provider names accepted by New.
const (
	ProviderVision     = "vision"
	ProviderDocumentAI = "documentai"
	ProviderTesseract  = "tesseract"
	ProviderNone       = "none"
)

// MaxImageSizeBytes is the largest page image sent to a cloud provider (20MB).
const MaxImageSizeBytes = 20 * 1024 * 1024

// Recognizer turns a page image into text.
type Recognizer interface {
	// Recognize runs recognition on an encoded page image (PNG, JPEG or TIFF).
	// An image without readable text returns ErrEmptyDocument.
	Recognize(ctx context.Context, img []byte) (*Result, error)

	// Close releases provider resources.
	Close() error
}

// Word is one recognized word with its location on the page.
type Word struct {
	Text       string                `json:"text"`
	Confidence float64               `json:"confidence"`
	Region     models.BoundingRegion `json:"region"`
}

// Result contains the recognized text of one page image.
type Result struct {
	// Text is the full recognized text in reading order.
	Text string `json:"text"`

	// Confidence is the average confidence across recognized text (0.0 to 1.0).
	Confidence float64 `json:"confidence"`

	// Words carries per-word boxes when the provider reports them.
	Words []Word `json:"words,omitempty"`

	// Provider names the recognizer that produced the result.
	Provider string `json:"provider"`

	ProcessedAt        time.Time     `json:"processed_at"`
	ProcessingDuration time.Duration `json:"processing_duration"`
}

// Config selects and configures a provider.
type Config struct {
	Provider string

	// Document AI
	ProjectID   string
	Location    string
	ProcessorID string

	// Tesseract
	Language string
}

// New creates the recognizer named by cfg.Provider. ProviderNone returns nil
// without error; the pipeline then runs on native text only.
func New(ctx context.Context, cfg Config) (Recognizer, error) {
	const op = "New"

	var (
		r   Recognizer
		err error
	)
	switch cfg.Provider {
	case ProviderVision, "":
		r, err = NewGoogleVisionRecognizer(ctx)
	case ProviderDocumentAI:
		r, err = NewDocumentAIRecognizer(ctx, cfg)
	case ProviderTesseract:
		r, err = NewTesseractRecognizer(cfg.Language)
	case ProviderNone:
		return nil, nil
	default:
		return nil, WrapOCRError(op, ErrUnknownProvider, fmt.Sprintf("provider %q", cfg.Provider))
	}
	if err != nil {
		return nil, tagProvider(err, cfg.Provider)
	}
	return r, nil
}

// credentialOptions returns client options for the Google providers.
func credentialOptions() []option.ClientOption {
	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(credJSON))}
	}
	if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		return []option.ClientOption{option.WithCredentialsFile(credFile)}
	}
	return nil
}

// checkImage validates size and format and returns the decoded dimensions
// and MIME type.
func checkImage(op string, img []byte) (width, height int, mime string, err error) {
	if len(img) == 0 {
		return 0, 0, "", WrapOCRError(op, ErrInvalidImage, "empty image")
	}
	if len(img) > MaxImageSizeBytes {
		return 0, 0, "", WrapOCRError(op, ErrImageTooLarge, fmt.Sprintf("image size: %d bytes", len(img)))
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return 0, 0, "", WrapOCRError(op, ErrInvalidImage, err.Error())
	}
	return cfg.Width, cfg.Height, "image/" + format, nil
}

// pixelRegion normalizes a pixel rectangle (origin top-left) to page space.
func pixelRegion(x0, y0, x1, y1, width, height float64) models.BoundingRegion {
	if width <= 0 || height <= 0 {
		return models.FullPage
	}
	return models.BoundingRegion{
		XMin: x0 / width * models.RegionScale,
		YMin: y0 / height * models.RegionScale,
		XMax: x1 / width * models.RegionScale,
		YMax: y1 / height * models.RegionScale,
	}.Clamp()
}

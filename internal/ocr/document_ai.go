package ocr

import (
	"context"
	"fmt"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"balloon/internal/logger"
	"balloon/pkg/models"
)

// DocumentAIRecognizer implements Recognizer with a Google Document AI OCR processor.
type DocumentAIRecognizer struct {
	client  *documentai.DocumentProcessorClient
	config  Config
	timeout time.Duration
	log     zerolog.Logger
}

// NewDocumentAIRecognizer creates a recognizer for the processor named in cfg.
// Requires ProjectID and ProcessorID; Location defaults to "us".
func NewDocumentAIRecognizer(ctx context.Context, cfg Config) (*DocumentAIRecognizer, error) {
	const op = "NewDocumentAIRecognizer"

	if cfg.ProjectID == "" {
		return nil, WrapOCRError(op, ErrInvalidConfiguration, "GOOGLE_CLOUD_PROJECT is required")
	}
	if cfg.ProcessorID == "" {
		return nil, WrapOCRError(op, ErrInvalidConfiguration, "DOCUMENT_AI_PROCESSOR_ID is required")
	}
	if cfg.Location == "" {
		cfg.Location = "us"
	}

	clientOptions := credentialOptions()
	hasCredentials := len(clientOptions) > 0
	if cfg.Location != "us" {
		endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)
		clientOptions = append(clientOptions, option.WithEndpoint(endpoint))
	}

	client, err := documentai.NewDocumentProcessorClient(ctx, clientOptions...)
	if err != nil {
		if !hasCredentials {
			return nil, WrapOCRError(op, ErrMissingCredentials, "no credentials found in environment")
		}
		return nil, WrapOCRError(op, err, fmt.Sprintf("failed to create Document AI client for location: %s", cfg.Location))
	}

	return &DocumentAIRecognizer{
		client:  client,
		config:  cfg,
		timeout: 60 * time.Second,
		log:     logger.WithComponent("document-ai"),
	}, nil
}

// processorName constructs the full processor name for the Document AI API.
func (p *DocumentAIRecognizer) processorName() string {
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s",
		p.config.ProjectID, p.config.Location, p.config.ProcessorID)
}

// Recognize sends one page image to the OCR processor.
func (p *DocumentAIRecognizer) Recognize(ctx context.Context, img []byte) (*Result, error) {
	const op = "Recognize"
	startTime := time.Now()

	_, _, mime, err := checkImage(op, img)
	if err != nil {
		return nil, err
	}

	processCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req := &documentaipb.ProcessRequest{
		Name: p.processorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  img,
				MimeType: mime,
			},
		},
	}

	resp, err := p.client.ProcessDocument(processCtx, req)
	if err != nil {
		return nil, p.handleProcessingError(op, err)
	}
	if resp.Document == nil {
		return nil, WrapOCRError(op, ErrOCRFailed, "no document in response")
	}

	result, err := documentResult(resp.Document)
	if err != nil {
		return nil, WrapOCRError(op, err, "failed to process Document AI response")
	}

	result.ProcessedAt = time.Now()
	result.ProcessingDuration = result.ProcessedAt.Sub(startTime)

	p.log.Debug().
		Int("words", len(result.Words)).
		Float64("confidence", result.Confidence).
		Dur("duration", result.ProcessingDuration).
		Msg("Document AI recognition complete")

	return result, nil
}

// handleProcessingError converts Document AI errors to OCR errors.
func (p *DocumentAIRecognizer) handleProcessingError(op string, err error) error {
	errStr := err.Error()

	switch {
	case strings.Contains(errStr, "PERMISSION_DENIED"):
		return WrapOCRError(op, ErrMissingCredentials, "insufficient permissions for Document AI")
	case strings.Contains(errStr, "NOT_FOUND"):
		return WrapOCRError(op, ErrInvalidConfiguration, fmt.Sprintf("processor not found: %s", p.config.ProcessorID))
	case strings.Contains(errStr, "INVALID_ARGUMENT"):
		return WrapOCRError(op, ErrInvalidImage, "image format not supported or corrupted")
	case strings.Contains(errStr, "DeadlineExceeded") || strings.Contains(errStr, "context deadline exceeded"):
		return WrapOCRError(op, context.DeadlineExceeded, "processing timeout")
	case strings.Contains(errStr, "Canceled") || strings.Contains(errStr, "context canceled"):
		return WrapOCRError(op, context.Canceled, "processing was canceled")
	default:
		return WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("Document AI error: %v", err))
	}
}

// documentResult reads page tokens and their normalized boxes.
func documentResult(doc *documentaipb.Document) (*Result, error) {
	if strings.TrimSpace(doc.Text) == "" {
		return nil, ErrEmptyDocument
	}

	result := &Result{Text: doc.Text, Provider: ProviderDocumentAI}
	var confidenceSum float64
	for _, page := range doc.Pages {
		for _, token := range page.Tokens {
			layout := token.GetLayout()
			text := strings.TrimSpace(anchorText(doc.Text, layout.GetTextAnchor()))
			if text == "" {
				continue
			}
			result.Words = append(result.Words, Word{
				Text:       text,
				Confidence: float64(layout.GetConfidence()),
				Region:     normalizedRegion(layout.GetBoundingPoly()),
			})
			confidenceSum += float64(layout.GetConfidence())
		}
	}
	if len(result.Words) > 0 {
		result.Confidence = confidenceSum / float64(len(result.Words))
	}
	return result, nil
}

func anchorText(text string, anchor *documentaipb.Document_TextAnchor) string {
	if anchor == nil {
		return ""
	}
	var sb strings.Builder
	for _, seg := range anchor.TextSegments {
		start, end := int(seg.StartIndex), int(seg.EndIndex)
		if start < 0 || end > len(text) || start >= end {
			continue
		}
		sb.WriteString(text[start:end])
	}
	return sb.String()
}

func normalizedRegion(poly *documentaipb.BoundingPoly) models.BoundingRegion {
	if poly == nil || len(poly.NormalizedVertices) == 0 {
		return models.FullPage
	}
	v := poly.NormalizedVertices
	x0, y0 := float64(v[0].X), float64(v[0].Y)
	x1, y1 := x0, y0
	for _, p := range v[1:] {
		x0, x1 = min(x0, float64(p.X)), max(x1, float64(p.X))
		y0, y1 = min(y0, float64(p.Y)), max(y1, float64(p.Y))
	}
	return pixelRegion(x0, y0, x1, y1, 1, 1)
}

// Close closes the underlying Document AI client.
func (p *DocumentAIRecognizer) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}

package ocr

import (
	"context"
	"fmt"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"

	"balloon/pkg/models"
)

// GoogleVisionRecognizer implements Recognizer using Google Cloud Vision API.
type GoogleVisionRecognizer struct {
	client *vision.ImageAnnotatorClient
}

// NewGoogleVisionRecognizer creates a recognizer with credentials from environment.
// It expects either GOOGLE_APPLICATION_CREDENTIALS path or GOOGLE_CREDENTIALS JSON in env.
func NewGoogleVisionRecognizer(ctx context.Context) (*GoogleVisionRecognizer, error) {
	const op = "NewGoogleVisionRecognizer"

	opts := credentialOptions()
	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		if len(opts) == 0 {
			return nil, WrapOCRError(op, ErrMissingCredentials, "no credentials found in environment")
		}
		return nil, WrapOCRError(op, err, "failed to create Vision client")
	}

	return &GoogleVisionRecognizer{client: client}, nil
}

// NewGoogleVisionRecognizerWithClient creates a recognizer with an explicit client (for testing).
func NewGoogleVisionRecognizerWithClient(client *vision.ImageAnnotatorClient) *GoogleVisionRecognizer {
	return &GoogleVisionRecognizer{client: client}
}

// Recognize runs document text detection on one page image.
func (g *GoogleVisionRecognizer) Recognize(ctx context.Context, img []byte) (*Result, error) {
	const op = "Recognize"
	startTime := time.Now()

	if _, _, _, err := checkImage(op, img); err != nil {
		return nil, err
	}

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: img},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
			},
		},
	}

	resp, err := g.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, WrapOCRError(op, ctx.Err(), "Vision API call abandoned")
		}
		return nil, WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("Vision API call failed: %v", err))
	}
	if len(resp.Responses) == 0 {
		return nil, WrapOCRError(op, ErrOCRFailed, "no response from Vision API")
	}

	result, err := visionResult(resp.Responses[0])
	if err != nil {
		return nil, WrapOCRError(op, err, "failed to process Vision API response")
	}

	result.ProcessedAt = time.Now()
	result.ProcessingDuration = result.ProcessedAt.Sub(startTime)
	return result, nil
}

// visionResult converts one image response into a Result with word boxes.
func visionResult(resp *visionpb.AnnotateImageResponse) (*Result, error) {
	if resp.Error != nil {
		return nil, fmt.Errorf("%w: Vision API error: %s", ErrOCRFailed, resp.Error.Message)
	}
	annotation := resp.FullTextAnnotation
	if annotation == nil || strings.TrimSpace(annotation.Text) == "" {
		return nil, ErrEmptyDocument
	}

	result := &Result{Text: annotation.Text, Provider: ProviderVision}
	var confidenceSum float64
	for _, page := range annotation.Pages {
		w, h := float64(page.Width), float64(page.Height)
		for _, block := range page.Blocks {
			for _, paragraph := range block.Paragraphs {
				for _, word := range paragraph.Words {
					var sb strings.Builder
					for _, symbol := range word.Symbols {
						sb.WriteString(symbol.Text)
					}
					if sb.Len() == 0 {
						continue
					}
					result.Words = append(result.Words, Word{
						Text:       sb.String(),
						Confidence: float64(word.Confidence),
						Region:     vertexRegion(word.BoundingBox, w, h),
					})
					confidenceSum += float64(word.Confidence)
				}
			}
		}
	}
	if len(result.Words) > 0 {
		result.Confidence = confidenceSum / float64(len(result.Words))
	}
	return result, nil
}

func vertexRegion(poly *visionpb.BoundingPoly, width, height float64) models.BoundingRegion {
	if poly == nil || len(poly.Vertices) == 0 {
		return models.FullPage
	}
	x0, y0 := float64(poly.Vertices[0].X), float64(poly.Vertices[0].Y)
	x1, y1 := x0, y0
	for _, v := range poly.Vertices[1:] {
		x0, x1 = min(x0, float64(v.X)), max(x1, float64(v.X))
		y0, y1 = min(y0, float64(v.Y)), max(y1, float64(v.Y))
	}
	return pixelRegion(x0, y0, x1, y1, width, height)
}

// Close closes the underlying Vision client.
func (g *GoogleVisionRecognizer) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

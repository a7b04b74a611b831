package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"balloon/internal/harvest"
	"balloon/internal/logger"
	"balloon/internal/ocr"
)

var ocrCmd = &cobra.Command{
	Use:   "ocr [image-or-pdf]",
	Short: "Recognize the text of a drawing page image",
	Long: `Run the configured OCR provider on a page image (PNG, JPEG or TIFF) or on the
largest embedded image of one page of a PDF drawing. This is the same
recognition extract falls back to for image-only pages.

Providers (OCR_PROVIDER or --provider):
  vision      Google Cloud Vision document text detection
  documentai  Google Document AI OCR processor (GOOGLE_CLOUD_PROJECT,
              GOOGLE_CLOUD_LOCATION, DOCUMENT_AI_PROCESSOR_ID)
  tesseract   local Tesseract, binaries built with -tags tesseract

Google providers read GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS.`,
	Example: `  # Recognize a scanned sheet
  balloon ocr sheet-2.png

  # Recognize page 3 of a drawing with Document AI, as JSON
  balloon ocr bracket.pdf --page 3 --provider documentai --json`,
	Args: cobra.ExactArgs(1),
	RunE: runOCR,
}

// OCROutput represents the JSON output structure when --json flag is used
type OCROutput struct {
	Text               string     `json:"text"`
	Confidence         float64    `json:"confidence,omitempty"`
	Words              []ocr.Word `json:"words,omitempty"`
	Provider           string     `json:"provider"`
	ProcessedAt        time.Time  `json:"processed_at,omitempty"`
	ProcessingDuration string     `json:"processing_duration,omitempty"`
	FileName           string     `json:"file_name"`
	Page               int        `json:"page,omitempty"`
}

func init() {
	rootCmd.AddCommand(ocrCmd)

	ocrCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	ocrCmd.Flags().Bool("json", false, "Output as JSON")
	ocrCmd.Flags().Int("page", 1, "1-based page to recognize when the input is a PDF")
	ocrCmd.Flags().String("provider", "", "OCR provider (default: OCR_PROVIDER)")
	ocrCmd.Flags().Int("timeout", 300, "Processing timeout in seconds")
}

func runOCR(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("ocr")

	outputPath, _ := cmd.Flags().GetString("output")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	page, _ := cmd.Flags().GetInt("page")
	provider, _ := cmd.Flags().GetString("provider")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	path := args[0]
	isPDF := strings.EqualFold(filepath.Ext(path), ".pdf")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if provider != "" {
		cfg.OCRProvider = provider
	}
	if cfg.OCRProvider == ocr.ProviderNone {
		return fmt.Errorf("OCR_PROVIDER is none. Choose vision, documentai or tesseract")
	}

	log.Info().
		Str("file", path).
		Str("provider", cfg.OCRProvider).
		Int("page", page).
		Msg("Starting OCR processing")

	img, err := loadPageImage(path, isPDF, page, log)
	if err != nil {
		return err
	}

	ctx, cancel := createContextWithTimeout(timeoutSecs, log)
	defer cancel()

	recognizer, err := newRecognizer(ctx, cfg, false, log)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := recognizer.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close OCR provider")
		}
	}()

	result, err := recognizer.Recognize(ctx, img)
	if err != nil {
		return handleOCRError(err, log)
	}

	log.Info().
		Float64("confidence", result.Confidence).
		Int("words", len(result.Words)).
		Dur("duration", result.ProcessingDuration).
		Msg("OCR processing completed successfully")

	if jsonOutput {
		out := OCROutput{
			Text:               result.Text,
			Confidence:         result.Confidence,
			Words:              result.Words,
			Provider:           result.Provider,
			ProcessedAt:        result.ProcessedAt,
			ProcessingDuration: result.ProcessingDuration.String(),
			FileName:           filepath.Base(path),
		}
		if isPDF {
			out.Page = page
		}
		return writeJSON(outputPath, out, log)
	}

	text := result.Text
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	if outputPath == "" {
		_, err = os.Stdout.WriteString(text)
		return err
	}
	if err := os.WriteFile(outputPath, []byte(text), 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}

// loadPageImage reads an image file, or extracts the page image of a PDF.
func loadPageImage(path string, isPDF bool, page int, log zerolog.Logger) ([]byte, error) {
	if !isPDF {
		img, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read image: %w", err)
		}
		return img, nil
	}

	doc, err := harvest.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer func() {
		if closeErr := doc.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close PDF file")
		}
	}()

	count, err := doc.PageCount()
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF: %w", err)
	}
	if page < 1 || page > count {
		return nil, fmt.Errorf("page %d out of range, drawing has %d pages", page, count)
	}
	img, err := doc.Raster(page - 1)
	if err != nil {
		return nil, fmt.Errorf("failed to extract page image: %w", err)
	}
	if img == nil {
		return nil, fmt.Errorf("page %d has no embedded image. Its text is native; use extract", page)
	}
	return img, nil
}

// handleOCRError provides user-friendly error messages for OCR failures
func handleOCRError(err error, log zerolog.Logger) error {
	switch {
	case errors.Is(err, ocr.ErrImageTooLarge):
		log.Error().Err(err).Msg("OCR processing failed")
		return fmt.Errorf("page image is too large (maximum 20MB)")
	case errors.Is(err, ocr.ErrInvalidImage):
		log.Error().Err(err).Msg("OCR processing failed")
		return fmt.Errorf("invalid or unsupported image. Use PNG, JPEG or TIFF")
	case errors.Is(err, ocr.ErrEmptyDocument):
		log.Error().Err(err).Msg("OCR processing failed")
		return fmt.Errorf("no readable text found in the image")
	case errors.Is(err, ocr.ErrRecognizerUnavailable):
		log.Error().Err(err).Msg("OCR processing failed")
		return fmt.Errorf("this binary was built without Tesseract. Rebuild with -tags tesseract or choose another provider")
	default:
		return handleCloudError("OCR processing", err, log)
	}
}

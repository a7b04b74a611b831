package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"balloon/internal/inspection"
	"balloon/internal/logger"
	"balloon/internal/structure"
	"balloon/pkg/models"
	"balloon/pkg/services"
)

var extractCmd = &cobra.Command{
	Use:   "extract [pdf-file]",
	Short: "Extract numbered dimension features from a PDF drawing",
	Long: `Harvest the text of every page of a PDF drawing, recognize image-only pages
with OCR, and structure each dimension callout into a numbered feature.

Pages with fewer than 5 native text tokens are rendered and sent to the
configured OCR provider (OCR_PROVIDER: vision, documentai, tesseract, none).
Callouts the heuristic grammar cannot read are sent to OpenAI when
OPENAI_API_KEY is set.

The session file written with -o is the input of the match command.`,
	Example: `  # Extract features and save the session
  balloon extract bracket.pdf -o bracket.session.json

  # Native text only, first two pages
  balloon extract bracket.pdf --no-ocr --no-llm --pages 1,2

  # Publish the feature table to Google Sheets
  balloon extract bracket.pdf -o bracket.session.json --publish --worksheet Inspection`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringP("output", "o", "", "Session file path (default: <drawing>.session.json)")
	extractCmd.Flags().Bool("no-ocr", false, "Disable the raster OCR fallback")
	extractCmd.Flags().Bool("no-llm", false, "Structure callouts with heuristics only")
	extractCmd.Flags().IntSlice("pages", nil, "1-based pages to extract (default: all)")
	extractCmd.Flags().Int("timeout", 600, "Processing timeout in seconds")
	extractCmd.Flags().Bool("publish", false, "Write the feature table to Google Sheets")
	extractCmd.Flags().String("worksheet", "", "Worksheet for --publish (default: GOOGLE_SHEET_WORKSHEET)")
	extractCmd.Flags().Bool("json", false, "Print the extraction summary as JSON")
}

func runExtract(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("extract")

	outputPath, _ := cmd.Flags().GetString("output")
	noOCR, _ := cmd.Flags().GetBool("no-ocr")
	noLLM, _ := cmd.Flags().GetBool("no-llm")
	pages, _ := cmd.Flags().GetIntSlice("pages")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")
	publish, _ := cmd.Flags().GetBool("publish")
	worksheet, _ := cmd.Flags().GetString("worksheet")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	pdfPath := args[0]
	if outputPath == "" {
		outputPath = strings.TrimSuffix(pdfPath, filepath.Ext(pdfPath)) + ".session.json"
	}

	if err := validateDrawing(pdfPath, log); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if worksheet == "" {
		worksheet = cfg.GoogleSheetWorksheet
	}

	ctx, cancel := createContextWithTimeout(timeoutSecs, log)
	defer cancel()

	recognizer, err := newRecognizer(ctx, cfg, noOCR, log)
	if err != nil {
		return err
	}
	if recognizer != nil {
		defer func() {
			if closeErr := recognizer.Close(); closeErr != nil {
				log.Warn().Err(closeErr).Msg("Failed to close OCR provider")
			}
		}()
	}
	structurer, err := newStructurer(cfg, noLLM, log)
	if err != nil {
		return err
	}

	extraction := cfg.ExtractionConfig()
	extraction.Pages = pages
	extraction.DisableRaster = noOCR

	deps := inspection.Deps{
		Recognizer: recognizer,
		Structurer: structurer,
		Extraction: extraction,
		Match:      cfg.MatchConfig(),
	}
	if publish {
		client, err := newSheetsClient(ctx, cfg)
		if err != nil {
			return err
		}
		deps.Sheets = client
	}
	svc := inspection.New(deps)

	log.Info().
		Str("file", pdfPath).
		Str("output", outputPath).
		Bool("no_ocr", noOCR).
		Bool("no_llm", noLLM).
		Ints("pages", pages).
		Msg("Starting extraction")

	result, err := svc.ExtractDrawing(ctx, pdfPath)
	if err != nil {
		if result != nil && len(result.Pages) > 0 {
			log.Warn().Int("pages_done", len(result.Pages)).Msg("Saving partial session")
			if saveErr := saveSession(outputPath, svc, log); saveErr != nil {
				log.Error().Err(saveErr).Msg("Failed to save partial session")
			}
		}
		return handleCloudError("extraction", err, log)
	}

	if err := saveSession(outputPath, svc, log); err != nil {
		return err
	}

	if publish {
		if err := svc.Publish(ctx, worksheet); err != nil {
			return handleCloudError("publishing to Google Sheets", err, log)
		}
		log.Info().Str("sheet", worksheet).Msg("Feature table published")
	}

	if jsonOutput {
		return writeJSON("", result, log)
	}
	return printFeatures(result, svc.Features())
}

// validateDrawing checks the drawing exists and is a readable regular file.
func validateDrawing(path string, log zerolog.Logger) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("drawing not found: %s", path)
		}
		if os.IsPermission(err) {
			return fmt.Errorf("permission denied accessing drawing: %s", path)
		}
		return fmt.Errorf("error accessing drawing: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("path is not a regular file: %s", path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("drawing is empty: %s", path)
	}
	if !strings.HasSuffix(strings.ToLower(path), ".pdf") {
		log.Warn().Str("file", path).Msg("File does not have .pdf extension")
	}
	return nil
}

func printFeatures(result *services.ExtractResult, views []models.FeatureView) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPAGE\tCALLOUT\tSPECIFICATION\tSTATUS")
	for _, v := range views {
		spec := "(unparsed)"
		if v.Specification != nil {
			spec = structure.FormatFullSpecification(v.Specification)
		}
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\n", v.ID, v.Page, v.RawValue, spec, v.Status)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	raster := 0
	for _, p := range result.Pages {
		if p.RasterUsed {
			raster++
		}
		if p.Error != "" {
			fmt.Fprintf(os.Stderr, "page %d: %s\n", p.Page, p.Error)
		}
	}
	fmt.Printf("\n%d features (%d unparsed) from %d pages, %d via OCR\n",
		result.Features, result.Unparsed, len(result.Pages), raster)
	return nil
}

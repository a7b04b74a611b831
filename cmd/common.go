package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"balloon/internal/config"
	"balloon/internal/inspection"
	"balloon/internal/ocr"
	"balloon/internal/registry"
	"balloon/internal/sheets"
	"balloon/internal/structure"
)

// createContextWithTimeout creates a context with timeout and signal handling.
// A zero timeout only cancels on signals.
func createContextWithTimeout(timeoutSecs int, log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	if timeoutSecs > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, time.Duration(timeoutSecs)*time.Second)
		parent := cancel
		cancel = func() {
			cancelTimeout()
			parent()
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, canceling")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// loadConfig reads the environment configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newStructurer builds the callout structurer. Without an API key, or with
// noLLM, only the heuristic grammar runs.
func newStructurer(cfg *config.Config, noLLM bool, log zerolog.Logger) (*structure.Structurer, error) {
	openaiCfg, ok := cfg.OpenAIConfig()
	if noLLM || !ok {
		if !noLLM {
			log.Warn().Msg("OPENAI_API_KEY not set, structuring with heuristics only")
		}
		return structure.New(nil, cfg.StructureConfig()), nil
	}
	client, err := structure.NewOpenAIClient(openaiCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
	}
	return structure.New(client, cfg.StructureConfig()), nil
}

// newRecognizer builds the OCR provider, nil when disabled.
func newRecognizer(ctx context.Context, cfg *config.Config, noOCR bool, log zerolog.Logger) (ocr.Recognizer, error) {
	if noOCR || cfg.OCRProvider == ocr.ProviderNone {
		log.Info().Msg("Raster OCR fallback disabled")
		return nil, nil
	}
	rec, err := ocr.New(ctx, cfg.OCRConfig())
	if err != nil {
		if errors.Is(err, ocr.ErrMissingCredentials) {
			return nil, fmt.Errorf("Google Cloud credentials not configured. Set GOOGLE_APPLICATION_CREDENTIALS\n" +
				"or GOOGLE_CREDENTIALS, choose OCR_PROVIDER=tesseract, or pass --no-ocr")
		}
		return nil, fmt.Errorf("failed to create OCR provider: %w", err)
	}
	return rec, nil
}

// newSheetsClient connects to the configured spreadsheet.
func newSheetsClient(ctx context.Context, cfg *config.Config) (*sheets.Service, error) {
	if cfg.GoogleSheetURL == "" {
		return nil, fmt.Errorf("GOOGLE_SHEET_URL environment variable is required")
	}
	svc, err := sheets.NewSheetsService(ctx, cfg.GoogleSheetURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets service: %w", err)
	}
	return svc, nil
}

// readSession loads a session file written by extract.
func readSession(path string) (registry.Session, error) {
	var sess registry.Session
	data, err := os.ReadFile(path)
	if err != nil {
		return sess, fmt.Errorf("failed to read session file: %w", err)
	}
	if err := json.Unmarshal(data, &sess); err != nil {
		return sess, fmt.Errorf("invalid session file %s: %w", path, err)
	}
	return sess, nil
}

// writeJSON writes v as indented JSON to path, or stdout when path is empty.
func writeJSON(path string, v interface{}, log zerolog.Logger) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to create JSON output: %w", err)
	}
	data = append(data, '\n')

	if path == "" {
		if _, err := os.Stdout.Write(data); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		return nil
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		log.Error().
			Err(err).
			Str("output_file", path).
			Msg("Failed to write output file")
		return fmt.Errorf("failed to write output file: %w", err)
	}
	log.Info().
		Str("output_file", path).
		Int("bytes", len(data)).
		Msg("Output written to file")
	return nil
}

// saveSession writes the session state of svc.
func saveSession(path string, svc *inspection.Service, log zerolog.Logger) error {
	return writeJSON(path, svc.Session(), log)
}

// handleCloudError maps provider failures to actionable messages.
func handleCloudError(what string, err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg(what + " failed")

	errStr := err.Error()
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s timed out. Try increasing --timeout", what)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s was canceled", what)
	case strings.Contains(errStr, "Unauthenticated") ||
		strings.Contains(errStr, "invalid_grant") ||
		strings.Contains(errStr, "auth:") ||
		strings.Contains(errStr, "transport: per-RPC creds failed"):
		return fmt.Errorf("Google Cloud authentication failed. Check GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS.\n\n"+
			"Original error: %v", err)
	case strings.Contains(errStr, "PERMISSION_DENIED"):
		return fmt.Errorf("permission denied. Ensure the service account can use the configured Google APIs")
	case strings.Contains(errStr, "QUOTA_EXCEEDED") ||
		strings.Contains(errStr, "quota"):
		return fmt.Errorf("Google Cloud API quota exceeded. Check your project quotas in the Google Cloud Console")
	default:
		return fmt.Errorf("%s failed: %w", what, err)
	}
}

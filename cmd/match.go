package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"balloon/internal/cmm"
	"balloon/internal/inspection"
	"balloon/internal/logger"
	"balloon/internal/matching"
	"balloon/pkg/services"
)

var matchCmd = &cobra.Command{
	Use:   "match [session-file] [report-file]",
	Short: "Match a CMM report into an extracted drawing session",
	Long: `Parse a CMM report, score every record against every drawing feature and
write actual values, deviations and PASS/FAIL into the matched features.

Records are scored on nominal proximity (50), report identifier (30) and
tolerance agreement (20). Assignments below the confidence floor stay
pending; resolve them with --assign, --skip or --skip-remaining. Nothing is
written while a record is pending.

With --sheet-range the report is read from the Google Sheets spreadsheet in
GOOGLE_SHEET_URL instead of a file.`,
	Example: `  # Match and update the session in place
  balloon match bracket.session.json cmm-run-12.csv

  # Resolve pending records by hand
  balloon match bracket.session.json cmm-run-12.csv --assign 4=17 --skip 9

  # Read the report from Google Sheets and publish the results
  balloon match bracket.session.json --sheet-range "CMM!A1:H" --publish --worksheet Inspection`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().StringP("output", "o", "", "Session file to write (default: overwrite the input session)")
	matchCmd.Flags().String("import-id", "", "Identifier recorded on every matched feature")
	matchCmd.Flags().Int("floor", -1, "Minimum score for automatic assignment (default: MATCH_CONFIDENCE_FLOOR)")
	matchCmd.Flags().StringSlice("assign", nil, "Manual assignment record=feature, 1-based record number")
	matchCmd.Flags().IntSlice("skip", nil, "Record numbers to leave unmatched")
	matchCmd.Flags().Bool("skip-remaining", false, "Leave every pending record unmatched")
	matchCmd.Flags().Bool("dry-run", false, "Score and resolve without writing the session")
	matchCmd.Flags().String("sheet-range", "", "Read the report from this Google Sheets range")
	matchCmd.Flags().Bool("publish", false, "Write the feature table to Google Sheets")
	matchCmd.Flags().String("worksheet", "", "Worksheet for --publish (default: GOOGLE_SHEET_WORKSHEET)")
	matchCmd.Flags().Bool("json", false, "Print the import result as JSON")
	matchCmd.Flags().Int("timeout", 120, "Processing timeout in seconds")
}

func runMatch(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("match")

	outputPath, _ := cmd.Flags().GetString("output")
	importID, _ := cmd.Flags().GetString("import-id")
	floor, _ := cmd.Flags().GetInt("floor")
	assignFlags, _ := cmd.Flags().GetStringSlice("assign")
	skip, _ := cmd.Flags().GetIntSlice("skip")
	skipRemaining, _ := cmd.Flags().GetBool("skip-remaining")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	sheetRange, _ := cmd.Flags().GetString("sheet-range")
	publish, _ := cmd.Flags().GetBool("publish")
	worksheet, _ := cmd.Flags().GetString("worksheet")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	sessionPath := args[0]
	if outputPath == "" {
		outputPath = sessionPath
	}
	if (len(args) == 2) == (sheetRange != "") {
		return fmt.Errorf("give either a report file or --sheet-range")
	}
	if floor > 100 {
		return fmt.Errorf("floor must be between 0 and 100, got %d", floor)
	}

	assign, err := parseAssignments(assignFlags)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if worksheet == "" {
		worksheet = cfg.GoogleSheetWorksheet
	}
	if floor >= 0 {
		cfg.MatchConfidenceFloor = floor
	}

	sess, err := readSession(sessionPath)
	if err != nil {
		return err
	}

	ctx, cancel := createContextWithTimeout(timeoutSecs, log)
	defer cancel()

	deps := inspection.Deps{Match: cfg.MatchConfig()}
	if sheetRange != "" || publish {
		client, err := newSheetsClient(ctx, cfg)
		if err != nil {
			return err
		}
		deps.Sheets = client
	}
	svc, err := inspection.Resume(sess, deps)
	if err != nil {
		return fmt.Errorf("invalid session file %s: %w", sessionPath, err)
	}

	req := services.ImportRequest{
		ImportID:      importID,
		Assign:        assign,
		Skip:          skip,
		SkipRemaining: skipRemaining,
		DryRun:        dryRun,
	}

	log.Info().
		Str("session", sessionPath).
		Str("sheet_range", sheetRange).
		Int("floor", cfg.MatchConfidenceFloor).
		Int("assign", len(assign)).
		Ints("skip", skip).
		Bool("skip_remaining", skipRemaining).
		Bool("dry_run", dryRun).
		Msg("Starting report import")

	var result *services.ImportResult
	if sheetRange != "" {
		result, err = svc.ImportSheet(ctx, sheetRange, req)
	} else {
		result, err = importFile(ctx, svc, args[1], req, log)
	}
	if err != nil {
		return handleMatchError(result, err, log)
	}

	if result.State == string(matching.StateCommitted) {
		if err := saveSession(outputPath, svc, log); err != nil {
			return err
		}
		if publish {
			if err := svc.Publish(ctx, worksheet); err != nil {
				return handleCloudError("publishing to Google Sheets", err, log)
			}
		}
	}

	if jsonOutput {
		return writeJSON("", result, log)
	}
	if err := printImport(result); err != nil {
		return err
	}
	if len(result.Pending) > 0 {
		fmt.Printf("\n%d records need a decision. Rerun with --assign record=feature, --skip record or --skip-remaining\n",
			len(result.Pending))
	}
	return nil
}

func importFile(ctx context.Context, svc *inspection.Service, path string, req services.ImportRequest, log zerolog.Logger) (*services.ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open report: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close report file")
		}
	}()
	return svc.ImportReport(ctx, f, path, req)
}

// parseAssignments reads record=feature pairs.
func parseAssignments(pairs []string) (map[int]int, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[int]int, len(pairs))
	for _, pair := range pairs {
		rec, feat, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --assign %q, want record=feature", pair)
		}
		r, err := strconv.Atoi(strings.TrimSpace(rec))
		if err != nil || r <= 0 {
			return nil, fmt.Errorf("invalid record number in --assign %q", pair)
		}
		f, err := strconv.Atoi(strings.TrimSpace(feat))
		if err != nil || f <= 0 {
			return nil, fmt.Errorf("invalid feature id in --assign %q", pair)
		}
		if _, dup := out[r]; dup {
			return nil, fmt.Errorf("record %d assigned twice", r)
		}
		out[r] = f
	}
	return out, nil
}

// handleMatchError provides user-friendly messages for import failures.
func handleMatchError(result *services.ImportResult, err error, log zerolog.Logger) error {
	switch {
	case errors.Is(err, matching.ErrUnknownFeature):
		return fmt.Errorf("--assign names a feature that is not in the session: %v", err)
	case errors.Is(err, matching.ErrUnknownRecord):
		return fmt.Errorf("record number out of range: %v", err)
	case errors.Is(err, cmm.ErrUndecodable) || errors.Is(err, cmm.ErrUnreadableSpreadsheet):
		return handleReportError(err, log)
	default:
		return handleCloudError("import", err, log)
	}
}

func printImport(result *services.ImportResult) error {
	if result == nil {
		return nil
	}
	if len(result.Records) == 0 {
		fmt.Printf("Import %s: no records (%s)\n", result.ImportID, result.Diagnostic)
		return nil
	}

	pending := make(map[int]bool, len(result.Pending))
	for _, n := range result.Pending {
		pending[n] = true
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RECORD\tLABEL\tACTUAL\tFEATURE\tSCORE\tNOTE")
	for _, a := range result.Assignments {
		rec := result.Records[a.RecordIndex]
		feature := "-"
		if a.Matched() {
			feature = strconv.Itoa(a.FeatureID)
		}
		note := a.Reason
		if pending[a.RecordIndex+1] {
			note = "PENDING: " + note
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n",
			a.RecordIndex+1, recordLabel(rec), optionalNumber(rec.Actual), feature, a.Score, note)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\nImport %s: %s, format %s, %d updated (%d pass, %d fail)\n",
		result.ImportID, result.State, result.Format, len(result.Updated), result.Pass, result.Fail)
	return nil
}

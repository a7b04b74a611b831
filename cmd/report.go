package cmd

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"balloon/internal/cmm"
	"balloon/internal/logger"
	"balloon/pkg/models"
)

var reportCmd = &cobra.Command{
	Use:   "report [report-file]",
	Short: "Parse a CMM measurement report",
	Long: `Detect the format of a CMM report and print its normalized measurement
records without matching them to a drawing.

Supported inputs: delimited text (.csv, .txt, comma, semicolon or tab),
axis reports, tabular feature reports, spreadsheets (.xlsx, .xlsm) and a
permissive numeric-line fallback. Text is decoded as UTF-8, UTF-16 with a
byte order mark, or Windows-1252.`,
	Example: `  balloon report cmm-run-12.csv
  balloon report results.xlsx --json`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().Bool("json", false, "Output as JSON")
}

func runReport(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("report")

	jsonOutput, _ := cmd.Flags().GetBool("json")
	path := args[0]

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open report: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close report file")
		}
	}()

	result, err := cmm.NewParser().Parse(f, path)
	if err != nil {
		return handleReportError(err, log)
	}

	if jsonOutput {
		return writeJSON("", result, log)
	}
	return printRecords(result)
}

// handleReportError provides user-friendly messages for parse failures.
func handleReportError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("Report parsing failed")

	switch {
	case errors.Is(err, cmm.ErrUndecodable):
		return fmt.Errorf("report is not readable text in UTF-8, UTF-16 or Windows-1252")
	case errors.Is(err, cmm.ErrUnreadableSpreadsheet):
		return fmt.Errorf("spreadsheet report could not be opened. The file may be corrupted or password protected")
	default:
		return fmt.Errorf("report parsing failed: %w", err)
	}
}

func printRecords(result *cmm.ParseResult) error {
	if result.Empty() {
		fmt.Printf("%s: %s\n", result.Filename, result.Diagnostic)
		return nil
	}

	fmt.Printf("%s: %d records, format %s, encoding %s\n\n", result.Filename, len(result.Records), result.Format, result.Encoding)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tROW\tLABEL\tNOMINAL\tACTUAL\tDEV\t+TOL\t-TOL\tSTATUS")
	for i, r := range result.Records {
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			i+1, r.Row, recordLabel(r),
			optionalNumber(r.Nominal), optionalNumber(r.Actual), optionalNumber(r.Deviation),
			optionalNumber(r.PlusTolerance), optionalNumber(r.MinusTolerance), r.Status)
	}
	return w.Flush()
}

func recordLabel(r models.MeasuredFeatureRecord) string {
	if r.Axis != "" {
		return r.Label + " " + r.Axis
	}
	return r.Label
}

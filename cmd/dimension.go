package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"balloon/internal/logger"
	"balloon/internal/structure"
	"balloon/pkg/models"
)

var dimensionCmd = &cobra.Command{
	Use:   "dimension [callout]",
	Short: "Structure a single dimension callout",
	Long: `Parse one callout string the way extract does and print its typed
specification: nominal, tolerances, limits, units, subtype and GD&T frame.`,
	Example: `  balloon dimension "⌀.250 ±.005"
  balloon dimension "2X R.125" --json
  balloon dimension "⌖ ⌀.010 Ⓜ A B C" --no-llm`,
	Args: cobra.ExactArgs(1),
	RunE: runDimension,
}

// DimensionOutput is the --json form of one structured callout.
type DimensionOutput struct {
	Text          string                           `json:"text"`
	Method        string                           `json:"method"`
	Canonical     string                           `json:"canonical,omitempty"`
	Specification *models.DimensionalSpecification `json:"specification"`
	Error         string                           `json:"error,omitempty"`
}

func init() {
	rootCmd.AddCommand(dimensionCmd)

	dimensionCmd.Flags().Bool("no-llm", false, "Structure with heuristics only")
	dimensionCmd.Flags().Bool("json", false, "Output as JSON")
	dimensionCmd.Flags().Int("timeout", 60, "Processing timeout in seconds")
}

func runDimension(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("dimension")

	noLLM, _ := cmd.Flags().GetBool("no-llm")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	structurer, err := newStructurer(cfg, noLLM, log)
	if err != nil {
		return err
	}

	ctx, cancel := createContextWithTimeout(timeoutSecs, log)
	defer cancel()

	outcome := structurer.Structure(ctx, structure.Request{Text: args[0]})
	out := DimensionOutput{
		Text:          args[0],
		Method:        string(outcome.Method),
		Canonical:     structure.FormatFullSpecification(outcome.Spec),
		Specification: outcome.Spec,
	}
	if outcome.Err != nil {
		out.Error = outcome.Err.Error()
	}

	if jsonOutput {
		return writeJSON("", out, log)
	}
	if outcome.Spec == nil {
		return fmt.Errorf("could not structure %q: %v", args[0], outcome.Err)
	}
	printSpecification(out)
	return nil
}

func printSpecification(out DimensionOutput) {
	spec := out.Specification
	fmt.Printf("Callout:    %s\n", out.Text)
	fmt.Printf("Canonical:  %s\n", out.Canonical)
	fmt.Printf("Method:     %s\n", out.Method)
	fmt.Printf("Subtype:    %s\n", spec.Subtype)
	fmt.Printf("Units:      %s\n", spec.Units)
	fmt.Printf("Tolerance:  %s\n", spec.ToleranceKind)
	if spec.Nominal != nil {
		fmt.Printf("Nominal:    %g\n", *spec.Nominal)
	}
	if spec.PlusTolerance != nil || spec.MinusTolerance != nil {
		fmt.Printf("Plus/minus: %s / %s\n", optionalNumber(spec.PlusTolerance), optionalNumber(spec.MinusTolerance))
	}
	if spec.UpperLimit != nil || spec.LowerLimit != nil {
		fmt.Printf("Limits:     %s .. %s\n", optionalNumber(spec.LowerLimit), optionalNumber(spec.UpperLimit))
	}
	if spec.Quantity > 1 {
		fmt.Printf("Quantity:   %d\n", spec.Quantity)
	}
	if spec.IsGDT {
		fmt.Printf("GD&T:       %s\n", spec.GDTSymbol)
	}
}

func optionalNumber(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%g", *p)
}

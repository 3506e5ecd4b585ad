package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/capsale/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                       `json:"valid"`
	Sales  []string                   `json:"sales"`
	Errors []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <manifest>",
		Short: "Validate sale manifests without encoding them",
		Long: `Validate CUE sale manifests.

Checks syntax, the sale schema and field shapes (addresses, amounts,
window order, rate policy) and reports every problem found.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	manifests, err := loadManifests(formatter, path, "")
	if err != nil {
		return err
	}

	if verrs := validateManifests(formatter, manifests); len(verrs) > 0 {
		return outputValidationErrors(formatter, verrs)
	}

	names := make([]string, len(manifests))
	for i, m := range manifests {
		names[i] = m.Name
	}
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Sales: names})
	}
	fmt.Fprintf(formatter.Writer, "✓ %d sale(s) valid\n", len(names))
	return nil
}

// outputValidationErrors reports validation failures and returns exit code 1.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	message := fmt.Sprintf("%d validation error(s)", len(errs))

	if formatter.Format == "json" {
		return formatter.Fail(ExitFailure, errs[0].Code, message, errs)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✗ %s\n", message)
	for _, e := range errs {
		fmt.Fprintf(w, "  %s\n", e.Error())
	}
	return NewExitError(ExitFailure, message)
}

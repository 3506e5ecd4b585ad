package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/capsale/internal/compiler"
	"github.com/roach88/capsale/internal/permission"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Sale   string // only this sale
	Output string // output file path
}

// CompiledSale is one manifest turned into provisioner input.
type CompiledSale struct {
	Name        string `json:"name"`
	DAO         string `json:"dao,omitempty"`
	Asset       string `json:"asset"`
	Rate        string `json:"rate"`
	Cap         string `json:"cap"`
	StartHeight uint64 `json:"start_height"`
	EndHeight   uint64 `json:"end_height"`
	RatePolicy  string `json:"rate_policy"`
	Encoded     string `json:"encoded"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <manifest>",
		Short: "Compile sale manifests to install parameters",
		Long: `Compile CUE sale manifests into the encoded install parameters
the provisioner accepts.

The manifest may be a single .cue file or a directory holding one CUE
package. Every sale is checked against the sale schema and validated
before it is encoded.

Examples:
  capsale compile ./sales/genesis.cue
  capsale compile ./sales --sale genesis
  capsale compile ./sales -o compiled.json --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Sale, "sale", "", "compile only the named sale")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	manifests, err := loadManifests(formatter, path, opts.Sale)
	if err != nil {
		return err
	}

	if verrs := validateManifests(formatter, manifests); len(verrs) > 0 {
		return outputValidationErrors(formatter, verrs)
	}

	compiled := make([]CompiledSale, 0, len(manifests))
	for i := range manifests {
		c, err := compileSale(&manifests[i])
		if err != nil {
			return formatter.Fail(ExitFailure, ErrCodeBuildFailed, fmt.Sprintf("sale %s: %v", manifests[i].Name, err), nil)
		}
		formatter.VerboseLog("Compiled sale: %s", c.Name)
		compiled = append(compiled, c)
	}

	if opts.Output != "" {
		if err := writeCompiled(compiled, opts.Output); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
		}
	}

	return outputCompileSuccess(formatter, compiled, opts.Output)
}

// compileSale encodes a validated manifest.
func compileSale(m *compiler.Manifest) (CompiledSale, error) {
	params, err := m.InstallParams()
	if err != nil {
		return CompiledSale{}, err
	}
	encoded, err := permission.EncodeInstallParams(params)
	if err != nil {
		return CompiledSale{}, err
	}

	policy := m.RatePolicy
	if policy == "" {
		policy = "reject_zero"
	}
	return CompiledSale{
		Name:        m.Name,
		DAO:         m.DAO,
		Asset:       params.Asset.String(),
		Rate:        params.Rate.String(),
		Cap:         params.Cap.String(),
		StartHeight: params.StartHeight,
		EndHeight:   params.EndHeight,
		RatePolicy:  policy,
		Encoded:     string(encoded),
	}, nil
}

// writeCompiled writes the compiled sales as indented JSON.
func writeCompiled(compiled []CompiledSale, path string) error {
	data, err := json.MarshalIndent(compiled, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, compiled []CompiledSale, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(compiled)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled %d sale(s)\n", len(compiled))
	for _, c := range compiled {
		fmt.Fprintf(w, "\n  %s\n", c.Name)
		if c.DAO != "" {
			fmt.Fprintf(w, "    dao:     %s\n", c.DAO)
		}
		fmt.Fprintf(w, "    asset:   %s\n", c.Asset)
		fmt.Fprintf(w, "    rate:    %s (%s)\n", c.Rate, c.RatePolicy)
		fmt.Fprintf(w, "    cap:     %s\n", c.Cap)
		fmt.Fprintf(w, "    window:  [%d, %d]\n", c.StartHeight, c.EndHeight)
		fmt.Fprintf(w, "    encoded: %s\n", c.Encoded)
	}
	if outputFile != "" {
		fmt.Fprintf(w, "\nOutput written to: %s\n", outputFile)
	}
	return nil
}

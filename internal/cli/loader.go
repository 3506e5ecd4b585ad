package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/capsale/internal/compiler"
	"github.com/roach88/capsale/internal/ir"
)

// loadManifests compiles path and returns the sale named sale, or every
// sale when sale is empty. Failures are written through f and returned
// as an ExitError.
func loadManifests(f *OutputFormatter, path, sale string) ([]compiler.Manifest, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("manifest not found: %s", path), nil)
	}

	manifests, err := compiler.LoadManifests(path)
	if err != nil {
		var cerr *compiler.CompileError
		if errors.As(err, &cerr) {
			return nil, f.Fail(ExitFailure, ErrCodeBuildFailed, cerr.Error(), compileErrorDetails(cerr))
		}
		return nil, f.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	f.VerboseLog("Loaded %d sale(s) from %s", len(manifests), path)

	if sale == "" {
		return manifests, nil
	}
	for _, m := range manifests {
		if m.Name == sale {
			return []compiler.Manifest{m}, nil
		}
	}
	return nil, f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("sale %q not found in %s", sale, path), nil)
}

// loadOneManifest is loadManifests for commands that act on one sale.
func loadOneManifest(f *OutputFormatter, path, sale string) (*compiler.Manifest, error) {
	manifests, err := loadManifests(f, path, sale)
	if err != nil {
		return nil, err
	}
	if len(manifests) != 1 {
		return nil, f.Fail(ExitCommandError, ErrCodeGeneric,
			fmt.Sprintf("%s declares %d sales; choose one with --sale", path, len(manifests)), nil)
	}
	return &manifests[0], nil
}

// validateManifests runs shape checks on every manifest.
func validateManifests(f *OutputFormatter, manifests []compiler.Manifest) []compiler.ValidationError {
	var all []compiler.ValidationError
	for i := range manifests {
		f.VerboseLog("Validating sale: %s", manifests[i].Name)
		all = append(all, compiler.Validate(&manifests[i])...)
	}
	return all
}

func compileErrorDetails(cerr *compiler.CompileError) map[string]any {
	details := map[string]any{"field": cerr.Field}
	if cerr.Pos.IsValid() {
		details["file"] = cerr.Pos.Filename()
		details["line"] = cerr.Pos.Line()
	}
	return details
}

// parseAddressFlag parses an address flag value.
func parseAddressFlag(f *OutputFormatter, flag, value string) (ir.Address, error) {
	addr, err := ir.ParseAddress(value)
	if err != nil {
		return ir.ZeroAddress, f.Fail(ExitCommandError, ErrCodeBadFlag, fmt.Sprintf("--%s: %v", flag, err), nil)
	}
	return addr, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

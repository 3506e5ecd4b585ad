// Command capsale compiles, plans and exercises capped token sales.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/capsale/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}

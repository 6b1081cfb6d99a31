// Package cli implements the weft command line: expression tooling,
// schema validation, and the node process itself.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the weft CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "weft",
		Short: "weft - versioned fields and derived transforms",
		Long:  "A node-local data platform: versioned field storage with an expression DSL for derived values.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewParseCommand(opts))
	cmd.AddCommand(NewEvalCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

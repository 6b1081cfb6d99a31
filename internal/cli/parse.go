package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/weftdb/weft/internal/expr"
	"github.com/weftdb/weft/internal/parser"
)

// ParseResult is the output of the parse command.
type ParseResult struct {
	Valid     bool   `json:"valid"`
	Canonical string `json:"canonical,omitempty"`
	Error     string `json:"error,omitempty"`
}

// NewParseCommand creates the parse command: check transform logic and
// print its canonical form.
func NewParseCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "parse <logic>",
		Short: "Parse transform logic and print its canonical form",
		Long: `Parse a transform body and print the canonical text rebuilt from its AST.

Exit status is non-zero for invalid logic; the parse error names the
offending position.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			result := ParseResult{Valid: true}
			stmts, err := parser.ParseProgram(args[0])
			if err != nil {
				result = ParseResult{Valid: false, Error: err.Error()}
			} else {
				result.Canonical = expr.RenderProgram(stmts)
			}

			out := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				if err := json.NewEncoder(out).Encode(result); err != nil {
					return err
				}
			} else if result.Valid {
				fmt.Fprintln(out, result.Canonical)
			} else {
				fmt.Fprintf(out, "parse error: %s\n", result.Error)
			}

			if !result.Valid {
				return fmt.Errorf("invalid logic")
			}
			return nil
		},
	}
}

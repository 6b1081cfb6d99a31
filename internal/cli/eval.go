package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/weftdb/weft/internal/expr"
	"github.com/weftdb/weft/internal/interp"
	"github.com/weftdb/weft/internal/parser"
)

// EvalResult is the output of the eval command.
type EvalResult struct {
	Value any    `json:"value,omitempty"`
	Error string `json:"error,omitempty"`
}

// NewEvalCommand creates the eval command: run transform logic against
// bindings supplied on the command line.
func NewEvalCommand(rootOpts *RootOptions) *cobra.Command {
	var bindings []string

	cmd := &cobra.Command{
		Use:   "eval <logic>",
		Short: "Evaluate transform logic with --bind name=value bindings",
		Long: `Evaluate a transform body against an environment built from --bind flags.

Values parse as numbers, true/false, null, or fall back to strings:

  weft eval --bind value1=2 --bind value2=3 "return (value1 + value2)"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env := interp.Env{}
			for _, b := range bindings {
				name, raw, ok := strings.Cut(b, "=")
				if !ok {
					return fmt.Errorf("binding %q is not name=value", b)
				}
				env[name] = parseBinding(raw)
			}

			out := cmd.OutOrStdout()
			stmts, err := parser.ParseProgram(args[0])
			if err != nil {
				return emitEvalError(out, rootOpts.Format, err)
			}
			result, err := interp.EvalProgram(stmts, env)
			if err != nil {
				return emitEvalError(out, rootOpts.Format, err)
			}

			if rootOpts.Format == "json" {
				return json.NewEncoder(out).Encode(EvalResult{Value: expr.ToGo(result)})
			}
			fmt.Fprintln(out, expr.FormatValue(result))
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&bindings, "bind", nil, "environment binding name=value (repeatable)")
	return cmd
}

func emitEvalError(out io.Writer, format string, err error) error {
	if format == "json" {
		_ = json.NewEncoder(out).Encode(EvalResult{Error: err.Error()})
	} else {
		fmt.Fprintf(out, "error: %s\n", err.Error())
	}
	return err
}

// parseBinding maps a flag value onto the expression value model.
func parseBinding(raw string) expr.Value {
	switch raw {
	case "true":
		return expr.Bool(true)
	case "false":
		return expr.Bool(false)
	case "null":
		return expr.Null{}
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return expr.Number(n)
	}
	return expr.String(raw)
}

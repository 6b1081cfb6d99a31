package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/weftdb/weft/internal/schema"
	"github.com/weftdb/weft/internal/transform"
)

// ValidationResult holds the outcome of validating one schema file.
type ValidationResult struct {
	Valid   bool     `json:"valid"`
	Schemas []string `json:"schemas,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command: compile a CUE schema
// file and check every transform body parses.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <schema-file>",
		Short: "Validate a CUE schema file and its transform bodies",
		Long: `Compile a CUE schema file without loading it into a node.

Checks field declarations and parses every transform body, so a schema
containing an invalid transform is reported here instead of at load time.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			result := validateFile(args[0])

			out := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				if err := json.NewEncoder(out).Encode(result); err != nil {
					return err
				}
			} else if result.Valid {
				fmt.Fprintf(out, "ok: %d schema(s)\n", len(result.Schemas))
				for _, name := range result.Schemas {
					fmt.Fprintf(out, "  %s\n", name)
				}
			} else {
				for _, e := range result.Errors {
					fmt.Fprintf(out, "invalid: %s\n", e)
				}
			}

			if !result.Valid {
				return fmt.Errorf("validation failed")
			}
			return nil
		},
	}
}

func validateFile(path string) ValidationResult {
	schemas, err := schema.CompileFile(path)
	if err != nil {
		return ValidationResult{Errors: []string{err.Error()}}
	}

	result := ValidationResult{Valid: true}
	for _, s := range schemas {
		result.Schemas = append(result.Schemas, s.Name)
		for _, d := range s.Transforms {
			if _, err := transform.FromDeclaration(s.Name, d); err != nil {
				result.Valid = false
				result.Errors = append(result.Errors, err.Error())
			}
		}
	}
	if !result.Valid {
		result.Schemas = nil
	}
	return result
}

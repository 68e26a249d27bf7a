package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	notesstack "github.com/lex00/notes-stack-go"
	"github.com/lex00/notes-stack-go/internal/model"
	"github.com/lex00/notes-stack-go/internal/validation"
)

// newValidateCmd creates the "validate" subcommand.
func newValidateCmd(opts *globalOptions) *cobra.Command {
	var (
		outputFormat string
		skipLint     bool
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the topology and the synthesized template",
		Long: `Validate builds the Notes topology and checks it before anything is provisioned.

Checks performed:
  - Configuration: the artifact and schema files exist
  - Graph: references, grants, bindings and indexes point at declared resources
  - Template: cfn-lint rules on the synthesized CloudFormation template

Examples:
    notes-stack validate
    notes-stack validate --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := runValidate(cmd, opts, skipLint)
			if err != nil {
				return err
			}
			return outputValidateResult(*result, outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format: text or json")
	cmd.Flags().BoolVar(&skipLint, "skip-lint", false, "Skip cfn-lint on the synthesized template")

	return cmd
}

func runValidate(cmd *cobra.Command, opts *globalOptions, skipLint bool) (*notesstack.ValidateResult, error) {
	_, g, err := opts.graph()
	if err != nil {
		var verrs model.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, err
		}
		result := &notesstack.ValidateResult{}
		for _, e := range verrs {
			result.Errors = append(result.Errors, e.Error())
		}
		return result, nil
	}

	if skipLint {
		return validation.Validate(g, nil)
	}
	_, tmpl, err := synthesize(cmd.Context(), g)
	if err != nil {
		return nil, err
	}
	return validation.Validate(g, tmpl)
}

func outputValidateResult(result notesstack.ValidateResult, format string) error {
	switch format {
	case "json":
		if err := printJSON(result); err != nil {
			return err
		}

	case "text":
		if result.Success {
			fmt.Printf("Validation passed: %d resources OK\n", result.Resources)
			for _, warnMsg := range result.Warnings {
				fmt.Printf("  WARNING: %s\n", warnMsg)
			}
			return nil
		}

		fmt.Println("Validation FAILED:")
		for _, errMsg := range result.Errors {
			fmt.Printf("  ERROR: %s\n", errMsg)
		}
		for _, warnMsg := range result.Warnings {
			fmt.Printf("  WARNING: %s\n", warnMsg)
		}

	default:
		return fmt.Errorf("unknown format: %s", format)
	}

	if !result.Success {
		return fmt.Errorf("validation failed with %d errors", len(result.Errors))
	}
	return nil
}

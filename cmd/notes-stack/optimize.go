package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	notesstack "github.com/lex00/notes-stack-go"
	"github.com/lex00/notes-stack-go/internal/differ"
	"github.com/lex00/notes-stack-go/internal/optimizer"
)

// newOptimizeCmd creates the "optimize" subcommand for suggesting improvements.
func newOptimizeCmd(opts *globalOptions) *cobra.Command {
	var (
		outputFormat string
		category     string
	)

	cmd := &cobra.Command{
		Use:   "optimize [template]",
		Short: "Suggest improvements to the synthesized template",
		Long: `Optimize analyzes the CloudFormation resources of the Notes stack and
suggests improvements for security, cost, performance, and reliability.

Without an argument the stack is synthesized from the current configuration.
A previously written template (JSON or YAML) can be given instead.

Categories:
    security     - Encryption, authorization, least privilege
    cost         - Capacity mode, function timeouts
    performance  - Tracing, memory for managed runtimes
    reliability  - Backups, deletion policies, API key expiry

Examples:
    notes-stack optimize
    notes-stack optimize --category security
    notes-stack optimize template.json -f json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !optimizer.ValidCategory(category) {
				return fmt.Errorf("invalid category: %s (valid: all, %s)", category, strings.Join(optimizer.Categories, ", "))
			}

			var tmpl *notesstack.Template
			if len(args) == 1 {
				t, err := differ.LoadTemplate(args[0])
				if err != nil {
					return fmt.Errorf("optimize failed: %w", err)
				}
				tmpl = t
			} else {
				_, g, err := opts.graph()
				if err != nil {
					return err
				}
				if _, tmpl, err = synthesize(cmd.Context(), g); err != nil {
					return fmt.Errorf("optimize failed: %w", err)
				}
			}

			result, err := runOptimize(tmpl, category)
			if err != nil {
				return err
			}
			return outputOptimizeResult(*result, outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format: text or json")
	cmd.Flags().StringVarP(&category, "category", "c", "all", "Category: all, security, cost, performance, or reliability")

	return cmd
}

func runOptimize(tmpl *notesstack.Template, category string) (*notesstack.OptimizeResult, error) {
	optResult, err := optimizer.Optimize(tmpl, optimizer.Options{Category: category})
	if err != nil {
		return nil, fmt.Errorf("optimize failed: %w", err)
	}
	return &notesstack.OptimizeResult{
		Success:       true,
		Suggestions:   optResult.Suggestions,
		ResourceCount: len(tmpl.Resources),
		Summary:       optResult.Summary,
	}, nil
}

// outputOptimizeResult prints suggestions grouped by category. Suggestions
// are not an error.
func outputOptimizeResult(result notesstack.OptimizeResult, format string) error {
	switch format {
	case "json":
		return printJSON(result)

	case "text":
		if len(result.Suggestions) == 0 {
			fmt.Printf("Analyzed %d resources. No optimization suggestions.\n", result.ResourceCount)
			return nil
		}

		fmt.Printf("Analyzed %d resources. Found %d suggestions:\n\n", result.ResourceCount, result.Summary.Total)

		byCat := map[string][]notesstack.OptimizeSuggestion{}
		for _, s := range result.Suggestions {
			byCat[s.Category] = append(byCat[s.Category], s)
		}

		for _, cat := range optimizer.Categories {
			suggestions := byCat[cat]
			if len(suggestions) == 0 {
				continue
			}

			fmt.Printf("=== %s (%d) ===\n", strings.ToUpper(cat[:1])+cat[1:], len(suggestions))
			for _, s := range suggestions {
				fmt.Printf("\n[%s] %s\n", s.Severity, s.Title)
				fmt.Printf("  Resource: %s (%s)\n", s.Resource, s.Rule)
				fmt.Printf("  %s\n", s.Description)
				fmt.Printf("  Suggestion: %s\n", s.Suggestion)
			}
			fmt.Println()
		}

		fmt.Printf("Summary: %d security, %d cost, %d performance, %d reliability\n",
			result.Summary.Security, result.Summary.Cost,
			result.Summary.Performance, result.Summary.Reliability)
		return nil

	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

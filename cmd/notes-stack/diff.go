package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lex00/notes-stack-go/internal/differ"
)

func newDiffCmd(opts *globalOptions) *cobra.Command {
	var (
		outputFormat string
		ignoreOrder  bool
	)

	cmd := &cobra.Command{
		Use:   "diff <template1> [template2]",
		Short: "Compare two CloudFormation templates",
		Long: `Diff reports resources added, removed or modified between two templates.
With a single template, it is compared against a fresh synth of the topology,
showing what the next "apply --target aws" would change.

Examples:
    notes-stack diff deployed.json new.json
    notes-stack diff deployed.yaml
    notes-stack diff a.json b.json --ignore-order -f json`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			diffOpts := differ.Options{IgnoreOrder: ignoreOrder}

			var (
				result *differ.Result
				err    error
			)
			if len(args) == 2 {
				result, err = differ.CompareFiles(args[0], args[1], diffOpts)
			} else {
				before, lerr := differ.LoadTemplate(args[0])
				if lerr != nil {
					return fmt.Errorf("failed to load %s: %w", args[0], lerr)
				}
				_, g, gerr := opts.graph()
				if gerr != nil {
					return gerr
				}
				_, after, serr := synthesize(cmd.Context(), g)
				if serr != nil {
					return serr
				}
				result, err = differ.Compare(before, after, diffOpts)
			}
			if err != nil {
				return err
			}
			return printDiff(result, outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format: text or json")
	cmd.Flags().BoolVar(&ignoreOrder, "ignore-order", false, "Treat arrays as unordered")

	return cmd
}

func printDiff(result *differ.Result, format string) error {
	switch format {
	case "json":
		return printJSON(struct {
			Diff    any      `json:"diff"`
			Summary any      `json:"summary"`
			Outputs []string `json:"outputs,omitempty"`
		}{result.Diff, result.Summary, result.Outputs})
	case "text":
	default:
		return fmt.Errorf("unknown format: %s", format)
	}

	if result.Empty() {
		fmt.Println("No differences")
		return nil
	}
	for _, e := range result.Diff.Added {
		fmt.Printf("+ %s (%s)\n", e.Resource, e.Type)
	}
	for _, e := range result.Diff.Removed {
		fmt.Printf("- %s (%s)\n", e.Resource, e.Type)
	}
	for _, e := range result.Diff.Modified {
		fmt.Printf("~ %s (%s)\n", e.Resource, e.Type)
		for _, c := range e.Changes {
			fmt.Printf("    %s\n", c)
		}
	}
	if len(result.Outputs) > 0 {
		fmt.Printf("Outputs changed: %s\n", strings.Join(result.Outputs, ", "))
	}
	fmt.Printf("\n%d added, %d removed, %d modified\n",
		result.Summary.Added, result.Summary.Removed, result.Summary.Modified)
	return nil
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	notesstack "github.com/lex00/notes-stack-go"
	"github.com/lex00/notes-stack-go/internal/template"
)

func newSynthCmd(opts *globalOptions) *cobra.Command {
	var (
		outputFormat string
		outputFile   string
		report       bool
	)

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Generate the CloudFormation template",
		Long: `Synth builds the Notes topology and renders it as a CloudFormation template.

The Lambda code location is left to the AssetBucket and AssetKey parameters,
which "apply --target aws" fills in after publishing the artifact.

Examples:
    notes-stack synth --artifact lambda.zip --schema schema.graphql
    notes-stack synth -f yaml -o template.yaml
    notes-stack synth --report`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSynth(cmd, opts, outputFormat, outputFile, report)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "json", "Output format: json or yaml")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().BoolVar(&report, "report", false, "Print a JSON report with the template and resource names")

	return cmd
}

func runSynth(cmd *cobra.Command, opts *globalOptions, format, outputFile string, report bool) error {
	_, g, err := opts.graph()
	if err != nil {
		if report {
			_ = printJSON(notesstack.SynthResult{Success: false, Errors: []string{err.Error()}})
		}
		return err
	}

	synth, tmpl, err := synthesize(cmd.Context(), g)
	if err != nil {
		if report {
			_ = printJSON(notesstack.SynthResult{Success: false, Errors: []string{err.Error()}})
		}
		return fmt.Errorf("synth failed: %w", err)
	}

	if report {
		order, err := synth.Builder().Order()
		if err != nil {
			return err
		}
		return printJSON(notesstack.SynthResult{Success: true, Template: *tmpl, Resources: order})
	}

	return writeTemplate(tmpl, format, outputFile)
}

func writeTemplate(tmpl *notesstack.Template, format, outputFile string) error {
	data, err := template.Format(tmpl, format)
	if err != nil {
		return err
	}
	if outputFile == "" {
		fmt.Println(string(data))
		return nil
	}
	return os.WriteFile(outputFile, data, 0644)
}

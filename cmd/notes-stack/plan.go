package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	notesstack "github.com/lex00/notes-stack-go"
	"github.com/lex00/notes-stack-go/internal/provider/local"
	"github.com/lex00/notes-stack-go/internal/provision"
)

const defaultStateFile = ".notes-stack/state.yaml"

func newPlanCmd(opts *globalOptions) *cobra.Command {
	var (
		stateFile    string
		outputFormat string
		showAll      bool
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what a local apply would change",
		Long: `Plan reconciles the topology against a copy of the local state file and
reports, per resource, whether it would be created, updated or left unchanged.
The state file is never written.

Examples:
    notes-stack plan
    notes-stack plan --state prod.yaml --all
    notes-stack plan -f json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := runPlan(cmd, opts, stateFile)
			if err != nil {
				return err
			}
			return printPlan(result, outputFormat, showAll)
		},
	}

	cmd.Flags().StringVar(&stateFile, "state", defaultStateFile, "Local state file")
	cmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format: text or json")
	cmd.Flags().BoolVar(&showAll, "all", false, "Include unchanged resources in text output")

	return cmd
}

func runPlan(cmd *cobra.Command, opts *globalOptions, stateFile string) (*notesstack.PlanResult, error) {
	cfg, g, err := opts.graph()
	if err != nil {
		return nil, err
	}

	st, err := local.Load(stateFile)
	if err != nil {
		return nil, err
	}
	provider := local.New(cfg.Region, cfg.Account, local.WithState(st.Clone()))

	if _, err := provision.Apply(cmd.Context(), g, provider, provision.WithLogger(slog.Default())); err != nil {
		return nil, err
	}
	return planResult(provider), nil
}

// planResult converts the provider's call trace to plan changes.
func planResult(p *local.Provider) *notesstack.PlanResult {
	result := &notesstack.PlanResult{Changes: []notesstack.PlanChange{}}
	resources := p.State().Resources
	for _, call := range p.Calls() {
		res, ok := resources[call.Resource]
		if !ok || call.Op == "DescribeGateway" {
			continue
		}
		result.Changes = append(result.Changes, notesstack.PlanChange{
			Resource: call.Resource,
			Kind:     res.Kind,
			Action:   string(call.Action),
		})
	}
	return result
}

func printPlan(result *notesstack.PlanResult, format string, showAll bool) error {
	if format == "json" {
		return printJSON(result)
	}

	counts := make(map[string]int)
	for _, c := range result.Changes {
		counts[c.Action]++
		if c.Action == string(local.Unchanged) && !showAll {
			continue
		}
		fmt.Printf("%-10s %-13s %s\n", c.Action, c.Kind, c.Resource)
	}
	fmt.Printf("\nPlan: %d to create, %d to update, %d unchanged\n",
		counts[string(local.Created)], counts[string(local.Updated)], counts[string(local.Unchanged)])
	return nil
}

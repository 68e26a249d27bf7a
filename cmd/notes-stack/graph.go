package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lex00/notes-stack-go/internal/graph"
)

func newGraphCmd(opts *globalOptions) *cobra.Command {
	var (
		outputFormat    string
		includeBindings bool
		clusterByType   bool
		fromTemplate    bool
	)

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Generate a DOT or Mermaid graph of the stack",
		Long: `Graph draws the Notes topology: tables, the function, the GraphQL API and
the references and grants between them. With --template the synthesized
CloudFormation resources and their dependencies are drawn instead.

The output can be rendered with Graphviz:
    notes-stack graph | dot -Tpng -o stack.png

Or used in GitHub markdown (Mermaid format):
    notes-stack graph -f mermaid

Examples:
    notes-stack graph -b              # include resolvers
    notes-stack graph -c              # cluster by kind
    notes-stack graph --template -c   # CloudFormation resources by service`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var graphFormat graph.Format
			switch outputFormat {
			case "dot":
				graphFormat = graph.FormatDOT
			case "mermaid":
				graphFormat = graph.FormatMermaid
			default:
				return fmt.Errorf("unknown format: %s (use 'dot' or 'mermaid')", outputFormat)
			}

			_, g, err := opts.graph()
			if err != nil {
				return err
			}
			gen := &graph.Generator{
				Format:          graphFormat,
				IncludeBindings: includeBindings,
				ClusterByType:   clusterByType,
			}
			if !fromTemplate {
				return gen.Generate(g, os.Stdout)
			}

			synth, tmpl, err := synthesize(cmd.Context(), g)
			if err != nil {
				return err
			}
			deps, err := synth.Builder().Dependencies()
			if err != nil {
				return err
			}
			return gen.GenerateTemplate(tmpl, deps, os.Stdout)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "dot", "Output format: dot or mermaid")
	cmd.Flags().BoolVarP(&includeBindings, "bindings", "b", false, "Include a node per query and mutation")
	cmd.Flags().BoolVarP(&clusterByType, "cluster", "c", false, "Cluster nodes by kind or AWS service")
	cmd.Flags().BoolVar(&fromTemplate, "template", false, "Graph the synthesized CloudFormation resources")

	return cmd
}

// Command notes-stack provisions the Notes application stack.
//
// Usage:
//
//	notes-stack synth                 Generate the CloudFormation template
//	notes-stack plan                  Show what a local reconcile would change
//	notes-stack apply                 Reconcile locally or deploy to AWS
//	notes-stack validate              Check the graph and the template
//	notes-stack optimize              Suggest template improvements
//	notes-stack diff                  Compare templates
//	notes-stack version               Show version
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lex00/notes-stack-go/internal/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "notes-stack",
		Short: "Provision the Notes application stack",
		Long: `notes-stack provisions the Notes application: two DynamoDB tables,
a .NET Lambda function and an AppSync GraphQL API wired to it.

The topology is declared once and can be synthesized to CloudFormation,
planned and applied against a local state file, or deployed to AWS:

    notes-stack synth --artifact lambda.zip --schema schema.graphql
    notes-stack apply --target aws --asset-bucket my-assets`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Init(logger.Options{Level: opts.logLevel, Format: opts.logFormat})
		},
	}

	opts.register(rootCmd)

	rootCmd.AddCommand(
		newSynthCmd(opts),
		newPlanCmd(opts),
		newApplyCmd(opts),
		newOutputsCmd(),
		newGraphCmd(opts),
		newValidateCmd(opts),
		newOptimizeCmd(opts),
		newDiffCmd(opts),
		newWatchCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("notes-stack %s\n", getVersion())
		},
	}
}

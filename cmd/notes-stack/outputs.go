package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lex00/notes-stack-go/internal/deploy"
	"github.com/lex00/notes-stack-go/internal/model"
	"github.com/lex00/notes-stack-go/internal/provision"
)

func newOutputsCmd() *cobra.Command {
	var (
		authMode     string
		outputFormat string
		stackName    string
		region       string
	)

	cmd := &cobra.Command{
		Use:   "outputs [stack-outputs.json]",
		Short: "Report the GraphQL endpoint and API key of a stack",
		Long: `Outputs reads the GraphQLApiURL and GraphQLApiKey outputs of a deployed stack.

The input is either the JSON printed by "aws cloudformation describe-stacks"
or a flat JSON object of output names to values. Without a file, the
outputs of --stack are read from CloudFormation.

Examples:
    aws cloudformation describe-stacks --stack-name NotesAppStack > stack.json
    notes-stack outputs stack.json
    notes-stack outputs --stack NotesAppStack --region eu-west-1 -f json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := model.AuthMode(authMode)
			var (
				resp provision.Response
				err  error
			)
			if len(args) == 1 {
				resp, err = readOutputsFile(args[0], mode)
			} else {
				if stackName == "" {
					return fmt.Errorf("either a file or --stack is required")
				}
				client, cerr := deploy.NewCloudFormationClient(cmd.Context(), region)
				if cerr != nil {
					return cerr
				}
				resp, err = deploy.NewDeployer(client).Describe(cmd.Context(), stackName, mode)
			}
			if err != nil {
				return err
			}

			outputs, err := provision.ExtractOutputs(resp)
			if err != nil {
				return err
			}
			return printOutputs(outputs, outputFormat)
		},
	}

	cmd.Flags().StringVar(&authMode, "auth-mode", string(model.AuthAPIKey), "Authorization mode of the GraphQL API")
	cmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format: text or json")
	cmd.Flags().StringVar(&stackName, "stack", "", "Read outputs from this deployed stack")
	cmd.Flags().StringVar(&region, "stack-region", defaultRegion, "Region of --stack")

	return cmd
}

// describeStacks is the part of the describe-stacks JSON document used here.
type describeStacks struct {
	Stacks []struct {
		Outputs []struct {
			OutputKey   string `json:"OutputKey"`
			OutputValue string `json:"OutputValue"`
		} `json:"Outputs"`
	} `json:"Stacks"`
}

func readOutputsFile(path string, mode model.AuthMode) (provision.Response, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return provision.Response{}, err
	}
	return parseOutputs(data, mode)
}

func parseOutputs(data []byte, mode model.AuthMode) (provision.Response, error) {
	resp := provision.Response{AuthMode: mode, Outputs: map[string]string{}}

	var doc describeStacks
	if err := json.Unmarshal(data, &doc); err == nil && len(doc.Stacks) > 0 {
		for _, o := range doc.Stacks[0].Outputs {
			resp.Outputs[o.OutputKey] = o.OutputValue
		}
		return resp, nil
	}

	var flat map[string]string
	if err := json.Unmarshal(data, &flat); err != nil {
		return resp, fmt.Errorf("parsing outputs: expected describe-stacks JSON or an object of strings: %w", err)
	}
	resp.Outputs = flat
	return resp, nil
}

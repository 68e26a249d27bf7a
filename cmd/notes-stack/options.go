package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	notesstack "github.com/lex00/notes-stack-go"
	"github.com/lex00/notes-stack-go/internal/model"
	"github.com/lex00/notes-stack-go/internal/provider/cfn"
	"github.com/lex00/notes-stack-go/internal/provision"
	"github.com/lex00/notes-stack-go/internal/topology"
)

// Environment variables used as flag defaults.
const (
	envAccount  = "CDK_DEFAULT_ACCOUNT"
	envRegion   = "CDK_DEFAULT_REGION"
	envArtifact = "NOTES_ARTIFACT_PATH"
	envSchema   = "NOTES_SCHEMA_PATH"
)

const defaultRegion = "us-east-1"

const templateDescription = "Notes application: DynamoDB tables, Lambda function and AppSync GraphQL API"

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	account    string
	region     string
	artifact   string
	schema     string
	stackName  string
	configFile string
	logLevel   string
	logFormat  string
}

func (o *globalOptions) register(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVar(&o.account, "account", "", "AWS account ID (default: $"+envAccount+")")
	f.StringVar(&o.region, "region", "", "AWS region (default: $"+envRegion+" or "+defaultRegion+")")
	f.StringVar(&o.artifact, "artifact", "", "Path to the Lambda deployment package (default: $"+envArtifact+")")
	f.StringVar(&o.schema, "schema", "", "Path to the GraphQL schema (default: $"+envSchema+")")
	f.StringVar(&o.stackName, "stack-name", "", "CloudFormation stack name (default: "+topology.DefaultStackName+")")
	f.StringVar(&o.configFile, "config", "", "YAML config file")
	f.StringVar(&o.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	f.StringVar(&o.logFormat, "log-format", "", "Log format: text or json")
}

// config resolves the topology config. Flags win over the config file,
// which wins over the environment.
func (o *globalOptions) config() (topology.Config, error) {
	cfg := topology.Config{
		Account:      o.account,
		Region:       o.region,
		ArtifactPath: o.artifact,
		SchemaPath:   o.schema,
		StackName:    o.stackName,
	}
	if o.configFile != "" {
		fileCfg, err := topology.LoadConfig(o.configFile)
		if err != nil {
			return cfg, err
		}
		cfg = cfg.Merge(fileCfg)
	}
	cfg = cfg.Merge(topology.Config{
		Account:      os.Getenv(envAccount),
		Region:       os.Getenv(envRegion),
		ArtifactPath: os.Getenv(envArtifact),
		SchemaPath:   os.Getenv(envSchema),
	})
	if cfg.Region == "" {
		cfg.Region = defaultRegion
	}
	return cfg, nil
}

// graph resolves the config and builds the Notes topology.
func (o *globalOptions) graph() (topology.Config, *model.Graph, error) {
	cfg, err := o.config()
	if err != nil {
		return cfg, nil, err
	}
	g, err := topology.BuildTopology(cfg)
	return cfg, g, err
}

// synthesize applies g against the template synthesizer.
func synthesize(ctx context.Context, g *model.Graph) (*cfn.Synthesizer, *notesstack.Template, error) {
	synth := cfn.New(cfn.WithDescription(templateDescription))
	if _, err := provision.Apply(ctx, g, synth); err != nil {
		return nil, nil, err
	}
	tmpl, err := synth.Template()
	if err != nil {
		return nil, nil, err
	}
	return synth, tmpl, nil
}

// gatewayMode returns the auth mode of the first gateway in g.
func gatewayMode(g *model.Graph) model.AuthMode {
	if len(g.Gateways) == 0 {
		return ""
	}
	return g.Gateways[0].Auth.Mode
}

func printOutputs(outputs model.ProvisionedOutputs, format string) error {
	result := notesstack.OutputsResult{
		GraphQLApiURL: outputs.GatewayURL,
		GraphQLApiKey: outputs.APIKeyOrSentinel(),
	}
	if format == "json" {
		return printJSON(result)
	}
	fmt.Printf("%s = %s\n", provision.OutputURL, result.GraphQLApiURL)
	fmt.Printf("%s = %s\n", provision.OutputAPIKey, result.GraphQLApiKey)
	return nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

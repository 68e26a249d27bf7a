package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lex00/notes-stack-go/internal/deploy"
	"github.com/lex00/notes-stack-go/internal/model"
	"github.com/lex00/notes-stack-go/internal/provider/cfn"
	"github.com/lex00/notes-stack-go/internal/provider/local"
	"github.com/lex00/notes-stack-go/internal/provision"
	"github.com/lex00/notes-stack-go/internal/template"
	"github.com/lex00/notes-stack-go/internal/topology"
)

const (
	targetLocal = "local"
	targetAWS   = "aws"
)

type applyOptions struct {
	target       string
	stateFile    string
	outputFormat string
	sequential   bool

	store   deploy.StoreConfig
	maxWait time.Duration
}

func newApplyCmd(opts *globalOptions) *cobra.Command {
	var ao applyOptions

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Reconcile locally or deploy to AWS",
		Long: `Apply provisions the Notes topology and prints the GraphQL endpoint.

With --target local (the default) resources are reconciled against the local
state file, which is saved afterwards so repeated runs converge.

With --target aws the template is synthesized, the Lambda artifact is
published to the asset bucket and the CloudFormation stack is created or
updated. An update with no changes succeeds without waiting.

Examples:
    notes-stack apply
    notes-stack apply --state prod.yaml -f json
    notes-stack apply --target aws --asset-bucket my-assets`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd.Context(), opts, ao)
		},
	}

	f := cmd.Flags()
	f.StringVar(&ao.target, "target", targetLocal, "Apply target: local or aws")
	f.StringVar(&ao.stateFile, "state", defaultStateFile, "Local state file (local target)")
	f.StringVarP(&ao.outputFormat, "format", "f", "text", "Output format: text or json")
	f.BoolVar(&ao.sequential, "sequential", false, "Provision collections one at a time (local target)")
	f.StringVar(&ao.store.Bucket, "asset-bucket", "", "S3 bucket for the Lambda artifact (aws target)")
	f.StringVar(&ao.store.Endpoint, "asset-endpoint", "s3.amazonaws.com", "S3 compatible endpoint for assets")
	f.BoolVar(&ao.store.Insecure, "asset-insecure", false, "Use plain HTTP for the asset endpoint")
	f.DurationVar(&ao.maxWait, "max-wait", deploy.DefaultMaxWait, "Maximum time to wait for the stack")

	return cmd
}

func runApply(ctx context.Context, opts *globalOptions, ao applyOptions) error {
	cfg, g, err := opts.graph()
	if err != nil {
		return err
	}

	var outputs model.ProvisionedOutputs
	switch ao.target {
	case targetLocal:
		outputs, err = applyLocal(ctx, cfg, g, ao)
	case targetAWS:
		outputs, err = applyAWS(ctx, cfg, g, ao)
	default:
		return fmt.Errorf("unknown target: %s (use 'local' or 'aws')", ao.target)
	}
	if err != nil {
		return err
	}
	return printOutputs(outputs, ao.outputFormat)
}

func applyLocal(ctx context.Context, cfg topology.Config, g *model.Graph, ao applyOptions) (model.ProvisionedOutputs, error) {
	st, err := local.Load(ao.stateFile)
	if err != nil {
		return model.ProvisionedOutputs{}, err
	}
	provider := local.New(cfg.Region, cfg.Account, local.WithState(st))

	applyOpts := []provision.Option{provision.WithLogger(slog.Default())}
	if ao.sequential {
		applyOpts = append(applyOpts, provision.WithSequentialCollections())
	}
	result, err := provision.Apply(ctx, g, provider, applyOpts...)
	if err != nil {
		// Whatever was created before the failure is kept.
		if saveErr := local.Save(ao.stateFile, provider.State()); saveErr != nil {
			slog.Error("saving partial state", "error", saveErr)
		}
		return model.ProvisionedOutputs{}, err
	}

	if err := local.Save(ao.stateFile, provider.State()); err != nil {
		return model.ProvisionedOutputs{}, err
	}
	slog.Info("state saved", "path", ao.stateFile, "changes", len(provider.Changes()))
	return result.Outputs, nil
}

func applyAWS(ctx context.Context, cfg topology.Config, g *model.Graph, ao applyOptions) (model.ProvisionedOutputs, error) {
	ao.store.Region = cfg.Region
	client, err := deploy.NewMinIOClient(ao.store)
	if err != nil {
		return model.ProvisionedOutputs{}, &model.ConfigError{Field: "asset store", Err: err}
	}
	cfnClient, err := deploy.NewCloudFormationClient(ctx, cfg.Region)
	if err != nil {
		return model.ProvisionedOutputs{}, err
	}

	publisher := deploy.NewAssetPublisher(client, ao.store.Bucket, cfg.Region, slog.Default())
	deployer := deploy.NewDeployer(cfnClient, deploy.WithMaxWait(ao.maxWait), deploy.WithDeployLogger(slog.Default()))
	return deployStack(ctx, cfg, g, publisher, deployer)
}

// deployStack synthesizes g, publishes the artifact and deploys the stack.
// Templates over the inline limit are published next to the artifact.
func deployStack(ctx context.Context, cfg topology.Config, g *model.Graph, publisher *deploy.AssetPublisher, deployer *deploy.Deployer) (model.ProvisionedOutputs, error) {
	_, tmpl, err := synthesize(ctx, g)
	if err != nil {
		return model.ProvisionedOutputs{}, err
	}
	body, err := template.ToJSON(tmpl)
	if err != nil {
		return model.ProvisionedOutputs{}, err
	}

	artifact, err := publisher.PublishFile(ctx, cfg.ArtifactPath, "application/zip")
	if err != nil {
		return model.ProvisionedOutputs{}, &provision.ProviderError{Op: "publish artifact", Resource: cfg.ArtifactPath, Err: err}
	}

	in := deploy.StackInput{
		StackName:    cfg.Stack(),
		TemplateBody: body,
		Parameters: map[string]string{
			cfn.ParamAssetBucket: artifact.Bucket,
			cfn.ParamAssetKey:    artifact.Key,
		},
		AuthMode: gatewayMode(g),
	}
	if len(body) > deploy.MaxTemplateBody {
		asset, err := publisher.PublishBytes(ctx, "templates", body, "application/json")
		if err != nil {
			return model.ProvisionedOutputs{}, &provision.ProviderError{Op: "publish template", Resource: cfg.Stack(), Err: err}
		}
		in.TemplateURL = publisher.URL(asset)
	}

	result, err := deployer.Deploy(ctx, in)
	if err != nil {
		return model.ProvisionedOutputs{}, err
	}
	fmt.Fprintf(os.Stderr, "Stack %s: %s\n", cfg.Stack(), result.Operation)
	return provision.ExtractOutputs(result.Response)
}

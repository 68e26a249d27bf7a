package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/smithy-go"

	"github.com/lex00/notes-stack-go/internal/model"
	"github.com/lex00/notes-stack-go/internal/provision"
)

// MaxTemplateBody is the largest template CloudFormation accepts inline.
const MaxTemplateBody = 51200

// DefaultMaxWait bounds how long a deploy waits for the stack to settle.
const DefaultMaxWait = 30 * time.Minute

// CloudFormationAPI is the subset of *cloudformation.Client used here.
type CloudFormationAPI interface {
	DescribeStacks(ctx context.Context, in *cloudformation.DescribeStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error)
	CreateStack(ctx context.Context, in *cloudformation.CreateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.CreateStackOutput, error)
	UpdateStack(ctx context.Context, in *cloudformation.UpdateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.UpdateStackOutput, error)
}

// NewCloudFormationClient loads the default AWS configuration for region.
func NewCloudFormationClient(ctx context.Context, region string) (*cloudformation.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return cloudformation.NewFromConfig(cfg), nil
}

// WaitFunc blocks until a stack operation completes.
type WaitFunc func(ctx context.Context, stackName string, op Operation) error

// Operation is what a deploy did to the stack.
type Operation string

const (
	OpCreate    Operation = "create"
	OpUpdate    Operation = "update"
	OpUnchanged Operation = "unchanged"
)

// DeployerOption configures a Deployer.
type DeployerOption func(*Deployer)

// WithWaiter replaces the SDK waiters, mainly for tests.
func WithWaiter(wait WaitFunc) DeployerOption {
	return func(d *Deployer) { d.wait = wait }
}

// WithMaxWait bounds the SDK waiters.
func WithMaxWait(limit time.Duration) DeployerOption {
	return func(d *Deployer) { d.maxWait = limit }
}

// WithDeployLogger sets the logger.
func WithDeployLogger(logger *slog.Logger) DeployerOption {
	return func(d *Deployer) { d.logger = logger }
}

// Deployer creates or updates a CloudFormation stack.
type Deployer struct {
	client  CloudFormationAPI
	wait    WaitFunc
	maxWait time.Duration
	logger  *slog.Logger
}

// NewDeployer creates a deployer using client.
func NewDeployer(client CloudFormationAPI, opts ...DeployerOption) *Deployer {
	d := &Deployer{
		client:  client,
		maxWait: DefaultMaxWait,
		logger:  slog.Default(),
	}
	d.wait = d.sdkWait
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// StackInput describes one deployment.
type StackInput struct {
	StackName    string
	TemplateBody []byte
	// TemplateURL is used instead of the body when set.
	TemplateURL string
	Parameters  map[string]string
	// AuthMode of the stack's gateway, reported back with the outputs.
	AuthMode model.AuthMode
}

// StackResult is the outcome of a deployment.
type StackResult struct {
	Operation Operation
	Response  provision.Response
}

// Deploy creates the stack when absent and updates it otherwise. An update
// with nothing to change is not an error.
func (d *Deployer) Deploy(ctx context.Context, in StackInput) (*StackResult, error) {
	if in.TemplateURL == "" && len(in.TemplateBody) > MaxTemplateBody {
		return nil, fmt.Errorf("template is %d bytes, over the %d byte inline limit; publish it and pass a URL",
			len(in.TemplateBody), MaxTemplateBody)
	}

	stack, err := d.describe(ctx, in.StackName)
	if err != nil {
		return nil, &provision.ProviderError{Op: "describe stack", Resource: in.StackName, Err: err}
	}

	op := OpCreate
	if stack != nil {
		if stack.StackStatus == types.StackStatusRollbackComplete {
			return nil, &provision.ProviderError{Op: "update stack", Resource: in.StackName,
				Err: errors.New("stack is in ROLLBACK_COMPLETE and must be deleted before it can be deployed")}
		}
		op = OpUpdate
	}

	d.logger.Info("deploying stack", "stack", in.StackName, "operation", op)
	switch op {
	case OpCreate:
		_, err = d.client.CreateStack(ctx, &cloudformation.CreateStackInput{
			StackName:    aws.String(in.StackName),
			TemplateBody: body(in),
			TemplateURL:  url(in),
			Parameters:   parameters(in.Parameters),
			Capabilities: []types.Capability{types.CapabilityCapabilityIam},
		})
	case OpUpdate:
		_, err = d.client.UpdateStack(ctx, &cloudformation.UpdateStackInput{
			StackName:    aws.String(in.StackName),
			TemplateBody: body(in),
			TemplateURL:  url(in),
			Parameters:   parameters(in.Parameters),
			Capabilities: []types.Capability{types.CapabilityCapabilityIam},
		})
		if isNoUpdates(err) {
			op, err = OpUnchanged, nil
		}
	}
	if err != nil {
		return nil, &provision.ProviderError{Op: string(op) + " stack", Resource: in.StackName, Err: err}
	}

	if op != OpUnchanged {
		if err := d.wait(ctx, in.StackName, op); err != nil {
			return nil, &provision.ProviderError{Op: "wait for stack", Resource: in.StackName, Err: err}
		}
	}

	stack, err = d.describe(ctx, in.StackName)
	if err != nil {
		return nil, &provision.ProviderError{Op: "describe stack", Resource: in.StackName, Err: err}
	}
	if stack == nil {
		return nil, &provision.ProviderError{Op: "describe stack", Resource: in.StackName, Err: errors.New("stack disappeared")}
	}

	d.logger.Info("stack deployed", "stack", in.StackName, "operation", op, "status", stack.StackStatus)
	return &StackResult{
		Operation: op,
		Response:  provision.Response{AuthMode: in.AuthMode, Outputs: Outputs(stack)},
	}, nil
}

// Describe returns the stack outputs as a provision.Response.
func (d *Deployer) Describe(ctx context.Context, stackName string, mode model.AuthMode) (provision.Response, error) {
	stack, err := d.describe(ctx, stackName)
	if err != nil {
		return provision.Response{}, &provision.ProviderError{Op: "describe stack", Resource: stackName, Err: err}
	}
	if stack == nil {
		return provision.Response{}, &provision.ProviderError{Op: "describe stack", Resource: stackName, Err: errors.New("stack does not exist")}
	}
	return provision.Response{AuthMode: mode, Outputs: Outputs(stack)}, nil
}

// describe returns nil when the stack does not exist.
func (d *Deployer) describe(ctx context.Context, name string) (*types.Stack, error) {
	out, err := d.client.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{StackName: aws.String(name)})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ValidationError" &&
			strings.Contains(apiErr.ErrorMessage(), "does not exist") {
			return nil, nil
		}
		return nil, err
	}
	if len(out.Stacks) == 0 {
		return nil, nil
	}
	return &out.Stacks[0], nil
}

func (d *Deployer) sdkWait(ctx context.Context, name string, op Operation) error {
	in := &cloudformation.DescribeStacksInput{StackName: aws.String(name)}
	switch op {
	case OpCreate:
		return cloudformation.NewStackCreateCompleteWaiter(d.client).Wait(ctx, in, d.maxWait)
	case OpUpdate:
		return cloudformation.NewStackUpdateCompleteWaiter(d.client).Wait(ctx, in, d.maxWait)
	}
	return nil
}

// Outputs flattens stack outputs into a map.
func Outputs(stack *types.Stack) map[string]string {
	out := make(map[string]string, len(stack.Outputs))
	for _, o := range stack.Outputs {
		out[aws.ToString(o.OutputKey)] = aws.ToString(o.OutputValue)
	}
	return out
}

func isNoUpdates(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && strings.Contains(apiErr.ErrorMessage(), "No updates are to be performed")
}

func parameters(params map[string]string) []types.Parameter {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]types.Parameter, 0, len(keys))
	for _, k := range keys {
		out = append(out, types.Parameter{ParameterKey: aws.String(k), ParameterValue: aws.String(params[k])})
	}
	return out
}

func body(in StackInput) *string {
	if in.TemplateURL != "" {
		return nil
	}
	return aws.String(string(in.TemplateBody))
}

func url(in StackInput) *string {
	if in.TemplateURL == "" {
		return nil
	}
	return aws.String(in.TemplateURL)
}

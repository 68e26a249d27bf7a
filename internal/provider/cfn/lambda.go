package cfn

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	notesstack "github.com/lex00/notes-stack-go"
	"github.com/lex00/notes-stack-go/internal/model"
	"github.com/lex00/notes-stack-go/internal/provision"
	"github.com/lex00/notes-stack-go/internal/template"
	"github.com/lex00/notes-stack-go/intrinsics"
)

const (
	resourceRole     = "AWS::IAM::Role"
	resourcePolicy   = "AWS::IAM::Policy"
	resourceFunction = "AWS::Lambda::Function"
)

// Data access actions granted per access level.
var (
	readActions = []string{
		"dynamodb:BatchGetItem",
		"dynamodb:GetRecords",
		"dynamodb:GetShardIterator",
		"dynamodb:Query",
		"dynamodb:GetItem",
		"dynamodb:Scan",
		"dynamodb:ConditionCheckItem",
		"dynamodb:DescribeTable",
	}
	writeActions = []string{
		"dynamodb:BatchWriteItem",
		"dynamodb:PutItem",
		"dynamodb:UpdateItem",
		"dynamodb:DeleteItem",
		"dynamodb:DescribeTable",
	}
)

func actionsFor(access model.Access) []string {
	switch access {
	case model.AccessRead:
		return readActions
	case model.AccessWrite:
		return writeActions
	}
	seen := make(map[string]bool)
	var out []string
	for _, a := range append(append([]string(nil), readActions...), writeActions...) {
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	return out
}

type function struct {
	role       string
	policy     string
	statements map[string]intrinsics.PolicyStatement
}

type functionCode struct {
	S3Bucket any `json:"S3Bucket"`
	S3Key    any `json:"S3Key"`
}

type functionEnvironment struct {
	Variables map[string]any `json:"Variables"`
}

type functionProperties struct {
	Code        functionCode         `json:"Code"`
	Role        any                  `json:"Role"`
	Runtime     string               `json:"Runtime"`
	Handler     string               `json:"Handler"`
	Timeout     int                  `json:"Timeout,omitempty"`
	MemorySize  int                  `json:"MemorySize,omitempty"`
	Environment *functionEnvironment `json:"Environment,omitempty"`
}

type roleProperties struct {
	AssumeRolePolicyDocument intrinsics.PolicyDocument `json:"AssumeRolePolicyDocument"`
	ManagedPolicyArns        []any                     `json:"ManagedPolicyArns,omitempty"`
}

type policyProperties struct {
	PolicyName     string                    `json:"PolicyName"`
	PolicyDocument intrinsics.PolicyDocument `json:"PolicyDocument"`
	Roles          []any                     `json:"Roles"`
}

// PutComputeUnit implements provision.Provider. The function's code is
// read from the AssetBucket/AssetKey template parameters.
func (s *Synthesizer) PutComputeUnit(_ context.Context, spec model.ComputeUnitSpec, env map[string]any) (provision.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn, ok := s.functions[spec.ID]
	if !ok {
		fn = &function{
			role:       spec.ID + "ServiceRole",
			policy:     spec.ID + "ServiceRoleDefaultPolicy",
			statements: make(map[string]intrinsics.PolicyStatement),
		}
	}

	s.builder.AddParameter(ParamAssetBucket, notesstack.Parameter{
		Description: "S3 bucket holding function code",
	})
	s.builder.AddParameter(ParamAssetKey, notesstack.Parameter{
		Description: fmt.Sprintf("S3 key of %s", filepath.Base(spec.ArtifactPath)),
	})

	if err := s.put(fn.role, template.Resource{
		Type: resourceRole,
		Properties: roleProperties{
			AssumeRolePolicyDocument: intrinsics.AssumeRolePolicy("lambda.amazonaws.com"),
			ManagedPolicyArns: []any{
				intrinsics.ManagedPolicyArn("service-role/AWSLambdaBasicExecutionRole"),
			},
		},
	}); err != nil {
		return provision.Identity{}, err
	}

	props := functionProperties{
		Code:       functionCode{S3Bucket: ref(ParamAssetBucket), S3Key: ref(ParamAssetKey)},
		Role:       arnOf(fn.role),
		Runtime:    spec.Runtime,
		Handler:    spec.Handler,
		Timeout:    int(spec.Timeout.Seconds()),
		MemorySize: spec.MemoryMB,
	}
	if len(env) > 0 {
		props.Environment = &functionEnvironment{Variables: env}
	}

	var deps []string
	if len(fn.statements) > 0 {
		deps = []string{fn.policy}
	}
	if err := s.put(spec.ID, template.Resource{
		Type:       resourceFunction,
		Properties: props,
		DependsOn:  append(deps, fn.role),
	}); err != nil {
		return provision.Identity{}, err
	}
	s.functions[spec.ID] = fn

	return provision.Identity{
		ID: spec.ID,
		Attrs: map[string]any{
			model.AttrName: ref(spec.ID),
			model.AttrArn:  arnOf(spec.ID),
		},
	}, nil
}

// GrantAccess implements provision.Provider by adding a statement to the
// subject's default policy covering the table and its indexes.
func (s *Synthesizer) GrantAccess(_ context.Context, grant model.PermissionGrant, subject, object provision.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn, ok := s.functions[subject.ID]
	if !ok {
		return fmt.Errorf("function %s was not synthesized", subject.ID)
	}
	if _, ok := s.tables[object.ID]; !ok {
		return fmt.Errorf("table %s was not synthesized", object.ID)
	}
	tableArn, ok := object.Attr(model.AttrArn)
	if !ok {
		return fmt.Errorf("table %s has no ARN", object.ID)
	}

	fn.statements[grant.Key()] = intrinsics.Allow(actionsFor(grant.Access),
		tableArn,
		intrinsics.Join{Delimiter: "", Values: []any{tableArn, "/index/*"}},
	)

	keys := make([]string, 0, len(fn.statements))
	for k := range fn.statements {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	statements := make([]any, 0, len(keys))
	for _, k := range keys {
		statements = append(statements, fn.statements[k])
	}

	if err := s.put(fn.policy, template.Resource{
		Type: resourcePolicy,
		Properties: policyProperties{
			PolicyName:     fn.policy,
			PolicyDocument: intrinsics.NewPolicyDocument(statements...),
			Roles:          []any{ref(fn.role)},
		},
	}); err != nil {
		return err
	}

	// The function must not start before its permissions exist.
	res, _ := s.builder.Resource(subject.ID)
	for _, dep := range res.DependsOn {
		if dep == fn.policy {
			return nil
		}
	}
	res.DependsOn = append(res.DependsOn, fn.policy)
	return nil
}

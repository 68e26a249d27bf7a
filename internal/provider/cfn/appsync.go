package cfn

import (
	"context"
	"fmt"
	"time"

	notesstack "github.com/lex00/notes-stack-go"
	"github.com/lex00/notes-stack-go/internal/model"
	"github.com/lex00/notes-stack-go/internal/provision"
	"github.com/lex00/notes-stack-go/internal/template"
	"github.com/lex00/notes-stack-go/intrinsics"
)

const (
	resourceGraphQLAPI    = "AWS::AppSync::GraphQLApi"
	resourceGraphQLSchema = "AWS::AppSync::GraphQLSchema"
	resourceAPIKey        = "AWS::AppSync::ApiKey"
	resourceDataSource    = "AWS::AppSync::DataSource"
	resourceResolver      = "AWS::AppSync::Resolver"
)

type gateway struct {
	spec       model.GatewaySpec
	backing    string
	schema     string
	dataSource string
	apiKey     string
}

type graphQLAPIProperties struct {
	Name               string `json:"Name"`
	AuthenticationType string `json:"AuthenticationType"`
	XrayEnabled        bool   `json:"XrayEnabled"`
}

type graphQLSchemaProperties struct {
	APIID      any    `json:"ApiId"`
	Definition string `json:"Definition"`
}

type apiKeyProperties struct {
	APIID   any   `json:"ApiId"`
	Expires int64 `json:"Expires,omitempty"`
}

type lambdaConfig struct {
	LambdaFunctionArn any `json:"LambdaFunctionArn"`
}

type dataSourceProperties struct {
	APIID          any          `json:"ApiId"`
	Name           string       `json:"Name"`
	Type           string       `json:"Type"`
	LambdaConfig   lambdaConfig `json:"LambdaConfig"`
	ServiceRoleArn any          `json:"ServiceRoleArn"`
}

type resolverProperties struct {
	APIID          any    `json:"ApiId"`
	TypeName       string `json:"TypeName"`
	FieldName      string `json:"FieldName"`
	DataSourceName any    `json:"DataSourceName"`
}

// PutGateway implements provision.Provider. It emits the API, its schema,
// an API key for key-based auth, and a Lambda data source for backing.
func (s *Synthesizer) PutGateway(_ context.Context, spec model.GatewaySpec, backing provision.Identity) (provision.Identity, error) {
	definition, err := s.readFile(spec.SchemaPath)
	if err != nil {
		return provision.Identity{}, fmt.Errorf("reading schema: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.functions[backing.ID]; !ok {
		return provision.Identity{}, fmt.Errorf("function %s was not synthesized", backing.ID)
	}
	functionArn, ok := backing.Attr(model.AttrArn)
	if !ok {
		return provision.Identity{}, fmt.Errorf("function %s has no ARN", backing.ID)
	}

	g := &gateway{
		spec:       spec,
		backing:    backing.ID,
		schema:     spec.ID + "Schema",
		dataSource: spec.ID + spec.DataSourceName,
	}
	apiID := intrinsics.GetAtt{LogicalName: spec.ID, Attribute: "ApiId"}

	if err := s.put(spec.ID, template.Resource{
		Type: resourceGraphQLAPI,
		Properties: graphQLAPIProperties{
			Name:               spec.Name,
			AuthenticationType: string(spec.Auth.Mode),
			XrayEnabled:        spec.Tracing,
		},
	}); err != nil {
		return provision.Identity{}, err
	}

	if err := s.put(g.schema, template.Resource{
		Type:       resourceGraphQLSchema,
		Properties: graphQLSchemaProperties{APIID: apiID, Definition: string(definition)},
	}); err != nil {
		return provision.Identity{}, err
	}

	attrs := map[string]any{
		model.AttrID:  apiID,
		model.AttrURL: intrinsics.GetAtt{LogicalName: spec.ID, Attribute: "GraphQLUrl"},
		model.AttrArn: ref(spec.ID),
	}
	apiKeyOutput := any(model.NoAPIKey)
	if spec.Auth.Mode.KeyBased() {
		g.apiKey = spec.ID + "DefaultApiKey"
		if err := s.put(g.apiKey, template.Resource{
			Type: resourceAPIKey,
			Properties: apiKeyProperties{
				APIID:   apiID,
				Expires: s.expiry(spec.Auth.APIKeyExpiry),
			},
		}); err != nil {
			return provision.Identity{}, err
		}
		key := intrinsics.GetAtt{LogicalName: g.apiKey, Attribute: "ApiKey"}
		attrs[model.AttrAPIKey] = key
		apiKeyOutput = key
	}

	if err := s.putDataSource(g, apiID, functionArn); err != nil {
		return provision.Identity{}, err
	}

	s.builder.AddOutput(provision.OutputURL, notesstack.Output{
		Description: "GraphQL endpoint of " + spec.Name,
		Value:       attrs[model.AttrURL],
	})
	s.builder.AddOutput(provision.OutputAPIKey, notesstack.Output{
		Description: "API key of " + spec.Name,
		Value:       apiKeyOutput,
	})

	s.gateways[spec.ID] = g
	return provision.Identity{ID: spec.ID, Attrs: attrs}, nil
}

// putDataSource emits the data source and the role AppSync assumes to
// invoke the backing function. Callers hold s.mu.
func (s *Synthesizer) putDataSource(g *gateway, apiID intrinsics.GetAtt, functionArn any) error {
	role := g.dataSource + "ServiceRole"
	policy := role + "DefaultPolicy"

	if err := s.put(role, template.Resource{
		Type: resourceRole,
		Properties: roleProperties{
			AssumeRolePolicyDocument: intrinsics.AssumeRolePolicy("appsync.amazonaws.com"),
		},
	}); err != nil {
		return err
	}

	if err := s.put(policy, template.Resource{
		Type: resourcePolicy,
		Properties: policyProperties{
			PolicyName: policy,
			PolicyDocument: intrinsics.NewPolicyDocument(
				intrinsics.Allow([]string{"lambda:InvokeFunction"},
					functionArn,
					intrinsics.Join{Delimiter: "", Values: []any{functionArn, ":*"}},
				),
			),
			Roles: []any{ref(role)},
		},
	}); err != nil {
		return err
	}

	return s.put(g.dataSource, template.Resource{
		Type: resourceDataSource,
		Properties: dataSourceProperties{
			APIID:          apiID,
			Name:           g.spec.DataSourceName,
			Type:           "AWS_LAMBDA",
			LambdaConfig:   lambdaConfig{LambdaFunctionArn: functionArn},
			ServiceRoleArn: arnOf(role),
		},
		DependsOn: []string{policy},
	})
}

// expiry returns the API key expiry in epoch seconds. The instant is
// truncated to the day so repeated synthesis within a day is stable.
func (s *Synthesizer) expiry(validFor time.Duration) int64 {
	if validFor <= 0 {
		return 0
	}
	return s.now().UTC().Add(validFor).Truncate(24 * time.Hour).Unix()
}

// PutOperationBinding implements provision.Provider with a direct Lambda
// resolver on the gateway's data source.
func (s *Synthesizer) PutOperationBinding(_ context.Context, binding model.OperationBinding, gw, target provision.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.gateways[gw.ID]
	if !ok {
		return fmt.Errorf("gateway %s was not synthesized", gw.ID)
	}
	if target.ID != g.backing {
		return fmt.Errorf("gateway %s has no data source for %s", gw.ID, target.ID)
	}

	name := gw.ID + string(binding.Category) + binding.Name + "Resolver"
	return s.put(name, template.Resource{
		Type: resourceResolver,
		Properties: resolverProperties{
			APIID:          intrinsics.GetAtt{LogicalName: gw.ID, Attribute: "ApiId"},
			TypeName:       string(binding.Category),
			FieldName:      binding.Name,
			DataSourceName: intrinsics.GetAtt{LogicalName: g.dataSource, Attribute: "Name"},
		},
		DependsOn: []string{g.dataSource, g.schema},
	})
}

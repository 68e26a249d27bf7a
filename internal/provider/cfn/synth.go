// Package cfn synthesizes a CloudFormation template from a resource graph.
//
// The Synthesizer implements provision.Provider, so the same Apply run that
// reconciles resources locally produces a deployable template here. Each
// Put adds (or replaces) resources in the template; the identities it
// returns carry intrinsic functions instead of concrete values, so a
// function's environment ends up as {"Ref": "UsersTable"} rather than a
// table name.
package cfn

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	notesstack "github.com/lex00/notes-stack-go"
	"github.com/lex00/notes-stack-go/internal/model"
	"github.com/lex00/notes-stack-go/internal/provision"
	"github.com/lex00/notes-stack-go/internal/template"
	"github.com/lex00/notes-stack-go/intrinsics"
)

// Template parameters supplied at deploy time.
const (
	ParamAssetBucket = "AssetBucket"
	ParamAssetKey    = "AssetKey"
)

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithClock sets the clock used for API key expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Synthesizer) { s.now = now }
}

// WithDescription sets the template description.
func WithDescription(desc string) Option {
	return func(s *Synthesizer) { s.description = desc }
}

// WithSchemaReader replaces os.ReadFile for loading GraphQL schemas.
func WithSchemaReader(read func(string) ([]byte, error)) Option {
	return func(s *Synthesizer) { s.readFile = read }
}

// Synthesizer accumulates CloudFormation resources. It is safe for
// concurrent use.
type Synthesizer struct {
	now         func() time.Time
	description string
	readFile    func(string) ([]byte, error)

	mu        sync.Mutex
	builder   *template.Builder
	tables    map[string]*tableProperties
	functions map[string]*function
	gateways  map[string]*gateway
}

// New creates an empty synthesizer.
func New(opts ...Option) *Synthesizer {
	s := &Synthesizer{
		now:       time.Now,
		readFile:  os.ReadFile,
		tables:    make(map[string]*tableProperties),
		functions: make(map[string]*function),
		gateways:  make(map[string]*gateway),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.builder = template.NewBuilder(s.description)
	return s
}

var _ provision.Provider = (*Synthesizer)(nil)

// Template builds the template from everything put so far.
func (s *Synthesizer) Template() (*notesstack.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.builder.Build()
}

// Builder exposes the underlying builder, e.g. for dependency graphs.
func (s *Synthesizer) Builder() *template.Builder {
	return s.builder
}

// DescribeGateway implements provision.Provider. Values are placeholders
// of the form ${Logical.Attribute} until the stack is deployed.
func (s *Synthesizer) DescribeGateway(_ context.Context, gw provision.Identity) (provision.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.gateways[gw.ID]
	if !ok {
		return provision.Response{}, fmt.Errorf("gateway %s was not synthesized", gw.ID)
	}
	key := model.NoAPIKey
	if g.spec.Auth.Mode.KeyBased() {
		key = token(g.apiKey, "ApiKey")
	}
	return provision.Response{
		AuthMode: g.spec.Auth.Mode,
		Outputs: map[string]string{
			provision.OutputURL:    token(gw.ID, "GraphQLUrl"),
			provision.OutputAPIKey: key,
		},
	}, nil
}

func token(logicalID, attr string) string {
	return "${" + logicalID + "." + attr + "}"
}

// put adds a resource or replaces an existing one of the same name, so
// repeated Puts converge. Callers hold s.mu.
func (s *Synthesizer) put(name string, res template.Resource) error {
	if existing, ok := s.builder.Resource(name); ok {
		if existing.Type != res.Type {
			return fmt.Errorf("resource %s already defined as %s", name, existing.Type)
		}
		s.builder.PutResource(name, res)
		return nil
	}
	return s.builder.AddResource(name, res)
}

func arnOf(logicalID string) intrinsics.GetAtt {
	return intrinsics.GetAtt{LogicalName: logicalID, Attribute: "Arn"}
}

func ref(logicalID string) intrinsics.Ref {
	return intrinsics.Ref{LogicalName: logicalID}
}

func deletionPolicy(p model.RemovalPolicy) string {
	switch p {
	case model.Destroy:
		return "Delete"
	case model.Retain:
		return "Retain"
	}
	return ""
}

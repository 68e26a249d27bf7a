package provision

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/lex00/notes-stack-go/internal/model"
)

// Option configures Apply.
type Option func(*applier)

// WithLogger sets the logger used for step progress.
func WithLogger(logger *slog.Logger) Option {
	return func(a *applier) { a.logger = logger }
}

// WithSequentialCollections provisions collections one at a time instead of
// concurrently.
func WithSequentialCollections() Option {
	return func(a *applier) { a.sequential = true }
}

// Result is the outcome of a successful Apply.
type Result struct {
	Outputs model.ProvisionedOutputs
	// Identities holds every provisioned resource by logical ID.
	Identities map[string]Identity
	// Applied lists the completed steps as "step:resource".
	Applied []string
}

type applier struct {
	provider   Provider
	logger     *slog.Logger
	sequential bool

	mu         sync.Mutex
	identities map[string]Identity
	applied    []string
}

// Apply provisions graph through provider and returns the gateway outputs.
//
// The graph is validated before any provider call. The first failing step
// aborts the run with a *ProvisioningError; nothing is rolled back.
func Apply(ctx context.Context, graph *model.Graph, provider Provider, opts ...Option) (*Result, error) {
	if err := graph.Validate(); err != nil {
		return nil, err
	}

	a := &applier{
		provider:   provider,
		logger:     slog.Default(),
		identities: make(map[string]Identity),
	}
	for _, opt := range opts {
		opt(a)
	}

	if err := a.collections(ctx, graph.Collections); err != nil {
		return nil, err
	}
	for _, fn := range graph.ComputeUnits {
		if err := a.computeUnit(ctx, fn); err != nil {
			return nil, err
		}
	}
	for _, grant := range graph.Grants {
		if err := a.grant(ctx, grant); err != nil {
			return nil, err
		}
	}
	for _, gw := range graph.Gateways {
		if err := a.gateway(ctx, gw); err != nil {
			return nil, err
		}
	}
	for _, b := range graph.Bindings {
		if err := a.binding(ctx, b); err != nil {
			return nil, err
		}
	}

	result := &Result{Identities: a.identities, Applied: a.applied}
	if len(graph.Gateways) > 0 {
		id := graph.Gateways[0].ID
		resp, err := provider.DescribeGateway(ctx, a.identities[id])
		if err != nil {
			return nil, a.fail(StepOutputs, id, asProviderError("describe gateway", id, err))
		}
		outputs, err := ExtractOutputs(resp)
		if err != nil {
			return nil, a.fail(StepOutputs, id, err)
		}
		result.Outputs = outputs
	}

	a.logger.Info("provisioning complete", "steps", len(a.applied), "url", result.Outputs.GatewayURL)
	return result, nil
}

func (a *applier) collections(ctx context.Context, specs []model.KeyedCollectionSpec) error {
	if a.sequential {
		for _, spec := range specs {
			if err := a.collection(ctx, spec); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, spec := range specs {
		g.Go(func() error {
			return a.collection(gctx, spec)
		})
	}
	return g.Wait()
}

func (a *applier) collection(ctx context.Context, spec model.KeyedCollectionSpec) error {
	id, err := a.provider.PutCollection(ctx, spec)
	if err != nil {
		return a.fail(StepCollection, spec.ID, asProviderError("put collection", spec.ID, err))
	}
	a.store(spec.ID, id)
	a.record(StepCollection, spec.ID)

	for _, idx := range spec.Indexes {
		name := spec.ID + "/" + idx.Name
		if err := a.provider.PutIndex(ctx, id, idx); err != nil {
			return a.fail(StepIndex, name, asProviderError("put index", name, err))
		}
		a.record(StepIndex, name)
	}
	return nil
}

func (a *applier) computeUnit(ctx context.Context, spec model.ComputeUnitSpec) error {
	env, err := a.resolveEnvironment(spec)
	if err != nil {
		return a.fail(StepComputeUnit, spec.ID, err)
	}
	id, err := a.provider.PutComputeUnit(ctx, spec, env)
	if err != nil {
		return a.fail(StepComputeUnit, spec.ID, asProviderError("put compute unit", spec.ID, err))
	}
	a.store(spec.ID, id)
	a.record(StepComputeUnit, spec.ID)
	return nil
}

func (a *applier) grant(ctx context.Context, grant model.PermissionGrant) error {
	subject, object := a.identity(grant.Subject), a.identity(grant.Object)
	if err := a.provider.GrantAccess(ctx, grant, subject, object); err != nil {
		return a.fail(StepGrant, grant.Key(), asProviderError("grant access", grant.Key(), err))
	}
	a.record(StepGrant, grant.Key())
	return nil
}

func (a *applier) gateway(ctx context.Context, spec model.GatewaySpec) error {
	id, err := a.provider.PutGateway(ctx, spec, a.identity(spec.Backing))
	if err != nil {
		return a.fail(StepGateway, spec.ID, asProviderError("put gateway", spec.ID, err))
	}
	a.store(spec.ID, id)
	a.record(StepGateway, spec.ID)
	return nil
}

func (a *applier) binding(ctx context.Context, b model.OperationBinding) error {
	name := b.Gateway + "/" + b.Key()
	if err := a.provider.PutOperationBinding(ctx, b, a.identity(b.Gateway), a.identity(b.Target)); err != nil {
		return a.fail(StepBinding, name, asProviderError("put operation binding", name, err))
	}
	a.record(StepBinding, name)
	return nil
}

// resolveEnvironment replaces references with the attributes reported by
// the provider for already provisioned resources.
func (a *applier) resolveEnvironment(spec model.ComputeUnitSpec) (map[string]any, error) {
	env := make(map[string]any, len(spec.Environment))
	for name, value := range spec.Environment {
		switch v := value.(type) {
		case model.Literal:
			env[name] = string(v)
		case model.Reference:
			id, ok := a.lookup(v.Resource)
			if !ok {
				return nil, fmt.Errorf("environment %s: %s is not provisioned yet", name, v.Resource)
			}
			attr, ok := id.Attr(v.Attribute)
			if !ok {
				return nil, fmt.Errorf("environment %s: %s has no attribute %s", name, v.Resource, v.Attribute)
			}
			env[name] = attr
		default:
			return nil, fmt.Errorf("environment %s: unsupported value %T", name, value)
		}
	}
	return env, nil
}

func (a *applier) lookup(id string) (Identity, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ident, ok := a.identities[id]
	return ident, ok
}

func (a *applier) identity(id string) Identity {
	ident, _ := a.lookup(id)
	return ident
}

// store keeps the provider's identity under the spec's logical ID.
func (a *applier) store(logicalID string, id Identity) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if id.ID == "" {
		id.ID = logicalID
	}
	a.identities[logicalID] = id
}

func (a *applier) record(step, resource string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.applied = append(a.applied, step+":"+resource)
	a.logger.Info("applied", "step", step, "resource", resource)
}

func (a *applier) fail(step, resource string, err error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	applied := make([]string, len(a.applied))
	copy(applied, a.applied)
	a.logger.Error("provisioning failed", "step", step, "resource", resource, "error", err)
	return &ProvisioningError{Step: step, Resource: resource, Applied: applied, Err: err}
}

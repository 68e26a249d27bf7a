// Package provision drives a resource graph through a Provider.
//
// Apply issues provider calls in dependency order:
//
//	collections (then their indexes) → compute units → grants → gateways → bindings
//
// Each Put is expected to be idempotent at the provider (create if absent,
// update if changed), so re-running Apply with the same graph converges.
package provision

import (
	"context"

	"github.com/lex00/notes-stack-go/internal/model"
)

// Identity is what a provider reports back for a provisioned resource.
// Attribute values are concrete strings for live providers and intrinsic
// functions for the template synthesizer.
type Identity struct {
	ID    string
	Attrs map[string]any
}

// Attr returns the named attribute.
func (i Identity) Attr(name string) (any, bool) {
	v, ok := i.Attrs[name]
	return v, ok
}

// Provider is the external resource-reconciliation system.
type Provider interface {
	// PutCollection creates or updates a keyed collection (without its indexes).
	PutCollection(ctx context.Context, spec model.KeyedCollectionSpec) (Identity, error)

	// PutIndex creates or updates a secondary index on a provisioned collection.
	PutIndex(ctx context.Context, collection Identity, index model.IndexSpec) error

	// PutComputeUnit creates or updates a compute unit. env holds the resolved
	// environment values.
	PutComputeUnit(ctx context.Context, spec model.ComputeUnitSpec, env map[string]any) (Identity, error)

	// GrantAccess lets subject access object's data.
	GrantAccess(ctx context.Context, grant model.PermissionGrant, subject, object Identity) error

	// PutGateway creates or updates a gateway backed by a compute unit.
	PutGateway(ctx context.Context, spec model.GatewaySpec, backing Identity) (Identity, error)

	// PutOperationBinding registers a resolver invoking target for binding.
	PutOperationBinding(ctx context.Context, binding model.OperationBinding, gateway, target Identity) error

	// DescribeGateway reads back the gateway's externally visible outputs.
	DescribeGateway(ctx context.Context, gateway Identity) (Response, error)
}

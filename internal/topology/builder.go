// Package topology assembles the resource graph of the Notes application.
package topology

import (
	"github.com/lex00/notes-stack-go/internal/model"
)

// Builder accumulates resource specs and validates them as a graph.
type Builder struct {
	graph model.Graph
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddCollection declares a keyed collection.
func (b *Builder) AddCollection(c model.KeyedCollectionSpec) *Builder {
	b.graph.Collections = append(b.graph.Collections, c)
	return b
}

// AddComputeUnit declares a compute unit.
func (b *Builder) AddComputeUnit(c model.ComputeUnitSpec) *Builder {
	b.graph.ComputeUnits = append(b.graph.ComputeUnits, c)
	return b
}

// AddGrant declares a permission grant.
func (b *Builder) AddGrant(g model.PermissionGrant) *Builder {
	b.graph.Grants = append(b.graph.Grants, g)
	return b
}

// AddGateway declares a gateway.
func (b *Builder) AddGateway(g model.GatewaySpec) *Builder {
	b.graph.Gateways = append(b.graph.Gateways, g)
	return b
}

// AddBinding declares an operation binding.
func (b *Builder) AddBinding(op model.OperationBinding) *Builder {
	b.graph.Bindings = append(b.graph.Bindings, op)
	return b
}

// Build validates and returns the graph. The builder must not be reused.
func (b *Builder) Build() (*model.Graph, error) {
	g := b.graph
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &g, nil
}

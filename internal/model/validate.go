package model

import (
	"fmt"
	"sort"
)

// Validate checks the graph for structural problems before anything is
// provisioned. It returns nil or a ValidationErrors listing every problem.
func (g *Graph) Validate() error {
	v := &validator{ids: make(map[string]string)}

	for _, c := range g.Collections {
		v.declare(c.ID, "collection")
	}
	for _, c := range g.ComputeUnits {
		v.declare(c.ID, "compute unit")
	}
	for _, gw := range g.Gateways {
		v.declare(gw.ID, "gateway")
	}

	for _, c := range g.Collections {
		v.collection(c)
	}
	for _, c := range g.ComputeUnits {
		v.computeUnit(c)
	}
	for _, grant := range g.Grants {
		v.grant(grant)
	}
	for _, gw := range g.Gateways {
		v.gateway(gw)
	}
	v.bindings(g.Bindings)

	if len(v.errs) == 0 {
		return nil
	}
	return v.errs
}

type validator struct {
	ids  map[string]string // logical ID -> kind
	errs ValidationErrors
}

func (v *validator) fail(resource, format string, args ...any) {
	v.errs = append(v.errs, &ValidationError{Resource: resource, Reason: fmt.Sprintf(format, args...)})
}

func (v *validator) declare(id, kind string) {
	if id == "" {
		v.fail("", "%s has an empty logical ID", kind)
		return
	}
	if prev, ok := v.ids[id]; ok {
		v.fail(id, "logical ID already used by a %s", prev)
		return
	}
	v.ids[id] = kind
}

func (v *validator) is(id, kind string) bool {
	return v.ids[id] == kind
}

func (v *validator) collection(c KeyedCollectionSpec) {
	if c.PrimaryKey.Name == "" {
		v.fail(c.ID, "primary key has no name")
	}
	if !c.PrimaryKey.Type.Valid() {
		v.fail(c.ID, "primary key %q has invalid type %q", c.PrimaryKey.Name, c.PrimaryKey.Type)
	}

	seen := make(map[string]bool)
	for _, idx := range c.Indexes {
		if idx.Name == "" {
			v.fail(c.ID, "secondary index has no name")
			continue
		}
		if seen[idx.Name] {
			v.fail(c.ID, "duplicate secondary index %q", idx.Name)
		}
		seen[idx.Name] = true

		if idx.Key.Name == "" {
			v.fail(c.ID, "index %q has no key attribute", idx.Name)
		}
		if !idx.Key.Type.Valid() {
			v.fail(c.ID, "index %q key %q has invalid type %q", idx.Name, idx.Key.Name, idx.Key.Type)
		}
		if idx.Key.Name == c.PrimaryKey.Name && idx.Key.Type != c.PrimaryKey.Type {
			v.fail(c.ID, "index %q redeclares primary key %q with type %q", idx.Name, idx.Key.Name, idx.Key.Type)
		}
		switch idx.ProjectionOrDefault() {
		case ProjectAll, ProjectKeysOnly:
		default:
			v.fail(c.ID, "index %q has unknown projection %q", idx.Name, idx.Projection)
		}
	}
}

func (v *validator) computeUnit(c ComputeUnitSpec) {
	if c.Timeout <= 0 {
		v.fail(c.ID, "timeout must be positive")
	}
	if c.MemoryMB <= 0 {
		v.fail(c.ID, "memory must be positive")
	}

	// Sorted for stable error output.
	names := make([]string, 0, len(c.Environment))
	for name := range c.Environment {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ref, ok := c.Environment[name].(Reference)
		if !ok {
			continue
		}
		if _, declared := v.ids[ref.Resource]; !declared {
			v.fail(c.ID, "environment %s references undeclared resource %q", name, ref.Resource)
		}
		if ref.Resource == c.ID {
			v.fail(c.ID, "environment %s references the function itself", name)
		}
	}
}

func (v *validator) grant(g PermissionGrant) {
	if !v.is(g.Subject, "compute unit") {
		v.fail(g.Key(), "grant subject %q is not a declared compute unit", g.Subject)
	}
	if !v.is(g.Object, "collection") {
		v.fail(g.Key(), "grant object %q is not a declared collection", g.Object)
	}
	switch g.Access {
	case AccessRead, AccessWrite, AccessReadWrite:
	default:
		v.fail(g.Key(), "unknown access %q", g.Access)
	}
}

func (v *validator) gateway(gw GatewaySpec) {
	if gw.Name == "" {
		v.fail(gw.ID, "gateway has no name")
	}
	if !v.is(gw.Backing, "compute unit") {
		v.fail(gw.ID, "backing target %q is not a declared compute unit", gw.Backing)
	}
	if gw.Auth.Mode == "" {
		v.fail(gw.ID, "authorization mode is not set")
	}
	if gw.Auth.Mode.KeyBased() && gw.Auth.APIKeyExpiry <= 0 {
		v.fail(gw.ID, "API key expiry must be positive")
	}
}

func (v *validator) bindings(bindings []OperationBinding) {
	seen := make(map[string]bool)
	for _, b := range bindings {
		if b.Name == "" {
			v.fail(b.Gateway, "operation binding has no name")
			continue
		}
		if b.Category != Query && b.Category != Mutation {
			v.fail(b.Gateway, "operation %s has unknown category %q", b.Name, b.Category)
		}
		key := b.Gateway + "/" + b.Key()
		if seen[key] {
			v.fail(b.Gateway, "duplicate %s operation %q", b.Category, b.Name)
		}
		seen[key] = true

		if !v.is(b.Gateway, "gateway") {
			v.fail(b.Key(), "gateway %q is not declared", b.Gateway)
		}
		if !v.is(b.Target, "compute unit") {
			v.fail(b.Key(), "target %q is not a declared compute unit", b.Target)
		}
	}
}

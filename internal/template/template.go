// Package template assembles CloudFormation templates from resource values.
package template

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	notesstack "github.com/lex00/notes-stack-go"
)

// FormatVersion is the only CloudFormation template format version.
const FormatVersion = "2010-09-09"

// Resource is a resource before serialization. Properties may be any value
// that marshals to a JSON object, including intrinsic functions.
// UpdateReplacePolicy defaults to DeletionPolicy.
type Resource struct {
	Type                string
	Properties          any
	DependsOn           []string
	DeletionPolicy      string
	UpdateReplacePolicy string
}

// Builder collects resources, parameters and outputs.
type Builder struct {
	description string
	resources   map[string]*Resource
	parameters  map[string]notesstack.Parameter
	outputs     map[string]notesstack.Output
}

// NewBuilder creates an empty template builder.
func NewBuilder(description string) *Builder {
	return &Builder{
		description: description,
		resources:   make(map[string]*Resource),
		parameters:  make(map[string]notesstack.Parameter),
		outputs:     make(map[string]notesstack.Output),
	}
}

// AddResource adds a resource under its logical name.
func (b *Builder) AddResource(name string, res Resource) error {
	if name == "" {
		return errors.New("resource name is empty")
	}
	if _, ok := b.resources[name]; ok {
		return fmt.Errorf("resource %s already defined", name)
	}
	if _, ok := b.parameters[name]; ok {
		return fmt.Errorf("resource %s clashes with a parameter", name)
	}
	if res.Type == "" {
		return fmt.Errorf("resource %s has no type", name)
	}
	b.resources[name] = &res
	return nil
}

// PutResource adds or replaces a resource.
func (b *Builder) PutResource(name string, res Resource) {
	b.resources[name] = &res
}

// Resource returns the named resource.
func (b *Builder) Resource(name string) (*Resource, bool) {
	res, ok := b.resources[name]
	return res, ok
}

// AddParameter declares a template parameter.
func (b *Builder) AddParameter(name string, p notesstack.Parameter) {
	if p.Type == "" {
		p.Type = "String"
	}
	b.parameters[name] = p
}

// AddOutput declares a template output.
func (b *Builder) AddOutput(name string, o notesstack.Output) {
	b.outputs[name] = o
}

// Len returns the number of resources.
func (b *Builder) Len() int {
	return len(b.resources)
}

// Build constructs the template. It fails on dangling explicit
// dependencies and on dependency cycles.
func (b *Builder) Build() (*notesstack.Template, error) {
	props, err := b.serializeAll()
	if err != nil {
		return nil, err
	}

	if _, err := b.order(props); err != nil {
		return nil, err
	}

	t := &notesstack.Template{
		AWSTemplateFormatVersion: FormatVersion,
		Description:              b.description,
		Resources:                make(map[string]notesstack.ResourceDef, len(b.resources)),
	}
	if len(b.parameters) > 0 {
		t.Parameters = make(map[string]notesstack.Parameter, len(b.parameters))
		for name, p := range b.parameters {
			t.Parameters[name] = p
		}
	}
	for name, res := range b.resources {
		deps := append([]string(nil), res.DependsOn...)
		sort.Strings(deps)
		replace := res.UpdateReplacePolicy
		if replace == "" {
			replace = res.DeletionPolicy
		}
		t.Resources[name] = notesstack.ResourceDef{
			Type:                res.Type,
			Properties:          props[name],
			DependsOn:           deps,
			DeletionPolicy:      res.DeletionPolicy,
			UpdateReplacePolicy: replace,
		}
	}
	if len(b.outputs) > 0 {
		t.Outputs = make(map[string]notesstack.Output, len(b.outputs))
		for name, o := range b.outputs {
			value, err := normalize(o.Value)
			if err != nil {
				return nil, fmt.Errorf("serializing output %s: %w", name, err)
			}
			t.Outputs[name] = notesstack.Output{Description: o.Description, Value: value}
		}
	}
	return t, nil
}

// Order returns the resource names in dependency order.
func (b *Builder) Order() ([]string, error) {
	props, err := b.serializeAll()
	if err != nil {
		return nil, err
	}
	return b.order(props)
}

func (b *Builder) order(props map[string]map[string]any) ([]string, error) {
	deps, err := b.dependencies(props)
	if err != nil {
		return nil, err
	}
	return topologicalSort(deps)
}

// Dependencies returns every resource each resource depends on, explicit
// and through intrinsic references.
func (b *Builder) Dependencies() (map[string][]string, error) {
	props, err := b.serializeAll()
	if err != nil {
		return nil, err
	}
	return b.dependencies(props)
}

func (b *Builder) dependencies(props map[string]map[string]any) (map[string][]string, error) {
	deps := make(map[string][]string, len(b.resources))
	for name, res := range b.resources {
		set := make(map[string]bool)
		for _, dep := range res.DependsOn {
			if _, ok := b.resources[dep]; !ok {
				return nil, fmt.Errorf("resource %s depends on unknown resource %s", name, dep)
			}
			set[dep] = true
		}
		for _, ref := range References(props[name]) {
			if _, ok := b.resources[ref]; ok && ref != name {
				set[ref] = true
			}
		}
		deps[name] = make([]string, 0, len(set))
		for dep := range set {
			deps[name] = append(deps[name], dep)
		}
		sort.Strings(deps[name])
	}
	return deps, nil
}

func (b *Builder) serializeAll() (map[string]map[string]any, error) {
	props := make(map[string]map[string]any, len(b.resources))
	for name, res := range b.resources {
		p, err := serializeProperties(res.Properties)
		if err != nil {
			return nil, fmt.Errorf("serializing %s: %w", name, err)
		}
		props[name] = p
	}
	return props, nil
}

// serializeProperties converts a Go value to CloudFormation properties by
// round-tripping through JSON.
func serializeProperties(value any) (map[string]any, error) {
	if value == nil {
		return nil, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var props map[string]any
	if err := json.Unmarshal(data, &props); err != nil {
		return nil, err
	}
	return props, nil
}

func normalize(value any) (any, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

var subVariable = regexp.MustCompile(`\$\{([A-Za-z0-9]+)(?:\.[A-Za-z0-9.]+)?\}`)

// References returns the logical names referenced by Ref, Fn::GetAtt and
// Fn::Sub inside a serialized value, sorted and without duplicates.
// Pseudo parameters (AWS::*) are skipped.
func References(value any) []string {
	set := make(map[string]bool)
	collectRefs(value, set)

	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func collectRefs(value any, set map[string]bool) {
	switch v := value.(type) {
	case map[string]any:
		if ref, ok := v["Ref"].(string); ok && !strings.HasPrefix(ref, "AWS::") {
			set[ref] = true
		}
		switch att := v["Fn::GetAtt"].(type) {
		case []any:
			if len(att) > 0 {
				if name, ok := att[0].(string); ok {
					set[name] = true
				}
			}
		case string:
			set[strings.SplitN(att, ".", 2)[0]] = true
		}
		if sub, ok := v["Fn::Sub"].(string); ok {
			for _, m := range subVariable.FindAllStringSubmatch(sub, -1) {
				set[m[1]] = true
			}
		}
		for _, elem := range v {
			collectRefs(elem, set)
		}
	case []any:
		for _, elem := range v {
			collectRefs(elem, set)
		}
	}
}

// topologicalSort orders names so that every name follows its dependencies.
func topologicalSort(deps map[string][]string) ([]string, error) {
	dependents := make(map[string][]string)
	inDegree := make(map[string]int, len(deps))
	for name, ds := range deps {
		inDegree[name] += 0
		for _, dep := range ds {
			dependents[dep] = append(dependents[dep], name)
			inDegree[name]++
		}
	}

	// Kahn's algorithm
	var queue []string
	for name, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, name)
		}
	}
	sort.Strings(queue)

	var result []string
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		result = append(result, node)

		for _, next := range dependents[node] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
				sort.Strings(queue)
			}
		}
	}

	if len(result) != len(inDegree) {
		return nil, detectCycle(deps)
	}
	return result, nil
}

// detectCycle finds and reports a cycle in the dependency graph.
func detectCycle(deps map[string][]string) error {
	visited := make(map[string]bool)
	var stack []string

	var find func(node string) []string
	find = func(node string) []string {
		for i, n := range stack {
			if n == node {
				return append(append([]string(nil), stack[i:]...), node)
			}
		}
		if visited[node] {
			return nil
		}
		visited[node] = true
		stack = append(stack, node)
		for _, dep := range deps[node] {
			if cycle := find(dep); cycle != nil {
				return cycle
			}
		}
		stack = stack[:len(stack)-1]
		return nil
	}

	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if cycle := find(name); cycle != nil {
			return fmt.Errorf("circular dependency detected: %s", strings.Join(cycle, " → "))
		}
	}
	return errors.New("circular dependency detected")
}

// ToJSON serializes the template to JSON.
func ToJSON(t *notesstack.Template) ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}

// ToYAML serializes the template to YAML.
func ToYAML(t *notesstack.Template) ([]byte, error) {
	return yaml.Marshal(t)
}

// Format serializes the template as "json" or "yaml".
func Format(t *notesstack.Template, format string) ([]byte, error) {
	switch format {
	case "", "json":
		return ToJSON(t)
	case "yaml", "yml":
		return ToYAML(t)
	default:
		return nil, fmt.Errorf("unknown template format %q", format)
	}
}

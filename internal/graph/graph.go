// Package graph renders resource graphs in DOT and Mermaid format.
package graph

import (
	"io"
	"sort"
	"strings"

	"github.com/emicklei/dot"

	notesstack "github.com/lex00/notes-stack-go"
	"github.com/lex00/notes-stack-go/internal/model"
)

// Format specifies the output format for the graph.
type Format string

const (
	// FormatDOT outputs Graphviz DOT format.
	FormatDOT Format = "dot"
	// FormatMermaid outputs Mermaid format for GitHub/markdown rendering.
	FormatMermaid Format = "mermaid"
)

// Generator creates dependency graphs.
type Generator struct {
	// IncludeBindings adds one node per query or mutation.
	IncludeBindings bool

	// Format specifies the output format (dot or mermaid). Defaults to dot.
	Format Format

	// ClusterByType groups nodes by resource kind or AWS service.
	ClusterByType bool
}

// Generate writes the logical topology of g to w.
func (gen *Generator) Generate(g *model.Graph, w io.Writer) error {
	return gen.write(gen.buildTopology(g), w)
}

// GenerateString is a convenience method that returns the graph as a string.
func (gen *Generator) GenerateString(g *model.Graph) (string, error) {
	var sb strings.Builder
	if err := gen.Generate(g, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// GenerateTemplate writes the resource graph of a synthesized template.
// deps maps each resource to the resources it depends on.
func (gen *Generator) GenerateTemplate(t *notesstack.Template, deps map[string][]string, w io.Writer) error {
	return gen.write(gen.buildTemplate(t, deps), w)
}

func (gen *Generator) write(graph *dot.Graph, w io.Writer) error {
	var output string
	if gen.Format == FormatMermaid {
		output = dot.MermaidGraph(graph, dot.MermaidTopToBottom)
	} else {
		output = graph.String()
	}
	_, err := io.WriteString(w, output)
	return err
}

func newGraph() *dot.Graph {
	graph := dot.NewGraph(dot.Directed)
	graph.Attr("rankdir", "TB")
	graph.NodeInitializer(func(n dot.Node) {
		n.Attr("shape", "box")
		n.Attr("fontname", "Arial")
	})
	graph.EdgeInitializer(func(e dot.Edge) {
		e.Attr("fontname", "Arial")
		e.Attr("fontsize", "10")
	})
	return graph
}

// buildTopology draws collections, compute units and gateways with edges
// for environment references, grants and gateway backing.
func (gen *Generator) buildTopology(g *model.Graph) *dot.Graph {
	graph := newGraph()

	groups := map[string]*dot.Graph{}
	parent := func(kind string) *dot.Graph {
		if !gen.ClusterByType {
			return graph
		}
		if sub, ok := groups[kind]; ok {
			return sub
		}
		sub := graph.Subgraph("cluster_"+kind, dot.ClusterOption{})
		sub.Attr("label", kind)
		sub.Attr("style", "rounded")
		sub.Attr("bgcolor", "lightyellow")
		groups[kind] = sub
		return sub
	}

	for _, c := range g.Collections {
		n := parent("collections").Node(c.ID)
		n.Label(c.ID + "\\n[" + tableLabel(c) + "]")
		n.Attr("shape", "cylinder")
	}
	for _, fn := range g.ComputeUnits {
		parent("compute").Node(fn.ID).Label(fn.ID + "\\n[" + fn.Runtime + "]")
	}
	for _, gw := range g.Gateways {
		n := parent("gateways").Node(gw.ID)
		n.Label(gw.ID + "\\n[" + string(gw.Auth.Mode) + "]")
		n.Attr("shape", "hexagon")
	}

	for _, fn := range g.ComputeUnits {
		names := make([]string, 0, len(fn.Environment))
		for name := range fn.Environment {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			ref, ok := fn.Environment[name].(model.Reference)
			if !ok {
				continue
			}
			e := graph.Edge(graph.Node(fn.ID), graph.Node(ref.Resource), name)
			e.Attr("style", "dashed")
		}
	}
	for _, grant := range g.Grants {
		e := graph.Edge(graph.Node(grant.Subject), graph.Node(grant.Object), string(grant.Access))
		e.Attr("color", "blue")
	}
	for _, gw := range g.Gateways {
		graph.Edge(graph.Node(gw.ID), graph.Node(gw.Backing), gw.DataSourceName)
	}

	if gen.IncludeBindings {
		for _, b := range g.Bindings {
			id := b.Gateway + "." + b.Key()
			n := parent("operations").Node(id)
			n.Label(b.Key())
			n.Attr("shape", "ellipse")
			graph.Edge(graph.Node(b.Gateway), n)
			e := graph.Edge(n, graph.Node(b.Target))
			e.Attr("style", "dotted")
		}
	}

	return graph
}

func tableLabel(c model.KeyedCollectionSpec) string {
	parts := []string{"PK " + c.PrimaryKey.Name}
	for _, idx := range c.Indexes {
		parts = append(parts, idx.Name)
	}
	return strings.Join(parts, ", ")
}

// buildTemplate draws template resources, clustered by AWS service when
// requested. Dependencies through intrinsics are drawn blue.
func (gen *Generator) buildTemplate(t *notesstack.Template, deps map[string][]string) *dot.Graph {
	graph := newGraph()

	names := make([]string, 0, len(t.Resources))
	byService := make(map[string][]string)
	for name, res := range t.Resources {
		names = append(names, name)
		service := extractService(res.Type)
		byService[service] = append(byService[service], name)
	}
	sort.Strings(names)

	if gen.ClusterByType {
		services := make([]string, 0, len(byService))
		for s := range byService {
			services = append(services, s)
		}
		sort.Strings(services)
		for _, service := range services {
			members := byService[service]
			sort.Strings(members)
			target := graph
			if len(members) > 1 {
				target = graph.Subgraph("cluster_"+service, dot.ClusterOption{})
				target.Attr("label", service)
				target.Attr("style", "rounded")
				target.Attr("bgcolor", "lightyellow")
			}
			for _, name := range members {
				target.Node(name).Label(name + "\\n[" + t.Resources[name].Type + "]")
			}
		}
	} else {
		for _, name := range names {
			graph.Node(name).Label(name + "\\n[" + t.Resources[name].Type + "]")
		}
	}

	for _, name := range names {
		explicit := make(map[string]bool)
		for _, d := range t.Resources[name].DependsOn {
			explicit[d] = true
		}
		for _, dep := range deps[name] {
			if _, ok := t.Resources[dep]; !ok {
				continue
			}
			e := graph.Edge(graph.Node(name), graph.Node(dep))
			if !explicit[dep] {
				e.Attr("color", "blue")
			}
		}
	}
	return graph
}

// extractService extracts the AWS service from a resource type,
// e.g. "AWS::AppSync::Resolver" -> "AppSync".
func extractService(cfType string) string {
	parts := strings.Split(cfType, "::")
	if len(parts) == 3 {
		return parts[1]
	}
	return "Other"
}

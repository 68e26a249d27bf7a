// Package optimizer suggests security, cost, performance and reliability
// improvements for a synthesized CloudFormation template.
package optimizer

import (
	"sort"
	"time"

	notesstack "github.com/lex00/notes-stack-go"
)

// Categories in report order.
var Categories = []string{"security", "cost", "performance", "reliability"}

// Options configures the optimizer.
type Options struct {
	// Category filters suggestions: "all" (or empty), "security", "cost",
	// "performance", "reliability".
	Category string
	// Now is used by rules that look at expiry dates. Defaults to time.Now.
	Now func() time.Time
}

// Result contains optimization suggestions.
type Result struct {
	Suggestions []notesstack.OptimizeSuggestion
	Summary     notesstack.OptimizeSummary
}

// ValidCategory reports whether c is accepted by Options.Category.
func ValidCategory(c string) bool {
	if c == "" || c == "all" {
		return true
	}
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Optimize analyzes every resource of t. Suggestions are sorted by
// resource name, then rule ID.
func Optimize(t *notesstack.Template, opts Options) (*Result, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	result := &Result{}

	for name, res := range t.Resources {
		result.Suggestions = append(result.Suggestions, analyzeResource(name, res, opts)...)
	}
	sort.Slice(result.Suggestions, func(i, j int) bool {
		a, b := result.Suggestions[i], result.Suggestions[j]
		if a.Resource != b.Resource {
			return a.Resource < b.Resource
		}
		return a.Rule < b.Rule
	})

	result.Summary = calculateSummary(result.Suggestions)
	return result, nil
}

// analyzeResource applies the rules for one resource.
func analyzeResource(name string, res notesstack.ResourceDef, opts Options) []notesstack.OptimizeSuggestion {
	var suggestions []notesstack.OptimizeSuggestion

	for _, rule := range getRulesForType(res.Type) {
		if opts.Category != "" && opts.Category != "all" && rule.Category != opts.Category {
			continue
		}
		if s := rule.Check(resource{Name: name, Def: res, now: opts.Now}); s != nil {
			s.Rule = rule.ID
			s.Resource = name
			s.Category = rule.Category
			suggestions = append(suggestions, *s)
		}
	}
	return suggestions
}

// calculateSummary tallies suggestions by category.
func calculateSummary(suggestions []notesstack.OptimizeSuggestion) notesstack.OptimizeSummary {
	summary := notesstack.OptimizeSummary{}
	for _, s := range suggestions {
		switch s.Category {
		case "security":
			summary.Security++
		case "cost":
			summary.Cost++
		case "performance":
			summary.Performance++
		case "reliability":
			summary.Reliability++
		}
		summary.Total++
	}
	return summary
}

// resource is what a rule inspects.
type resource struct {
	Name string
	Def  notesstack.ResourceDef
	now  func() time.Time
}

// prop walks nested property maps.
func (r resource) prop(path ...string) (any, bool) {
	var cur any = r.Def.Properties
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[key]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func (r resource) boolProp(path ...string) bool {
	v, _ := r.prop(path...)
	b, _ := v.(bool)
	return b
}

func (r resource) numberProp(path ...string) (float64, bool) {
	v, ok := r.prop(path...)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func (r resource) stringProp(path ...string) string {
	v, _ := r.prop(path...)
	s, _ := v.(string)
	return s
}

// Rule is an optimization rule. Check returns nil when the resource is fine;
// the returned suggestion's Rule, Resource and Category are filled in by
// the optimizer.
type Rule struct {
	ID       string
	Category string
	Title    string
	Check    func(res resource) *notesstack.OptimizeSuggestion
}

// getRulesForType returns the rules for a CloudFormation resource type.
func getRulesForType(resourceType string) []Rule {
	var rules []Rule

	switch resourceType {
	case "AWS::DynamoDB::Table":
		rules = append(rules, dynamoDBTableRules...)
	case "AWS::Lambda::Function":
		rules = append(rules, lambdaFunctionRules...)
	case "AWS::IAM::Role", "AWS::IAM::Policy":
		rules = append(rules, iamRules...)
	case "AWS::AppSync::GraphQLApi":
		rules = append(rules, graphQLAPIRules...)
	case "AWS::AppSync::ApiKey":
		rules = append(rules, apiKeyRules...)
	}

	return append(rules, genericRules...)
}

package optimizer

import (
	"testing"
	"time"

	notesstack "github.com/lex00/notes-stack-go"
)

var fixedNow = func() time.Time { return time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC) }

// notesTemplate mirrors the shape of the synthesized Notes stack.
func notesTemplate() *notesstack.Template {
	table := func(name string) notesstack.ResourceDef {
		return notesstack.ResourceDef{
			Type:                "AWS::DynamoDB::Table",
			Properties:          map[string]any{"TableName": name, "BillingMode": "PAY_PER_REQUEST"},
			DeletionPolicy:      "Delete",
			UpdateReplacePolicy: "Delete",
		}
	}
	return &notesstack.Template{Resources: map[string]notesstack.ResourceDef{
		"UsersTable": table("Users"),
		"NotesTable": table("Notes"),
		"NotesAppFunction": {Type: "AWS::Lambda::Function", Properties: map[string]any{
			"Runtime":    "dotnet8",
			"MemorySize": float64(512),
			"Timeout":    float64(30),
		}},
		"NotesAppFunctionServiceRoleDefaultPolicy": {Type: "AWS::IAM::Policy", Properties: map[string]any{
			"PolicyDocument": map[string]any{"Statement": []any{
				map[string]any{
					"Effect":   "Allow",
					"Action":   []any{"dynamodb:GetItem", "dynamodb:PutItem"},
					"Resource": []any{map[string]any{"Fn::GetAtt": []any{"UsersTable", "Arn"}}},
				},
			}},
		}},
		"NotesApi": {Type: "AWS::AppSync::GraphQLApi", Properties: map[string]any{
			"Name":               "notes-api",
			"AuthenticationType": "API_KEY",
			"XrayEnabled":        true,
		}},
		"NotesApiDefaultApiKey": {Type: "AWS::AppSync::ApiKey", Properties: map[string]any{
			"Expires": float64(fixedNow().Add(365 * 24 * time.Hour).Unix()),
		}},
	}}
}

func rules(result *Result) map[string]int {
	out := make(map[string]int)
	for _, s := range result.Suggestions {
		out[s.Rule]++
	}
	return out
}

func TestOptimize_NotesStack(t *testing.T) {
	result, err := Optimize(notesTemplate(), Options{Category: "all", Now: fixedNow})
	if err != nil {
		t.Fatalf("Optimize() error = %v", err)
	}

	want := map[string]int{
		"OPT-DDB-001": 2,
		"OPT-DDB-002": 2,
		"OPT-GEN-001": 2,
		"OPT-LAM-001": 1,
		"OPT-APS-001": 1,
		"OPT-APS-002": 1,
	}
	got := rules(result)
	for id, n := range want {
		if got[id] != n {
			t.Errorf("%s fired %d times, want %d", id, got[id], n)
		}
	}
	if len(got) != len(want) {
		t.Errorf("rules fired = %v", got)
	}

	if result.Summary.Total != 9 || result.Summary.Security != 3 || result.Summary.Reliability != 5 || result.Summary.Performance != 1 {
		t.Errorf("Summary = %+v", result.Summary)
	}

	// Sorted by resource, then rule.
	first := result.Suggestions[0]
	if first.Resource != "NotesApi" || first.Rule != "OPT-APS-001" || first.Category != "security" {
		t.Errorf("first suggestion = %+v", first)
	}
}

func TestOptimizeWithCategoryFilter(t *testing.T) {
	result, err := Optimize(notesTemplate(), Options{Category: "security", Now: fixedNow})
	if err != nil {
		t.Fatalf("Optimize() error = %v", err)
	}
	for _, s := range result.Suggestions {
		if s.Category != "security" {
			t.Errorf("expected only security suggestions, got %s", s.Category)
		}
	}
	if result.Summary.Total != 3 {
		t.Errorf("Total = %d, want 3", result.Summary.Total)
	}
}

func TestOptimizeEmptyResources(t *testing.T) {
	result, err := Optimize(&notesstack.Template{}, Options{})
	if err != nil {
		t.Fatalf("Optimize() error = %v", err)
	}
	if len(result.Suggestions) != 0 {
		t.Error("expected no suggestions for empty resources")
	}
	if result.Summary.Total != 0 {
		t.Error("expected zero total in summary")
	}
}

func TestLambdaRules(t *testing.T) {
	fn := func(props map[string]any) *notesstack.Template {
		return &notesstack.Template{Resources: map[string]notesstack.ResourceDef{
			"Fn": {Type: "AWS::Lambda::Function", Properties: props},
		}}
	}

	result, _ := Optimize(fn(map[string]any{
		"Runtime":       "dotnet8",
		"Timeout":       float64(60),
		"TracingConfig": map[string]any{"Mode": "Active"},
	}), Options{})
	got := rules(result)
	if got["OPT-LAM-002"] != 1 {
		t.Error("expected memory suggestion for dotnet with default memory")
	}
	if got["OPT-LAM-003"] != 1 {
		t.Error("expected timeout suggestion above 30 seconds")
	}
	if got["OPT-LAM-001"] != 0 {
		t.Error("active tracing should not be flagged")
	}

	result, _ = Optimize(fn(map[string]any{"Runtime": "python3.12", "MemorySize": float64(128)}), Options{})
	if rules(result)["OPT-LAM-002"] != 0 {
		t.Error("memory rule applies to dotnet and java only")
	}
}

func TestIAMWildcard(t *testing.T) {
	tests := []struct {
		name string
		stmt map[string]any
		want bool
	}{
		{"specific", map[string]any{"Effect": "Allow", "Action": "dynamodb:GetItem", "Resource": "arn:aws:dynamodb:::table/Users"}, false},
		{"service wildcard", map[string]any{"Effect": "Allow", "Action": []any{"dynamodb:*"}, "Resource": "arn"}, true},
		{"resource wildcard", map[string]any{"Effect": "Allow", "Action": "s3:GetObject", "Resource": "*"}, true},
		{"index suffix", map[string]any{"Effect": "Allow", "Action": "dynamodb:Query", "Resource": "arn:aws:dynamodb:::table/Users/index/*"}, false},
		{"deny", map[string]any{"Effect": "Deny", "Action": "*", "Resource": "*"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := map[string]any{"Statement": []any{tt.stmt}}
			if got := hasWildcard(doc); got != tt.want {
				t.Errorf("hasWildcard() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAPIKeyExpiry(t *testing.T) {
	key := func(props map[string]any) *notesstack.Template {
		return &notesstack.Template{Resources: map[string]notesstack.ResourceDef{
			"Key": {Type: "AWS::AppSync::ApiKey", Properties: props},
		}}
	}

	soon := float64(fixedNow().Add(10 * 24 * time.Hour).Unix())
	result, _ := Optimize(key(map[string]any{"Expires": soon}), Options{Now: fixedNow})
	if rules(result)["OPT-APS-004"] != 1 {
		t.Error("expected expiry warning for a key expiring in 10 days")
	}

	result, _ = Optimize(key(map[string]any{}), Options{Now: fixedNow})
	if rules(result)["OPT-APS-004"] != 1 {
		t.Error("expected expiry warning for the 7 day default")
	}
}

func TestCalculateSummary(t *testing.T) {
	suggestions := []notesstack.OptimizeSuggestion{
		{Category: "security"},
		{Category: "security"},
		{Category: "cost"},
		{Category: "performance"},
		{Category: "reliability"},
		{Category: "reliability"},
	}

	summary := calculateSummary(suggestions)

	if summary.Security != 2 {
		t.Errorf("Security = %d, want 2", summary.Security)
	}
	if summary.Cost != 1 {
		t.Errorf("Cost = %d, want 1", summary.Cost)
	}
	if summary.Performance != 1 {
		t.Errorf("Performance = %d, want 1", summary.Performance)
	}
	if summary.Reliability != 2 {
		t.Errorf("Reliability = %d, want 2", summary.Reliability)
	}
	if summary.Total != 6 {
		t.Errorf("Total = %d, want 6", summary.Total)
	}
}

func TestGetRulesForType(t *testing.T) {
	tests := []struct {
		resourceType string
		wantSpecific bool
	}{
		{"AWS::DynamoDB::Table", true},
		{"AWS::Lambda::Function", true},
		{"AWS::IAM::Policy", true},
		{"AWS::AppSync::GraphQLApi", true},
		{"AWS::AppSync::ApiKey", true},
		{"AWS::AppSync::Resolver", false},
	}

	for _, tt := range tests {
		t.Run(tt.resourceType, func(t *testing.T) {
			rules := getRulesForType(tt.resourceType)
			specific := len(rules) > len(genericRules)
			if specific != tt.wantSpecific {
				t.Errorf("getRulesForType(%s) returned %d rules", tt.resourceType, len(rules))
			}
		})
	}
}

func TestValidCategory(t *testing.T) {
	for _, c := range []string{"", "all", "security", "cost", "performance", "reliability"} {
		if !ValidCategory(c) {
			t.Errorf("ValidCategory(%q) = false", c)
		}
	}
	if ValidCategory("speed") {
		t.Error("ValidCategory(speed) = true")
	}
}

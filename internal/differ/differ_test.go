package differ

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	notesstack "github.com/lex00/notes-stack-go"
)

func TestCompare(t *testing.T) {
	t1 := &notesstack.Template{
		Resources: map[string]notesstack.ResourceDef{
			"UsersTable": {Type: "AWS::DynamoDB::Table", Properties: map[string]any{"TableName": "Users"}},
			"OldTable":   {Type: "AWS::DynamoDB::Table", Properties: map[string]any{"TableName": "Old"}},
		},
	}
	t2 := &notesstack.Template{
		Resources: map[string]notesstack.ResourceDef{
			"UsersTable": {Type: "AWS::DynamoDB::Table", Properties: map[string]any{"TableName": "Members"}},
			"NotesTable": {Type: "AWS::DynamoDB::Table", Properties: map[string]any{"TableName": "Notes"}},
		},
	}

	result, err := Compare(t1, t2, Options{})
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}

	if len(result.Diff.Removed) != 1 || result.Diff.Removed[0].Resource != "OldTable" {
		t.Errorf("Removed = %+v, want [OldTable]", result.Diff.Removed)
	}
	if len(result.Diff.Added) != 1 || result.Diff.Added[0].Resource != "NotesTable" {
		t.Errorf("Added = %+v, want [NotesTable]", result.Diff.Added)
	}
	if len(result.Diff.Modified) != 1 {
		t.Fatalf("Modified = %d, want 1", len(result.Diff.Modified))
	}
	if got := result.Diff.Modified[0].Changes; !reflect.DeepEqual(got, []string{"TableName modified"}) {
		t.Errorf("Changes = %v", got)
	}
	if result.Summary.Total != 3 {
		t.Errorf("Summary.Total = %d, want 3", result.Summary.Total)
	}
	if result.Empty() {
		t.Error("Empty() = true for differing templates")
	}
}

func TestCompareIdentical(t *testing.T) {
	tmpl := &notesstack.Template{
		Resources: map[string]notesstack.ResourceDef{
			"Api": {Type: "AWS::AppSync::GraphQLApi", Properties: map[string]any{"Name": "notes-api"}},
		},
		Outputs: map[string]notesstack.Output{"GraphQLApiURL": {Value: "x"}},
	}

	result, err := Compare(tmpl, tmpl, Options{})
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if !result.Empty() {
		t.Errorf("expected no differences, got %+v", result)
	}
}

func TestCompareNil(t *testing.T) {
	after := &notesstack.Template{
		Resources: map[string]notesstack.ResourceDef{"Api": {Type: "AWS::AppSync::GraphQLApi"}},
	}
	result, err := Compare(nil, after, Options{})
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if result.Summary.Added != 1 {
		t.Errorf("Added = %d, want 1", result.Summary.Added)
	}

	if _, err := Compare(after, nil, Options{}); err == nil {
		t.Error("expected error comparing against nil")
	}
}

func TestCompareNestedPaths(t *testing.T) {
	before := &notesstack.Template{Resources: map[string]notesstack.ResourceDef{
		"Fn": {Type: "AWS::Lambda::Function", Properties: map[string]any{
			"Environment": map[string]any{"Variables": map[string]any{
				"USERS_TABLE": map[string]any{"Ref": "UsersTable"},
			}},
			"MemorySize": float64(512),
		}},
	}}
	after := &notesstack.Template{Resources: map[string]notesstack.ResourceDef{
		"Fn": {Type: "AWS::Lambda::Function", Properties: map[string]any{
			"Environment": map[string]any{"Variables": map[string]any{
				"USERS_TABLE": map[string]any{"Ref": "MembersTable"},
				"NOTES_TABLE": map[string]any{"Ref": "NotesTable"},
			}},
			"Timeout": float64(30),
		}, DeletionPolicy: "Retain"},
	}}

	result, err := Compare(before, after, Options{})
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	want := []string{
		"Environment.Variables.NOTES_TABLE added",
		"Environment.Variables.USERS_TABLE modified",
		"MemorySize removed",
		"Timeout added",
		`DeletionPolicy changed: "" → "Retain"`,
	}
	if got := result.Diff.Modified[0].Changes; !reflect.DeepEqual(got, want) {
		t.Errorf("Changes = %q\nwant %q", got, want)
	}
}

func TestCompareIgnoreOrder(t *testing.T) {
	mk := func(actions ...any) *notesstack.Template {
		return &notesstack.Template{Resources: map[string]notesstack.ResourceDef{
			"Policy": {Type: "AWS::IAM::Policy", Properties: map[string]any{"Action": actions}},
		}}
	}
	t1 := mk("dynamodb:GetItem", "dynamodb:PutItem")
	t2 := mk("dynamodb:PutItem", "dynamodb:GetItem")

	strict, _ := Compare(t1, t2, Options{})
	if strict.Summary.Modified != 1 {
		t.Errorf("strict Modified = %d, want 1", strict.Summary.Modified)
	}
	loose, _ := Compare(t1, t2, Options{IgnoreOrder: true})
	if loose.Summary.Modified != 0 {
		t.Errorf("IgnoreOrder Modified = %d, want 0", loose.Summary.Modified)
	}
}

func TestCompareOutputs(t *testing.T) {
	t1 := &notesstack.Template{Outputs: map[string]notesstack.Output{
		"GraphQLApiURL": {Value: "a"},
		"Legacy":        {Value: "x"},
	}}
	t2 := &notesstack.Template{Outputs: map[string]notesstack.Output{
		"GraphQLApiURL": {Value: "b"},
		"GraphQLApiKey": {Value: "No API Key"},
	}}
	result, _ := Compare(t1, t2, Options{})
	want := []string{"GraphQLApiKey", "GraphQLApiURL", "Legacy"}
	if !reflect.DeepEqual(result.Outputs, want) {
		t.Errorf("Outputs = %v, want %v", result.Outputs, want)
	}
}

func TestCompareFiles_JSONAndYAML(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "a.json")
	yamlPath := filepath.Join(dir, "b.yaml")

	if err := os.WriteFile(jsonPath, []byte(`{
  "AWSTemplateFormatVersion": "2010-09-09",
  "Resources": {"Api": {"Type": "AWS::AppSync::GraphQLApi", "Properties": {"Name": "notes-api", "XrayEnabled": true}}}
}`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(yamlPath, []byte(`AWSTemplateFormatVersion: "2010-09-09"
Resources:
  Api:
    Type: AWS::AppSync::GraphQLApi
    Properties:
      Name: notes-api
      XrayEnabled: true
`), 0644); err != nil {
		t.Fatal(err)
	}

	result, err := CompareFiles(jsonPath, yamlPath, Options{})
	if err != nil {
		t.Fatalf("CompareFiles() error = %v", err)
	}
	if !result.Empty() {
		t.Errorf("JSON and YAML forms should compare equal, got %+v", result.Diff)
	}

	if _, err := CompareFiles(jsonPath, filepath.Join(dir, "missing.json"), Options{}); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestParseTemplate_Invalid(t *testing.T) {
	if _, err := ParseTemplate([]byte("{not: [valid")); err == nil {
		t.Error("expected parse error")
	}
}

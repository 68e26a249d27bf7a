package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lex00/notes-stack-go/internal/model"
	"github.com/lex00/notes-stack-go/internal/provision"
)

func TestNewOutputsCmd(t *testing.T) {
	cmd := newOutputsCmd()

	if cmd.Use != "outputs [stack-outputs.json]" {
		t.Errorf("Use = %q", cmd.Use)
	}
	for _, flag := range []string{"auth-mode", "format", "stack"} {
		if cmd.Flags().Lookup(flag) == nil {
			t.Errorf("missing --%s flag", flag)
		}
	}
}

func TestParseOutputs_DescribeStacks(t *testing.T) {
	doc := `{"Stacks": [{"StackName": "NotesAppStack", "Outputs": [
		{"OutputKey": "GraphQLApiURL", "OutputValue": "https://abc.appsync-api.us-east-1.amazonaws.com/graphql"},
		{"OutputKey": "GraphQLApiKey", "OutputValue": "da2-xyz"}
	]}]}`

	resp, err := parseOutputs([]byte(doc), model.AuthAPIKey)
	if err != nil {
		t.Fatalf("parseOutputs: %v", err)
	}
	if resp.Outputs[provision.OutputAPIKey] != "da2-xyz" {
		t.Errorf("Outputs = %v", resp.Outputs)
	}
	if resp.AuthMode != model.AuthAPIKey {
		t.Errorf("AuthMode = %q", resp.AuthMode)
	}
}

func TestParseOutputs_Flat(t *testing.T) {
	resp, err := parseOutputs([]byte(`{"GraphQLApiURL": "https://x/graphql", "GraphQLApiKey": "No API Key"}`), model.AuthIAM)
	if err != nil {
		t.Fatalf("parseOutputs: %v", err)
	}
	out, err := provision.ExtractOutputs(resp)
	if err != nil {
		t.Fatalf("ExtractOutputs: %v", err)
	}
	if out.HasAPIKey() {
		t.Error("IAM mode should report no API key")
	}
}

func TestParseOutputs_Invalid(t *testing.T) {
	if _, err := parseOutputs([]byte(`[1, 2]`), model.AuthAPIKey); err == nil {
		t.Error("expected error for unexpected JSON")
	}
}

func TestOutputsCmd_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stack.json")
	if err := os.WriteFile(path, []byte(`{"GraphQLApiURL": "https://x/graphql", "GraphQLApiKey": "da2-k"}`), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "outputs", path, "-f", "json")
	if err != nil {
		t.Fatalf("outputs: %v", err)
	}
	if !strings.Contains(out, `"graphql_api_key": "da2-k"`) {
		t.Errorf("output:\n%s", out)
	}
}

func TestOutputsCmd_MissingKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stack.json")
	if err := os.WriteFile(path, []byte(`{"GraphQLApiURL": "https://x/graphql"}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "outputs", path); err == nil {
		t.Error("expected error when an API key stack reports no key")
	}
}

func TestOutputsCmd_NoInput(t *testing.T) {
	if _, err := execute(t, "outputs"); err == nil {
		t.Error("expected error without a file or --stack")
	}
}

package optimizer

import (
	"fmt"
	"strings"
	"time"

	notesstack "github.com/lex00/notes-stack-go"
)

// dynamoDBTableRules contains optimization rules for DynamoDB tables.
var dynamoDBTableRules = []Rule{
	{
		ID:       "OPT-DDB-001",
		Category: "reliability",
		Title:    "DynamoDB table should have point-in-time recovery",
		Check: func(res resource) *notesstack.OptimizeSuggestion {
			if res.boolProp("PointInTimeRecoverySpecification", "PointInTimeRecoveryEnabled") {
				return nil
			}
			return &notesstack.OptimizeSuggestion{
				Severity:    "medium",
				Title:       "Enable point-in-time recovery",
				Description: "Point-in-time recovery (PITR) provides continuous backups of the table for the last 35 days.",
				Suggestion:  "Set PointInTimeRecoverySpecification.PointInTimeRecoveryEnabled to true.",
			}
		},
	},
	{
		ID:       "OPT-DDB-002",
		Category: "security",
		Title:    "DynamoDB table should use a KMS key",
		Check: func(res resource) *notesstack.OptimizeSuggestion {
			if res.boolProp("SSESpecification", "SSEEnabled") {
				return nil
			}
			return &notesstack.OptimizeSuggestion{
				Severity:    "low",
				Title:       "Consider KMS encryption",
				Description: "Tables are encrypted with an AWS owned key by default, which cannot be audited or rotated by you.",
				Suggestion:  "Set SSESpecification.SSEEnabled to true to use the AWS managed or a customer managed KMS key.",
			}
		},
	},
	{
		ID:       "OPT-DDB-003",
		Category: "cost",
		Title:    "DynamoDB table should use on-demand capacity for unpredictable traffic",
		Check: func(res resource) *notesstack.OptimizeSuggestion {
			if res.stringProp("BillingMode") == "PAY_PER_REQUEST" {
				return nil
			}
			return &notesstack.OptimizeSuggestion{
				Severity:    "medium",
				Title:       "Review DynamoDB capacity mode",
				Description: "Provisioned capacity without auto scaling is billed whether or not it is used.",
				Suggestion:  "Use BillingMode PAY_PER_REQUEST, or add auto scaling for steady traffic.",
			}
		},
	},
}

// lambdaFunctionRules contains optimization rules for Lambda functions.
var lambdaFunctionRules = []Rule{
	{
		ID:       "OPT-LAM-001",
		Category: "performance",
		Title:    "Lambda function should have active tracing",
		Check: func(res resource) *notesstack.OptimizeSuggestion {
			if res.stringProp("TracingConfig", "Mode") == "Active" {
				return nil
			}
			return &notesstack.OptimizeSuggestion{
				Severity:    "medium",
				Title:       "Enable X-Ray tracing",
				Description: "Without active tracing, traces started by the GraphQL API stop at the function boundary.",
				Suggestion:  "Set TracingConfig.Mode to Active.",
			}
		},
	},
	{
		ID:       "OPT-LAM-002",
		Category: "performance",
		Title:    "Managed runtimes need enough memory",
		Check: func(res resource) *notesstack.OptimizeSuggestion {
			runtime := res.stringProp("Runtime")
			if !strings.HasPrefix(runtime, "dotnet") && !strings.HasPrefix(runtime, "java") {
				return nil
			}
			memory, ok := res.numberProp("MemorySize")
			if !ok {
				memory = 128
			}
			if memory >= 512 {
				return nil
			}
			return &notesstack.OptimizeSuggestion{
				Severity:    "medium",
				Title:       "Increase memory for the " + runtime + " runtime",
				Description: fmt.Sprintf("%.0f MB gives %s little CPU, so cold starts are slow.", memory, runtime),
				Suggestion:  "Set MemorySize to at least 512.",
			}
		},
	},
	{
		ID:       "OPT-LAM-003",
		Category: "cost",
		Title:    "Lambda timeout should not exceed the resolver timeout",
		Check: func(res resource) *notesstack.OptimizeSuggestion {
			timeout, ok := res.numberProp("Timeout")
			if !ok || timeout <= 30 {
				return nil
			}
			return &notesstack.OptimizeSuggestion{
				Severity:    "low",
				Title:       "Lower the function timeout",
				Description: fmt.Sprintf("AppSync gives up on a Lambda resolver after 30 seconds; a %.0f second timeout only bills the remainder.", timeout),
				Suggestion:  "Set Timeout to 30 seconds or less.",
			}
		},
	},
}

// iamRules contains optimization rules for IAM resources.
var iamRules = []Rule{
	{
		ID:       "OPT-IAM-001",
		Category: "security",
		Title:    "IAM policy should use least privilege",
		Check: func(res resource) *notesstack.OptimizeSuggestion {
			doc, _ := res.prop("PolicyDocument")
			if !hasWildcard(doc) {
				return nil
			}
			return &notesstack.OptimizeSuggestion{
				Severity:    "high",
				Title:       "Review IAM permissions for least privilege",
				Description: "A statement grants a wildcard action or resource.",
				Suggestion:  "Replace wildcard (*) permissions with specific resource ARNs and actions.",
			}
		},
	},
}

// hasWildcard reports whether a policy document allows "*" or "service:*"
// actions, or the "*" resource.
func hasWildcard(doc any) bool {
	m, ok := doc.(map[string]any)
	if !ok {
		return false
	}
	statements, _ := m["Statement"].([]any)
	for _, st := range statements {
		stmt, ok := st.(map[string]any)
		if !ok || stmt["Effect"] != "Allow" {
			continue
		}
		for _, action := range stringValues(stmt["Action"]) {
			if action == "*" || strings.HasSuffix(action, ":*") {
				return true
			}
		}
		for _, r := range stringValues(stmt["Resource"]) {
			if r == "*" {
				return true
			}
		}
	}
	return false
}

// stringValues returns the string elements of a string or a list. Intrinsics
// are skipped.
func stringValues(v any) []string {
	switch val := v.(type) {
	case string:
		return []string{val}
	case []any:
		var out []string
		for _, e := range val {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// graphQLAPIRules contains optimization rules for AppSync GraphQL APIs.
var graphQLAPIRules = []Rule{
	{
		ID:       "OPT-APS-001",
		Category: "security",
		Title:    "GraphQL API should not rely on API keys alone",
		Check: func(res resource) *notesstack.OptimizeSuggestion {
			if res.stringProp("AuthenticationType") != "API_KEY" {
				return nil
			}
			return &notesstack.OptimizeSuggestion{
				Severity:    "medium",
				Title:       "Consider user based authorization",
				Description: "An API key is a shared secret that identifies no caller and expires.",
				Suggestion:  "Use AMAZON_COGNITO_USER_POOLS, OPENID_CONNECT or AWS_IAM for production clients.",
			}
		},
	},
	{
		ID:       "OPT-APS-002",
		Category: "reliability",
		Title:    "GraphQL API should log resolver errors",
		Check: func(res resource) *notesstack.OptimizeSuggestion {
			if _, ok := res.prop("LogConfig"); ok {
				return nil
			}
			return &notesstack.OptimizeSuggestion{
				Severity:    "low",
				Title:       "Enable field logging",
				Description: "Without LogConfig, resolver errors are not written to CloudWatch Logs.",
				Suggestion:  "Add LogConfig with FieldLogLevel ERROR and a CloudWatchLogsRoleArn.",
			}
		},
	},
	{
		ID:       "OPT-APS-003",
		Category: "performance",
		Title:    "GraphQL API should have X-Ray enabled",
		Check: func(res resource) *notesstack.OptimizeSuggestion {
			if res.boolProp("XrayEnabled") {
				return nil
			}
			return &notesstack.OptimizeSuggestion{
				Severity:    "low",
				Title:       "Enable X-Ray on the API",
				Description: "Request latency cannot be broken down per resolver without tracing.",
				Suggestion:  "Set XrayEnabled to true.",
			}
		},
	},
}

// apiKeyRules contains optimization rules for AppSync API keys.
var apiKeyRules = []Rule{
	{
		ID:       "OPT-APS-004",
		Category: "reliability",
		Title:    "API key should not expire soon",
		Check: func(res resource) *notesstack.OptimizeSuggestion {
			expires, ok := res.numberProp("Expires")
			now := res.now()
			// AppSync defaults to seven days without an explicit expiry.
			at := now.Add(7 * 24 * time.Hour)
			if ok {
				at = time.Unix(int64(expires), 0)
			}
			left := at.Sub(now)
			if left >= 30*24*time.Hour {
				return nil
			}
			return &notesstack.OptimizeSuggestion{
				Severity:    "high",
				Title:       "API key expires within 30 days",
				Description: fmt.Sprintf("The key expires on %s; clients start failing with UnauthorizedException afterwards.", at.UTC().Format("2006-01-02")),
				Suggestion:  "Redeploy to rotate the key, or set a later Expires.",
			}
		},
	},
}

// statefulTypes are resources whose deletion loses data.
var statefulTypes = map[string]bool{
	"AWS::DynamoDB::Table": true,
	"AWS::S3::Bucket":      true,
	"AWS::RDS::DBInstance": true,
}

// genericRules apply to all resources.
var genericRules = []Rule{
	{
		ID:       "OPT-GEN-001",
		Category: "reliability",
		Title:    "Stateful resource should be retained on deletion",
		Check: func(res resource) *notesstack.OptimizeSuggestion {
			if !statefulTypes[res.Def.Type] {
				return nil
			}
			if p := res.Def.DeletionPolicy; p == "Retain" || p == "Snapshot" || p == "RetainExceptOnCreate" {
				return nil
			}
			return &notesstack.OptimizeSuggestion{
				Severity:    "medium",
				Title:       "Consider DeletionPolicy Retain",
				Description: "Deleting the stack or removing the resource deletes its data.",
				Suggestion:  "Set DeletionPolicy to Retain or Snapshot for production data.",
			}
		},
	},
	{
		ID:       "OPT-GEN-002",
		Category: "reliability",
		Title:    "Stateful resource should have UpdateReplacePolicy",
		Check: func(res resource) *notesstack.OptimizeSuggestion {
			if !statefulTypes[res.Def.Type] || res.Def.UpdateReplacePolicy != "" {
				return nil
			}
			return &notesstack.OptimizeSuggestion{
				Severity:    "low",
				Title:       "Consider adding UpdateReplacePolicy",
				Description: "UpdateReplacePolicy controls what happens to the old resource when an update replaces it.",
				Suggestion:  "Add UpdateReplacePolicy: Retain or UpdateReplacePolicy: Snapshot.",
			}
		},
	},
}

package provision

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lex00/notes-stack-go/internal/model"
)

func TestExtractOutputs(t *testing.T) {
	const url = "https://abc.appsync-api.us-east-1.amazonaws.com/graphql"

	tests := []struct {
		name    string
		resp    Response
		wantKey string // empty means absent
		wantErr bool
	}{
		{
			name: "api key mode",
			resp: Response{AuthMode: model.AuthAPIKey, Outputs: map[string]string{
				OutputURL: url, OutputAPIKey: "da2-xyz",
			}},
			wantKey: "da2-xyz",
		},
		{
			name: "iam mode ignores key",
			resp: Response{AuthMode: model.AuthIAM, Outputs: map[string]string{
				OutputURL: url, OutputAPIKey: "da2-stale",
			}},
		},
		{
			name: "cognito mode without key",
			resp: Response{AuthMode: model.AuthCognito, Outputs: map[string]string{
				OutputURL: url, OutputAPIKey: model.NoAPIKey,
			}},
		},
		{
			name:    "missing url",
			resp:    Response{AuthMode: model.AuthAPIKey, Outputs: map[string]string{OutputAPIKey: "da2-xyz"}},
			wantErr: true,
		},
		{
			name: "api key mode with sentinel",
			resp: Response{AuthMode: model.AuthAPIKey, Outputs: map[string]string{
				OutputURL: url, OutputAPIKey: model.NoAPIKey,
			}},
			wantErr: true,
		},
		{
			name:    "api key mode without key",
			resp:    Response{AuthMode: model.AuthAPIKey, Outputs: map[string]string{OutputURL: url}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := ExtractOutputs(tt.resp)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, url, out.GatewayURL)

			if tt.wantKey == "" {
				assert.Nil(t, out.APIKey)
				return
			}
			require.NotNil(t, out.APIKey)
			assert.Equal(t, tt.wantKey, *out.APIKey)
		})
	}
}

func TestExtractOutputs_MissingURLSentinel(t *testing.T) {
	_, err := ExtractOutputs(Response{AuthMode: model.AuthIAM})
	assert.True(t, errors.Is(err, ErrMissingURL))
}

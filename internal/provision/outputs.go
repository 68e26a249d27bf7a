package provision

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lex00/notes-stack-go/internal/model"
)

// Output keys reported for a gateway, matching the stack output names.
const (
	OutputURL    = "GraphQLApiURL"
	OutputAPIKey = "GraphQLApiKey"
)

// Response is a provider's description of a provisioned gateway.
type Response struct {
	AuthMode model.AuthMode
	Outputs  map[string]string
}

// ErrMissingURL is returned when a response carries no gateway URL.
var ErrMissingURL = errors.New("gateway URL missing from provider response")

// ExtractOutputs reads the gateway URL and API key from resp. The key is
// reported absent, not as an error, when the auth mode does not issue keys.
func ExtractOutputs(resp Response) (model.ProvisionedOutputs, error) {
	var out model.ProvisionedOutputs

	url := strings.TrimSpace(resp.Outputs[OutputURL])
	if url == "" {
		return out, ErrMissingURL
	}
	out.GatewayURL = url

	if !resp.AuthMode.KeyBased() {
		return out, nil
	}

	key := strings.TrimSpace(resp.Outputs[OutputAPIKey])
	if key == "" || key == model.NoAPIKey {
		return out, fmt.Errorf("auth mode %s but no API key was reported", resp.AuthMode)
	}
	out.APIKey = &key
	return out, nil
}

package provision

import (
	"errors"
	"fmt"
)

// Steps of a provisioning run, in the order Apply performs them.
const (
	StepCollection  = "collection"
	StepIndex       = "index"
	StepComputeUnit = "compute_unit"
	StepGrant       = "grant"
	StepGateway     = "gateway"
	StepBinding     = "binding"
	StepOutputs     = "outputs"
)

// ProviderError wraps a failed provider call.
type ProviderError struct {
	Op       string
	Resource string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s %s: %v", e.Op, e.Resource, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ProvisioningError is returned by Apply when a step fails. Resources in
// Applied were provisioned before the failure and are left in place.
type ProvisioningError struct {
	Step     string
	Resource string
	Applied  []string
	Err      error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning stopped at %s %s after %d applied steps: %v",
		e.Step, e.Resource, len(e.Applied), e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// asProviderError wraps err as a ProviderError unless it already is one.
func asProviderError(op, resource string, err error) error {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return err
	}
	return &ProviderError{Op: op, Resource: resource, Err: err}
}

package sandbox

import (
	"errors"
	"fmt"
)

// ErrNotFound means the tenant has no live sandbox registered.
var ErrNotFound = errors.New("no sandbox registered for tenant")

// ErrRuntimeUnavailable means the container runtime daemon is unreachable.
// It is fatal to the triggering command and is never retried automatically.
var ErrRuntimeUnavailable = errors.New("container runtime unavailable")

// ProvisionError wraps a failure to create or validate a sandbox.
type ProvisionError struct {
	Tenant string
	Err    error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("provisioning sandbox for tenant %s: %v", e.Tenant, e.Err)
}

func (e *ProvisionError) Unwrap() error {
	return e.Err
}

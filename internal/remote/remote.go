package remote

import (
	"context"
	"errors"
)

// ErrTargetUnreachable indicates the target node could not be reached at all.
// During telemetry collection this is downgraded to a recorded error sample;
// during the pre-flight check it aborts the run before any mutation.
var ErrTargetUnreachable = errors.New("target unreachable")

// Invoker executes a named procedure on a target node and returns its
// decoded result. Used both to run workload and installation steps and to
// sample counters.
type Invoker interface {
	Invoke(ctx context.Context, target, procedure string, args map[string]string) (map[string]any, error)
}

// CredentialSource resolves an opaque credential by name for use with an
// Invoker. Acquisition backends (vault, interactive, parameters) live
// outside this module.
type CredentialSource interface {
	GetCredential(ctx context.Context, name string) (string, error)
}

// ConfigSource resolves a configuration parameter by name.
type ConfigSource interface {
	GetConfigValue(ctx context.Context, name string) (string, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, target, procedure string, args map[string]string) (map[string]any, error)

// Invoke implements Invoker.
func (f InvokerFunc) Invoke(ctx context.Context, target, procedure string, args map[string]string) (map[string]any, error) {
	return f(ctx, target, procedure, args)
}

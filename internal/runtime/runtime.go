// Package runtime wraps the container runtime behind a small client
// interface so the registry and executor never touch the Docker SDK
// directly.
package runtime

import (
	"context"
	"time"
)

// CreateSpec describes a sandbox container to provision.
type CreateSpec struct {
	Name        string
	Image       string
	Env         []string
	Workdir     string
	MemoryBytes int64
	CPUShares   int64
	NetworkMode string
	Labels      map[string]string
}

// ExecResult is the captured output of one in-sandbox command.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Client is the contract against the container runtime. All calls are
// I/O-bound and honor ctx cancellation.
type Client interface {
	// Ping reports whether the runtime daemon is reachable.
	Ping(ctx context.Context) error

	// Create provisions and starts a container, returning its id.
	Create(ctx context.Context, spec CreateSpec) (string, error)

	// Alive reports whether the container exists and is running.
	Alive(ctx context.Context, id string) (bool, error)

	// Stop requests a graceful stop bounded by grace.
	Stop(ctx context.Context, id string, grace time.Duration) error

	// Remove forcibly removes the container.
	Remove(ctx context.Context, id string) error

	// Logs returns the combined stdout/stderr history of the container.
	Logs(ctx context.Context, id string) ([]byte, error)

	// WriteFile materializes data at path inside the container. The write
	// is atomic: the payload is staged under a temporary name and renamed
	// into place, so a partial payload is never visible at path.
	WriteFile(ctx context.Context, id, path string, data []byte) error

	// Exec runs cmd inside the container and captures its output.
	Exec(ctx context.Context, id string, cmd []string) (ExecResult, error)

	// Kill terminates every in-container process whose command line
	// matches pattern. Used to reap runaway executions after a timeout.
	Kill(ctx context.Context, id, pattern string) error
}

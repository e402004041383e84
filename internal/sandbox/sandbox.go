// Package sandbox owns the tenant -> execution environment mapping. The
// Registry is the single writer of sandbox lifecycle state.
package sandbox

import (
	"sync"
	"time"
)

// State is a sandbox lifecycle state.
type State string

const (
	StateProvisioning State = "provisioning"
	StateRunning      State = "running"
	StateStopping     State = "stopping"
	StateRemoved      State = "removed"
)

// Sandbox is a long-lived isolated execution environment bound to one
// tenant. At most one non-removed Sandbox exists per tenant.
type Sandbox struct {
	ID        string
	Name      string
	Tenant    string
	CreatedAt time.Time

	mu        sync.Mutex
	state     State
	executing bool
}

// State returns the current lifecycle state.
func (s *Sandbox) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Sandbox) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// TryBeginExec claims the sandbox for one execution. It returns false when
// another execution is already in flight; concurrent executions against
// the same sandbox are rejected, not queued.
func (s *Sandbox) TryBeginExec() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.executing || s.state == StateStopping || s.state == StateRemoved {
		return false
	}
	s.executing = true
	return true
}

// EndExec releases the execution claim taken by TryBeginExec.
func (s *Sandbox) EndExec() {
	s.mu.Lock()
	s.executing = false
	s.mu.Unlock()
}

// Info is a read-only snapshot of one registered sandbox.
type Info struct {
	Tenant    string    `json:"tenant"`
	SandboxID string    `json:"sandboxId"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	State     State     `json:"state"`
}

package sandbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/codeon-dev/codeon/internal/config"
	"github.com/codeon-dev/codeon/internal/runtime"
)

// Registry maps tenants to their live sandboxes. Acquire, Release and
// DrainAll appear atomic to concurrent callers for a given tenant: every
// check-then-create or stop-then-clear sequence runs inside a per-tenant
// critical section.
type Registry struct {
	rt     runtime.Client
	cfg    *config.Config
	logger *zap.Logger

	mu        sync.Mutex
	sandboxes map[string]*Sandbox
	tenants   map[string]*sync.Mutex
}

// NewRegistry creates an empty registry backed by the given runtime.
func NewRegistry(rt runtime.Client, cfg *config.Config, logger *zap.Logger) *Registry {
	return &Registry{
		rt:        rt,
		cfg:       cfg,
		logger:    logger,
		sandboxes: make(map[string]*Sandbox),
		tenants:   make(map[string]*sync.Mutex),
	}
}

// Acquire returns the tenant's sandbox, reusing the existing one when it is
// still verifiably alive and provisioning a fresh one otherwise. Only one
// sandbox is ever created per tenant, even under concurrent calls.
func (r *Registry) Acquire(ctx context.Context, tenant string) (*Sandbox, error) {
	lock := r.tenantLock(tenant)
	lock.Lock()
	defer lock.Unlock()

	if sb := r.get(tenant); sb != nil {
		alive, err := r.rt.Alive(ctx, sb.ID)
		if err != nil {
			if runtime.IsUnavailable(err) {
				return nil, ErrRuntimeUnavailable
			}
			return nil, &ProvisionError{Tenant: tenant, Err: err}
		}
		if alive {
			return sb, nil
		}
		// The container died underneath us; discard the stale record.
		r.logger.Warn("sandbox no longer running, replacing",
			zap.String("tenant", tenant),
			zap.String("sandbox", sb.Name))
		sb.setState(StateRemoved)
		r.delete(tenant)
		if rmErr := r.rt.Remove(ctx, sb.ID); rmErr != nil {
			r.logger.Warn("removing dead sandbox", zap.String("sandbox", sb.Name), zap.Error(rmErr))
		}
	}

	return r.provision(ctx, tenant)
}

// provision is called with the tenant lock held.
func (r *Registry) provision(ctx context.Context, tenant string) (*Sandbox, error) {
	name := fmt.Sprintf("codeon-%s-%s", tenant, uuid.New().String()[:8])
	sb := &Sandbox{
		Name:      name,
		Tenant:    tenant,
		CreatedAt: time.Now(),
		state:     StateProvisioning,
	}

	id, err := r.rt.Create(ctx, runtime.CreateSpec{
		Name:        name,
		Image:       r.cfg.Runtime.Image,
		Workdir:     r.cfg.Sandbox.Workdir,
		MemoryBytes: int64(r.cfg.Sandbox.MemoryMB) * 1024 * 1024,
		CPUShares:   int64(r.cfg.Sandbox.CPUShares),
		NetworkMode: r.cfg.Sandbox.Network,
		Env: []string{
			"CODEON_TENANT=" + tenant,
			"CODEON_SANDBOX=" + name,
		},
		Labels: map[string]string{
			"codeon.tenant": tenant,
		},
	})
	if err != nil {
		if runtime.IsUnavailable(err) {
			return nil, ErrRuntimeUnavailable
		}
		return nil, &ProvisionError{Tenant: tenant, Err: err}
	}

	sb.ID = id
	sb.setState(StateRunning)
	r.put(tenant, sb)

	r.logger.Info("sandbox provisioned",
		zap.String("tenant", tenant),
		zap.String("sandbox", name),
		zap.String("id", id))
	return sb, nil
}

// Release tears down the tenant's sandbox: graceful stop bounded by the
// configured grace period, then forced removal. The registry entry is
// cleared even when the runtime calls fail, so a follow-up Acquire always
// provisions fresh. Calling Release for a tenant with no sandbox is a
// no-op.
func (r *Registry) Release(ctx context.Context, tenant string) error {
	lock := r.tenantLock(tenant)
	lock.Lock()
	defer lock.Unlock()

	sb := r.get(tenant)
	if sb == nil {
		return nil
	}

	sb.setState(StateStopping)

	var firstErr error
	if err := r.rt.Stop(ctx, sb.ID, r.cfg.StopGrace()); err != nil {
		firstErr = fmt.Errorf("stopping sandbox %s: %w", sb.Name, err)
	}
	if err := r.rt.Remove(ctx, sb.ID); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("removing sandbox %s: %w", sb.Name, err)
	}

	r.delete(tenant)
	sb.setState(StateRemoved)

	r.logger.Info("sandbox released",
		zap.String("tenant", tenant),
		zap.String("sandbox", sb.Name))
	return firstErr
}

// Logs returns the combined output history captured by the runtime for the
// tenant's sandbox.
func (r *Registry) Logs(ctx context.Context, tenant string) ([]byte, error) {
	sb := r.get(tenant)
	if sb == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, tenant)
	}
	return r.rt.Logs(ctx, sb.ID)
}

// DrainAll releases every registered sandbox, continuing past individual
// failures. Used at process shutdown; afterwards the registry is empty.
func (r *Registry) DrainAll(ctx context.Context) {
	r.mu.Lock()
	tenants := make([]string, 0, len(r.sandboxes))
	for tenant := range r.sandboxes {
		tenants = append(tenants, tenant)
	}
	r.mu.Unlock()

	r.logger.Info("draining sandboxes", zap.Int("count", len(tenants)))
	for _, tenant := range tenants {
		if err := r.Release(ctx, tenant); err != nil {
			r.logger.Error("draining sandbox", zap.String("tenant", tenant), zap.Error(err))
		}
	}
}

// Snapshot returns read-only info for every registered sandbox.
func (r *Registry) Snapshot() []Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]Info, 0, len(r.sandboxes))
	for _, sb := range r.sandboxes {
		infos = append(infos, Info{
			Tenant:    sb.Tenant,
			SandboxID: sb.ID,
			Name:      sb.Name,
			CreatedAt: sb.CreatedAt,
			State:     sb.State(),
		})
	}
	return infos
}

// tenantLock returns the mutex guarding the tenant's check-then-create and
// stop-then-clear sequences.
func (r *Registry) tenantLock(tenant string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.tenants[tenant]
	if !ok {
		lock = &sync.Mutex{}
		r.tenants[tenant] = lock
	}
	return lock
}

func (r *Registry) get(tenant string) *Sandbox {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sandboxes[tenant]
}

func (r *Registry) put(tenant string, sb *Sandbox) {
	r.mu.Lock()
	r.sandboxes[tenant] = sb
	r.mu.Unlock()
}

func (r *Registry) delete(tenant string) {
	r.mu.Lock()
	delete(r.sandboxes, tenant)
	r.mu.Unlock()
}

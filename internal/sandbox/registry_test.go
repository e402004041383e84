package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	dockerclient "github.com/docker/docker/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/codeon-dev/codeon/internal/config"
	"github.com/codeon-dev/codeon/internal/runtime"
)

// fakeClient implements runtime.Client for registry tests.
type fakeClient struct {
	mu          sync.Mutex
	nextID      int
	createDelay time.Duration
	createErr   error
	createCalls int
	alive       map[string]bool
	stopErr     map[string]error
	stopCalls   []string
	removeCalls []string
	logs        []byte
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		alive:   make(map[string]bool),
		stopErr: make(map[string]error),
	}
}

func (f *fakeClient) Ping(ctx context.Context) error { return nil }

func (f *fakeClient) Create(ctx context.Context, spec runtime.CreateSpec) (string, error) {
	if f.createDelay > 0 {
		time.Sleep(f.createDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.createCalls++
	f.nextID++
	id := fmt.Sprintf("container-%d", f.nextID)
	f.alive[id] = true
	return id, nil
}

func (f *fakeClient) Alive(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive[id], nil
}

func (f *fakeClient) Stop(ctx context.Context, id string, grace time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls = append(f.stopCalls, id)
	f.alive[id] = false
	return f.stopErr[id]
}

func (f *fakeClient) Remove(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeCalls = append(f.removeCalls, id)
	delete(f.alive, id)
	return nil
}

func (f *fakeClient) Logs(ctx context.Context, id string) ([]byte, error) {
	return f.logs, nil
}

func (f *fakeClient) WriteFile(ctx context.Context, id, path string, data []byte) error {
	return nil
}

func (f *fakeClient) Exec(ctx context.Context, id string, cmd []string) (runtime.ExecResult, error) {
	return runtime.ExecResult{}, nil
}

func (f *fakeClient) Kill(ctx context.Context, id, pattern string) error { return nil }

func testConfig() *config.Config {
	return &config.Config{
		Runtime: config.RuntimeConfig{Image: "codeon/runtime:test"},
		Sandbox: config.SandboxConfig{
			MemoryMB:     512,
			CPUShares:    512,
			Network:      "none",
			Workdir:      "/workspace",
			StopGraceSec: 1,
		},
		Exec: config.ExecConfig{TimeoutSec: 30},
	}
}

func newTestRegistry(rt runtime.Client) *Registry {
	return NewRegistry(rt, testConfig(), zap.NewNop())
}

func TestAcquireIdempotent(t *testing.T) {
	rt := newFakeClient()
	r := newTestRegistry(rt)

	sb1, err := r.Acquire(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, StateRunning, sb1.State())
	assert.Equal(t, "u1", sb1.Tenant)

	sb2, err := r.Acquire(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, sb1.ID, sb2.ID)
	assert.Equal(t, 1, rt.createCalls)
}

func TestAcquireConcurrentSingleCreation(t *testing.T) {
	rt := newFakeClient()
	rt.createDelay = 50 * time.Millisecond
	r := newTestRegistry(rt)

	var wg sync.WaitGroup
	ids := make([]string, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sb, err := r.Acquire(context.Background(), "u1")
			if assert.NoError(t, err) {
				ids[i] = sb.ID
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, ids[0], ids[1])
	assert.Equal(t, 1, rt.createCalls)
}

func TestAcquireDistinctTenants(t *testing.T) {
	rt := newFakeClient()
	r := newTestRegistry(rt)

	sb1, err := r.Acquire(context.Background(), "u1")
	require.NoError(t, err)
	sb2, err := r.Acquire(context.Background(), "u2")
	require.NoError(t, err)

	assert.NotEqual(t, sb1.ID, sb2.ID)
	assert.Len(t, r.Snapshot(), 2)
}

func TestReleaseThenAcquireYieldsNewSandbox(t *testing.T) {
	rt := newFakeClient()
	r := newTestRegistry(rt)

	sb1, err := r.Acquire(context.Background(), "u1")
	require.NoError(t, err)

	require.NoError(t, r.Release(context.Background(), "u1"))
	assert.Equal(t, StateRemoved, sb1.State())
	assert.Equal(t, []string{sb1.ID}, rt.stopCalls)
	assert.Equal(t, []string{sb1.ID}, rt.removeCalls)

	sb2, err := r.Acquire(context.Background(), "u1")
	require.NoError(t, err)
	assert.NotEqual(t, sb1.ID, sb2.ID)
}

func TestReleaseUnknownTenantIsNoop(t *testing.T) {
	rt := newFakeClient()
	r := newTestRegistry(rt)

	assert.NoError(t, r.Release(context.Background(), "nobody"))
	assert.Empty(t, rt.stopCalls)
}

func TestAcquireReplacesDeadSandbox(t *testing.T) {
	rt := newFakeClient()
	r := newTestRegistry(rt)

	sb1, err := r.Acquire(context.Background(), "u1")
	require.NoError(t, err)

	// Container dies out from under the registry.
	rt.mu.Lock()
	rt.alive[sb1.ID] = false
	rt.mu.Unlock()

	sb2, err := r.Acquire(context.Background(), "u1")
	require.NoError(t, err)
	assert.NotEqual(t, sb1.ID, sb2.ID)
	assert.Equal(t, 2, rt.createCalls)
	assert.Len(t, r.Snapshot(), 1)
}

func TestAcquireProvisionError(t *testing.T) {
	rt := newFakeClient()
	rt.createErr = errors.New("image missing")
	r := newTestRegistry(rt)

	_, err := r.Acquire(context.Background(), "u1")
	require.Error(t, err)

	var provErr *ProvisionError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, "u1", provErr.Tenant)
	assert.Empty(t, r.Snapshot())
}

func TestAcquireRuntimeUnavailable(t *testing.T) {
	rt := newFakeClient()
	rt.createErr = dockerclient.ErrorConnectionFailed("unix:///var/run/docker.sock")
	r := newTestRegistry(rt)

	_, err := r.Acquire(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrRuntimeUnavailable)
}

func TestLogs(t *testing.T) {
	rt := newFakeClient()
	rt.logs = []byte("hello\n")
	r := newTestRegistry(rt)

	_, err := r.Logs(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.Acquire(context.Background(), "u1")
	require.NoError(t, err)

	out, err := r.Logs(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello\n"), out)
}

func TestDrainAll(t *testing.T) {
	rt := newFakeClient()
	r := newTestRegistry(rt)

	for _, tenant := range []string{"u1", "u2", "u3"} {
		_, err := r.Acquire(context.Background(), tenant)
		require.NoError(t, err)
	}

	// One release fails; the drain continues past it.
	sb2 := mustGet(t, r, "u2")
	rt.mu.Lock()
	rt.stopErr[sb2.ID] = errors.New("stop failed")
	rt.mu.Unlock()

	r.DrainAll(context.Background())
	assert.Empty(t, r.Snapshot())
}

func mustGet(t *testing.T, r *Registry, tenant string) *Sandbox {
	t.Helper()
	sb := r.get(tenant)
	require.NotNil(t, sb)
	return sb
}

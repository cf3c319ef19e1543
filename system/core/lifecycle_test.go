package core

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModule struct {
	name      string
	domain    string
	dependsOn []string
	startErr  error
	started   bool
	stopped   bool
}

func (f *fakeModule) Name() string        { return f.name }
func (f *fakeModule) Domain() string       { return f.domain }
func (f *fakeModule) DependsOn() []string  { return f.dependsOn }
func (f *fakeModule) Start(context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	return nil
}
func (f *fakeModule) Stop(context.Context) error {
	f.stopped = true
	return nil
}

func TestLifecycleManagerStartsModulesInDependencyOrder(t *testing.T) {
	registry := NewRegistry()
	var startOrder []string

	store := &orderTrackingModule{fakeModule: fakeModule{name: "store", domain: "persistence"}, order: &startOrder}
	heartbeat := &orderTrackingModule{fakeModule: fakeModule{name: "heartbeat", domain: "scheduler", dependsOn: []string{"store"}}, order: &startOrder}
	httpServer := &orderTrackingModule{fakeModule: fakeModule{name: "httpserver", domain: "transport", dependsOn: []string{"store"}}, order: &startOrder}

	registry.Register(heartbeat)
	registry.Register(httpServer)
	registry.Register(store)

	deps := NewDependencyManager(registry)
	health := NewHealthMonitor()
	lm := NewLifecycleManager(registry, deps, health, nil)

	require.NoError(t, lm.Start(context.Background()))
	require.Len(t, startOrder, 3)
	assert.Equal(t, "store", startOrder[0], "store has no dependencies and must start first")
	assert.Equal(t, ReadyStatusReady, health.GetReadyStatus("store"))
}

type orderTrackingModule struct {
	fakeModule
	order *[]string
}

func (m *orderTrackingModule) Start(ctx context.Context) error {
	*m.order = append(*m.order, m.name)
	return m.fakeModule.Start(ctx)
}

func TestLifecycleManagerRollsBackStartedModulesOnFailure(t *testing.T) {
	registry := NewRegistry()
	store := &fakeModule{name: "store", domain: "persistence"}
	broken := &fakeModule{name: "httpserver", domain: "transport", dependsOn: []string{"store"}, startErr: fmt.Errorf("bind failed")}

	registry.Register(store)
	registry.Register(broken)

	lm := NewLifecycleManager(registry, NewDependencyManager(registry), NewHealthMonitor(), nil)

	err := lm.Start(context.Background())
	require.Error(t, err)
	assert.True(t, store.started)
	assert.True(t, store.stopped, "the already-started store module must be rolled back")
}

func TestLifecycleManagerSnapshotReflectsStartedModules(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&fakeModule{name: "heartbeat", domain: "scheduler"})
	registry.Register(&fakeModule{name: "httpserver", domain: "transport"})

	lm := NewLifecycleManager(registry, NewDependencyManager(registry), NewHealthMonitor(), nil)
	require.NoError(t, lm.Start(context.Background()))

	snapshot := lm.Snapshot()
	require.Contains(t, snapshot, "heartbeat")
	require.Contains(t, snapshot, "httpserver")
	assert.Equal(t, StatusStarted, snapshot["heartbeat"].Status)
	assert.Equal(t, StatusStarted, snapshot["httpserver"].Status)
}

func TestDependencyManagerVerifyRejectsUnknownDependency(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&fakeModule{name: "heartbeat", dependsOn: []string{"store"}})

	dm := NewDependencyManager(registry)
	err := dm.Verify(registry.Modules())
	assert.Error(t, err)
}

func TestDependencyManagerResolveOrderDetectsCycles(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&fakeModule{name: "a", dependsOn: []string{"b"}})
	registry.Register(&fakeModule{name: "b", dependsOn: []string{"a"}})

	dm := NewDependencyManager(registry)
	_, err := dm.ResolveOrder(registry.Modules())
	assert.Error(t, err)
}

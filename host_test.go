package rrr

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rrrd/rrr/internal/broker"
	"github.com/rrrd/rrr/internal/config"
	"github.com/rrrd/rrr/internal/diag"
	"github.com/rrrd/rrr/internal/instance"
)

func brokerThresholdsForTest() broker.Thresholds {
	return broker.Thresholds{RatelimitThreshold: 10, RatelimitRelease: 5}
}

type testModule struct {
	name      string
	priority  int
	preloads  *[]string
	started   int32
	stopped   int32
}

func (m *testModule) ModuleName() string { return m.name }
func (m *testModule) Type() instance.Type { return instance.TypeFlexible }
func (m *testModule) StartPriority() int { return m.priority }

func (m *testModule) Preload(rt *instance.Runtime) error {
	*m.preloads = append(*m.preloads, rt.Name)
	return nil
}

func (m *testModule) ThreadEntry(ctx context.Context, rt *instance.Runtime) error {
	atomic.StoreInt32(&m.started, 1)
	<-ctx.Done()
	atomic.StoreInt32(&m.stopped, 1)
	return nil
}

func TestHostPreloadOrderAndShutdown(t *testing.T) {
	var preloads []string
	early := &testModule{name: "early", priority: 1, preloads: &preloads}
	late := &testModule{name: "late", priority: 10, preloads: &preloads}

	RegisterModule("test_early", func() (instance.Module, error) { return early, nil })
	RegisterModule("test_late", func() (instance.Module, error) { return late, nil })

	h := NewHost(diag.NewContext(nil), brokerThresholdsForTest())

	// Added out of priority order on purpose.
	require.NoError(t, h.AddInstance(config.InstanceConfig{
		Name: "b", Module: "test_late", Type: "flexible",
	}))
	require.NoError(t, h.AddInstance(config.InstanceConfig{
		Name: "a", Module: "test_early", Type: "flexible",
	}))

	require.NoError(t, h.Open(context.Background()))

	// Preload ran for every instance, lowest priority first, before any
	// thread was spawned.
	assert.Equal(t, []string{"a", "b"}, preloads)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&early.started) == 1 && atomic.LoadInt32(&late.started) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, h.Close())
	assert.Equal(t, int32(1), atomic.LoadInt32(&early.stopped))
	assert.Equal(t, int32(1), atomic.LoadInt32(&late.stopped))
}

func TestAddInstanceUnknownModule(t *testing.T) {
	h := NewHost(diag.NewContext(nil), brokerThresholdsForTest())
	err := h.AddInstance(config.InstanceConfig{Name: "x", Module: "no_such", Type: "source"})
	require.Error(t, err)
}

package shm

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMaster(t *testing.T, capacity int) *Master {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skip("POSIX shared memory arena requires /dev/shm")
	}
	m, err := NewMaster(capacity)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestAllocateResolveFree(t *testing.T) {
	m := newTestMaster(t, 8)

	h, err := m.Allocate(4096)
	require.NoError(t, err)

	data, err := m.Resolve(h)
	require.NoError(t, err)
	require.Len(t, data, 4096)
	copy(data, []byte("hello"))

	require.NoError(t, m.Free(h))
	_, err = m.Resolve(h)
	require.Error(t, err)
}

func TestSlaveLazyRefresh(t *testing.T) {
	m := newTestMaster(t, 8)

	slave, err := NewSlave(m.TableName())
	require.NoError(t, err)
	t.Cleanup(func() { _ = slave.Close() })

	// Allocation happens after the slave attached; its next resolve must
	// notice via the version counters and map the new slot.
	h, err := m.Allocate(4096)
	require.NoError(t, err)

	master, err := m.Resolve(h)
	require.NoError(t, err)
	copy(master, []byte("shared-bytes"))

	got, err := slave.Resolve(h)
	require.NoError(t, err)
	assert.Equal(t, []byte("shared-bytes"), got[:12])

	assert.Equal(t, m.VersionMaster(), slave.VersionMaster())
}

func TestSlaveSeesFree(t *testing.T) {
	m := newTestMaster(t, 8)
	slave, err := NewSlave(m.TableName())
	require.NoError(t, err)
	t.Cleanup(func() { _ = slave.Close() })

	h, err := m.Allocate(1024)
	require.NoError(t, err)
	_, err = slave.Resolve(h)
	require.NoError(t, err)

	require.NoError(t, m.Free(h))
	_, err = slave.Resolve(h)
	require.Error(t, err)
}

func TestResolveReverseExactBaseOnly(t *testing.T) {
	m := newTestMaster(t, 8)
	slave, err := NewSlave(m.TableName())
	require.NoError(t, err)
	t.Cleanup(func() { _ = slave.Close() })

	h, err := m.Allocate(1024)
	require.NoError(t, err)

	data, err := slave.Resolve(h)
	require.NoError(t, err)

	got, err := slave.ResolveReverse(data)
	require.NoError(t, err)
	assert.Equal(t, h, got)

	// Interior pointers must not resolve.
	_, err = slave.ResolveReverse(data[1:])
	require.Error(t, err)
}

func TestSlotExhaustion(t *testing.T) {
	m := newTestMaster(t, 2)

	_, err := m.Allocate(128)
	require.NoError(t, err)
	_, err = m.Allocate(128)
	require.NoError(t, err)
	_, err = m.Allocate(128)
	require.Error(t, err)
}

func TestFreedSlotIsReused(t *testing.T) {
	m := newTestMaster(t, 2)

	h1, err := m.Allocate(128)
	require.NoError(t, err)
	_, err = m.Allocate(128)
	require.NoError(t, err)

	require.NoError(t, m.Free(h1))
	h3, err := m.Allocate(256)
	require.NoError(t, err)
	assert.Equal(t, h1, h3)
}

package fifo

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// For a single-producer FIFO, read-clear-forward
// yields messages in write order.
func TestReadClearForward_PreservesWriteOrder(t *testing.T) {
	b := New()
	for i := 0; i < 10; i++ {
		b.Write(i)
	}

	var got []int
	n := b.ReadClearForward(func(data interface{}) bool {
		got = append(got, data.(int))
		return true
	})

	require.Equal(t, 10, n)
	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
	require.Equal(t, 0, b.Len())
}

func TestReadClearForward_PartialDrainPreservesRemainder(t *testing.T) {
	b := New()
	for i := 0; i < 5; i++ {
		b.Write(i)
	}

	var got []int
	b.ReadClearForward(func(data interface{}) bool {
		got = append(got, data.(int))
		return data.(int) < 2
	})

	require.Equal(t, []int{0, 1, 2}, got)
	require.Equal(t, 2, b.Len())

	var rest []int
	b.Read(func(data interface{}) { rest = append(rest, data.(int)) })
	require.Equal(t, []int{3, 4}, rest)
}

func TestWrite_ConcurrentProducersAllAppended(t *testing.T) {
	b := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b.Write(i)
		}(i)
	}
	wg.Wait()
	require.Equal(t, 50, b.Len())
}

package bufpool

import (
	"bytes"
	"io"
	"sync"
)

type Pool struct {
	p *sync.Pool
}

func New() *Pool {
	syncPool := sync.Pool{}
	syncPool.New = func() interface{} {
		return &Buffer{
			pool: &syncPool,
		}
	}

	return &Pool{
		p: &syncPool,
	}
}

func (p *Pool) Get() *Buffer {
	return p.p.Get().(*Buffer)
}

// Buffer is a pooled bytes.Buffer; Close resets it and returns it to
// its pool.
type Buffer struct {
	bytes.Buffer
	io.Closer
	pool *sync.Pool
}

func (cb *Buffer) Close() error {
	cb.Reset()
	cb.pool.Put(cb)
	return nil
}

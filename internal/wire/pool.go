package wire

import (
	"bytes"
	"sync"
)

// BufferPool recycles byte buffers. Grounded on the teacher's MessagePool: a
// sync.Pool of reset-on-return buffers sized for a typical FIX message.
// Encode builds its output in its own buffer and does not draw from a
// BufferPool.
type BufferPool struct {
	pool sync.Pool
}

func NewBufferPool() *BufferPool {
	return &BufferPool{
		pool: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 512))
			},
		},
	}
}

func (p *BufferPool) Get() *bytes.Buffer {
	buf := p.pool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

func (p *BufferPool) Put(buf *bytes.Buffer) {
	if buf == nil {
		return
	}
	buf.Reset()
	p.pool.Put(buf)
}

// FieldListPool recycles FieldList backing arrays, for callers that can
// guarantee a FieldList is fully consumed (or Cloned) before being returned.
// Decode allocates its own list and does not draw from a FieldListPool.
type FieldListPool struct {
	pool sync.Pool
}

func NewFieldListPool() *FieldListPool {
	return &FieldListPool{
		pool: sync.Pool{
			New: func() interface{} {
				fl := make(FieldList, 0, 32)
				return &fl
			},
		},
	}
}

func (p *FieldListPool) Get() *FieldList {
	fl := p.pool.Get().(*FieldList)
	*fl = (*fl)[:0]
	return fl
}

func (p *FieldListPool) Put(fl *FieldList) {
	if fl == nil {
		return
	}
	p.pool.Put(fl)
}

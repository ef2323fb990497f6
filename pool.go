package mqttier

import "sync"

// maxPooledBuffer bounds the buffers kept for reuse so one large publish
// does not pin its memory.
const maxPooledBuffer = 64 * 1024

var wireWriterPool = sync.Pool{
	New: func() any {
		return &wireWriter{}
	},
}

func getWireWriter() *wireWriter {
	w := wireWriterPool.Get().(*wireWriter)
	w.buf = w.buf[:0]
	w.err = nil
	return w
}

func putWireWriter(w *wireWriter) {
	if w == nil || cap(w.buf) > maxPooledBuffer {
		return
	}
	w.buf = w.buf[:0]
	w.err = nil
	wireWriterPool.Put(w)
}

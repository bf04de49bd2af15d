package registry

// DefaultBufferSize is the number of output chunks retained per session
// for replay to a freshly bound browser connection.
const DefaultBufferSize = 100

// OutputBuffer is a bounded FIFO of recent terminal output chunks. It is
// not safe for concurrent use on its own; the Registry lock guards it.
type OutputBuffer struct {
	chunks []string
	max    int
}

// NewOutputBuffer creates a buffer holding at most max chunks. A max of
// zero or less falls back to DefaultBufferSize.
func NewOutputBuffer(max int) *OutputBuffer {
	if max <= 0 {
		max = DefaultBufferSize
	}
	return &OutputBuffer{max: max}
}

// Append adds a chunk, evicting the oldest when the buffer is full.
func (b *OutputBuffer) Append(chunk string) {
	b.chunks = append(b.chunks, chunk)
	if len(b.chunks) > b.max {
		// Copy down rather than re-slicing so the backing array does not
		// pin evicted chunks.
		n := copy(b.chunks, b.chunks[len(b.chunks)-b.max:])
		b.chunks = b.chunks[:n]
	}
}

// Snapshot returns the buffered chunks oldest-first.
func (b *OutputBuffer) Snapshot() []string {
	out := make([]string, len(b.chunks))
	copy(out, b.chunks)
	return out
}

// Len returns the number of buffered chunks.
func (b *OutputBuffer) Len() int {
	return len(b.chunks)
}

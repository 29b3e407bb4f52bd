package relay

import "sync"

// UtteranceBuffer holds the audio chunks of the utterance currently being spoken.
type UtteranceBuffer struct {
	mu     sync.Mutex
	chunks [][]byte
	size   int
}

func NewUtteranceBuffer() *UtteranceBuffer {
	return &UtteranceBuffer{}
}

// Append copies chunk; the caller may reuse its slice.
func (b *UtteranceBuffer) Append(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	c := make([]byte, len(chunk))
	copy(c, chunk)

	b.mu.Lock()
	b.chunks = append(b.chunks, c)
	b.size += len(c)
	b.mu.Unlock()
}

// Drain returns every buffered byte in arrival order and empties the buffer.
func (b *UtteranceBuffer) Drain() []byte {
	b.mu.Lock()
	chunks, size := b.chunks, b.size
	b.chunks, b.size = nil, 0
	b.mu.Unlock()

	out := make([]byte, 0, size)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

// Len is the number of buffered bytes.
func (b *UtteranceBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

func (b *UtteranceBuffer) Chunks() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks)
}

// Reset discards buffered audio without returning it.
func (b *UtteranceBuffer) Reset() {
	b.mu.Lock()
	b.chunks, b.size = nil, 0
	b.mu.Unlock()
}

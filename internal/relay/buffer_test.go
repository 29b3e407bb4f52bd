package relay

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUtteranceBuffer_DrainConcatenatesInOrder(t *testing.T) {
	b := NewUtteranceBuffer()
	b.Append([]byte("ab"))
	b.Append([]byte("cd"))
	b.Append([]byte("e"))

	assert.Equal(t, 5, b.Len())
	assert.Equal(t, 3, b.Chunks())
	assert.Equal(t, []byte("abcde"), b.Drain())

	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Drain())
}

func TestUtteranceBuffer_EmptyDrain(t *testing.T) {
	b := NewUtteranceBuffer()
	out := b.Drain()
	assert.Len(t, out, 0)
}

func TestUtteranceBuffer_CopiesInput(t *testing.T) {
	b := NewUtteranceBuffer()
	chunk := []byte("xyz")
	b.Append(chunk)
	chunk[0] = 'Q'

	assert.Equal(t, []byte("xyz"), b.Drain())
}

func TestUtteranceBuffer_IgnoresEmptyChunks(t *testing.T) {
	b := NewUtteranceBuffer()
	b.Append(nil)
	b.Append([]byte{})
	assert.Equal(t, 0, b.Chunks())
}

func TestUtteranceBuffer_AppendAfterDrainStartsFresh(t *testing.T) {
	b := NewUtteranceBuffer()
	b.Append([]byte("one"))
	require.Equal(t, []byte("one"), b.Drain())

	b.Append([]byte("two"))
	assert.Equal(t, []byte("two"), b.Drain())
}

func TestUtteranceBuffer_ConcurrentAppend(t *testing.T) {
	b := NewUtteranceBuffer()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Append([]byte("1234"))
		}()
	}
	wg.Wait()

	assert.Equal(t, 200, b.Len())
	assert.Len(t, b.Drain(), 200)
}

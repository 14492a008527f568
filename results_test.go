package ivarator

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTotalResults(t *testing.T) {
	r := NewTotalResults(3)
	assert.True(t, r.Increment())
	assert.True(t, r.Add(2))
	assert.False(t, r.Exceeded())
	assert.False(t, r.Increment())
	assert.True(t, r.Exceeded())
	assert.Equal(t, int64(4), r.Size())
}

func TestTotalResults_Unlimited(t *testing.T) {
	r := NewTotalResults(0)
	for range 100 {
		assert.True(t, r.Increment())
	}
	assert.False(t, r.Exceeded())
}

func TestTotalResults_Concurrent(t *testing.T) {
	r := NewTotalResults(500)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				if r.Increment() {
					mu.Lock()
					accepted++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 500, accepted)
	assert.True(t, r.Exceeded())
}

package pool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var queues = []string{"queue-0", "queue-1", "queue-2"}

func TestPickStaysInPool(t *testing.T) {
	p := New(queues)

	for i := 0; i < 1000; i++ {
		assert.Contains(t, queues, p.Pick())
	}

	total := 0
	for _, v := range p.Assignments() {
		total += v
	}
	assert.Equal(t, 1000, total)
}

func TestPickUsesSource(t *testing.T) {
	next := 0
	p := newPool(queues, func(n int) int {
		i := next % n
		next++
		return i
	})

	assert.Equal(t, "queue-0", p.Pick())
	assert.Equal(t, "queue-1", p.Pick())
	assert.Equal(t, "queue-2", p.Pick())
	assert.Equal(t, "queue-0", p.Pick())

	assert.Equal(t, map[string]int{"queue-0": 2, "queue-1": 1, "queue-2": 1}, p.Assignments())
}

func TestAssignmentsIncludeUnusedQueues(t *testing.T) {
	p := New(queues)

	require.Len(t, p.Assignments(), 3)
	for _, v := range p.Assignments() {
		assert.Zero(t, v)
	}
}

func TestPickConcurrent(t *testing.T) {
	p := New(queues)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				p.Pick()
			}
		}()
	}
	wg.Wait()

	total := 0
	for _, v := range p.Assignments() {
		total += v
	}
	assert.Equal(t, 5000, total)
}

func TestQueuesIsCopy(t *testing.T) {
	p := New([]string{"a", "b"})

	q := p.Queues()
	q[0] = "changed"
	assert.Equal(t, []string{"a", "b"}, p.Queues())
}

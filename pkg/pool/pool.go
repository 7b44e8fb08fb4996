package pool

import (
	"math/rand"
	"sync"
)

type Pool interface {
	// Pick returns a queue chosen uniformly at random and counts the assignment
	Pick() string
	Queues() []string
	Assignments() map[string]int
}

type poolCtx struct {
	queues []string
	intn   func(n int) int

	// number of picks per queue
	counter map[string]int
	mutex   sync.Mutex
}

// New - pool over a fixed list of queues, the list is not modified afterwards
func New(queues []string) Pool {
	return newPool(queues, rand.Intn)
}

func newPool(queues []string, intn func(n int) int) *poolCtx {
	counter := make(map[string]int, len(queues))
	for _, q := range queues {
		counter[q] = 0
	}

	return &poolCtx{
		queues:  queues,
		intn:    intn,
		counter: counter,
	}
}

func (pCtx *poolCtx) Pick() string {
	q := pCtx.queues[pCtx.intn(len(pCtx.queues))]

	pCtx.mutex.Lock()
	defer pCtx.mutex.Unlock()
	pCtx.counter[q]++

	return q
}

func (pCtx *poolCtx) Queues() []string {
	out := make([]string, len(pCtx.queues))
	copy(out, pCtx.queues)
	return out
}

func (pCtx *poolCtx) Assignments() map[string]int {
	pCtx.mutex.Lock()
	defer pCtx.mutex.Unlock()

	out := make(map[string]int, len(pCtx.counter))
	for k, v := range pCtx.counter {
		out[k] = v
	}
	return out
}

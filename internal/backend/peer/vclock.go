package peer

import (
	"maps"
	"sync"
)

type Vclock struct {
	mu    sync.RWMutex
	clock map[string]uint64
}

func NewVclock() *Vclock {
	return &Vclock{clock: make(map[string]uint64)}
}

func (vc *Vclock) Tick(nodeID string) {
	vc.mu.Lock()
	defer vc.mu.Unlock()

	vc.clock[nodeID]++
}

func (vc *Vclock) Merge(other map[string]uint64) {
	vc.mu.Lock()
	defer vc.mu.Unlock()

	for k, v := range other {
		if vc.clock[k] < v {
			vc.clock[k] = v
		}
	}
}

func (vc *Vclock) Snapshot() map[string]uint64 {
	vc.mu.RLock()
	defer vc.mu.RUnlock()

	return maps.Clone(vc.clock)
}

type Relation int

const (
	Before     Relation = -1
	Concurrent Relation = 0
	After      Relation = 1
)

// Compare reports how a relates to b. Equal clocks compare as Before.
func Compare(a, b map[string]uint64) Relation {
	aBeforeB := true
	bBeforeA := true

	keys := make(map[string]struct{})
	for k := range a {
		keys[k] = struct{}{}
	}
	for k := range b {
		keys[k] = struct{}{}
	}

	for k := range keys {
		av, bv := a[k], b[k]
		if av > bv {
			aBeforeB = false
		}
		if av < bv {
			bBeforeA = false
		}
	}

	switch {
	case aBeforeB:
		return Before
	case bBeforeA:
		return After
	default:
		return Concurrent
	}
}

// Package mpi implements the communicator topology of §5: an explicit
// context object (never a package-level singleton, per §9's re-architecture
// note) owning the world, global, local and third-level-reduce
// communicators. Since no MPI binding exists anywhere in the reference
// pack, and the specification only pins down a real wire format at the
// third-level relay boundary, the intra-system communicators here are
// implemented as in-process rank groups connected by barrier-synchronised
// collectives — the granularity the engine's own coordination layer needs,
// and the granularity its test harness (the scenario table of §8) drives.
package mpi

import "sync"

// group is a barrier-synchronised collective primitive: size ranks each
// call collective once per round; the call blocks until every rank has
// arrived, at which point compute runs once (by whichever goroutine
// happens to be last) and every rank's per-rank result is released
// together.
type group struct {
	size int

	mu      sync.Mutex
	cond    *sync.Cond
	gen     int
	arrived int
	contrib []interface{}
	result  []interface{}
}

func newGroup(size int) *group {
	g := &group{size: size, contrib: make([]interface{}, size)}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// collective contributes payload from rank, runs compute once every rank
// in the group has contributed for this round, and returns this rank's
// share of the result.
func (g *group) collective(rank int, payload interface{}, compute func(contrib []interface{}) []interface{}) interface{} {
	g.mu.Lock()
	myGen := g.gen
	g.contrib[rank] = payload
	g.arrived++
	if g.arrived == g.size {
		g.result = compute(g.contrib)
		g.arrived = 0
		g.contrib = make([]interface{}, g.size)
		g.gen++
		g.cond.Broadcast()
	} else {
		for g.gen == myGen {
			g.cond.Wait()
		}
	}
	res := g.result[rank]
	g.mu.Unlock()
	return res
}

// barrier is a collective with no payload and no result, used by Barrier.
func (g *group) barrier(rank int) {
	g.collective(rank, nil, func(contrib []interface{}) []interface{} {
		return make([]interface{}, g.size)
	})
}

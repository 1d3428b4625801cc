// Package regalloc assigns machine registers to temps by iterated
// register coalescing over a liveness-derived interference graph,
// rewriting the program for spills and re-running until everything
// colours. It also finalises the GC pointer map, intersecting the
// translator's pointer temps with liveness at each call site.
package regalloc

import (
	"github.com/raymyers/tiger-go/pkg/flow"
	"github.com/raymyers/tiger-go/pkg/temp"
)

// TempSet is a set of temps
type TempSet map[temp.Temp]bool

// NewTempSet creates an empty set
func NewTempSet() TempSet {
	return make(TempSet)
}

// Add inserts a temp
func (s TempSet) Add(t temp.Temp) {
	s[t] = true
}

// Contains reports membership
func (s TempSet) Contains(t temp.Temp) bool {
	return s[t]
}

// Liveness holds the fixed-point live-in and live-out sets per node
type Liveness struct {
	In  map[*flow.Node]TempSet
	Out map[*flow.Node]TempSet
}

// Compute iterates in[n] = use[n] ∪ (out[n] − def[n]) and
// out[n] = ⋃ in[s] over successors until nothing changes.
func Compute(g *flow.Graph) *Liveness {
	l := &Liveness{
		In:  make(map[*flow.Node]TempSet, len(g.Nodes)),
		Out: make(map[*flow.Node]TempSet, len(g.Nodes)),
	}
	for _, n := range g.Nodes {
		l.In[n] = NewTempSet()
		l.Out[n] = NewTempSet()
	}

	for changed := true; changed; {
		changed = false
		// Backward order converges faster for straight-line stretches
		for i := len(g.Nodes) - 1; i >= 0; i-- {
			n := g.Nodes[i]
			out := l.Out[n]
			for _, s := range n.Succ {
				for t := range l.In[s] {
					if !out.Contains(t) {
						out.Add(t)
						changed = true
					}
				}
			}
			in := l.In[n]
			for _, t := range n.Use {
				if !in.Contains(t) {
					in.Add(t)
					changed = true
				}
			}
			defs := NewTempSet()
			for _, t := range n.Def {
				defs.Add(t)
			}
			for t := range out {
				if !defs.Contains(t) && !in.Contains(t) {
					in.Add(t)
					changed = true
				}
			}
		}
	}
	return l
}

// loopDepths approximates loop nesting from the instruction layout: a
// backward edge closes a loop covering every node between its target and
// its source.
func loopDepths(g *flow.Graph) []int {
	depths := make([]int, len(g.Nodes))
	for _, n := range g.Nodes {
		for _, s := range n.Succ {
			if s.ID <= n.ID {
				for i := s.ID; i <= n.ID; i++ {
					depths[i]++
				}
			}
		}
	}
	return depths
}

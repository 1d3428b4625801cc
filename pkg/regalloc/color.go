package regalloc

import (
	"math"

	"github.com/raymyers/tiger-go/pkg/asm"
	"github.com/raymyers/tiger-go/pkg/flow"
	"github.com/raymyers/tiger-go/pkg/frame"
	"github.com/raymyers/tiger-go/pkg/temp"
)

const infiniteDegree = math.MaxInt32

// move states
const (
	moveWorklist = iota
	moveActive
	moveCoalesced
	moveConstrained
	moveFrozen
)

type pair struct {
	a, b temp.Temp
}

func makePair(a, b temp.Temp) pair {
	if a > b {
		a, b = b, a
	}
	return pair{a: a, b: b}
}

// Allocator runs one round of iterated register coalescing. The
// interference graph keeps both an edge set for O(1) membership tests
// (George's criterion) and adjacency lists for iteration.
type Allocator struct {
	K          int
	precolored TempSet
	initial    []temp.Temp

	simplifyWorklist []temp.Temp
	freezeWorklist   []temp.Temp
	spillWorklist    []temp.Temp

	spilledNodes   TempSet
	coalescedNodes TempSet
	coloredNodes   TempSet
	selectStack    []temp.Temp
	onStack        TempSet

	adjSet  map[pair]bool
	adjList map[temp.Temp]TempSet
	degree  map[temp.Temp]int

	moveList  map[temp.Temp][]*flow.Node
	moveState map[*flow.Node]int
	moves     []*flow.Node

	alias map[temp.Temp]temp.Temp
	color map[temp.Temp]temp.Temp

	spillCost map[temp.Temp]float64
	noSpill   TempSet
}

// NewAllocator builds the interference graph for one function body.
// noSpill lists temps created by earlier spill rewrites; respilling them
// would not terminate.
func NewAllocator(g *flow.Graph, liveness *Liveness, noSpill TempSet) *Allocator {
	a := &Allocator{
		K:              len(frame.Allocatable),
		precolored:     NewTempSet(),
		spilledNodes:   NewTempSet(),
		coalescedNodes: NewTempSet(),
		coloredNodes:   NewTempSet(),
		onStack:        NewTempSet(),
		adjSet:         make(map[pair]bool),
		adjList:        make(map[temp.Temp]TempSet),
		degree:         make(map[temp.Temp]int),
		moveList:       make(map[temp.Temp][]*flow.Node),
		moveState:      make(map[*flow.Node]int),
		alias:          make(map[temp.Temp]temp.Temp),
		color:          make(map[temp.Temp]temp.Temp),
		spillCost:      make(map[temp.Temp]float64),
		noSpill:        noSpill,
	}
	for reg := range frame.TempNames {
		a.precolored.Add(reg)
		a.degree[reg] = infiniteDegree
		a.color[reg] = reg
	}

	a.build(g, liveness)
	a.makeWorklists()
	return a
}

// build adds interference edges from liveness and collects the move
// relation for coalescing.
func (a *Allocator) build(g *flow.Graph, liveness *Liveness) {
	seen := NewTempSet()
	note := func(t temp.Temp) {
		if !a.precolored.Contains(t) && !seen.Contains(t) {
			seen.Add(t)
			a.initial = append(a.initial, t)
		}
	}

	depths := loopDepths(g)
	for _, n := range g.Nodes {
		weight := math.Pow(10, math.Min(float64(depths[n.ID]), 8))
		for _, t := range n.Def {
			note(t)
			a.spillCost[t] += weight
		}
		for _, t := range n.Use {
			note(t)
			a.spillCost[t] += weight
		}

		live := NewTempSet()
		for t := range liveness.Out[n] {
			live.Add(t)
		}
		if n.IsMove {
			move := n.Instr.(*asm.Move)
			delete(live, move.Src)
			a.moveList[move.Dst] = append(a.moveList[move.Dst], n)
			if move.Src != move.Dst {
				a.moveList[move.Src] = append(a.moveList[move.Src], n)
			}
			a.moveState[n] = moveWorklist
			a.moves = append(a.moves, n)
		}
		for _, d := range n.Def {
			for l := range live {
				a.addEdge(l, d)
			}
		}
	}
}

func (a *Allocator) addEdge(u, v temp.Temp) {
	if u == v || a.adjSet[makePair(u, v)] {
		return
	}
	a.adjSet[makePair(u, v)] = true
	if !a.precolored.Contains(u) {
		if a.adjList[u] == nil {
			a.adjList[u] = NewTempSet()
		}
		a.adjList[u].Add(v)
		a.degree[u]++
	}
	if !a.precolored.Contains(v) {
		if a.adjList[v] == nil {
			a.adjList[v] = NewTempSet()
		}
		a.adjList[v].Add(u)
		a.degree[v]++
	}
}

func (a *Allocator) makeWorklists() {
	for _, t := range a.initial {
		switch {
		case a.degree[t] >= a.K:
			a.spillWorklist = append(a.spillWorklist, t)
		case a.moveRelated(t):
			a.freezeWorklist = append(a.freezeWorklist, t)
		default:
			a.simplifyWorklist = append(a.simplifyWorklist, t)
		}
	}
}

// Run executes the main loop and colour assignment, returning the set
// of temps that must be spilled (empty on success).
func (a *Allocator) Run() TempSet {
	for {
		switch {
		case len(a.simplifyWorklist) > 0:
			a.simplify()
		case a.hasWorklistMove():
			a.coalesce()
		case len(a.freezeWorklist) > 0:
			a.freeze()
		case len(a.spillWorklist) > 0:
			a.selectSpill()
		default:
			a.assignColors()
			return a.spilledNodes
		}
	}
}

// Colors returns the final temp-to-register assignment. Valid only when
// Run reported no spills.
func (a *Allocator) Colors() map[temp.Temp]temp.Temp {
	return a.color
}

func (a *Allocator) adjacent(t temp.Temp) []temp.Temp {
	var result []temp.Temp
	for n := range a.adjList[t] {
		if !a.onStack.Contains(n) && !a.coalescedNodes.Contains(n) {
			result = append(result, n)
		}
	}
	return result
}

func (a *Allocator) nodeMoves(t temp.Temp) []*flow.Node {
	var result []*flow.Node
	for _, m := range a.moveList[t] {
		state := a.moveState[m]
		if state == moveActive || state == moveWorklist {
			result = append(result, m)
		}
	}
	return result
}

func (a *Allocator) moveRelated(t temp.Temp) bool {
	return len(a.nodeMoves(t)) > 0
}

func (a *Allocator) hasWorklistMove() bool {
	for _, m := range a.moves {
		if a.moveState[m] == moveWorklist {
			return true
		}
	}
	return false
}

func containsTemp(list []temp.Temp, t temp.Temp) bool {
	for _, x := range list {
		if x == t {
			return true
		}
	}
	return false
}

func removeTemp(list []temp.Temp, t temp.Temp) []temp.Temp {
	for i, x := range list {
		if x == t {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func (a *Allocator) simplify() {
	n := a.simplifyWorklist[len(a.simplifyWorklist)-1]
	a.simplifyWorklist = a.simplifyWorklist[:len(a.simplifyWorklist)-1]
	if a.onStack.Contains(n) || a.coalescedNodes.Contains(n) {
		return
	}
	a.selectStack = append(a.selectStack, n)
	a.onStack.Add(n)
	for _, m := range a.adjacent(n) {
		a.decrementDegree(m)
	}
}

func (a *Allocator) decrementDegree(m temp.Temp) {
	if a.precolored.Contains(m) {
		return
	}
	d := a.degree[m]
	a.degree[m] = d - 1
	if d == a.K {
		a.enableMoves(append(a.adjacent(m), m))
		a.spillWorklist = removeTemp(a.spillWorklist, m)
		if a.moveRelated(m) {
			a.freezeWorklist = append(a.freezeWorklist, m)
		} else {
			a.simplifyWorklist = append(a.simplifyWorklist, m)
		}
	}
}

func (a *Allocator) enableMoves(nodes []temp.Temp) {
	for _, n := range nodes {
		for _, m := range a.nodeMoves(n) {
			if a.moveState[m] == moveActive {
				a.moveState[m] = moveWorklist
			}
		}
	}
}

func (a *Allocator) takeWorklistMove() *flow.Node {
	for _, m := range a.moves {
		if a.moveState[m] == moveWorklist {
			return m
		}
	}
	return nil
}

func (a *Allocator) coalesce() {
	m := a.takeWorklistMove()
	move := m.Instr.(*asm.Move)
	x := a.getAlias(move.Dst)
	y := a.getAlias(move.Src)

	var u, v temp.Temp
	if a.precolored.Contains(y) {
		u, v = y, x
	} else {
		u, v = x, y
	}

	switch {
	case u == v:
		a.moveState[m] = moveCoalesced
		a.addWorkList(u)
	case a.precolored.Contains(v) || a.adjSet[makePair(u, v)]:
		a.moveState[m] = moveConstrained
		a.addWorkList(u)
		a.addWorkList(v)
	case a.coalescable(u, v):
		a.moveState[m] = moveCoalesced
		a.combine(u, v)
		a.addWorkList(u)
	default:
		a.moveState[m] = moveActive
	}
}

// coalescable applies George's criterion when a precolored register is
// involved and Briggs's conservative test otherwise.
func (a *Allocator) coalescable(u, v temp.Temp) bool {
	if a.precolored.Contains(u) {
		for _, t := range a.adjacent(v) {
			if !a.george(t, u) {
				return false
			}
		}
		return true
	}
	return a.briggs(u, v)
}

func (a *Allocator) george(t, r temp.Temp) bool {
	return a.degree[t] < a.K || a.precolored.Contains(t) || a.adjSet[makePair(t, r)]
}

func (a *Allocator) briggs(u, v temp.Temp) bool {
	nodes := NewTempSet()
	for _, t := range a.adjacent(u) {
		nodes.Add(t)
	}
	for _, t := range a.adjacent(v) {
		nodes.Add(t)
	}
	significant := 0
	for t := range nodes {
		if a.degree[t] >= a.K {
			significant++
		}
	}
	return significant < a.K
}

func (a *Allocator) addWorkList(u temp.Temp) {
	if !a.precolored.Contains(u) && !a.moveRelated(u) && a.degree[u] < a.K {
		a.freezeWorklist = removeTemp(a.freezeWorklist, u)
		if !containsTemp(a.simplifyWorklist, u) {
			a.simplifyWorklist = append(a.simplifyWorklist, u)
		}
	}
}

func (a *Allocator) getAlias(t temp.Temp) temp.Temp {
	if a.coalescedNodes.Contains(t) {
		return a.getAlias(a.alias[t])
	}
	return t
}

func (a *Allocator) combine(u, v temp.Temp) {
	a.freezeWorklist = removeTemp(a.freezeWorklist, v)
	a.spillWorklist = removeTemp(a.spillWorklist, v)
	a.coalescedNodes.Add(v)
	a.alias[v] = u
	a.moveList[u] = append(a.moveList[u], a.moveList[v]...)
	if a.noSpill.Contains(v) {
		a.noSpill.Add(u)
	}
	a.enableMoves([]temp.Temp{v})
	for _, t := range a.adjacent(v) {
		a.addEdge(t, u)
		a.decrementDegree(t)
	}
	if a.degree[u] >= a.K && containsTemp(a.freezeWorklist, u) {
		a.freezeWorklist = removeTemp(a.freezeWorklist, u)
		a.spillWorklist = append(a.spillWorklist, u)
	}
}

func (a *Allocator) freeze() {
	u := a.freezeWorklist[len(a.freezeWorklist)-1]
	a.freezeWorklist = a.freezeWorklist[:len(a.freezeWorklist)-1]
	a.simplifyWorklist = append(a.simplifyWorklist, u)
	a.freezeMoves(u)
}

func (a *Allocator) freezeMoves(u temp.Temp) {
	for _, m := range a.nodeMoves(u) {
		move := m.Instr.(*asm.Move)
		var v temp.Temp
		if a.getAlias(move.Src) == a.getAlias(u) {
			v = a.getAlias(move.Dst)
		} else {
			v = a.getAlias(move.Src)
		}
		a.moveState[m] = moveFrozen
		if !a.precolored.Contains(v) && !a.moveRelated(v) && a.degree[v] < a.K {
			a.freezeWorklist = removeTemp(a.freezeWorklist, v)
			if !containsTemp(a.simplifyWorklist, v) {
				a.simplifyWorklist = append(a.simplifyWorklist, v)
			}
		}
	}
}

// selectSpill picks the cheapest candidate by use count weighted with
// loop depth over degree, skipping temps a previous rewrite created.
func (a *Allocator) selectSpill() {
	best := -1
	bestCost := math.Inf(1)
	for i, t := range a.spillWorklist {
		if a.noSpill.Contains(t) {
			continue
		}
		cost := a.spillCost[t] / float64(a.degree[t])
		if cost < bestCost {
			best = i
			bestCost = cost
		}
	}
	if best < 0 {
		// Only rewrite temps remain; take the highest degree one and
		// hope the graph loosens
		best = 0
		for i, t := range a.spillWorklist {
			if a.degree[t] > a.degree[a.spillWorklist[best]] {
				best = i
			}
		}
	}
	m := a.spillWorklist[best]
	a.spillWorklist = append(a.spillWorklist[:best], a.spillWorklist[best+1:]...)
	a.simplifyWorklist = append(a.simplifyWorklist, m)
	a.freezeMoves(m)
}

func (a *Allocator) assignColors() {
	for len(a.selectStack) > 0 {
		n := a.selectStack[len(a.selectStack)-1]
		a.selectStack = a.selectStack[:len(a.selectStack)-1]

		used := NewTempSet()
		for w := range a.adjList[n] {
			wa := a.getAlias(w)
			if a.coloredNodes.Contains(wa) || a.precolored.Contains(wa) {
				used.Add(a.color[wa])
			}
		}

		assigned := false
		for _, c := range frame.Allocatable {
			if !used.Contains(c) {
				a.color[n] = c
				a.coloredNodes.Add(n)
				assigned = true
				break
			}
		}
		if !assigned {
			a.spilledNodes.Add(n)
		}
	}
	for t := range a.coalescedNodes {
		a.color[t] = a.color[a.getAlias(t)]
	}
}

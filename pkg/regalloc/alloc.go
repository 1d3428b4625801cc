package regalloc

import (
	"fmt"

	"github.com/raymyers/tiger-go/pkg/asm"
	"github.com/raymyers/tiger-go/pkg/flow"
	"github.com/raymyers/tiger-go/pkg/frame"
	"github.com/raymyers/tiger-go/pkg/temp"
)

// Result is a finished allocation: the rewritten instruction list, the
// temp-to-register assignment, and the function's pointer map.
type Result struct {
	Instrs     []asm.Instr
	Colors     map[temp.Temp]temp.Temp
	PointerMap frame.PointerMap
}

// Alloc colours the instruction list, rewriting spills and re-running
// liveness until every temp has a register. Redundant moves are removed,
// as are stores to spill slots that are never reloaded.
func Alloc(instrs []asm.Instr, fr frame.Frame, pointerTemps map[temp.Temp]bool, frameRoots []int64) Result {
	noSpill := NewTempSet()
	slotLoads := make(map[int64]int)
	slotStores := make(map[int64]map[asm.Instr]bool)
	extraRoots := append([]int64{}, frameRoots...)

	for {
		g := flow.New(instrs)
		liveness := Compute(g)
		a := NewAllocator(g, liveness, noSpill)
		spilled := a.Run()
		if len(spilled) == 0 {
			colors := a.Colors()
			pointerMap := buildPointerMap(g, liveness, fr, pointerTemps, extraRoots, colors)
			return Result{
				Instrs:     cleanup(instrs, colors, slotLoads, slotStores),
				Colors:     colors,
				PointerMap: pointerMap,
			}
		}
		instrs = rewriteSpills(instrs, fr, spilled, noSpill, pointerTemps, &extraRoots, slotLoads, slotStores)
	}
}

func displacement(offset int64) string {
	if offset < 0 {
		return fmt.Sprintf("- %d", -offset)
	}
	return fmt.Sprintf("+ %d", offset)
}

// rewriteSpills gives every spilled temp a frame slot and rewrites the
// program: a load into a fresh temp before every use, a store after
// every def. Pointer slots are zeroed at entry so the collector never
// scans stale bits, and their offsets become function-wide roots.
func rewriteSpills(instrs []asm.Instr, fr frame.Frame, spilled, noSpill TempSet, pointerTemps map[temp.Temp]bool, extraRoots *[]int64, slotLoads map[int64]int, slotStores map[int64]map[asm.Instr]bool) []asm.Instr {
	slots := make(map[temp.Temp]int64, len(spilled))
	var pointerSlotInits []asm.Instr
	for t := range spilled {
		offset := fr.AllocSpillSlot()
		slots[t] = offset
		slotStores[offset] = make(map[asm.Instr]bool)
		if pointerTemps[t] {
			*extraRoots = append(*extraRoots, offset)
			pointerSlotInits = append(pointerSlotInits, &asm.Oper{
				Assem: fmt.Sprintf("mov qword [rbp %s], 0", displacement(offset)),
			})
		}
	}

	fresh := func(t temp.Temp) temp.Temp {
		n := temp.NewTemp()
		noSpill.Add(n)
		if pointerTemps[t] {
			pointerTemps[n] = true
		}
		return n
	}

	result := make([]asm.Instr, 0, len(instrs)+len(spilled)*2)
	emitInits := func() {
		result = append(result, pointerSlotInits...)
		pointerSlotInits = nil
	}

	for i, instr := range instrs {
		if i == 0 {
			if _, isLabel := instr.(*asm.Label); isLabel {
				result = append(result, instr)
				emitInits()
				continue
			}
			emitInits()
		}

		uses := asm.Uses(instr)
		defs := asm.Defs(instr)
		replace := make(map[temp.Temp]temp.Temp)

		for _, u := range uses {
			if offset, ok := slots[u]; ok {
				if _, done := replace[u]; !done {
					replace[u] = fresh(u)
					slotLoads[offset]++
					result = append(result, &asm.Oper{
						Assem: fmt.Sprintf("mov 'd0, [rbp %s]", displacement(offset)),
						Dst:   []temp.Temp{replace[u]},
					})
				}
			}
		}

		defReplace := make(map[temp.Temp]temp.Temp)
		for _, d := range defs {
			if _, ok := slots[d]; ok {
				if r, already := replace[d]; already {
					defReplace[d] = r
				} else {
					defReplace[d] = fresh(d)
				}
			}
		}

		result = append(result, substituteTemps(instr, replace, defReplace))

		for _, d := range defs {
			if offset, ok := slots[d]; ok {
				store := &asm.Oper{
					Assem: fmt.Sprintf("mov [rbp %s], 's0", displacement(offset)),
					Src:   []temp.Temp{defReplace[d]},
				}
				slotStores[offset][store] = true
				result = append(result, store)
			}
		}
	}
	return result
}

// substituteTemps rebuilds an instruction with spilled temps replaced
func substituteTemps(instr asm.Instr, uses, defs map[temp.Temp]temp.Temp) asm.Instr {
	mapTemp := func(t temp.Temp, m map[temp.Temp]temp.Temp) temp.Temp {
		if r, ok := m[t]; ok {
			return r
		}
		return t
	}
	switch in := instr.(type) {
	case *asm.Oper:
		src := make([]temp.Temp, len(in.Src))
		for i, t := range in.Src {
			src[i] = mapTemp(t, uses)
		}
		dst := make([]temp.Temp, len(in.Dst))
		for i, t := range in.Dst {
			dst[i] = mapTemp(t, defs)
		}
		return &asm.Oper{Assem: in.Assem, Dst: dst, Src: src, Jump: in.Jump}
	case *asm.Move:
		return &asm.Move{
			Assem: in.Assem,
			Dst:   mapTemp(in.Dst, defs),
			Src:   mapTemp(in.Src, uses),
		}
	default:
		return instr
	}
}

// cleanup drops moves made redundant by coalescing and stores to spill
// slots whose value is never read back.
func cleanup(instrs []asm.Instr, colors map[temp.Temp]temp.Temp, slotLoads map[int64]int, slotStores map[int64]map[asm.Instr]bool) []asm.Instr {
	deadStores := make(map[asm.Instr]bool)
	for offset, stores := range slotStores {
		if slotLoads[offset] == 0 {
			for store := range stores {
				deadStores[store] = true
			}
		}
	}

	result := make([]asm.Instr, 0, len(instrs))
	for _, instr := range instrs {
		if deadStores[instr] {
			continue
		}
		if move, ok := instr.(*asm.Move); ok {
			if colors[move.Dst] == colors[move.Src] {
				continue
			}
		}
		result = append(result, instr)
	}
	return result
}

// buildPointerMap intersects the translator's pointer temps with the
// live-out set at every recorded call site, encoding each root as a
// register number, and appends the function's pointer-holding frame
// slots.
func buildPointerMap(g *flow.Graph, liveness *Liveness, fr frame.Frame, pointerTemps map[temp.Temp]bool, frameRoots []int64, colors map[temp.Temp]temp.Temp) frame.PointerMap {
	sites := make(map[temp.Label]bool, len(fr.CallSites()))
	for _, site := range fr.CallSites() {
		sites[site] = true
	}

	rootsAt := make(map[temp.Label][]int64)
	for i, node := range g.Nodes {
		label, ok := node.Instr.(*asm.Label)
		if !ok || !sites[label.Label] || i+1 >= len(g.Nodes) {
			continue
		}
		call := g.Nodes[i+1]
		seen := make(map[int64]bool)
		var roots []int64
		for t := range liveness.Out[call] {
			if !pointerTemps[t] {
				continue
			}
			root := frame.EncodeRoot(colors[t], false, 0)
			if !seen[root] {
				seen[root] = true
				roots = append(roots, root)
			}
		}
		for _, offset := range frameRoots {
			if !seen[offset] {
				seen[offset] = true
				roots = append(roots, offset)
			}
		}
		rootsAt[label.Label] = roots
	}

	result := make(frame.PointerMap, 0, len(fr.CallSites()))
	for _, site := range fr.CallSites() {
		result = append(result, frame.CallSiteRoots{Site: site, Roots: rootsAt[site]})
	}
	return result
}

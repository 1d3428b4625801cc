// Package flow builds the control-flow graph over an instruction list:
// one node per instruction, edges along fall-through and explicit jump
// targets.
package flow

import (
	"github.com/raymyers/tiger-go/pkg/asm"
	"github.com/raymyers/tiger-go/pkg/temp"
)

// Node is one instruction in the graph
type Node struct {
	ID     int
	Instr  asm.Instr
	Succ   []*Node
	Pred   []*Node
	Def    []temp.Temp
	Use    []temp.Temp
	IsMove bool
}

// Graph is the control-flow graph of one function body
type Graph struct {
	Nodes []*Node
}

// New builds the flow graph for an instruction list
func New(instrs []asm.Instr) *Graph {
	g := &Graph{Nodes: make([]*Node, len(instrs))}
	labelNodes := make(map[temp.Label]*Node)

	for i, instr := range instrs {
		_, isMove := instr.(*asm.Move)
		node := &Node{
			ID:     i,
			Instr:  instr,
			Def:    asm.Defs(instr),
			Use:    asm.Uses(instr),
			IsMove: isMove,
		}
		g.Nodes[i] = node
		if label, ok := instr.(*asm.Label); ok {
			labelNodes[label.Label] = node
		}
	}

	for i, node := range g.Nodes {
		targets := asm.Jumps(node.Instr)
		if targets == nil {
			if i+1 < len(g.Nodes) {
				g.addEdge(node, g.Nodes[i+1])
			}
			continue
		}
		for _, target := range targets {
			if succ, ok := labelNodes[target]; ok {
				g.addEdge(node, succ)
			}
		}
	}
	return g
}

func (g *Graph) addEdge(from, to *Node) {
	from.Succ = append(from.Succ, to)
	to.Pred = append(to.Pred, from)
}

package vfg

import "golang.org/x/tools/go/ssa"

// blockReach answers CFG-reachability queries within one function, used to
// restrict load-store matching and mod/ref cross edges to pairs where the
// source can actually execute before the target (spec §4.4).
type blockReach struct {
	reach [][]bool // reach[i][j]: block i can reach block j (including i==j)
}

func newBlockReach(fn *ssa.Function) *blockReach {
	n := len(fn.Blocks)
	reach := make([][]bool, n)
	for i := range reach {
		reach[i] = make([]bool, n)
	}
	for i, blk := range fn.Blocks {
		visited := reach[i]
		visited[i] = true
		queue := []*ssa.BasicBlock{blk}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, s := range cur.Succs {
				if !visited[s.Index] {
					visited[s.Index] = true
					queue = append(queue, s)
				}
			}
		}
	}
	return &blockReach{reach: reach}
}

func instrIndex(instr ssa.Instruction) int {
	blk := instr.Block()
	for i, in := range blk.Instrs {
		if in == instr {
			return i
		}
	}
	return -1
}

// canReachInstr reports whether from can execute at or before to, following
// CFG edges: true for the same block when from's index is <= to's, or when
// from's block can reach to's block.
func (r *blockReach) canReachInstr(from, to ssa.Instruction) bool {
	fb, tb := from.Block(), to.Block()
	if fb == tb {
		return instrIndex(from) <= instrIndex(to)
	}
	return r.reach[fb.Index][tb.Index]
}

func (r *blockReach) canReach(s *ssa.Store, l *ssa.UnOp) bool {
	return r.canReachInstr(s, l)
}

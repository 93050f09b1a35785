package gvfa

import (
	"context"

	"lotus/internal/vfg"
)

// onlineBidirectionalBFS is the "indexing disabled or not-yet-built"
// fallback query path (spec §4.7): an ad hoc bidirectional search over the
// raw VFG, ignoring call/return edge labels (the same over-approximate
// discipline the forward/backward slices use), meeting in the middle.
func onlineBidirectionalBFS(ctx context.Context, g *vfg.Graph, s, t vfg.NodeID) (bool, error) {
	if s == t {
		return true, nil
	}
	fwdVisited := map[vfg.NodeID]bool{s: true}
	bwdVisited := map[vfg.NodeID]bool{t: true}
	fwdFrontier := []vfg.NodeID{s}
	bwdFrontier := []vfg.NodeID{t}

	steps := 0
	for len(fwdFrontier) > 0 && len(bwdFrontier) > 0 {
		steps++
		if steps%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return false, err
			}
		}

		var nextFwd []vfg.NodeID
		for _, id := range fwdFrontier {
			for _, e := range g.Out(id) {
				if bwdVisited[e.To] {
					return true, nil
				}
				if !fwdVisited[e.To] {
					fwdVisited[e.To] = true
					nextFwd = append(nextFwd, e.To)
				}
			}
		}
		fwdFrontier = nextFwd

		var nextBwd []vfg.NodeID
		for _, id := range bwdFrontier {
			for _, e := range g.In(id) {
				if fwdVisited[e.To] {
					return true, nil
				}
				if !bwdVisited[e.To] {
					bwdVisited[e.To] = true
					nextBwd = append(nextBwd, e.To)
				}
			}
		}
		bwdFrontier = nextBwd
	}
	return false, nil
}

package plan

import (
	"math"

	"github.com/trezcool/soma/core"
)

// buildTree assembles the subtree rooted at rootID with task counts and progress.
// Archived nodes and tasks are skipped unless includeArchived is set.
func buildTree(idx *Index, tasks []Task, rootID string, includeArchived bool) *TreeNode {
	counts := make(map[string][2]int) // node id: {total, done}
	for _, t := range tasks {
		if t.NodeID == "" || (t.IsArchived && !includeArchived) {
			continue
		}
		c := counts[t.NodeID]
		c[0]++
		if t.Status == StatusDone {
			c[1]++
		}
		counts[t.NodeID] = c
	}

	var build func(n Node) *TreeNode
	build = func(n Node) *TreeNode {
		tn := &TreeNode{
			Node:       n,
			TasksTotal: counts[n.ID][0],
			TasksDone:  counts[n.ID][1],
			Children:   []*TreeNode{},
		}
		for _, child := range idx.Children(n.ID) {
			if child.IsArchived && !includeArchived {
				continue
			}
			tn.Children = append(tn.Children, build(child))
		}
		return tn
	}

	root, ok := idx.Get(rootID)
	if !ok {
		return nil
	}
	tn := build(root)
	fillProgress(tn)
	return tn
}

// fillProgress sets Progress, WeightageSum and WeightageOK over the whole tree and returns the unrounded progress.
// Weighted children are averaged by weightage (the node's own tasks are then ignored).
// Otherwise children and the node's own tasks, as one extra child, are averaged equally.
func fillProgress(tn *TreeNode) float64 {
	var (
		weighted      bool
		weightSum     float64
		weightedAcc   float64
		unweightedAcc float64
	)
	for _, child := range tn.Children {
		p := fillProgress(child)
		unweightedAcc += p
		if child.Weightage > 0 {
			weighted = true
			weightSum += child.Weightage
			weightedAcc += child.Weightage * p
		}
	}

	var progress float64
	switch {
	case weighted:
		progress = weightedAcc / weightSum
	default:
		parts := len(tn.Children)
		if tn.TasksTotal > 0 {
			unweightedAcc += float64(tn.TasksDone) / float64(tn.TasksTotal) * 100
			parts++
		}
		if parts > 0 {
			progress = unweightedAcc / float64(parts)
		}
	}

	tn.WeightageSum = core.Round(weightSum, 2)
	tn.WeightageOK = !weighted || WeightageSumOK(weightSum)
	tn.Progress = core.Round(progress, 1)
	return progress
}

// WeightageSumOK reports whether a sibling group's weightages add up to 100.
func WeightageSumOK(sum float64) bool {
	return math.Abs(sum-100) <= WeightageTolerance
}

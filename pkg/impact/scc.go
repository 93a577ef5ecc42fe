package impact

import (
	"gonum.org/v1/gonum/graph"
)

// tarjanSCC finds strongly connected components in the target graph using
// Tarjan's algorithm. Targets in a component form a dependency cycle and are
// treated as a single rebuild unit during attribution.
type tarjanSCC struct {
	graph   graph.Directed
	index   int
	stack   []int64
	onStack map[int64]bool
	indices map[int64]int
	lowLink map[int64]int
	sccs    [][]int64
}

func newTarjanSCC(g graph.Directed) *tarjanSCC {
	return &tarjanSCC{
		graph:   g,
		onStack: make(map[int64]bool),
		indices: make(map[int64]int),
		lowLink: make(map[int64]int),
	}
}

// findSCCs returns all strongly connected components with more than one member
func (t *tarjanSCC) findSCCs() [][]int64 {
	nodes := t.graph.Nodes()
	for nodes.Next() {
		node := nodes.Node()
		if _, visited := t.indices[node.ID()]; !visited {
			t.strongConnect(node.ID())
		}
	}
	return t.sccs
}

// strongConnect performs the recursive Tarjan's algorithm
func (t *tarjanSCC) strongConnect(nodeID int64) {
	t.indices[nodeID] = t.index
	t.lowLink[nodeID] = t.index
	t.index++

	t.stack = append(t.stack, nodeID)
	t.onStack[nodeID] = true

	successors := t.graph.From(nodeID)
	for successors.Next() {
		successorID := successors.Node().ID()

		if _, visited := t.indices[successorID]; !visited {
			t.strongConnect(successorID)
			t.lowLink[nodeID] = min(t.lowLink[nodeID], t.lowLink[successorID])
		} else if t.onStack[successorID] {
			t.lowLink[nodeID] = min(t.lowLink[nodeID], t.indices[successorID])
		}
	}

	// Root of an SCC: pop the stack down to this node
	if t.lowLink[nodeID] == t.indices[nodeID] {
		var scc []int64
		for {
			w := t.stack[len(t.stack)-1]
			t.stack = t.stack[:len(t.stack)-1]
			t.onStack[w] = false
			scc = append(scc, w)
			if w == nodeID {
				break
			}
		}
		// Single nodes are not cycles
		if len(scc) > 1 {
			t.sccs = append(t.sccs, scc)
		}
	}
}

// CycleGroups returns groups of target names that form dependency cycles
func (tg *TargetGraph) CycleGroups() [][]string {
	sccs := newTarjanSCC(tg.graph).findSCCs()

	groups := make([][]string, 0, len(sccs))
	for _, scc := range sccs {
		group := make([]string, 0, len(scc))
		for _, id := range scc {
			group = append(group, tg.names[id])
		}
		groups = append(groups, group)
	}
	return groups
}

package impact

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/graph/simple"
)

// TargetKind distinguishes buildable units for attribution purposes
type TargetKind string

const (
	KindLibrary TargetKind = "library"
	KindTest    TargetKind = "test"
)

// TargetNode represents a buildable unit in the dependency graph
type TargetNode struct {
	Name string     // e.g., "core"
	Kind TargetKind // library or test
	Dir  string     // directory owning the target's files
}

// TargetGraph is a directed dependency graph between build targets.
// An edge A -> B means A depends on B, so a change to B affects A.
type TargetGraph struct {
	graph  *simple.DirectedGraph
	nodes  map[string]*TargetNode // target name -> node
	ids    map[string]int64       // target name -> graph ID
	names  map[int64]string       // graph ID -> target name
	nextID int64
}

// NewTargetGraph creates an empty target graph
func NewTargetGraph() *TargetGraph {
	return &TargetGraph{
		graph: simple.NewDirectedGraph(),
		nodes: make(map[string]*TargetNode),
		ids:   make(map[string]int64),
		names: make(map[int64]string),
	}
}

// AddTarget adds a target to the graph if not already present
func (tg *TargetGraph) AddTarget(name string, kind TargetKind, dir string) {
	if _, exists := tg.nodes[name]; exists {
		return
	}

	tg.nodes[name] = &TargetNode{Name: name, Kind: kind, Dir: dir}
	tg.ids[name] = tg.nextID
	tg.names[tg.nextID] = name
	tg.graph.AddNode(simple.Node(tg.nextID))
	tg.nextID++
}

// AddDependency records that from depends on to. Both targets must exist.
func (tg *TargetGraph) AddDependency(from, to string) error {
	fromID, ok := tg.ids[from]
	if !ok {
		return fmt.Errorf("unknown target %q", from)
	}
	toID, ok := tg.ids[to]
	if !ok {
		return fmt.Errorf("unknown target %q", to)
	}
	if fromID == toID {
		return nil
	}

	if !tg.graph.HasEdgeFromTo(fromID, toID) {
		tg.graph.SetEdge(tg.graph.NewEdge(tg.graph.Node(fromID), tg.graph.Node(toID)))
	}
	return nil
}

// Targets returns the names of all targets, in insertion order of IDs
func (tg *TargetGraph) Targets() []string {
	targets := make([]string, 0, len(tg.nodes))
	for id := int64(0); id < tg.nextID; id++ {
		targets = append(targets, tg.names[id])
	}
	return targets
}

// TestTargets returns the names of all test targets
func (tg *TargetGraph) TestTargets() []string {
	var tests []string
	for id := int64(0); id < tg.nextID; id++ {
		if tg.nodes[tg.names[id]].Kind == KindTest {
			tests = append(tests, tg.names[id])
		}
	}
	return tests
}

// Dependents returns all targets that transitively depend on the given
// target, including indirect dependents reached through intermediate edges.
// Targets sharing a dependency cycle with the given target are included.
func (tg *TargetGraph) Dependents(name string) []string {
	startID, ok := tg.ids[name]
	if !ok {
		return nil
	}

	// Expand the start set to its whole cycle group: within a cycle every
	// member is both a dependent and a dependency of every other member
	seeds := []int64{startID}
	for _, group := range tg.CycleGroups() {
		for _, member := range group {
			if member == name {
				for _, other := range group {
					if id, ok := tg.ids[other]; ok && id != startID {
						seeds = append(seeds, id)
					}
				}
			}
		}
	}

	// Reverse BFS over dependency edges
	visited := make(map[int64]bool)
	queue := seeds
	for _, s := range seeds {
		visited[s] = true
	}

	var dependents []string
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		iter := tg.graph.To(current)
		for iter.Next() {
			id := iter.Node().ID()
			if visited[id] {
				continue
			}
			visited[id] = true
			queue = append(queue, id)
			dependents = append(dependents, tg.names[id])
		}
	}

	// Cycle members other than the queried target count as dependents too
	for _, s := range seeds[1:] {
		dependents = append(dependents, tg.names[s])
	}

	return dependents
}

// OwningTarget maps a changed file to the target that owns it, based on the
// top-level directory the file lives in. Files directly under the project
// root belong to the first discovered target.
func (tg *TargetGraph) OwningTarget(projectRoot, filePath string) string {
	rel, err := filepath.Rel(projectRoot, filePath)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filePath
	}

	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) > 1 {
		if _, ok := tg.nodes[parts[0]]; ok {
			return parts[0]
		}
	}

	// Root-level files attach to the first target
	if tg.nextID > 0 {
		return tg.names[0]
	}
	return ""
}

// BuildTargetGraph discovers targets from a project tree.
//
// Target discovery uses a directory-name heuristic rather than parsing the
// native build tool's project format: each non-hidden top-level directory is
// one target, and directories whose name suggests tests become test targets
// that depend on every library target. This keeps attribution conservative.
func BuildTargetGraph(projectRoot string) (*TargetGraph, error) {
	entries, err := os.ReadDir(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("enumerating project root %s: %w", projectRoot, err)
	}

	tg := NewTargetGraph()
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "bazel-") {
			continue
		}
		switch name {
		case "build", "out", "dist", "target", "node_modules", "DerivedData", "vendor":
			continue
		}

		kind := KindLibrary
		if isTestDir(name) {
			kind = KindTest
		}
		tg.AddTarget(name, kind, filepath.Join(projectRoot, name))
	}

	// No subdirectories: the whole project is a single target
	if len(tg.nodes) == 0 {
		base := filepath.Base(projectRoot)
		if base == "." || base == string(filepath.Separator) {
			base = "default"
		}
		tg.AddTarget(base, KindLibrary, projectRoot)
	}

	// Test targets conservatively depend on every library target
	for _, test := range tg.TestTargets() {
		for _, target := range tg.Targets() {
			if tg.nodes[target].Kind == KindLibrary {
				_ = tg.AddDependency(test, target)
			}
		}
	}

	return tg, nil
}

func isTestDir(name string) bool {
	lower := strings.ToLower(name)
	return lower == "test" || lower == "tests" || strings.HasSuffix(lower, "tests") ||
		strings.HasSuffix(lower, "_test")
}

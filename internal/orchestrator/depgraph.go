package orchestrator

import (
	"sort"

	"github.com/k-kohey/xcodecache/internal/xcodeproj"
)

// depGraph is the adjacency-map dependency view over one pre invocation's
// discovered targets, keyed by target name. It backs
// XcodeCache_ENABLE_DEPENDENCY_HASHING's fingerprint extension: a
// dependent target's fingerprint document gains a section of its direct
// dependencies' target_md5 values, so a dependency's content change
// invalidates dependents transitively.
type depGraph struct {
	direct map[string][]string
}

func buildDepGraph(projects []*xcodeproj.Project) (*depGraph, error) {
	uuidToName := map[string]string{}
	targetsByUUID := map[string]*xcodeproj.Target{}
	for _, p := range projects {
		targets, err := p.Targets()
		if err != nil {
			return nil, err
		}
		for _, t := range targets {
			uuidToName[t.UUID] = t.Name
			targetsByUUID[t.UUID] = t
		}
	}

	g := &depGraph{direct: map[string][]string{}}
	for uuid, t := range targetsByUUID {
		var names []string
		for _, depUUID := range t.DependencyTargetUUIDs() {
			if name, ok := uuidToName[depUUID]; ok {
				names = append(names, name)
			}
		}
		sort.Strings(names)
		g.direct[uuidToName[uuid]] = names
	}
	return g, nil
}

// cyclic reports whether a dependency cycle is reachable from name: name
// is itself in a cycle, or depends directly or transitively on a target
// that is. Such a target cannot have a well-defined dependency-bound
// fingerprint and falls back to MISS (spec.md §9's cycle-to-MISS design).
func (g *depGraph) cyclic(name string) bool {
	state := map[string]int{} // 0 unvisited, 1 in-progress, 2 done
	var visit func(n string) bool
	visit = func(n string) bool {
		switch state[n] {
		case 1:
			return true
		case 2:
			return false
		}
		state[n] = 1
		for _, dep := range g.direct[n] {
			if visit(dep) {
				return true
			}
		}
		state[n] = 2
		return false
	}
	return visit(name)
}

// topologicalOrder returns names ordered so every non-cyclic target
// appears after all of its non-cyclic direct dependencies. Cyclic targets
// are omitted entirely; callers resolve them to MISS directly. The result
// also contains non-cyclic dependencies that are not themselves in names.
func (g *depGraph) topologicalOrder(names []string) []string {
	state := map[string]int{}
	var order []string
	var visit func(n string)
	visit = func(n string) {
		if state[n] != 0 || g.cyclic(n) {
			return
		}
		state[n] = 1
		for _, dep := range g.direct[n] {
			visit(dep)
		}
		state[n] = 2
		order = append(order, n)
	}
	for _, n := range names {
		visit(n)
	}
	return order
}

package registry

import (
	"strings"

	"github.com/weftdb/weft/internal/transform"
)

// wouldCycle reports the trigger cycle the candidate transform would
// close, or nil. Edge T1 → T2 exists when T1's output field is one of
// T2's input fields: T1 completing would trigger T2. Caller holds the
// write lock.
func (r *Registry) wouldCycle(candidate *transform.Transform) []string {
	// Graph over the current arena with the candidate swapped in.
	outputs := map[string]string{} // transform id → output field
	inputs := map[string][]string{}
	for id, t := range r.transforms {
		if id == candidate.ID {
			continue
		}
		outputs[id] = t.Output
		inputs[id] = t.Inputs
	}
	outputs[candidate.ID] = candidate.Output
	inputs[candidate.ID] = candidate.Inputs

	triggeredBy := map[string][]string{} // field → transforms with that input
	for id, in := range inputs {
		for _, field := range in {
			triggeredBy[field] = append(triggeredBy[field], id)
		}
	}

	graph := map[string][]string{}
	for id, out := range outputs {
		graph[id] = append([]string(nil), triggeredBy[out]...)
	}

	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			// Only reject when the candidate participates; a pre-existing
			// cycle cannot occur since every registration is checked.
			for _, id := range scc {
				if id == candidate.ID {
					return append(scc, scc[0])
				}
			}
		}
	}
	return nil
}

// tarjanSCC finds strongly connected components of the trigger graph.
// Single-node SCCs without self-loops are not cycles.
func tarjanSCC(graph map[string][]string) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for node := range graph {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

func hasSelfLoop(node string, graph map[string][]string) bool {
	for _, neighbor := range graph[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

func cyclePath(cycle []string) string {
	return strings.Join(cycle, " → ")
}

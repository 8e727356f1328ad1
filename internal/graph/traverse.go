package graph

import "github.com/eldtechnologies/lucidflow/internal/models"

// Upstream returns the ids of every node that transitively feeds start,
// following edges from target back to source.
//
// The walk is an explicit-stack depth-first search with a visited set, so
// it terminates on cycles and never recurses. Output is post-order:
// incoming edges are followed in the order they appear in edges, every
// ancestor precedes the nodes it feeds, and start itself comes last when
// includeSelf is set. Each id appears at most once. Downstream consumers
// of start are never included.
func Upstream(edges []models.Edge, start string, includeSelf bool) []string {
	incoming := make(map[string][]string)
	for _, e := range edges {
		incoming[e.Target] = append(incoming[e.Target], e.Source)
	}

	type frame struct {
		id   string
		next int // index of the next incoming edge to follow
	}

	visited := map[string]bool{start: true}
	stack := []frame{{id: start}}
	var order []string

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		sources := incoming[top.id]

		if top.next < len(sources) {
			src := sources[top.next]
			top.next++
			if !visited[src] {
				visited[src] = true
				stack = append(stack, frame{id: src})
			}
			continue
		}

		stack = stack[:len(stack)-1]
		if top.id == start && !includeSelf {
			continue
		}
		order = append(order, top.id)
	}

	return order
}

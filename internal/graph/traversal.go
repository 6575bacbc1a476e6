package graph

// neighbors returns the union of successors and predecessors of id,
// the undirected view used by traversal.
func (g *Graph) neighbors(id string) map[string]struct{} {
	adj, ok := g.adjacency[id]
	if !ok {
		return nil
	}
	out := make(map[string]struct{}, len(adj.outgoing)+len(adj.incoming))
	for target := range adj.outgoing {
		out[target] = struct{}{}
	}
	for source := range adj.incoming {
		out[source] = struct{}{}
	}
	return out
}

// ConnectedEntities expands breadth-first over the undirected view for
// up to maxDepth hops and returns every reachable entity id, excluding
// the origin. Expansion stops early once a hop yields no new nodes.
// An unknown origin yields an empty set.
func (g *Graph) ConnectedEntities(id string, maxDepth int) map[string]struct{} {
	connected := make(map[string]struct{})
	if _, ok := g.entities[id]; !ok {
		return connected
	}

	frontier := map[string]struct{}{id: {}}
	for depth := 0; depth < maxDepth; depth++ {
		next := make(map[string]struct{})
		for node := range frontier {
			for n := range g.neighbors(node) {
				next[n] = struct{}{}
			}
		}

		frontier = make(map[string]struct{})
		for n := range next {
			if _, seen := connected[n]; !seen {
				frontier[n] = struct{}{}
			}
			connected[n] = struct{}{}
		}

		if len(frontier) == 0 {
			break
		}
	}

	delete(connected, id)
	return connected
}

// weaklyConnectedComponents counts maximal sets of nodes mutually
// reachable when edge direction is ignored.
func (g *Graph) weaklyConnectedComponents() int {
	visited := make(map[string]bool, len(g.entities))
	count := 0

	for id := range g.entities {
		if visited[id] {
			continue
		}
		count++

		queue := []string{id}
		visited[id] = true
		for len(queue) > 0 {
			node := queue[0]
			queue = queue[1:]
			for n := range g.neighbors(node) {
				if !visited[n] {
					visited[n] = true
					queue = append(queue, n)
				}
			}
		}
	}
	return count
}

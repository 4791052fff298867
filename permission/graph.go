package permission

// Graph is the permission implication graph: an edge a -> b means
// holding a implies holding b. Edges are explicit; nothing is inferred
// from code shapes.
type Graph struct {
	edges map[string][]string
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{edges: make(map[string][]string)}
}

// AddEdge records that from implies to. Duplicate edges are ignored.
func (g *Graph) AddEdge(from, to string) {
	for _, existing := range g.edges[from] {
		if existing == to {
			return
		}
	}
	g.edges[from] = append(g.edges[from], to)
}

// Implies reports whether a implies b through any chain of edges. The
// walk keeps a visited set, so cyclic graphs terminate.
func (g *Graph) Implies(a, b string) bool {
	if a == b {
		return true
	}

	visited := map[string]struct{}{a: {}}
	queue := []string{a}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, next := range g.edges[cur] {
			if next == b {
				return true
			}
			if _, seen := visited[next]; seen {
				continue
			}
			visited[next] = struct{}{}
			queue = append(queue, next)
		}
	}

	return false
}

package task

import (
	"fmt"
	"strings"
)

// validateTasks checks ids and dependency edges of a hand-built task set.
func validateTasks(tasks []Task) error {
	ve := &ValidationErrors{}
	if len(tasks) == 0 {
		ve.Add("tasks", "at least one task is required")
		return ve
	}

	ids := make([]string, 0, len(tasks))
	seen := make(map[string]bool, len(tasks))
	for i, t := range tasks {
		field := fmt.Sprintf("tasks[%d].id", i)
		switch {
		case strings.TrimSpace(t.ID) == "":
			ve.Add(field, "is required")
			continue
		case seen[t.ID]:
			ve.Addf(field, "duplicate task id %q", t.ID)
			continue
		}
		seen[t.ID] = true
		ids = append(ids, t.ID)
	}

	edges := make(map[string][]string, len(tasks))
	for i, t := range tasks {
		for j, dep := range t.DependsOn {
			field := fmt.Sprintf("tasks[%d].depends_on[%d]", i, j)
			switch {
			case dep == t.ID:
				ve.Addf(field, "task %q depends on itself", t.ID)
			case !seen[dep]:
				ve.Addf(field, "task %q depends on unknown task %q", t.ID, dep)
			default:
				edges[t.ID] = append(edges[t.ID], dep)
			}
		}
	}
	if ve.HasErrors() {
		return ve
	}

	if _, err := topoSort(ids, edges); err != nil {
		ve.Add("tasks", err.Error())
	}
	return ve.OrNil()
}

// topoSort uses Kahn's algorithm. On cycle detection a DFS reports the
// cycle path.
func topoSort(nodes []string, edges map[string][]string) ([]string, error) {
	inDegree := make(map[string]int, len(nodes))
	forward := make(map[string][]string)
	for _, n := range nodes {
		inDegree[n] = 0
	}
	for _, node := range nodes {
		for _, dep := range edges[node] {
			inDegree[node]++
			forward[dep] = append(forward[dep], node)
		}
	}

	var queue []string
	for _, n := range nodes {
		if inDegree[n] == 0 {
			queue = append(queue, n)
		}
	}

	sorted := make([]string, 0, len(nodes))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		sorted = append(sorted, node)
		for _, dependent := range forward[node] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}
	if len(sorted) == len(nodes) {
		return sorted, nil
	}
	return nil, fmt.Errorf("circular dependency detected: %s", strings.Join(findCycle(nodes, edges, inDegree), " -> "))
}

func findCycle(nodes []string, edges map[string][]string, inDegree map[string]int) []string {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(nodes))
	parent := make(map[string]string, len(nodes))
	var cycle []string

	var visit func(string) bool
	visit = func(n string) bool {
		color[n] = gray
		for _, dep := range edges[n] {
			switch color[dep] {
			case gray:
				cycle = []string{dep}
				for cur := n; cur != dep; cur = parent[cur] {
					cycle = append(cycle, cur)
				}
				cycle = append(cycle, dep)
				return true
			case white:
				parent[dep] = n
				if visit(dep) {
					return true
				}
			}
		}
		color[n] = black
		return false
	}

	for _, n := range nodes {
		if inDegree[n] > 0 && color[n] == white && visit(n) {
			break
		}
	}
	// Collected back to front; reverse so each task is followed by its dependency.
	for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
		cycle[i], cycle[j] = cycle[j], cycle[i]
	}
	return cycle
}

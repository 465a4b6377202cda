// resolver.go: Plugin set validation and deterministic ordering
//
// Copyright (c) 2025 The Kysera Authors
// SPDX-License-Identifier: MPL-2.0

package kysera

// ResolvePlugins validates a plugin set and produces its execution order.
//
// The order is a stable topological sort over the dependency graph: a plugin
// always appears after every plugin it depends on, ties are broken by
// ascending Priority, and remaining ties by registration order. Repeated
// calls with the same input produce the same output.
//
// Resolution fails with a validation error when the set contains duplicate
// names, a dependency that names no registered plugin, or a dependency cycle.
// The function is pure: it never mutates its input and keeps no state.
func ResolvePlugins(plugins []Plugin) ([]Plugin, error) {
	if len(plugins) == 0 {
		return []Plugin{}, nil
	}

	infos, indexByName, err := indexPluginSet(plugins)
	if err != nil {
		return nil, err
	}

	if err := checkDependenciesPresent(infos, indexByName); err != nil {
		return nil, err
	}

	inDegree, dependents := buildDependencyEdges(infos, indexByName)
	order := sortByDependency(infos, inDegree, dependents)

	// A short order means at least one plugin never reached in-degree zero,
	// which only a cycle can cause after the missing-dependency check.
	if len(order) != len(plugins) {
		return nil, NewDependencyCycleError(unresolvedNames(infos, order))
	}

	resolved := make([]Plugin, len(order))
	for i, idx := range order {
		resolved[i] = plugins[idx]
	}
	return resolved, nil
}

// indexPluginSet validates names and maps each unique name to its
// registration index.
func indexPluginSet(plugins []Plugin) ([]PluginInfo, map[string]int, error) {
	infos := make([]PluginInfo, len(plugins))
	indexByName := make(map[string]int, len(plugins))

	for i, plugin := range plugins {
		info := plugin.Info()
		if info.Name == "" {
			return nil, nil, NewInvalidPluginNameError(i)
		}
		if _, exists := indexByName[info.Name]; exists {
			return nil, nil, NewDuplicatePluginNameError(info.Name)
		}
		indexByName[info.Name] = i
		infos[i] = info
	}

	return infos, indexByName, nil
}

// checkDependenciesPresent rejects sets where a declared dependency is absent.
func checkDependenciesPresent(infos []PluginInfo, indexByName map[string]int) error {
	for _, info := range infos {
		for _, dep := range info.DependsOn {
			if _, ok := indexByName[dep]; !ok {
				return NewMissingDependencyError(info.Name, dep)
			}
		}
	}
	return nil
}

// buildDependencyEdges computes each plugin's in-degree and the reverse
// adjacency used to release dependents as their dependencies complete.
func buildDependencyEdges(infos []PluginInfo, indexByName map[string]int) ([]int, [][]int) {
	inDegree := make([]int, len(infos))
	dependents := make([][]int, len(infos))

	for i, info := range infos {
		inDegree[i] = len(info.DependsOn)
		for _, dep := range info.DependsOn {
			depIdx := indexByName[dep]
			dependents[depIdx] = append(dependents[depIdx], i)
		}
	}

	return inDegree, dependents
}

// sortByDependency runs Kahn's algorithm with a deterministic selection rule:
// among all ready plugins, the one with the lowest priority wins, and equal
// priorities fall back to registration order.
func sortByDependency(infos []PluginInfo, inDegree []int, dependents [][]int) []int {
	ready := make([]int, 0, len(infos))
	for i := range infos {
		if inDegree[i] == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]int, 0, len(infos))
	for len(ready) > 0 {
		best := 0
		for j := 1; j < len(ready); j++ {
			if readyBefore(infos, ready[j], ready[best]) {
				best = j
			}
		}
		current := ready[best]
		ready = append(ready[:best], ready[best+1:]...)
		order = append(order, current)

		for _, dependent := range dependents[current] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	return order
}

// readyBefore reports whether plugin a should execute before plugin b when
// both are ready: lower priority first, then earlier registration.
func readyBefore(infos []PluginInfo, a, b int) bool {
	if infos[a].Priority != infos[b].Priority {
		return infos[a].Priority < infos[b].Priority
	}
	return a < b
}

// unresolvedNames lists the plugins left out of a short order, for cycle
// error context.
func unresolvedNames(infos []PluginInfo, order []int) []string {
	placed := make(map[int]bool, len(order))
	for _, idx := range order {
		placed[idx] = true
	}

	var remaining []string
	for i, info := range infos {
		if !placed[i] {
			remaining = append(remaining, info.Name)
		}
	}
	return remaining
}

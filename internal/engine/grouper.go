package engine

import (
	"path/filepath"
	"sort"
	"strings"

	"feedwatch/pkg/types"
)

// GroupProcesses collapses raw process records into named groups by
// exact executable base-name match. No fuzzy matching: two processes
// land in the same group only when their stripped names are equal.
// Groups come back sorted case-insensitively by name, PIDs ascending,
// so the result is stable regardless of map iteration order.
func GroupProcesses(records map[int32]string) []types.ProcessGroup {
	byName := make(map[string]*types.ProcessGroup)
	for pid, exe := range records {
		name := filepath.Base(exe)
		if name == "" || name == "." {
			continue
		}
		g := byName[name]
		if g == nil {
			g = &types.ProcessGroup{Name: name}
			byName[name] = g
		}
		g.PIDs = append(g.PIDs, pid)
	}

	groups := make([]types.ProcessGroup, 0, len(byName))
	for _, g := range byName {
		sort.Slice(g.PIDs, func(i, j int) bool { return g.PIDs[i] < g.PIDs[j] })
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool {
		return strings.ToLower(groups[i].Name) < strings.ToLower(groups[j].Name)
	})
	return groups
}

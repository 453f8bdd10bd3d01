// Package source adapts the OS socket table and process list into the
// tuple-shaped feeds the monitoring engine consumes. The engine never
// talks to the OS directly, so a fake Source is enough to drive it in
// tests.
package source

import "feedwatch/pkg/types"

type Source interface {
	// ListEstablishedConnections returns the established outbound TCP
	// sockets belonging to the given PIDs. A failed or empty underlying
	// read yields an empty slice; zero connections is a normal steady
	// state, not an error.
	ListEstablishedConnections(pids []int32) []types.RawConnection

	// ListProcessesWithEstablishedConnections returns the PIDs that
	// currently own at least one established TCP connection.
	ListProcessesWithEstablishedConnections() []int32

	// ResolveExecutableNames maps PIDs to executable base names. PIDs
	// that cannot be resolved are absent from the result.
	ResolveExecutableNames(pids []int32) map[int32]string

	// GroupStats reports aggregate CPU percent and resident memory for
	// a set of PIDs. Best effort; unreadable processes contribute
	// nothing.
	GroupStats(pids []int32) (cpu float64, rss uint64)
}

package engine

import (
	"net"
	"sort"
	"time"

	"feedwatch/pkg/types"
)

// session holds all per-tracked-group state: the live endpoint set,
// both latency series, jitter scores and the current selection. Only
// the engine's driver goroutine touches it, so no locking is needed;
// probe and resolver goroutines report through channels instead.
type session struct {
	endpoints map[string]*types.Endpoint
	app       map[string]int
	deep      map[string]int
	jitter    map[string]int
	prevApp   map[string]int    // last successful app sample per key
	failures  map[string]int    // consecutive app probe failures per key
	hostnames map[string]string // ip -> reverse-resolved name, successes only
	selection types.SelectionState
}

func newSession() *session {
	return &session{
		endpoints: make(map[string]*types.Endpoint),
		app:       make(map[string]int),
		deep:      make(map[string]int),
		jitter:    make(map[string]int),
		prevApp:   make(map[string]int),
		failures:  make(map[string]int),
		hostnames: make(map[string]string),
	}
}

// refresh installs the cycle's authoritative endpoint set. Loopback
// addresses are dropped, duplicates across PIDs collapse to the first
// occurrence, and every key absent from the new set is purged from all
// dependent maps before the function returns, so no orphaned entry can
// survive a cycle boundary.
func (s *session) refresh(conns []types.RawConnection) {
	next := make(map[string]*types.Endpoint, len(conns))
	for _, c := range conns {
		if ip := net.ParseIP(c.IP); ip != nil && ip.IsLoopback() {
			continue
		}
		key := types.EndpointKey(c.IP, c.Port)
		if _, dup := next[key]; dup {
			continue
		}
		if prev, known := s.endpoints[key]; known {
			next[key] = prev
			continue
		}
		ep := &types.Endpoint{IP: c.IP, Port: c.Port}
		if host, ok := s.hostnames[c.IP]; ok {
			ep.Hostname = host
		}
		ep.Provider = Classify(ep.IP, ep.Port, ep.Hostname)
		next[key] = ep
	}

	for key := range s.endpoints {
		if _, live := next[key]; !live {
			s.drop(key)
		}
	}
	s.endpoints = next
}

func (s *session) drop(key string) {
	delete(s.app, key)
	delete(s.deep, key)
	delete(s.jitter, key)
	delete(s.prevApp, key)
	delete(s.failures, key)
	// Pruning the selected key also releases any manual pin.
	if s.selection.SelectedKey == key {
		s.selection = types.SelectionState{}
	}
}

// applyApp folds one app probe outcome into the series and jitter
// score. Results for keys that are no longer live are dropped; the
// return value reports whether anything was applied. A failed sample
// touches neither the score nor the previous-value baseline.
func (s *session) applyApp(key string, ms int) bool {
	if _, live := s.endpoints[key]; !live {
		return false
	}
	s.app[key] = ms
	if ms == types.FailedSample {
		s.failures[key]++
		return true
	}
	s.failures[key] = 0
	if prev, ok := s.prevApp[key]; ok && prev != ms {
		s.jitter[key]++
	}
	s.prevApp[key] = ms
	return true
}

func (s *session) applyDeep(key string, ms int) bool {
	if _, live := s.endpoints[key]; !live {
		return false
	}
	s.deep[key] = ms
	return true
}

// applyHostname records a successful reverse lookup and reclassifies
// every live endpoint sharing the IP. Latency series and jitter scores
// are untouched.
func (s *session) applyHostname(ip, hostname string) {
	s.hostnames[ip] = hostname
	for _, ep := range s.endpoints {
		if ep.IP != ip {
			continue
		}
		ep.Hostname = hostname
		ep.Provider = Classify(ep.IP, ep.Port, hostname)
	}
}

// unresolvedIPs lists the distinct IPs of live endpoints with no cache
// entry yet. Failed lookups are not cached, so these retry every cycle.
func (s *session) unresolvedIPs() []string {
	seen := make(map[string]bool)
	var ips []string
	for _, ep := range s.endpoints {
		if _, ok := s.hostnames[ep.IP]; ok || seen[ep.IP] {
			continue
		}
		seen[ep.IP] = true
		ips = append(ips, ep.IP)
	}
	sort.Strings(ips)
	return ips
}

// reselect recomputes the automatic selection among live keys with a
// positive jitter score. Classified providers outrank unclassified
// ones, higher jitter wins within a tier, and lexical key order breaks
// remaining ties. With no candidate the previous selection stands.
// A manual pin suppresses reselection entirely.
func (s *session) reselect() {
	if s.selection.ManualOverride {
		return
	}
	var best string
	var bestClassified bool
	var bestScore int
	for key, score := range s.jitter {
		if score <= 0 {
			continue
		}
		ep, live := s.endpoints[key]
		if !live {
			continue
		}
		classified := ep.Provider != types.ProviderUnknown
		if best == "" || ranksAbove(classified, score, key, bestClassified, bestScore, best) {
			best, bestClassified, bestScore = key, classified, score
		}
	}
	if best != "" {
		s.selection.SelectedKey = best
	}
}

func ranksAbove(classified bool, score int, key string, bestClassified bool, bestScore int, bestKey string) bool {
	if classified != bestClassified {
		return classified
	}
	if score != bestScore {
		return score > bestScore
	}
	return key < bestKey
}

// setManual pins the selection to key. Unknown keys are ignored so the
// UI cannot pin an endpoint that was pruned between render and input.
func (s *session) setManual(key string) {
	if _, live := s.endpoints[key]; !live {
		return
	}
	s.selection = types.SelectionState{SelectedKey: key, ManualOverride: true}
}

func (s *session) clearManual() {
	s.selection.ManualOverride = false
	s.reselect()
}

// snapshot copies the session into an immutable view for the
// presentation layer. Endpoints come back sorted by key.
func (s *session) snapshot(now time.Time, groups []types.ProcessGroup, tracked string) types.Snapshot {
	snap := types.Snapshot{
		Time:         now,
		Groups:       append([]types.ProcessGroup(nil), groups...),
		TrackedGroup: tracked,
		AppLatency:   copyIntMap(s.app),
		DeepLatency:  copyIntMap(s.deep),
		Jitter:       copyIntMap(s.jitter),
		Failures:     copyIntMap(s.failures),
		Selection:    s.selection,
	}

	keys := make([]string, 0, len(s.endpoints))
	for key := range s.endpoints {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	snap.Endpoints = make([]types.Endpoint, 0, len(keys))
	for _, key := range keys {
		snap.Endpoints = append(snap.Endpoints, *s.endpoints[key])
	}
	return snap
}

func copyIntMap(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

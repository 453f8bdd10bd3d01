package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedwatch/pkg/types"
)

func conn(pid int32, ip string, port uint16) types.RawConnection {
	return types.RawConnection{PID: pid, IP: ip, Port: port}
}

func TestRefreshFiltersLoopback(t *testing.T) {
	s := newSession()
	s.refresh([]types.RawConnection{
		conn(1, "127.0.0.1", 4040),
		conn(1, "127.5.5.5", 4040),
		conn(1, "::1", 4040),
	})
	assert.Empty(t, s.endpoints)
}

func TestRefreshDeduplicatesAcrossPIDs(t *testing.T) {
	s := newSession()
	s.refresh([]types.RawConnection{
		conn(1, "34.200.1.1", 7300),
		conn(2, "34.200.1.1", 7300),
	})
	require.Len(t, s.endpoints, 1)
	_, ok := s.endpoints["34.200.1.1:7300"]
	assert.True(t, ok)
}

func TestRefreshClassifiesNewEndpoints(t *testing.T) {
	s := newSession()
	s.refresh([]types.RawConnection{
		conn(1, "34.200.1.1", 7300),
		conn(1, "10.0.0.5", 9999),
	})
	require.Len(t, s.endpoints, 2)
	assert.Equal(t, types.ProviderDXFeed, s.endpoints["34.200.1.1:7300"].Provider)
	assert.Equal(t, types.ProviderUnknown, s.endpoints["10.0.0.5:9999"].Provider)
}

func TestRefreshPrunesAllDependentMaps(t *testing.T) {
	s := newSession()
	s.refresh([]types.RawConnection{conn(1, "10.0.0.5", 9999)})

	key := "10.0.0.5:9999"
	require.True(t, s.applyApp(key, 10))
	require.True(t, s.applyApp(key, 12))
	require.True(t, s.applyDeep(key, 40))
	s.reselect()
	require.Equal(t, key, s.selection.SelectedKey)

	// Endpoint disappears; every map must drop the key the same cycle.
	s.refresh(nil)
	assert.Empty(t, s.endpoints)
	assert.Empty(t, s.app)
	assert.Empty(t, s.deep)
	assert.Empty(t, s.jitter)
	assert.Empty(t, s.prevApp)
	assert.Empty(t, s.failures)
	assert.Equal(t, types.SelectionState{}, s.selection)
}

func TestRefreshKeepsSurvivorState(t *testing.T) {
	s := newSession()
	s.refresh([]types.RawConnection{
		conn(1, "10.0.0.5", 9999),
		conn(1, "10.0.0.6", 9999),
	})
	require.True(t, s.applyApp("10.0.0.5:9999", 10))
	require.True(t, s.applyApp("10.0.0.5:9999", 12))

	s.refresh([]types.RawConnection{conn(1, "10.0.0.5", 9999)})
	assert.Equal(t, 1, s.jitter["10.0.0.5:9999"])
	assert.Equal(t, 12, s.app["10.0.0.5:9999"])
	assert.NotContains(t, s.endpoints, "10.0.0.6:9999")
}

func TestRefreshMergesCachedHostname(t *testing.T) {
	s := newSession()
	s.applyHostname("1.2.3.4", "gw.rithmic.com")

	s.refresh([]types.RawConnection{conn(1, "1.2.3.4", 443)})
	ep := s.endpoints["1.2.3.4:443"]
	require.NotNil(t, ep)
	assert.Equal(t, "gw.rithmic.com", ep.Hostname)
	assert.Equal(t, types.ProviderRithmic, ep.Provider)
}

func TestJitterIncrementsOnlyOnChangedSuccess(t *testing.T) {
	s := newSession()
	s.refresh([]types.RawConnection{conn(1, "10.0.0.5", 9999)})
	key := "10.0.0.5:9999"

	s.applyApp(key, 10)
	assert.Equal(t, 0, s.jitter[key], "first sample has nothing to differ from")
	s.applyApp(key, 10)
	assert.Equal(t, 0, s.jitter[key], "identical samples do not increment")
	s.applyApp(key, 12)
	assert.Equal(t, 1, s.jitter[key])
	s.applyApp(key, 15)
	assert.Equal(t, 2, s.jitter[key])
}

func TestFailedSampleLeavesJitterAndBaseline(t *testing.T) {
	s := newSession()
	s.refresh([]types.RawConnection{conn(1, "10.0.0.5", 9999)})
	key := "10.0.0.5:9999"

	s.applyApp(key, 10)
	s.applyApp(key, types.FailedSample)
	s.applyApp(key, 10)

	// The failure neither incremented the score nor reset the baseline:
	// 10 -> 10 is no change.
	assert.Equal(t, 0, s.jitter[key])
	assert.Equal(t, 10, s.prevApp[key])

	s.applyApp(key, types.FailedSample)
	assert.Equal(t, types.FailedSample, s.app[key], "sentinel overwrites the visible series")
	assert.Equal(t, 10, s.prevApp[key], "baseline keeps the last success")
}

func TestConsecutiveTimeoutsNeverSelectable(t *testing.T) {
	s := newSession()
	s.refresh([]types.RawConnection{conn(1, "10.0.0.5", 9999)})
	key := "10.0.0.5:9999"

	s.applyApp(key, types.FailedSample)
	s.applyApp(key, types.FailedSample)
	s.reselect()

	assert.Equal(t, 0, s.jitter[key])
	assert.Equal(t, 2, s.failures[key])
	assert.Empty(t, s.selection.SelectedKey)
}

func TestApplyIgnoresPrunedKey(t *testing.T) {
	s := newSession()
	s.refresh([]types.RawConnection{conn(1, "10.0.0.5", 9999)})
	s.refresh(nil)

	// A probe from the previous cycle lands after the prune.
	assert.False(t, s.applyApp("10.0.0.5:9999", 10))
	assert.False(t, s.applyDeep("10.0.0.5:9999", 40))
	assert.Empty(t, s.app)
	assert.Empty(t, s.deep)
}

func TestReselectPrefersClassifiedProvider(t *testing.T) {
	s := newSession()
	s.refresh([]types.RawConnection{
		conn(1, "34.200.1.1", 7300), // dxFeed
		conn(1, "10.0.0.5", 9999),   // unknown
	})

	// Unclassified endpoint has the higher score.
	s.applyApp("10.0.0.5:9999", 10)
	s.applyApp("10.0.0.5:9999", 12)
	s.applyApp("10.0.0.5:9999", 14)
	s.applyApp("34.200.1.1:7300", 20)
	s.applyApp("34.200.1.1:7300", 25)
	s.reselect()

	assert.Equal(t, "34.200.1.1:7300", s.selection.SelectedKey)
}

func TestReselectHigherJitterWithinTier(t *testing.T) {
	s := newSession()
	s.refresh([]types.RawConnection{
		conn(1, "10.0.0.5", 9999),
		conn(1, "10.0.0.6", 9999),
	})

	s.applyApp("10.0.0.5:9999", 10)
	s.applyApp("10.0.0.5:9999", 12)
	s.applyApp("10.0.0.6:9999", 10)
	s.applyApp("10.0.0.6:9999", 12)
	s.applyApp("10.0.0.6:9999", 14)
	s.reselect()

	assert.Equal(t, "10.0.0.6:9999", s.selection.SelectedKey)
}

func TestReselectLexicalTieBreak(t *testing.T) {
	s := newSession()
	s.refresh([]types.RawConnection{
		conn(1, "10.0.0.6", 9999),
		conn(1, "10.0.0.5", 9999),
	})

	for _, key := range []string{"10.0.0.5:9999", "10.0.0.6:9999"} {
		s.applyApp(key, 10)
		s.applyApp(key, 12)
	}
	s.reselect()

	assert.Equal(t, "10.0.0.5:9999", s.selection.SelectedKey)
}

func TestReselectKeepsPreviousWhenNoCandidate(t *testing.T) {
	s := newSession()
	s.refresh([]types.RawConnection{
		conn(1, "10.0.0.5", 9999),
		conn(1, "10.0.0.6", 9999),
	})
	s.applyApp("10.0.0.5:9999", 10)
	s.applyApp("10.0.0.5:9999", 12)
	s.reselect()
	require.Equal(t, "10.0.0.5:9999", s.selection.SelectedKey)

	// The jittering endpoint goes away; the other never jittered. The
	// stale selection is cleared by the prune, and no new candidate
	// exists, so the selection stays empty until one appears.
	s.refresh([]types.RawConnection{conn(1, "10.0.0.6", 9999)})
	s.reselect()
	assert.Empty(t, s.selection.SelectedKey)

	s.applyApp("10.0.0.6:9999", 30)
	s.applyApp("10.0.0.6:9999", 31)
	s.reselect()
	assert.Equal(t, "10.0.0.6:9999", s.selection.SelectedKey)
}

func TestManualOverrideBlocksReselect(t *testing.T) {
	s := newSession()
	s.refresh([]types.RawConnection{
		conn(1, "10.0.0.5", 9999),
		conn(1, "34.200.1.1", 7300),
	})
	s.setManual("10.0.0.5:9999")
	require.True(t, s.selection.ManualOverride)

	s.applyApp("34.200.1.1:7300", 10)
	s.applyApp("34.200.1.1:7300", 12)
	s.reselect()
	assert.Equal(t, "10.0.0.5:9999", s.selection.SelectedKey)

	s.clearManual()
	assert.False(t, s.selection.ManualOverride)
	assert.Equal(t, "34.200.1.1:7300", s.selection.SelectedKey)
}

func TestManualOverrideClearedByPrune(t *testing.T) {
	s := newSession()
	s.refresh([]types.RawConnection{conn(1, "10.0.0.5", 9999)})
	s.setManual("10.0.0.5:9999")

	s.refresh(nil)
	assert.False(t, s.selection.ManualOverride)
	assert.Empty(t, s.selection.SelectedKey)
}

func TestSetManualIgnoresUnknownKey(t *testing.T) {
	s := newSession()
	s.setManual("1.2.3.4:99")
	assert.Equal(t, types.SelectionState{}, s.selection)
}

func TestApplyHostnameReclassifiesSharedIP(t *testing.T) {
	s := newSession()
	s.refresh([]types.RawConnection{
		conn(1, "1.2.3.4", 9000),
		conn(1, "1.2.3.4", 9001),
		conn(1, "5.6.7.8", 9000),
	})
	s.applyApp("1.2.3.4:9000", 10)
	s.applyApp("1.2.3.4:9000", 12)

	s.applyHostname("1.2.3.4", "edge.rithmic.com")

	assert.Equal(t, types.ProviderRithmic, s.endpoints["1.2.3.4:9000"].Provider)
	assert.Equal(t, types.ProviderRithmic, s.endpoints["1.2.3.4:9001"].Provider)
	assert.Equal(t, types.ProviderUnknown, s.endpoints["5.6.7.8:9000"].Provider)

	// Accumulated state survives the reclassification.
	assert.Equal(t, 1, s.jitter["1.2.3.4:9000"])
	assert.Equal(t, 12, s.app["1.2.3.4:9000"])
}

func TestUnresolvedIPs(t *testing.T) {
	s := newSession()
	s.applyHostname("5.6.7.8", "known.example.com")
	s.refresh([]types.RawConnection{
		conn(1, "1.2.3.4", 9000),
		conn(1, "1.2.3.4", 9001),
		conn(1, "5.6.7.8", 9000),
	})

	assert.Equal(t, []string{"1.2.3.4"}, s.unresolvedIPs())
}

func TestSnapshotIsDetachedCopy(t *testing.T) {
	s := newSession()
	s.refresh([]types.RawConnection{
		conn(1, "10.0.0.6", 9999),
		conn(1, "10.0.0.5", 9999),
	})
	s.applyApp("10.0.0.5:9999", 10)

	snap := s.snapshot(time.Now(), nil, "trader")
	require.Len(t, snap.Endpoints, 2)
	assert.Equal(t, "10.0.0.5:9999", snap.Endpoints[0].Key(), "endpoints sorted by key")
	assert.Equal(t, "trader", snap.TrackedGroup)

	// Mutating the session must not bleed into the published snapshot.
	s.applyApp("10.0.0.5:9999", 99)
	s.applyHostname("10.0.0.5", "edge.rithmic.com")
	assert.Equal(t, 10, snap.AppLatency["10.0.0.5:9999"])
	assert.Empty(t, snap.Endpoints[0].Hostname)
}

// Package engine turns raw socket/process snapshots into a live,
// classified, auto-tracked latency feed. A fixed-interval driver owns
// all state; probes and reverse lookups run concurrently and report
// back over channels, and the presentation layer consumes an immutable
// snapshot per cycle.
package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"feedwatch/internal/source"
	"feedwatch/pkg/types"
)

// Config carries the engine's timing knobs.
type Config struct {
	CycleInterval    time.Duration
	AppProbeTimeout  time.Duration
	DeepProbeTimeout time.Duration
	ResolveTimeout   time.Duration
	// ProcessRefreshCycles is how many probe cycles pass between full
	// process-list rediscoveries. Group discovery is much more
	// expensive than a socket-table read, so it runs at a lower rate.
	ProcessRefreshCycles int
}

func DefaultConfig() Config {
	return Config{
		CycleInterval:        time.Second,
		AppProbeTimeout:      500 * time.Millisecond,
		DeepProbeTimeout:     time.Second,
		ResolveTimeout:       2 * time.Second,
		ProcessRefreshCycles: 5,
	}
}

// withDefaults fills unset fields so a partially built Config cannot
// produce unbounded probes or a zero refresh rate.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.CycleInterval <= 0 {
		c.CycleInterval = def.CycleInterval
	}
	if c.AppProbeTimeout <= 0 {
		c.AppProbeTimeout = def.AppProbeTimeout
	}
	if c.DeepProbeTimeout <= 0 {
		c.DeepProbeTimeout = def.DeepProbeTimeout
	}
	if c.ResolveTimeout <= 0 {
		c.ResolveTimeout = def.ResolveTimeout
	}
	if c.ProcessRefreshCycles <= 0 {
		c.ProcessRefreshCycles = def.ProcessRefreshCycles
	}
	return c
}

type cmdKind int

const (
	cmdTrack cmdKind = iota
	cmdStopTracking
	cmdSelect
	cmdClearOverride
)

type command struct {
	kind cmdKind
	arg  string
}

// Engine is the cycle driver. All session mutation happens on the
// goroutine running Run; external callers communicate through the
// command channel and consume snapshots.
type Engine struct {
	cfg Config
	src source.Source
	log zerolog.Logger

	prober   prober
	resolver resolver

	cmds           chan command
	probeResults   chan probeResult
	resolveResults chan resolveResult
	snapshots      chan types.Snapshot

	sess        *session
	groups      []types.ProcessGroup
	tracked     string
	trackedPIDs []int32
	cycles      int
}

func New(cfg Config, src source.Source, log zerolog.Logger) *Engine {
	cfg = cfg.withDefaults()
	probeResults := make(chan probeResult, 256)
	resolveResults := make(chan resolveResult, 64)
	return &Engine{
		cfg:            cfg,
		src:            src,
		log:            log,
		prober:         newTCPProber(cfg.AppProbeTimeout, cfg.DeepProbeTimeout, probeResults),
		resolver:       newReverseResolver(cfg.ResolveTimeout, resolveResults),
		cmds:           make(chan command, 16),
		probeResults:   probeResults,
		resolveResults: resolveResults,
		snapshots:      make(chan types.Snapshot, 1),
		sess:           newSession(),
	}
}

// Snapshots returns the channel carrying one immutable state view per
// cycle. The engine drops the oldest snapshot if the consumer lags.
func (e *Engine) Snapshots() <-chan types.Snapshot {
	return e.snapshots
}

// StartTracking begins monitoring the named process group. Any
// previous session is discarded.
func (e *Engine) StartTracking(groupName string) {
	e.cmds <- command{kind: cmdTrack, arg: groupName}
}

// StopTracking discards the current session and returns to group
// discovery only.
func (e *Engine) StopTracking() {
	e.cmds <- command{kind: cmdStopTracking}
}

// SetManualSelection pins the selection to key until cleared or the
// key goes stale.
func (e *Engine) SetManualSelection(key string) {
	e.cmds <- command{kind: cmdSelect, arg: key}
}

// ClearManualSelection releases a manual pin and re-runs automatic
// selection.
func (e *Engine) ClearManualSelection() {
	e.cmds <- command{kind: cmdClearOverride}
}

// Run drives the engine until ctx is cancelled. It owns every state
// mutation: commands, probe results and resolver results are all
// folded in here, between ticks, so no two cycles ever overlap.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.CycleInterval)
	defer ticker.Stop()

	e.refreshGroups()
	e.publish()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-e.cmds:
			e.handleCommand(cmd)
		case res := <-e.probeResults:
			e.applyProbe(res)
		case res := <-e.resolveResults:
			e.sess.applyHostname(res.ip, res.hostname)
		case <-ticker.C:
			e.cycle()
		}
	}
}

// cycle runs one full pass: rediscover groups at the configured rate,
// refresh and prune the endpoint set, fan out probes and lookups, then
// publish a snapshot. Probes launched here resolve asynchronously and
// may land during a later cycle; stale keys are discarded on write.
func (e *Engine) cycle() {
	e.cycles++
	if len(e.groups) == 0 || e.cycles%e.cfg.ProcessRefreshCycles == 0 {
		e.refreshGroups()
	}

	if e.tracked != "" {
		conns := e.src.ListEstablishedConnections(e.trackedPIDs)
		e.sess.refresh(conns)
		e.sess.reselect()

		for _, ep := range e.sess.endpoints {
			e.prober.launch(*ep)
		}
		for _, ip := range e.sess.unresolvedIPs() {
			e.resolver.lookup(ip)
		}
	}

	e.publish()
}

func (e *Engine) refreshGroups() {
	pids := e.src.ListProcessesWithEstablishedConnections()
	names := e.src.ResolveExecutableNames(pids)
	groups := GroupProcesses(names)

	perPID := make(map[int32]int)
	for _, c := range e.src.ListEstablishedConnections(pids) {
		perPID[c.PID]++
	}
	for i := range groups {
		g := &groups[i]
		for _, pid := range g.PIDs {
			g.Connections += perPID[pid]
		}
		g.CPUPercent, g.MemoryRSS = e.src.GroupStats(g.PIDs)
	}
	e.groups = groups

	// Re-bind the tracked group to its current PID set; a vanished
	// group keeps tracking with no PIDs, which drains and prunes its
	// endpoints on the next refresh.
	if e.tracked != "" {
		e.trackedPIDs = nil
		for _, g := range e.groups {
			if g.Name == e.tracked {
				e.trackedPIDs = g.PIDs
				break
			}
		}
	}
}

func (e *Engine) handleCommand(cmd command) {
	switch cmd.kind {
	case cmdTrack:
		e.log.Info().Str("group", cmd.arg).Msg("tracking group")
		e.tracked = cmd.arg
		e.trackedPIDs = nil
		e.sess = newSession()
		for _, g := range e.groups {
			if g.Name == e.tracked {
				e.trackedPIDs = g.PIDs
				break
			}
		}
		e.cycle()
	case cmdStopTracking:
		e.log.Info().Str("group", e.tracked).Msg("stopped tracking")
		e.tracked = ""
		e.trackedPIDs = nil
		e.sess = newSession()
		e.publish()
	case cmdSelect:
		e.sess.setManual(cmd.arg)
		e.publish()
	case cmdClearOverride:
		e.sess.clearManual()
		e.publish()
	}
}

func (e *Engine) applyProbe(res probeResult) {
	switch res.kind {
	case probeApp:
		if e.sess.applyApp(res.key, res.ms) {
			e.sess.reselect()
		}
	case probeDeep:
		e.sess.applyDeep(res.key, res.ms)
	}
}

// publish hands the presentation layer a fresh snapshot, replacing an
// unconsumed one rather than blocking the driver.
func (e *Engine) publish() {
	snap := e.sess.snapshot(time.Now(), e.groups, e.tracked)
	for {
		select {
		case e.snapshots <- snap:
			return
		default:
			select {
			case <-e.snapshots:
			default:
			}
		}
	}
}

package types

import (
	"fmt"
	"time"
)

// ProviderTag identifies a recognized market-data vendor.
type ProviderTag string

const (
	ProviderRithmic   ProviderTag = "Rithmic"
	ProviderDXFeed    ProviderTag = "dxFeed"
	ProviderCQG       ProviderTag = "CQG"
	ProviderTradovate ProviderTag = "Tradovate"
	ProviderUnknown   ProviderTag = ""
)

// FailedSample is recorded when a probe errors or times out.
const FailedSample = -1

// RawConnection is one established outbound TCP socket as reported by the OS.
type RawConnection struct {
	PID  int32
	IP   string
	Port uint16
}

// Endpoint is a remote ip:port observed from a tracked process group.
type Endpoint struct {
	IP       string
	Port     uint16
	Hostname string // empty until reverse lookup succeeds
	Provider ProviderTag
}

// Key returns the canonical "ip:port" string used as the join key
// across all per-endpoint maps.
func (e Endpoint) Key() string {
	return EndpointKey(e.IP, e.Port)
}

func EndpointKey(ip string, port uint16) string {
	return fmt.Sprintf("%s:%d", ip, port)
}

// ProcessGroup aggregates all PIDs sharing one executable base name.
// Groups are rebuilt wholesale on every discovery pass.
type ProcessGroup struct {
	Name        string
	PIDs        []int32
	Connections int
	CPUPercent  float64
	MemoryRSS   uint64
}

// SelectionState tracks which endpoint is surfaced as primary.
// ManualOverride freezes SelectedKey against automatic reassignment
// until cleared or the key goes stale.
type SelectionState struct {
	SelectedKey    string
	ManualOverride bool
}

// Snapshot is the immutable per-cycle view handed to the presentation
// layer. The engine never mutates a snapshot after publishing it.
type Snapshot struct {
	Time         time.Time
	Groups       []ProcessGroup
	TrackedGroup string
	Endpoints    []Endpoint
	AppLatency   map[string]int
	DeepLatency  map[string]int
	Jitter       map[string]int
	Failures     map[string]int
	Selection    SelectionState
}

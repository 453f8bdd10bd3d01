package source

import (
	"github.com/rs/zerolog"
	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"

	"feedwatch/pkg/types"
)

// SystemSource reads the live socket table and process list via gopsutil.
type SystemSource struct {
	log zerolog.Logger
}

func NewSystemSource(log zerolog.Logger) *SystemSource {
	return &SystemSource{log: log}
}

func (s *SystemSource) ListEstablishedConnections(pids []int32) []types.RawConnection {
	conns, err := psnet.Connections("tcp")
	if err != nil {
		s.log.Debug().Err(err).Msg("socket table read failed")
		return nil
	}

	want := make(map[int32]bool, len(pids))
	for _, pid := range pids {
		want[pid] = true
	}

	return filterEstablished(conns, want)
}

// filterEstablished keeps established sockets owned by wanted PIDs that
// have a usable remote address.
func filterEstablished(conns []psnet.ConnectionStat, want map[int32]bool) []types.RawConnection {
	var out []types.RawConnection
	for _, c := range conns {
		if c.Status != "ESTABLISHED" || !want[c.Pid] {
			continue
		}
		if c.Raddr.IP == "" || c.Raddr.Port == 0 {
			continue
		}
		out = append(out, types.RawConnection{
			PID:  c.Pid,
			IP:   c.Raddr.IP,
			Port: uint16(c.Raddr.Port),
		})
	}
	return out
}

func (s *SystemSource) ListProcessesWithEstablishedConnections() []int32 {
	conns, err := psnet.Connections("tcp")
	if err != nil {
		s.log.Debug().Err(err).Msg("socket table read failed")
		return nil
	}

	seen := make(map[int32]bool)
	var pids []int32
	for _, c := range conns {
		if c.Status != "ESTABLISHED" || c.Pid == 0 || seen[c.Pid] {
			continue
		}
		seen[c.Pid] = true
		pids = append(pids, c.Pid)
	}
	return pids
}

func (s *SystemSource) ResolveExecutableNames(pids []int32) map[int32]string {
	names := make(map[int32]string, len(pids))
	for _, pid := range pids {
		proc, err := process.NewProcess(pid)
		if err != nil {
			continue
		}
		name, err := proc.Name()
		if err != nil || name == "" {
			continue
		}
		names[pid] = name
	}
	return names
}

func (s *SystemSource) GroupStats(pids []int32) (float64, uint64) {
	var cpu float64
	var rss uint64
	for _, pid := range pids {
		proc, err := process.NewProcess(pid)
		if err != nil {
			continue
		}
		if pct, err := proc.CPUPercent(); err == nil {
			cpu += pct
		}
		if mi, err := proc.MemoryInfo(); err == nil && mi != nil {
			rss += mi.RSS
		}
	}
	return cpu, rss
}

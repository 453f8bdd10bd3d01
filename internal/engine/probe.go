package engine

import (
	"context"
	"net"
	"strconv"
	"time"

	"golang.org/x/net/proxy"

	"feedwatch/pkg/types"
)

type probeKind int

const (
	probeApp probeKind = iota
	probeDeep
)

type probeResult struct {
	key  string
	kind probeKind
	ms   int
}

// prober launches the per-endpoint timing probes. Implemented by
// tcpProber; tests substitute a fake.
type prober interface {
	launch(ep types.Endpoint)
}

// tcpProber times TCP handshakes. The app probe dials through the
// environment's SOCKS proxy configuration when one is set, so it
// measures the path the application actually uses; the deep probe
// always dials direct, keeping tunnel shortcuts from masking true
// path time. Each probe self-cancels at its deadline and reports the
// failure sentinel.
type tcpProber struct {
	appTimeout  time.Duration
	deepTimeout time.Duration
	appDialer   proxy.Dialer
	direct      net.Dialer
	results     chan<- probeResult
}

func newTCPProber(appTimeout, deepTimeout time.Duration, results chan<- probeResult) *tcpProber {
	return &tcpProber{
		appTimeout:  appTimeout,
		deepTimeout: deepTimeout,
		appDialer:   proxy.FromEnvironment(),
		results:     results,
	}
}

func (p *tcpProber) launch(ep types.Endpoint) {
	key := ep.Key()
	addr := net.JoinHostPort(ep.IP, strconv.Itoa(int(ep.Port)))
	go p.run(key, addr, probeApp, p.appTimeout, p.dialApp)
	go p.run(key, addr, probeDeep, p.deepTimeout, p.direct.DialContext)
}

type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

func (p *tcpProber) run(key, addr string, kind probeKind, timeout time.Duration, dial dialFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	conn, err := dial(ctx, "tcp", addr)
	ms := types.FailedSample
	if err == nil {
		ms = int(time.Since(start).Milliseconds())
		conn.Close()
	}

	// Non-blocking send: if the driver has shut down, the result is
	// simply dropped.
	select {
	case p.results <- probeResult{key: key, kind: kind, ms: ms}:
	default:
	}
}

func (p *tcpProber) dialApp(ctx context.Context, network, addr string) (net.Conn, error) {
	if cd, ok := p.appDialer.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, network, addr)
	}
	return p.appDialer.Dial(network, addr)
}

package engine

import (
	"context"
	"net"
	"strings"
	"time"
)

type resolveResult struct {
	ip       string
	hostname string
}

// resolver schedules background reverse lookups. Implemented by
// reverseResolver; tests substitute a fake.
type resolver interface {
	lookup(ip string)
}

// reverseResolver performs one reverse lookup per requested IP in the
// background. Failures are silent; only successes reach the driver, so
// an unresolved IP is naturally retried next cycle.
type reverseResolver struct {
	timeout time.Duration
	res     net.Resolver
	results chan<- resolveResult
}

func newReverseResolver(timeout time.Duration, results chan<- resolveResult) *reverseResolver {
	return &reverseResolver{timeout: timeout, results: results}
}

func (r *reverseResolver) lookup(ip string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		names, err := r.res.LookupAddr(ctx, ip)
		if err != nil || len(names) == 0 {
			return
		}
		host := strings.TrimSuffix(names[0], ".")
		if host == "" {
			return
		}
		select {
		case r.results <- resolveResult{ip: ip, hostname: host}:
		default:
		}
	}()
}

package engine

import (
	"strings"

	"feedwatch/pkg/types"
)

var rithmicPorts = map[uint16]bool{
	65000: true,
	64100: true,
	63100: true,
	56000: true,
	55555: true,
	44444: true,
}

var dxfeedPrefixes = []string{"208.93.100.", "208.93.101.", "208.93.102."}

// Classify maps an endpoint's signature to a provider tag. Pure and
// order-sensitive: the first matching rule wins, so a Rithmic port
// match fires before any dxFeed hostname match.
func Classify(ip string, port uint16, hostname string) types.ProviderTag {
	host := strings.ToLower(hostname)

	if strings.Contains(host, "rithmic.com") ||
		rithmicPorts[port] ||
		(port >= 40000 && port <= 42100) {
		return types.ProviderRithmic
	}

	if strings.Contains(host, "dxfeed.com") ||
		port == 7300 ||
		strings.Contains(host, "amazonaws.com") {
		return types.ProviderDXFeed
	}
	for _, prefix := range dxfeedPrefixes {
		if strings.HasPrefix(ip, prefix) {
			return types.ProviderDXFeed
		}
	}

	if strings.Contains(host, "cqg.com") || port == 2823 {
		return types.ProviderCQG
	}

	if strings.Contains(host, "tradovate.com") {
		return types.ProviderTradovate
	}

	return types.ProviderUnknown
}

// Package ratelimit adapts github.com/joeycumines/go-catrate's sliding
// window Limiter into the accept-rate Policy consulted by the reactor's
// Selector Manager before it admits a newly accepted channel.
package ratelimit

import (
	"net"
	"time"

	"github.com/joeycumines/go-catrate"
)

// Policy gates acceptance of new channels. A nil *Policy (the zero value
// pointer) always allows, matching catrate.Limiter's own "no rate limits
// applied" behaviour for an empty rates map.
type Policy struct {
	global *catrate.Limiter
	perHost *catrate.Limiter
}

// Rates configures a Policy's sliding windows. Either map may be empty to
// disable that dimension.
type Rates struct {
	// Global bounds the aggregate accept rate across all remote hosts.
	Global map[time.Duration]int
	// PerHost bounds the accept rate from any single remote IP.
	PerHost map[time.Duration]int
}

// NewPolicy builds a Policy from Rates. Panics if a non-empty rate map is
// invalid, exactly as catrate.NewLimiter does — this is intended to be
// caught during startup configuration, not at accept time.
func NewPolicy(rates Rates) *Policy {
	p := &Policy{}
	if len(rates.Global) != 0 {
		p.global = catrate.NewLimiter(rates.Global)
	}
	if len(rates.PerHost) != 0 {
		p.perHost = catrate.NewLimiter(rates.PerHost)
	}
	return p
}

// Allow reports whether a newly accepted channel from remoteAddr may
// proceed. It always consults the per-host limiter before the global one,
// so a single abusive host is identified before consuming the shared
// budget. next is the zero time when another accept may proceed
// immediately.
func (p *Policy) Allow(remoteAddr net.Addr) (next time.Time, ok bool) {
	if p == nil {
		return time.Time{}, true
	}

	host := hostOf(remoteAddr)

	if p.perHost != nil {
		if next, ok := p.perHost.Allow(host); !ok {
			return next, false
		}
	}
	if p.global != nil {
		return p.global.Allow(globalCategory{})
	}
	return time.Time{}, true
}

// globalCategory is a distinct comparable type so the global limiter's
// single category can never collide with a per-host string key.
type globalCategory struct{}

func hostOf(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

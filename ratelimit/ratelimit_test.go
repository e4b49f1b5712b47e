package ratelimit_test

import (
	"net"
	"testing"
	"time"

	"github.com/joeycumines/go-reactor/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_NilAlwaysAllows(t *testing.T) {
	var p *ratelimit.Policy
	_, ok := p.Allow(&net.TCPAddr{IP: net.ParseIP("10.0.0.1")})
	assert.True(t, ok)
}

func TestPolicy_EmptyRatesAlwaysAllow(t *testing.T) {
	p := ratelimit.NewPolicy(ratelimit.Rates{})
	addr := &net.TCPAddr{IP: net.ParseIP("10.0.0.1"), Port: 1234}
	for i := 0; i < 5; i++ {
		_, ok := p.Allow(addr)
		require.True(t, ok)
	}
}

func TestPolicy_PerHostLimitsIndependently(t *testing.T) {
	p := ratelimit.NewPolicy(ratelimit.Rates{
		PerHost: map[time.Duration]int{time.Minute: 1},
	})

	first := &net.TCPAddr{IP: net.ParseIP("10.0.0.1"), Port: 1}
	second := &net.TCPAddr{IP: net.ParseIP("10.0.0.2"), Port: 1}

	_, ok := p.Allow(first)
	require.True(t, ok)

	_, ok = p.Allow(first)
	assert.False(t, ok, "second accept from the same host within the window should be rejected")

	_, ok = p.Allow(second)
	assert.True(t, ok, "a different host has its own budget")
}

func TestPolicy_GlobalLimitAppliesAcrossHosts(t *testing.T) {
	p := ratelimit.NewPolicy(ratelimit.Rates{
		Global: map[time.Duration]int{time.Minute: 1},
	})

	first := &net.TCPAddr{IP: net.ParseIP("10.0.0.1"), Port: 1}
	second := &net.TCPAddr{IP: net.ParseIP("10.0.0.2"), Port: 1}

	_, ok := p.Allow(first)
	require.True(t, ok)

	_, ok = p.Allow(second)
	assert.False(t, ok, "global budget is shared across distinct hosts")
}

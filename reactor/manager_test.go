package reactor

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/joeycumines/go-reactor/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEchoManager(t *testing.T, opts ...Option) (*SelectorManager, *recordingListener) {
	t.Helper()
	rl := &recordingListener{}
	cfg := Resolve(opts)
	m, err := NewSelectorManager(NewEndpointFactory(cfg), NewEchoConnection, []Listener{rl}, opts...)
	require.NoError(t, err)
	t.Cleanup(m.Stop)
	return m, rl
}

// TestSelectorManager_EchoRoundTrip is Testable Scenario 1 end to end: a
// plain TCP client writes bytes to a reactor-managed server Endpoint
// running EchoConnection, and reads the same bytes back.
func TestSelectorManager_EchoRoundTrip(t *testing.T) {
	m, rl := newEchoManager(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		_ = m.Accept(conn, nil)
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	payload := []byte("echo this back please")
	require.NoError(t, client.SetDeadline(time.Now().Add(5*time.Second)))
	_, err = client.Write(payload)
	require.NoError(t, err)

	got := make([]byte, len(payload))
	_, err = readFull(client, got)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	// ConnectionOpened fires within adopt right after OnOpen returns; reads
	// are already armed by then, so the echo may complete first.
	assert.Eventually(t, func() bool { return rl.openedLen() == 1 }, time.Second, time.Millisecond)
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// TestSelectorManager_ConnectionClosedFiresOnPeerClose verifies closing the
// peer connection eventually fires ConnectionClosed exactly once (§4.4).
func TestSelectorManager_ConnectionClosedFiresOnPeerClose(t *testing.T) {
	m, rl := newEchoManager(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		_ = m.Accept(conn, nil)
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	require.NoError(t, client.Close())

	assert.Eventually(t, func() bool { return rl.closedLen() == 1 }, 2*time.Second, 5*time.Millisecond)
}

// TestSelectorManager_Accept_RejectedByLimiter verifies a denied accept
// never reaches ConnectionOpened and fires ConnectionRejected instead (P8).
func TestSelectorManager_Accept_RejectedByLimiter(t *testing.T) {
	limiter := ratelimit.NewPolicy(ratelimit.Rates{
		Global: map[time.Duration]int{time.Minute: 1},
	})
	rl := &recordingListener{}
	cfg := Resolve([]Option{WithAcceptLimiter(limiter)})
	m, err := NewSelectorManager(NewEndpointFactory(cfg), NewEchoConnection, []Listener{rl}, WithAcceptLimiter(limiter))
	require.NoError(t, err)
	defer m.Stop()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	dial := func() net.Conn {
		conn, err := net.Dial("tcp", ln.Addr().String())
		require.NoError(t, err)
		return conn
	}

	var wg sync.WaitGroup
	wg.Add(1)
	var accepted [2]net.Conn
	go func() {
		defer wg.Done()
		c, err := ln.Accept()
		require.NoError(t, err)
		accepted[0] = c
	}()
	c1 := dial()
	wg.Wait()
	defer c1.Close()

	wg.Add(1)
	go func() {
		defer wg.Done()
		c, err := ln.Accept()
		require.NoError(t, err)
		accepted[1] = c
	}()
	c2 := dial()
	wg.Wait()
	defer c2.Close()

	require.NoError(t, m.Accept(accepted[0], nil))
	// Second accept within the same minute must be rejected by the
	// 1-per-minute global rate limit.
	err = m.Accept(accepted[1], nil)
	assert.Error(t, err)

	assert.Eventually(t, func() bool { return rl.rejectedLen() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, rl.openedLen()) // only the first accept opened a connection
}

// TestSelectorManager_StopClosesLiveEndpoints verifies Stop closes every
// still-connected Endpoint across all selectors.
func TestSelectorManager_StopClosesLiveEndpoints(t *testing.T) {
	rl := &recordingListener{}
	cfg := Resolve(nil)
	m, err := NewSelectorManager(NewEndpointFactory(cfg), NewEchoConnection, []Listener{rl})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		_ = m.Accept(conn, nil)
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	assert.Eventually(t, func() bool { return rl.openedLen() == 1 }, time.Second, time.Millisecond)

	m.Stop()
	assert.Eventually(t, func() bool { return rl.closedLen() == 1 }, time.Second, time.Millisecond)
}

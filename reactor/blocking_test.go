package reactor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncFill_BlocksUntilDataArrives(t *testing.T) {
	sel := newRunningSelector(t)
	client, server := loopbackPair(t)
	conn := newNopConnection()
	e := newBoundEndpoint(t, sel, server, conn, 0)
	<-conn.opened

	resultCh := make(chan struct {
		n   int
		err error
	}, 1)
	buf := make([]byte, 16)
	go func() {
		n, err := SyncFill(context.Background(), e, buf)
		resultCh <- struct {
			n   int
			err error
		}{n, err}
	}()

	time.Sleep(20 * time.Millisecond) // let SyncFill register interest first
	_, err := client.Write([]byte("sync"))
	require.NoError(t, err)

	select {
	case r := <-resultCh:
		require.NoError(t, r.err)
		assert.Equal(t, "sync", string(buf[:r.n]))
	case <-time.After(2 * time.Second):
		t.Fatal("SyncFill never returned")
	}
}

func TestSyncFill_RespectsContextCancellation(t *testing.T) {
	sel := newRunningSelector(t)
	_, server := loopbackPair(t)
	conn := newNopConnection()
	e := newBoundEndpoint(t, sel, server, conn, 0)
	<-conn.opened

	ctx, cancel := context.WithCancel(context.Background())
	resultCh := make(chan error, 1)
	go func() {
		_, err := SyncFill(ctx, e, make([]byte, 16))
		resultCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-resultCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("SyncFill never returned after cancellation")
	}
}

func TestSyncWrite_CompletesSuccessfully(t *testing.T) {
	sel := newRunningSelector(t)
	client, server := loopbackPair(t)
	conn := newNopConnection()
	e := newBoundEndpoint(t, sel, server, conn, 0)
	<-conn.opened

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	errCh := make(chan error, 1)
	go func() {
		errCh <- SyncWrite(context.Background(), e, [][]byte{[]byte("written")})
	}()

	buf := make([]byte, 16)
	n, err := readFull(client, buf[:7])
	require.NoError(t, err)
	assert.Equal(t, "written", string(buf[:n]))

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("SyncWrite never returned")
	}
}

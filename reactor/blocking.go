package reactor

import "context"

// SyncFill blocks the calling goroutine until the Endpoint reports
// readable, then performs one Fill. It is a thin convenience wrapper over
// FillInterested for callers outside the reactor's callback model; the
// cost is a parked goroutine per call, same trade-off as
// content.BlockingRead.
func SyncFill(ctx context.Context, e *Endpoint, buf []byte) (int, error) {
	type result struct {
		err error
	}
	ch := make(chan result, 1)

	if err := e.FillInterested(
		func() { ch <- result{} },
		func(err error) { ch <- result{err: err} },
	); err != nil {
		return 0, err
	}

	select {
	case r := <-ch:
		if r.err != nil {
			return 0, r.err
		}
		return e.Fill(buf)
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// SyncWrite blocks the calling goroutine until buffers have been fully
// written (or the write fails), converting Endpoint.Write's callback
// completion into a blocking call.
func SyncWrite(ctx context.Context, e *Endpoint, buffers [][]byte) error {
	ch := make(chan error, 1)
	if err := e.Write(buffers, func(err error) { ch <- err }); err != nil {
		return err
	}

	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

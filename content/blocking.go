package content

import "context"

// BlockingRead converts one Demand/Read round-trip into a blocking call,
// for callers outside the reactor's cooperative model that are willing to
// park a goroutine per read. Grounded on inprocgrpc's clientStreamAdapter
// pattern: submit the callback-based operation, block on a buffered
// (capacity-1) channel, and race it against ctx.Done() so the caller can
// still be cancelled even though Source has no native cancellation.
func BlockingRead(ctx context.Context, source Source) (*Chunk, error) {
	if c := source.Read(); c != nil {
		return c, nil
	}

	ch := make(chan *Chunk, 1)
	if err := source.Demand(func() {
		ch <- source.Read()
	}); err != nil {
		return nil, err
	}

	select {
	case c := <-ch:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// BlockingWrite converts one Sink.Write call into a blocking call.
func BlockingWrite(ctx context.Context, sink Sink, last bool, view []byte) error {
	ch := make(chan error, 1)
	sink.Write(last, view, func(err error) { ch <- err })

	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

package content

import "github.com/joeycumines/go-reactor/iterstep"

// Copy drives chunks from source to sink until the source's terminal chunk
// has been written, calling onDone exactly once with the terminal outcome
// (nil on success). It is built on the Iterating Step Driver (§4.5/§4.8) so
// that a source yielding many chunks that complete synchronously does not
// recurse.
//
// Copy starts the driver before returning; the returned Driver exists so a
// caller can Close it to abandon an in-flight copy (e.g. the owning
// Connection is closing).
func Copy(source Source, sink Sink, onDone func(error)) *iterstep.Driver {
	var d *iterstep.Driver
	var wroteLast bool

	process := func() (iterstep.Result, error) {
		if wroteLast {
			return iterstep.Succeeded, nil
		}

		for {
			c := source.Read()
			if c == nil {
				if err := source.Demand(func() { d.Iterate() }); err != nil {
					return 0, err
				}
				return iterstep.Idle, nil
			}

			if failure := c.FailureOrNil(); failure != nil {
				if c.IsLast() {
					return 0, failure
				}
				// Transient: scenario 6 — ignore and read the next chunk.
				_ = c.Release()
				continue
			}

			last := c.IsLast()
			view := c.ByteView()
			if len(view) == 0 && !last {
				// Scenario 5 includes a zero-length, non-terminal chunk;
				// nothing to write, but still balances the retain.
				_ = c.Release()
				continue
			}

			if last {
				wroteLast = true
			}

			sink.Write(last, view, func(err error) {
				relErr := c.Release()
				if err != nil {
					d.Failed(err)
					return
				}
				if relErr != nil {
					d.Failed(relErr)
					return
				}
				d.Succeeded()
			})
			return iterstep.Scheduled, nil
		}
	}

	d = iterstep.New(process,
		func() {
			if onDone != nil {
				onDone(nil)
			}
		},
		func(err error) {
			if onDone != nil {
				onDone(err)
			}
		},
	)
	d.Iterate()
	return d
}

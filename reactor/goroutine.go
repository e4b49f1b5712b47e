package reactor

import "runtime"

// currentGoroutineID parses the numeric id out of runtime.Stack's leading
// "goroutine N [...]" line. Grounded on the teacher's own getGoroutineID
// (eventloop/loop.go): used only to let Endpoint/ManagedSelector operations
// run inline when already called from the owning selector goroutine,
// instead of bouncing through the action queue and a wake-up round trip.
func currentGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}

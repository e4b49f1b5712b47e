package reactor

// Connection is a protocol-facing consumer/producer bound to an Endpoint
// for a slice of its lifetime (§3/§4.4). The reactor never constructs a
// concrete Connection itself; NewConnection factory hooks supplied to a
// SelectorManager do.
type Connection interface {
	// OnOpen is called after binding to an Endpoint, before the Endpoint's
	// first read interest is armed. Implementations typically call
	// Endpoint.FillInterested(self-as-callback) here.
	OnOpen(endpoint *Endpoint)
	// OnFillable is called when the Endpoint reports readable. The
	// canonical implementation loops fill→parse→re-arm via the Iterating
	// Step Driver so synchronous progress doesn't recurse (§4.5).
	OnFillable()
	// OnClose is the final disposition; cause is nil for a normal close.
	// Implementations must release any held buffers and detach from the
	// Endpoint.
	OnClose(cause error)
}

// NewEndpointFunc constructs the Endpoint for a freshly adopted Channel on
// selector. Supplied by the embedder; the reactor's SelectorManager never
// builds an Endpoint itself.
type NewEndpointFunc func(channel *Channel, selector *ManagedSelector) *Endpoint

// NewConnectionFunc constructs the Connection for a freshly bound Endpoint.
// ctx carries whatever attachment was passed to Accept/Connect/Adopt.
type NewConnectionFunc func(endpoint *Endpoint, ctx any) Connection

package reactor

// NewEndpointFactory returns a NewEndpointFunc that builds Endpoints using
// cfg's idle timeout and a shared buffer Pool sized from cfg's buffer
// range. Most embedders can pass this straight to NewSelectorManager;
// supply a custom NewEndpointFunc only when per-connection Pool or idle
// timeout overrides are needed.
func NewEndpointFactory(cfg *Config) NewEndpointFunc {
	pool := NewPool(cfg.BufferMin, cfg.BufferMax, cfg.BufferMin)
	return func(channel *Channel, selector *ManagedSelector) *Endpoint {
		return newEndpoint(channel, selector, pool, cfg.IdleTimeout)
	}
}

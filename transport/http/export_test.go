package http

// QueuedRequests returns how many requests wait on the in-flight refresh,
// the request that started it excluded
func (c *Client) QueuedRequests() int {
	c.mu.Lock()
	cycle := c.cycle
	c.mu.Unlock()
	if cycle == nil {
		return 0
	}

	cycle.mu.Lock()
	defer cycle.mu.Unlock()
	return len(cycle.waiters) - 1
}

var (
	CacheKey = cacheKey
	Unwrap   = unwrap
)

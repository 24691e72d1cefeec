package smartcache

func (c *Cache[V]) expirationManager() {
	defer close(c.done)
	defer c.ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-c.ticker.C:
			if n := c.SweepExpired(); n > 0 {
				c.logger.Debug("swept expired entries", "count", n)
			}
		}
	}
}

// Close stops the background sweeper and drops all entries. Later calls to
// Set fail with ErrClosed and Get always misses. Close is idempotent.
func (c *Cache[V]) Close() error {
	c.lock.Lock()
	if c.closed {
		c.lock.Unlock()
		return nil
	}
	c.closed = true
	err := c.resetLocked()
	c.lock.Unlock()

	if c.stop != nil {
		close(c.stop)
		<-c.done
	}
	c.logger.Debug("cache closed")
	return err
}

package raster

import (
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// HandleCache keeps opened rasters for the life of the process, keyed by
// file name. Concurrent first opens of one name share a single Open call.
// Failed opens are not cached. There is no eviction.
type HandleCache struct {
	opener Opener

	mu      sync.RWMutex
	handles map[string]Raster
	group   singleflight.Group
}

// NewHandleCache returns an empty cache over opener.
func NewHandleCache(opener Opener) *HandleCache {
	return &HandleCache{opener: opener, handles: make(map[string]Raster)}
}

// Get returns the cached handle for name, opening it on first use.
func (c *HandleCache) Get(name string) (Raster, error) {
	c.mu.RLock()
	r, ok := c.handles[name]
	c.mu.RUnlock()
	if ok {
		return r, nil
	}

	v, err, _ := c.group.Do(name, func() (any, error) {
		c.mu.RLock()
		r, ok := c.handles[name]
		c.mu.RUnlock()
		if ok {
			return r, nil
		}
		r, err := c.opener.Open(name)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.handles[name] = r
		c.mu.Unlock()
		zap.L().Debug("raster: opened handle", zap.String("file", name))
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Raster), nil
}

// Len returns the number of open handles.
func (c *HandleCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.handles)
}

// Close closes and forgets every handle.
func (c *HandleCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for name, r := range c.handles {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(c.handles, name)
	}
	return errors.Join(errs...)
}

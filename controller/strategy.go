package controller

import (
	"context"

	"github.com/chrisvdg/offlinecache/cache"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// passthrough fetches from the network without touching the cache
func (c *Controller) passthrough(ctx context.Context, req *Request, route Route) (*Result, error) {
	resp, err := c.network.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	return &Result{Response: resp, Route: route.Name, Policy: route.Policy}, nil
}

// networkFirst fetches the document and keeps the last good one under the
// index key for offline use
func (c *Controller) networkFirst(ctx context.Context, req *Request, route Route, store cache.Store) (*Result, error) {
	resp, err := c.network.Fetch(ctx, req)
	if err == nil {
		if resp.OK() {
			c.put(ctx, store, c.cfg.IndexPath, resp)
		}
		return &Result{Response: resp, Route: route.Name, Policy: route.Policy}, nil
	}

	log.Debugf("Network failed for navigation %s: %s", req.URL, err)
	cached, ok := c.lookup(ctx, store, c.cfg.IndexPath)
	if !ok {
		return nil, errors.Wrap(err, "no cached document to fall back to")
	}
	c.metrics.fallbacks.Inc()

	return &Result{Response: cached, Route: route.Name, Policy: route.Policy, FromCache: true}, nil
}

// cacheFirst serves the cached copy and fills the cache on a miss
func (c *Controller) cacheFirst(ctx context.Context, req *Request, route Route, store cache.Store) (*Result, error) {
	key := cache.Key(req.URL)
	if cached, ok := c.lookup(ctx, store, key); ok {
		return &Result{Response: cached, Route: route.Name, Policy: route.Policy, FromCache: true}, nil
	}

	resp, err := c.network.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.OK() {
		c.put(ctx, store, key, resp)
	}

	return &Result{Response: resp, Route: route.Name, Policy: route.Policy}, nil
}

// staleWhileRevalidate serves the cached copy right away and refreshes it in
// the background. A miss behaves like cacheFirst.
func (c *Controller) staleWhileRevalidate(ctx context.Context, req *Request, route Route, store cache.Store) (*Result, error) {
	key := cache.Key(req.URL)
	cached, ok := c.lookup(ctx, store, key)
	if !ok {
		resp, err := c.network.Fetch(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.OK() {
			c.put(ctx, store, key, resp)
		}
		return &Result{Response: resp, Route: route.Name, Policy: route.Policy}, nil
	}

	c.revalidateAsync(store, key, req)

	return &Result{Response: cached, Route: route.Name, Policy: route.Policy, FromCache: true}, nil
}

func (c *Controller) revalidateAsync(store cache.Store, key string, req *Request) {
	select {
	case c.bgSem <- struct{}{}:
	default:
		log.Debugf("Skipping refresh of %s, too many in flight", key)
		return
	}

	c.m.Lock()
	if c.state != StateActive {
		c.m.Unlock()
		<-c.bgSem
		return
	}
	c.wg.Add(1)
	c.m.Unlock()

	bgReq := GetRequest(req.URL)
	bgReq.Header = req.Header.Clone()

	go func() {
		defer c.wg.Done()
		defer func() { <-c.bgSem }()

		ctx, cancel := context.WithTimeout(context.Background(), revalidateTimeout)
		defer cancel()

		resp, err := c.network.Fetch(ctx, bgReq)
		if err != nil {
			log.Debugf("Refresh of %s failed: %s", key, err)
			return
		}
		if resp.OK() {
			c.put(ctx, store, key, resp)
		}
	}()
}

// lookup reads key from store; read failures count as a miss
func (c *Controller) lookup(ctx context.Context, store cache.Store, key string) (*cache.Response, bool) {
	resp, err := store.Get(ctx, key)
	if err != nil {
		if errors.Cause(err) != cache.ErrEntryNotFound {
			log.Errorf("Failed to read cache entry %s: %s", key, err)
		}
		c.metrics.lookups.WithLabelValues("miss").Inc()
		return nil, false
	}
	c.metrics.lookups.WithLabelValues("hit").Inc()
	return resp, true
}

// put stores a copy of resp under key. Failures are logged and otherwise
// ignored, the caller still gets its response.
func (c *Controller) put(ctx context.Context, store cache.Store, key string, resp *cache.Response) {
	if err := store.Put(ctx, key, resp); err != nil {
		c.metrics.writeErrors.Inc()
		log.Errorf("Failed to cache %s: %s", key, err)
	}
}

// Package controller implements the offline cache controller: a versioned
// cache of static assets plus the request routing that decides, per request,
// whether the cache may be consulted at all.
//
// A controller moves through install (precache the asset manifest), activate
// (delete the stores of every other version) and then answers fetches until
// it is closed. Only after activation does it route requests; before that
// every fetch goes straight to the network.
package controller

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chrisvdg/offlinecache/cache"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrInvalidState is returned when a lifecycle step is called out of order
	ErrInvalidState = errors.New("invalid controller state")
)

// Defaults applied by New for empty Config fields
var (
	DefaultIndexPath         = "/index.html"
	DefaultConfigPath        = "/config.js"
	DefaultSensitiveSegments = []string{"auth", "storage", "rest", "realtime", "functions", "graphql", "postgrest"}
)

const (
	defaultPrecacheConcurrency = 8
	defaultRevalidateLimit     = 16
	revalidateTimeout          = 30 * time.Second
)

// Config is the immutable configuration of one controller version
type Config struct {
	// Version names the cache store owned by this controller
	Version string
	// Origin is the controller's own origin, scheme and host only
	Origin *url.URL
	// Manifest lists the paths precached on install, in order
	Manifest []string
	// IndexPath is the key navigations are stored under and served from offline
	IndexPath string
	// ConfigPath is the live configuration script, never cached
	ConfigPath string
	// SensitiveSegments are path segments that are never cached
	SensitiveSegments []string
	// StaleWhileRevalidate lists file extensions served stale while being
	// refreshed. Empty disables the policy.
	StaleWhileRevalidate []string
}

func (c Config) withDefaults() Config {
	if c.IndexPath == "" {
		c.IndexPath = DefaultIndexPath
	}
	if c.ConfigPath == "" {
		c.ConfigPath = DefaultConfigPath
	}
	if c.SensitiveSegments == nil {
		c.SensitiveSegments = DefaultSensitiveSegments
	}
	c.IndexPath = cache.KeyPath(c.IndexPath)
	manifest := make([]string, 0, len(c.Manifest))
	for _, p := range c.Manifest {
		key := cache.KeyPath(p)
		if !inStringSlice(manifest, key) {
			manifest = append(manifest, key)
		}
	}
	c.Manifest = manifest

	return c
}

func (c Config) validate() error {
	if c.Version == "" {
		return errors.New("no cache version provided")
	}
	if c.Origin == nil || c.Origin.Scheme == "" || c.Origin.Host == "" {
		return errors.New("controller origin must be an absolute URL")
	}
	for _, p := range c.Manifest {
		if !strings.HasPrefix(p, "/") {
			return errors.Errorf("manifest path %q is not absolute", p)
		}
	}
	return nil
}

// Option configures a Controller
type Option func(*Controller)

// WithRoutes replaces the default route table
func WithRoutes(routes Routes) Option {
	return func(c *Controller) {
		c.routes = routes
	}
}

// WithRegisterer registers the controller metrics with reg
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Controller) {
		c.metrics = newMetrics(reg)
	}
}

// WithRevalidateLimit bounds the number of concurrent background refreshes
func WithRevalidateLimit(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.bgSem = make(chan struct{}, n)
		}
	}
}

// New creates a controller for cfg, storing into storage and fetching
// through network
func New(cfg Config, storage cache.Storage, network Network, opts ...Option) (*Controller, error) {
	if storage == nil {
		return nil, errors.New("no cache storage provided")
	}
	if network == nil {
		return nil, errors.New("no network provided")
	}
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	c := &Controller{
		cfg:     cfg,
		storage: storage,
		network: network,
		state:   StateNew,
		bgSem:   make(chan struct{}, defaultRevalidateLimit),
		m:       &sync.Mutex{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.routes == nil {
		c.routes = DefaultRoutes(cfg)
	}
	if c.metrics == nil {
		c.metrics = newMetrics(nil)
	}
	c.metrics.setState(cfg.Version, c.state)

	return c, nil
}

// Controller is the offline cache controller for one cache version
type Controller struct {
	cfg     Config
	routes  Routes
	storage cache.Storage
	network Network
	metrics *metrics

	state State
	store cache.Store
	m     *sync.Mutex

	bgSem chan struct{}
	wg    sync.WaitGroup
}

// Version returns the cache version owned by the controller
func (c *Controller) Version() string {
	return c.cfg.Version
}

// Manifest returns a copy of the asset manifest
func (c *Controller) Manifest() []string {
	return append([]string(nil), c.cfg.Manifest...)
}

// Routes returns the route table in use
func (c *Controller) Routes() Routes {
	return c.routes
}

// State returns the current lifecycle state
func (c *Controller) State() State {
	c.m.Lock()
	defer c.m.Unlock()
	return c.state
}

// Stores lists the cache stores currently present in storage
func (c *Controller) Stores(ctx context.Context) ([]string, error) {
	return c.storage.Names(ctx)
}

func (c *Controller) setState(s State) {
	c.state = s
	c.metrics.setState(c.cfg.Version, s)
}

// transition moves from one of from to to, or fails with ErrInvalidState
func (c *Controller) transition(to State, from ...State) error {
	c.m.Lock()
	defer c.m.Unlock()
	for _, f := range from {
		if c.state == f {
			c.setState(to)
			return nil
		}
	}
	return errors.Wrapf(ErrInvalidState, "cannot move to %s from %s", to, c.state)
}

func (c *Controller) finish(to State, store cache.Store) {
	c.m.Lock()
	defer c.m.Unlock()
	if store != nil {
		c.store = store
	}
	c.setState(to)
}

// Install precaches the manifest into the store named by the version.
// Every asset is fetched before anything is written; if any fetch fails or
// returns a non-2xx status nothing is stored and the controller returns to
// StateNew so install can be attempted again.
func (c *Controller) Install(ctx context.Context) error {
	if err := c.transition(StateInstalling, StateNew, StateIdle); err != nil {
		return err
	}
	log.Infof("Installing cache %s (%d assets)", c.cfg.Version, len(c.cfg.Manifest))

	store, err := c.precache(ctx)
	if err != nil {
		c.finish(StateNew, nil)
		return errors.Wrapf(err, "failed to install cache %s", c.cfg.Version)
	}

	c.finish(StateIdle, store)
	log.Infof("Installed cache %s", c.cfg.Version)

	return nil
}

func (c *Controller) precache(ctx context.Context) (cache.Store, error) {
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(defaultPrecacheConcurrency)

	var entriesMu sync.Mutex
	entries := make(map[string]*cache.Response, len(c.cfg.Manifest))

	for _, p := range c.cfg.Manifest {
		assetPath := p
		eg.Go(func() error {
			u := *c.cfg.Origin
			u.Path = assetPath
			u.RawQuery = ""

			resp, err := c.network.Fetch(egCtx, GetRequest(&u))
			if err != nil {
				return errors.Wrapf(err, "failed to fetch %s", assetPath)
			}
			if !resp.OK() {
				return errors.Errorf("failed to fetch %s: status %d", assetPath, resp.Status)
			}

			entriesMu.Lock()
			entries[assetPath] = resp
			entriesMu.Unlock()

			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	store, err := c.storage.Open(ctx, c.cfg.Version)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open cache store")
	}
	if err := store.PutAll(ctx, entries); err != nil {
		return nil, errors.Wrap(err, "failed to store manifest")
	}

	return store, nil
}

// Activate deletes every store not named by the version and then claims
// control. Deletion failures are logged and returned, but do not prevent the
// claim.
func (c *Controller) Activate(ctx context.Context) error {
	if err := c.transition(StateActivating, StateIdle); err != nil {
		return err
	}
	log.Infof("Activating cache %s", c.cfg.Version)

	deleted, gcErr := cache.DeleteStale(ctx, c.storage, c.cfg.Version)
	for _, name := range deleted {
		log.Infof("Deleted stale cache %s", name)
	}

	store, err := c.storage.Open(ctx, c.cfg.Version)
	if err != nil {
		c.finish(StateIdle, nil)
		return errors.Wrap(err, "failed to open cache store")
	}

	c.finish(StateActive, store)
	log.Infof("Cache %s is active", c.cfg.Version)

	if gcErr != nil {
		return errors.Wrap(gcErr, "failed to delete stale caches")
	}
	return nil
}

// Close stops routing, waits for background refreshes and marks the
// controller redundant. The storage is left open.
func (c *Controller) Close() {
	c.m.Lock()
	c.setState(StateRedundant)
	c.m.Unlock()

	c.wg.Wait()
}

// Result is the answer to a fetch
type Result struct {
	Response *cache.Response
	Route    string
	Policy   Policy
	// FromCache is set when the response was served from the cache
	FromCache bool
}

// Fetch answers an intercepted request. Network failures on routes without
// a cached fallback are returned as errors.
func (c *Controller) Fetch(ctx context.Context, req *Request) (*Result, error) {
	c.m.Lock()
	state, store := c.state, c.store
	c.m.Unlock()

	if state != StateActive {
		log.Debugf("Uncontrolled %s %s (%s)", req.Method, req.URL, state)
		return c.passthrough(ctx, req, Route{Name: "uncontrolled", Policy: PolicyPassthrough})
	}

	route := c.routes.Classify(req)
	c.metrics.routes.WithLabelValues(route.Name, string(route.Policy)).Inc()
	log.Debugf("Route %s (%s) for %s %s", route.Name, route.Policy, req.Method, req.URL)

	switch route.Policy {
	case PolicyPassthrough, PolicyNetworkOnly:
		return c.passthrough(ctx, req, route)
	case PolicyNetworkFirst:
		return c.networkFirst(ctx, req, route, store)
	case PolicyCacheFirst:
		return c.cacheFirst(ctx, req, route, store)
	case PolicyStaleWhileRevalidate:
		return c.staleWhileRevalidate(ctx, req, route, store)
	default:
		return nil, errors.Errorf("policy %s not supported", route.Policy)
	}
}

func inStringSlice(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

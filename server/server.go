package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chrisvdg/offlinecache/cache"
	"github.com/chrisvdg/offlinecache/controller"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
)

// New creates a new server instance
func New(c *Config) (*Server, error) {
	if c == nil {
		return nil, errors.New("no config provided")
	}
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}

	storage, err := cache.New(c.Cache.Backend, c.Cache.Dir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open cache storage")
	}
	network, err := controller.NewHTTPNetwork(c.Origin(), c.Upstream(), c.FetchTimeout())
	if err != nil {
		storage.Close()
		return nil, err
	}

	s, err := newServer(c, storage, network)
	if err != nil {
		storage.Close()
		return nil, err
	}
	return s, nil
}

func newServer(c *Config, storage cache.Storage, network controller.Network) (*Server, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ctl, err := controller.New(controller.Config{
		Version:              c.Cache.Version,
		Origin:               c.Origin(),
		Manifest:             c.Cache.Manifest,
		IndexPath:            c.Cache.IndexPath,
		ConfigPath:           c.Cache.ConfigPath,
		SensitiveSegments:    c.Cache.SensitiveSegments,
		StaleWhileRevalidate: c.Cache.StaleWhileRevalidate,
	}, storage, network, controller.WithRegisterer(reg))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create cache controller")
	}

	return &Server{
		c:       c,
		storage: storage,
		ctl:     ctl,
		reg:     reg,
		stopCh:  make(chan struct{}),
	}, nil
}

// Server represents a server instance
type Server struct {
	c       *Config
	storage cache.Storage
	ctl     *controller.Controller
	reg     *prometheus.Registry

	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Controller returns the cache controller served by s
func (s *Server) Controller() *controller.Controller {
	return s.ctl
}

// Start installs and activates the controller. A failed install is retried
// in the background until it succeeds or the server is closed; meanwhile
// requests go to the network uncontrolled.
func (s *Server) Start(ctx context.Context) {
	if err := s.bringUp(ctx); err == nil {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.retryLoop(s.c.InstallRetry())
	}()
}

func (s *Server) bringUp(ctx context.Context) error {
	if err := s.ctl.Install(ctx); err != nil {
		log.Errorf("Install failed: %s", err)
		return err
	}
	if err := s.ctl.Activate(ctx); err != nil {
		log.Errorf("Activation incomplete: %s", err)
		// stale stores that could not be deleted do not block the claim
		if s.ctl.State() != controller.StateActive {
			return err
		}
	}
	return nil
}

func (s *Server) retryLoop(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-t.C:
			ctx, cancel := context.WithCancel(context.Background())
			go func() {
				select {
				case <-s.stopCh:
					cancel()
				case <-ctx.Done():
				}
			}()
			err := s.bringUp(ctx)
			cancel()
			if err == nil {
				return
			}
		}
	}
}

// Router returns the HTTP handler of the server
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	// paths reach the controller exactly as requested
	r.SkipClean(true)
	h := newHandlers(s.c.Origin(), s.ctl, s.reg)

	admin := r.PathPrefix("/-/").Subrouter()
	admin.HandleFunc("/status", h.StatusHandler).Methods(http.MethodGet)
	admin.HandleFunc("/rank/{total:-?[0-9]+}", h.RankHandler).Methods(http.MethodGet)
	admin.Handle("/metrics", h.MetricsHandler()).Methods(http.MethodGet)

	r.PathPrefix("/").HandlerFunc(h.FetchHandler)

	return r
}

// ListenAndServe listens for new requests and serves them
func (s *Server) ListenAndServe() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx)
	handler := s.Router()

	tlsEnabled := s.c.Server.TLS.Enabled()
	if !s.c.Server.TLSOnly {
		go listenAndServe(ctx, cancel, s.c.Server.ListenAddr, handler)
	}

	if tlsEnabled {
		go listenAndServeTLS(ctx, cancel, s.c.Server.TLSListenAddr, s.c.Server.TLS, handler)
	}

	if s.c.Server.TLSOnly && !tlsEnabled {
		log.Error("tls only mode requested without a certificate and key")
		return
	}

	<-ctx.Done()
}

// Close stops background work, retires the controller and closes the storage
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stopCh)
		s.wg.Wait()
		s.ctl.Close()
		err = s.storage.Close()
	})
	return err
}

// listenAndServe serves a plain http webserver
func listenAndServe(ctx context.Context, cancel func(), addr string, handler http.Handler) {
	defer cancel()
	addrStr := getAddrString(addr)
	log.Infof("http server listening on: http://%s", addrStr)
	log.Error(http.ListenAndServe(addr, handler))
}

// listenAndServeTLS serves a tls webserver
func listenAndServeTLS(ctx context.Context, cancel func(), addr string, tls TLSConfig, handler http.Handler) {
	defer cancel()
	addrStr := getAddrString(addr)
	log.Infof("https server listening on: https://%s", addrStr)
	log.Error(http.ListenAndServeTLS(addr, tls.CertFile, tls.KeyFile, handler))
}

func getAddrString(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = fmt.Sprintf("0.0.0.0%s", addr)
	}
	return addr
}

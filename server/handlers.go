package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/chrisvdg/offlinecache/controller"
	"github.com/chrisvdg/offlinecache/rank"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const (
	cacheHeader         = "X-Offline-Cache"
	swAllowedHeader     = "Service-Worker-Allowed"
	serviceWorkerScript = "/sw.js"
)

func newHandlers(origin *url.URL, ctl *controller.Controller, reg *prometheus.Registry) *handlers {
	return &handlers{
		origin: origin,
		ctl:    ctl,
		reg:    reg,
	}
}

type handlers struct {
	origin *url.URL
	ctl    *controller.Controller
	reg    *prometheus.Registry
}

// FetchHandler hands the request to the cache controller and replays its answer
func (h *handlers) FetchHandler(res http.ResponseWriter, req *http.Request) {
	fr := controller.NewRequest(req, h.origin)
	// absolute-form requests for other hosts would turn the server into an
	// open proxy
	if !controller.SameOrigin(fr.URL, h.origin) {
		log.Debugf("Refusing %s %s: not %s", fr.Method, fr.URL, h.origin)
		http.Error(res, http.StatusText(http.StatusMisdirectedRequest), http.StatusMisdirectedRequest)
		return
	}

	result, err := h.ctl.Fetch(req.Context(), fr)
	if err != nil {
		log.Errorf("Fetch %s %s: %s", fr.Method, fr.URL, err)
		http.Error(res, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}

	res.Header().Set(cacheHeader, cacheStatus(result))
	if req.URL.Path == serviceWorkerScript {
		res.Header().Set(swAllowedHeader, "/")
	}
	if err := result.Response.Write(res); err != nil {
		log.Debugf("Writing response for %s: %s", fr.URL, err)
	}
}

// cacheStatus describes how a result was produced
func cacheStatus(r *controller.Result) string {
	p := string(r.Policy)
	switch r.Policy {
	case controller.PolicyNetworkFirst:
		if r.FromCache {
			return p + "; fallback"
		}
	case controller.PolicyCacheFirst, controller.PolicyStaleWhileRevalidate:
		if r.FromCache {
			return p + "; hit"
		}
		return p + "; miss"
	}
	return p
}

type status struct {
	Version  string           `json:"version"`
	State    controller.State `json:"state"`
	Manifest []string         `json:"manifest"`
	Stores   []string         `json:"stores"`
}

// StatusHandler reports the controller version, state and stores
func (h *handlers) StatusHandler(res http.ResponseWriter, req *http.Request) {
	stores, err := h.ctl.Stores(req.Context())
	if err != nil {
		log.Errorf("Listing cache stores: %s", err)
		http.Error(res, "failed to list cache stores", http.StatusInternalServerError)
		return
	}
	if stores == nil {
		stores = []string{}
	}

	writeJSON(res, http.StatusOK, status{
		Version:  h.ctl.Version(),
		State:    h.ctl.State(),
		Manifest: h.ctl.Manifest(),
		Stores:   stores,
	})
}

// RankHandler returns the rank for a trophy total
func (h *handlers) RankHandler(res http.ResponseWriter, req *http.Request) {
	total, err := strconv.Atoi(mux.Vars(req)["total"])
	if err != nil {
		http.Error(res, "invalid trophy total", http.StatusBadRequest)
		return
	}
	writeJSON(res, http.StatusOK, rank.Compute(total))
}

// MetricsHandler exposes the server registry
func (h *handlers) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(h.reg, promhttp.HandlerOpts{})
}

func writeJSON(res http.ResponseWriter, code int, v interface{}) {
	res.Header().Set("Content-Type", "application/json")
	res.WriteHeader(code)
	if err := json.NewEncoder(res).Encode(v); err != nil {
		log.Errorf("Encoding response: %s", err)
	}
}

// Package http implements a BitTorrent frontend via the HTTP protocol as
// described in BEP 3.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/coelacanth/tracker/pkg/stop"
	"github.com/coelacanth/tracker/tracker"
)

// Config represents all of the configurable options for an HTTP BitTorrent
// frontend.
type Config struct {
	Addr           string        `yaml:"addr"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

const (
	defaultReadTimeout    = 5 * time.Second
	defaultWriteTimeout   = 5 * time.Second
	defaultRequestTimeout = 5 * time.Second
)

// Frontend holds the state of an HTTP BitTorrent frontend.
type Frontend struct {
	tracker *tracker.Tracker
	srv     *http.Server
	cfg     Config
}

// New allocates a new Frontend answering announce and scrape requests
// against t.
func New(t *tracker.Tracker, cfg Config) *Frontend {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}

	f := &Frontend{tracker: t, cfg: cfg}
	router := httprouter.New()
	router.GET("/announce", f.announceRoute)
	router.GET("/scrape", f.scrapeRoute)

	f.srv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return f
}

// ListenAndServe listens on the configured TCP network address and blocks
// serving BitTorrent requests until Stop is called or a fatal error occurs.
func (f *Frontend) ListenAndServe() error {
	if err := f.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the frontend, waiting up to the configured
// request timeout for in-flight requests to finish. It satisfies
// stop.Stopper so it can be coordinated alongside other components in a
// stop.Group.
func (f *Frontend) Stop() stop.Result {
	c := make(stop.Channel)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), f.cfg.RequestTimeout)
		defer cancel()
		c.Done(f.srv.Shutdown(ctx))
	}()
	return c.Result()
}

// announceRoute parses and responds to an announce request.
func (f *Frontend) announceRoute(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	start := time.Now()
	params := paramsFromQuery(r)
	ip := remoteIP(r)

	dict := f.tracker.Announce(r.Context(), params, ip)
	writeBencode(w, dict)

	metricsRecordResponse("announce", ip, dict, time.Since(start))
}

// scrapeRoute parses and responds to a scrape request.
func (f *Frontend) scrapeRoute(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	start := time.Now()
	params := paramsFromQuery(r)
	ip := remoteIP(r)

	dict := f.tracker.Scrape(r.Context(), params)
	writeBencode(w, dict)

	metricsRecordResponse("scrape", ip, dict, time.Since(start))
}

// Copyright 2025 The PropMap Authors
// SPDX-License-Identifier: Apache-2.0

// Package server exposes the map widget and the listing directory over HTTP
// and streams the native scene to browser viewers.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/propmap/propmap/directory"
	"github.com/propmap/propmap/geocode"
	"github.com/propmap/propmap/locale"
	"github.com/propmap/propmap/mapview"
	"github.com/propmap/propmap/metrics"
	"github.com/propmap/propmap/provider/scene"
	"github.com/propmap/propmap/spatial"
)

// WidgetFactory builds a fresh widget. It is called at startup and after
// every teardown.
type WidgetFactory func() (*mapview.Widget, error)

// Options configures a Server.
type Options struct {
	NewWidget WidgetFactory
	// Repo is optional; without it the directory routes answer 503.
	Repo    directory.Repository
	Hub     *scene.Hub
	Catalog *locale.Catalog
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
}

// Server is the HTTP front of one map widget.
type Server struct {
	mu        sync.RWMutex
	widget    *mapview.Widget
	newWidget WidgetFactory

	repo    directory.Repository
	hub     *scene.Hub
	catalog *locale.Catalog
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// New builds the server and its first widget.
func New(opts Options) (*Server, error) {
	if opts.NewWidget == nil {
		return nil, errors.New("server: widget factory is required")
	}

	if opts.Hub == nil {
		opts.Hub = scene.NewHub(opts.Logger)
	}

	if opts.Catalog == nil {
		opts.Catalog = locale.New()
	}

	w, err := opts.NewWidget()
	if err != nil {
		return nil, fmt.Errorf("creating widget: %w", err)
	}

	return &Server{
		widget:    w,
		newWidget: opts.NewWidget,
		repo:      opts.Repo,
		hub:       opts.Hub,
		catalog:   opts.Catalog,
		metrics:   opts.Metrics,
		log:       opts.Logger,
	}, nil
}

// Widget returns the current widget.
func (s *Server) Widget() *mapview.Widget {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.widget
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", func(ctx *gin.Context) { ctx.String(http.StatusOK, "ok") })
	r.GET("/ws", s.viewer)

	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	api := r.Group("/api")

	m := api.Group("/map")
	m.GET("/status", s.status)
	m.POST("/initialize", s.initialize)
	m.POST("/retry", s.retry)
	m.POST("/credential/request", s.requestCredential)
	m.POST("/credential", s.submitCredential)
	m.POST("/entities", s.reconcile)
	m.POST("/sync", s.sync)
	m.POST("/fetching", s.setFetching)
	m.POST("/city", s.setCity)
	m.POST("/activate/:id", s.activate)
	m.POST("/clear", s.clear)
	m.POST("/popup/click", s.popupClick)
	m.POST("/locate", s.locate)
	m.POST("/teardown", s.teardown)

	api.GET("/listings", s.listListings)
	api.GET("/listings/near", s.nearListings)
	api.GET("/listings/:id", s.getListing)

	return r
}

// Run serves until ctx is canceled, then tears the widget down.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)

	go func() {
		s.log.Info().Str("addr", addr).Msg("listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)

	return errors.Join(err, s.Close())
}

// Close tears the current widget down.
func (s *Server) Close() error {
	return s.Widget().Teardown()
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()

		ctx.Next()

		s.log.Debug().
			Str("method", ctx.Request.Method).
			Str("path", ctx.FullPath()).
			Int("status", ctx.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	}
}

// statusCode maps widget errors to HTTP responses.
func statusCode(err error) int {
	switch {
	case errors.Is(err, mapview.ErrInvalidCredential):
		return http.StatusBadRequest
	case errors.Is(err, mapview.ErrWrongPhase), errors.Is(err, mapview.ErrNotRetryable):
		return http.StatusConflict
	case errors.Is(err, mapview.ErrClosed):
		return http.StatusGone
	case errors.Is(err, directory.ErrNotFound), mapview.IsStaleHandle(err):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case mapview.IsCredentialFailure(err):
		return http.StatusUnauthorized
	case mapview.IsProviderLoadError(err), geocode.IsGeocodeError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(ctx *gin.Context, err error) {
	code := statusCode(err)
	if code == http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", ctx.FullPath()).Msg("request failed")
	}

	ctx.JSON(code, gin.H{"error": err.Error()})
}

type statusResponse struct {
	mapview.WidgetStatus
	Message  string `json:"message,omitempty"`
	Language string `json:"language"`
}

func (s *Server) statusBody(ctx *gin.Context) statusResponse {
	tag := s.catalog.Match(ctx.GetHeader("Accept-Language"))
	st := s.Widget().Status()

	resp := statusResponse{WidgetStatus: st, Language: tag.String()}
	if st.MessageKey != "" {
		resp.Message = s.catalog.Message(tag, st.MessageKey)
	}

	return resp
}

func (s *Server) status(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, s.statusBody(ctx))
}

// lifecycle runs a provider lifecycle call and answers with the status.
func (s *Server) lifecycle(ctx *gin.Context, fn func(context.Context, *mapview.Widget) error) {
	if err := fn(ctx.Request.Context(), s.Widget()); err != nil {
		code := statusCode(err)
		ctx.JSON(code, gin.H{"error": err.Error(), "status": s.statusBody(ctx)})

		return
	}

	ctx.JSON(http.StatusOK, s.statusBody(ctx))
}

func (s *Server) initialize(ctx *gin.Context) {
	s.lifecycle(ctx, func(c context.Context, w *mapview.Widget) error { return w.Initialize(c) })
}

func (s *Server) retry(ctx *gin.Context) {
	s.lifecycle(ctx, func(c context.Context, w *mapview.Widget) error { return w.Retry(c) })
}

func (s *Server) requestCredential(ctx *gin.Context) {
	s.lifecycle(ctx, func(_ context.Context, w *mapview.Widget) error { return w.RequestCredential() })
}

type credentialRequest struct {
	Token string `json:"token" binding:"required"`
}

func (s *Server) submitCredential(ctx *gin.Context) {
	var req credentialRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	s.lifecycle(ctx, func(c context.Context, w *mapview.Widget) error { return w.SubmitCredential(c, req.Token) })
}

type reconcileResponse struct {
	Result  mapview.ReconcileResult `json:"result"`
	Invalid []int                   `json:"invalid,omitempty"`
}

func (s *Server) reconcile(ctx *gin.Context) {
	var raws []map[string]any
	if err := ctx.ShouldBindJSON(&raws); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	entities, invalid := mapview.NormalizeRecords(raws)

	res, err := s.Widget().Reconcile(entities)
	if err != nil {
		s.fail(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, reconcileResponse{Result: res, Invalid: invalid})
}

func listingFilter(ctx *gin.Context) (directory.Filter, error) {
	f := directory.Filter{
		City:        ctx.Query("city"),
		ListingType: ctx.Query("type"),
		OwnerID:     ctx.Query("owner"),
	}

	if v := ctx.Query("premium"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, fmt.Errorf("premium: %w", err)
		}

		f.PremiumOnly = b
	}

	if v := ctx.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, fmt.Errorf("invalid limit %q", v)
		}

		f.Limit = n
	}

	if v := ctx.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, fmt.Errorf("invalid offset %q", v)
		}

		f.Offset = n
	}

	return f, nil
}

func (s *Server) requireRepo(ctx *gin.Context) bool {
	if s.repo == nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": "directory is not configured"})

		return false
	}

	return true
}

// sync loads the filtered directory into the widget. The city, when given,
// also becomes the active city.
func (s *Server) sync(ctx *gin.Context) {
	if !s.requireRepo(ctx) {
		return
	}

	f, err := listingFilter(ctx)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	w := s.Widget()

	if err := w.SetFetching(true); err != nil {
		s.fail(ctx, err)

		return
	}

	listings, err := s.repo.List(f)
	if err == nil {
		_, err = w.Reconcile(directory.Entities(listings))
	}

	// always release the fetching flag, even if the query failed
	if ferr := w.SetFetching(false); err == nil {
		err = ferr
	}

	if err != nil {
		s.fail(ctx, err)

		return
	}

	if f.City != "" {
		if _, err := w.SetActiveCity(f.City); err != nil {
			s.fail(ctx, err)

			return
		}
	}

	ctx.JSON(http.StatusOK, gin.H{"listings": len(listings), "status": s.statusBody(ctx)})
}

type fetchingRequest struct {
	Fetching bool `json:"fetching"`
}

func (s *Server) setFetching(ctx *gin.Context) {
	var req fetchingRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	if err := s.Widget().SetFetching(req.Fetching); err != nil {
		s.fail(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, s.statusBody(ctx))
}

type cityRequest struct {
	City string `json:"city"`
}

func (s *Server) setCity(ctx *gin.Context) {
	var req cityRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	moved, err := s.Widget().SetActiveCity(req.City)
	if err != nil {
		s.fail(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, gin.H{"moved": moved})
}

func (s *Server) activate(ctx *gin.Context) {
	if err := s.Widget().Activate(ctx.Param("id")); err != nil {
		s.fail(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, s.statusBody(ctx))
}

func (s *Server) clear(ctx *gin.Context) {
	if err := s.Widget().ClearActive(); err != nil {
		s.fail(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, s.statusBody(ctx))
}

type clickRequest struct {
	Zone string `json:"zone" binding:"required"`
}

func (s *Server) popupClick(ctx *gin.Context) {
	var req clickRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	if err := s.Widget().PopupClick(ctx.Request.Context(), req.Zone); err != nil {
		s.fail(ctx, err)

		return
	}

	ctx.Status(http.StatusNoContent)
}

type locateRequest struct {
	Address string `json:"address" binding:"required"`
}

func (s *Server) locate(ctx *gin.Context) {
	var req locateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	res, err := s.Widget().Locate(ctx.Request.Context(), req.Address)
	if err != nil {
		s.fail(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"point":       res.Point,
		"confidence":  res.Confidence,
		"provider":    res.Provider,
		"displayName": res.DisplayName,
	})
}

// teardown releases the widget and replaces it with a fresh one, so the
// host can initialize again.
func (s *Server) teardown(ctx *gin.Context) {
	next, err := s.newWidget()
	if err != nil {
		s.fail(ctx, err)

		return
	}

	s.mu.Lock()
	prev := s.widget
	s.widget = next
	s.mu.Unlock()

	if err := prev.Teardown(); err != nil {
		s.fail(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, s.statusBody(ctx))
}

func (s *Server) listListings(ctx *gin.Context) {
	if !s.requireRepo(ctx) {
		return
	}

	f, err := listingFilter(ctx)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	listings, err := s.repo.List(f)
	if err != nil {
		s.fail(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, listings)
}

func (s *Server) getListing(ctx *gin.Context) {
	if !s.requireRepo(ctx) {
		return
	}

	l, err := s.repo.Get(ctx.Param("id"))
	if err != nil {
		s.fail(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, l)
}

func (s *Server) nearListings(ctx *gin.Context) {
	if !s.requireRepo(ctx) {
		return
	}

	lat, err1 := strconv.ParseFloat(ctx.Query("lat"), 64)
	lng, err2 := strconv.ParseFloat(ctx.Query("lng"), 64)

	if err := errors.Join(err1, err2); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "lat and lng are required"})

		return
	}

	ring := 1

	if v := ctx.Query("ring"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 10 {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "ring must be between 0 and 10"})

			return
		}

		ring = n
	}

	listings, err := s.repo.NearCell(spatial.Point{Lat: lat, Lng: lng}, ring)
	if err != nil {
		s.fail(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, listings)
}

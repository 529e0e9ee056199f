// Copyright 2025 The PropMap Authors
// SPDX-License-Identifier: Apache-2.0

// Package mapview keeps a set of listing markers, a single popup and the
// camera of an embedded map in step with the entity list supplied by the
// host, and recovers from provider load and credential failures.
package mapview

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/propmap/propmap/geocode"
	"github.com/propmap/propmap/metrics"
	"github.com/propmap/propmap/provider"
	"github.com/propmap/propmap/spatial"
)

// Config is the host supplied widget configuration.
type Config struct {
	Provider       provider.Kind  `yaml:"provider" json:"provider"`
	Credential     string         `yaml:"credential" json:"-"`
	BoundingRegion spatial.Bounds `yaml:"boundingRegion" json:"boundingRegion"`
	FitPadding     int            `yaml:"fitPadding" json:"fitPadding"`
	DefaultZoom    float64        `yaml:"defaultZoom" json:"defaultZoom"`
	DefaultCenter  *spatial.Point `yaml:"center" json:"center,omitempty"`
	Jitter         float64        `yaml:"jitter" json:"jitter"`
}

// DefaultConfig returns an OpenStreetMap configuration over Algeria.
func DefaultConfig() Config {
	center := DefaultCenter

	return Config{
		Provider:       provider.KindOSM,
		BoundingRegion: DefaultRegion,
		FitPadding:     DefaultFitPadding,
		DefaultZoom:    DefaultZoom,
		DefaultCenter:  &center,
		Jitter:         DefaultJitter,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if _, err := provider.ParseKind(string(c.Provider)); err != nil {
		return err
	}

	if err := c.BoundingRegion.Validate(); err != nil {
		return fmt.Errorf("bounding region: %w", err)
	}

	if c.FitPadding < 0 {
		return errors.New("fit padding must not be negative")
	}

	if c.DefaultZoom <= 0 {
		return errors.New("default zoom must be positive")
	}

	if c.Jitter < 0 {
		return errors.New("jitter must not be negative")
	}

	if c.DefaultCenter != nil && !c.DefaultCenter.Valid() {
		return fmt.Errorf("invalid default center %s", c.DefaultCenter)
	}

	return nil
}

// Options carries the collaborators of a widget. Either Bootstrapper or
// Loader must be set.
type Options struct {
	Bootstrapper *Bootstrapper
	Loader       provider.Loader
	Geocoder     geocode.Geocoder
	Navigator    Navigator
	Notifier     Notifier
	Localizer    Localizer
	Logger       zerolog.Logger
	Metrics      *metrics.Metrics
}

// WidgetStatus is the observable widget state.
type WidgetStatus struct {
	Provider   ProviderState `json:"provider"`
	Phase      RecoveryPhase `json:"phase"`
	Active     string        `json:"active,omitempty"`
	Markers    int           `json:"markers"`
	Popup      PopupState    `json:"popup"`
	City       CityCursor    `json:"city"`
	Fetching   bool          `json:"fetching"`
	LastError  string        `json:"lastError,omitempty"`
	MessageKey string        `json:"messageKey,omitempty"`
}

// Widget is the map component facade. Its methods may be called from any
// goroutine; the components run on the widget's loop.
type Widget struct {
	cfg      Config
	opts     Options
	log      zerolog.Logger
	loop     *Loop
	boot     *Bootstrapper
	recovery *Recovery
	resolver *Resolver
	renderer *Renderer

	// owned by the loop
	m          provider.Map
	bus        *Bus
	reconciler *Reconciler
	active     *ActiveController
	popup      *PopupManager
	camera     *Camera
	desired    []MapEntity
	hasDesired bool
	fetching   bool
	city       string
	cursor     CityCursor
	lastErr    error

	lookupMu   sync.Mutex
	lookups    map[uint64]context.CancelFunc
	nextLookup uint64
}

// New builds a widget. Nothing is loaded until Initialize.
func New(cfg Config, opts Options) (*Widget, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	boot := opts.Bootstrapper
	if boot == nil {
		if opts.Loader == nil {
			return nil, errors.New("mapview: a loader or bootstrapper is required")
		}

		boot = NewBootstrapper(opts.Loader, opts.Logger, opts.Metrics)
	}

	w := &Widget{
		cfg:      cfg,
		opts:     opts,
		log:      opts.Logger,
		loop:     NewLoop(opts.Logger),
		boot:     boot,
		resolver: NewResolver(cfg.BoundingRegion, cfg.DefaultCenter, cfg.Jitter),
		renderer: NewRenderer(opts.Localizer),
		lookups:  make(map[uint64]context.CancelFunc),
	}

	w.recovery = NewRecovery(boot, BootstrapConfig{Provider: cfg.Provider, Credential: cfg.Credential}, opts.Logger)
	w.recovery.BeforeReinitialize = func() {
		_ = w.loop.Do(w.detach)
	}

	return w, nil
}

// Resolver returns the widget's coordinate resolver.
func (w *Widget) Resolver() *Resolver {
	return w.resolver
}

// Map returns the installed provider map, if any.
func (w *Widget) Map() (provider.Map, bool) {
	return w.boot.Map()
}

func (w *Widget) setErr(err error) {
	_ = w.loop.Do(func() { w.lastErr = err })
}

// Initialize loads the provider and attaches the widget components.
func (w *Widget) Initialize(ctx context.Context) error {
	if err := w.recovery.Start(ctx); err != nil {
		w.setErr(err)

		return err
	}

	return w.attachInstalled()
}

// Retry reloads the provider after a load error.
func (w *Widget) Retry(ctx context.Context) error {
	if err := w.recovery.Retry(ctx); err != nil {
		w.setErr(err)

		return err
	}

	return w.attachInstalled()
}

// RequestCredential opens the credential prompt.
func (w *Widget) RequestCredential() error {
	return w.recovery.RequestCredential()
}

// SubmitCredential replaces the provider credential and reinstalls the map.
func (w *Widget) SubmitCredential(ctx context.Context, token string) error {
	if err := w.recovery.SubmitCredential(ctx, token); err != nil {
		w.setErr(err)

		return err
	}

	return w.attachInstalled()
}

// ReportProviderError feeds a runtime SDK error, such as a tile request
// rejected for authorization, into the recovery flow.
func (w *Widget) ReportProviderError(err error) bool {
	if !w.recovery.ReportFailure(err) {
		return false
	}

	w.setErr(w.recovery.LastError())

	return true
}

func (w *Widget) attachInstalled() error {
	m, ok := w.boot.Map()
	if !ok {
		return fmt.Errorf("%w: provider is not installed", ErrNotRetryable)
	}

	return w.loop.Do(func() { w.attach(m) })
}

// attach builds the components against m. Runs on the loop.
func (w *Widget) attach(m provider.Map) {
	if w.m == m {
		return
	}

	w.detach()

	w.m = m
	w.lastErr = nil
	w.bus = NewBus()
	w.reconciler = NewReconciler(m, w.resolver, w.bus, w.log, w.opts.Metrics)
	w.active = NewActiveController(w.reconciler, w.bus, w.log)
	w.popup = NewPopupManager(m, w.reconciler, w.bus, PopupOptions{
		Scheduler: w.loop,
		Renderer:  w.renderer,
		Navigator: w.opts.Navigator,
		Notifier:  w.opts.Notifier,
		Logger:    w.log,
		Metrics:   w.opts.Metrics,
	})
	w.camera = NewCamera(m, w.cfg.FitPadding, w.cfg.DefaultZoom, w.log, w.opts.Metrics)

	if w.city != "" {
		w.camera.PanToCity(w.city)
	}

	if w.hasDesired && !w.fetching {
		w.reconcile()
	}
}

// detach destroys the components. Runs on the loop.
func (w *Widget) detach() {
	if w.m == nil {
		return
	}

	w.popup.Detach()
	w.reconciler.DestroyAll()

	w.m = nil
	w.bus = nil
	w.reconciler = nil
	w.active = nil
	w.popup = nil
	w.camera = nil
}

func (w *Widget) reconcile() ReconcileResult {
	res := w.reconciler.Reconcile(w.desired)
	w.camera.FitOnce(w.reconciler.Coordinates())

	return res
}

// Reconcile replaces the desired entity list. Before the provider is ready,
// or while the host is still fetching, the list is kept and applied later.
func (w *Widget) Reconcile(entities []MapEntity) (ReconcileResult, error) {
	desired := append([]MapEntity(nil), entities...)

	var res ReconcileResult

	err := w.loop.Do(func() {
		w.desired = desired
		w.hasDesired = true

		if w.m == nil || w.fetching {
			res.Deferred = true

			return
		}

		res = w.reconcile()
	})

	return res, err
}

// SetFetching marks whether the host is loading a new list. Clearing the
// flag applies the pending list.
func (w *Widget) SetFetching(fetching bool) error {
	return w.loop.Do(func() {
		w.fetching = fetching

		if !fetching && w.m != nil && w.hasDesired {
			w.reconcile()
		}
	})
}

// SetActiveCity selects a city and pans to it when it changed.
func (w *Widget) SetActiveCity(city string) (bool, error) {
	var moved bool

	err := w.loop.Do(func() {
		if CityKey(city) == CityKey(w.city) {
			return
		}

		w.city = city
		w.cursor = CityCursor{Current: city, Previous: w.cursor.Current}

		if w.camera != nil {
			moved = w.camera.PanToCity(city)
		}
	})

	return moved, err
}

// Activate highlights an entity and opens its popup.
func (w *Widget) Activate(id string) error {
	var err error

	if doErr := w.loop.Do(func() {
		if w.active == nil {
			err = &StaleHandleError{EntityID: id, Op: "activate"}

			return
		}

		err = w.active.Activate(id)
	}); doErr != nil {
		return doErr
	}

	return err
}

// ClearActive drops the highlight and closes the popup.
func (w *Widget) ClearActive() error {
	return w.loop.Do(func() {
		if w.active != nil {
			w.active.Clear()
		}
	})
}

// PopupClick routes a click inside the open popup.
func (w *Widget) PopupClick(ctx context.Context, zone string) error {
	var err error

	if doErr := w.loop.Do(func() {
		if w.popup == nil {
			err = &StaleHandleError{Op: "popup click"}

			return
		}

		err = w.popup.Click(ctx, zone)
	}); doErr != nil {
		return doErr
	}

	return err
}

// Interact runs fn against the installed map on the loop, so simulated or
// forwarded SDK interactions observe the same ordering as widget calls.
func (w *Widget) Interact(fn func(m provider.Map)) error {
	return w.loop.Do(func() {
		if w.m != nil {
			fn(w.m)
		}
	})
}

// Locate geocodes an address in the active city and flies to it. Lookups
// still running at teardown are canceled.
func (w *Widget) Locate(ctx context.Context, address string) (*geocode.Result, error) {
	if w.opts.Geocoder == nil {
		return nil, errors.New("mapview: no geocoder configured")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w.lookupMu.Lock()
	if w.lookups == nil {
		w.lookupMu.Unlock()

		return nil, ErrClosed
	}

	w.nextLookup++
	id := w.nextLookup
	w.lookups[id] = cancel
	w.lookupMu.Unlock()

	defer func() {
		w.lookupMu.Lock()
		if w.lookups != nil {
			delete(w.lookups, id)
		}
		w.lookupMu.Unlock()
	}()

	var city string

	if err := w.loop.Do(func() { city = w.city }); err != nil {
		return nil, err
	}

	res, err := w.opts.Geocoder.Geocode(ctx, address, city)
	if err != nil {
		if geocode.IsCanceled(err) {
			w.log.Debug().Str("address", address).Msg("geocode canceled")
		} else {
			w.log.Warn().Err(err).Str("address", address).Msg("geocode failed")
		}

		return nil, err
	}

	if err := w.loop.Do(func() {
		if w.camera != nil {
			w.camera.FlyTo(res.Point)
		}
	}); err != nil {
		return nil, err
	}

	return res, nil
}

// Status returns a snapshot of the widget.
func (w *Widget) Status() WidgetStatus {
	st := WidgetStatus{
		Provider: w.boot.State(),
		Phase:    w.recovery.Phase(),
	}

	_ = w.loop.Do(func() {
		st.Fetching = w.fetching
		st.City = w.cursor

		if w.reconciler != nil {
			st.Markers = w.reconciler.Len()
		}

		if w.active != nil {
			st.Active = w.active.Active()
		}

		if w.popup != nil {
			st.Popup = w.popup.State()
		}

		if w.lastErr != nil {
			st.LastError = w.lastErr.Error()
		}
	})

	st.MessageKey = messageKey(st)

	return st
}

func messageKey(st WidgetStatus) string {
	switch st.Phase {
	case RecoveryBootstrapping, RecoveryRetrying:
		return MsgLoading
	case RecoveryLoadError:
		return MsgLoadError
	case RecoveryCredentialError:
		return MsgCredentialError
	case RecoveryAwaitingCredential:
		return MsgCredentialPrompt
	case RecoveryReinitializing:
		return MsgReinitializing
	}

	if st.Markers == 0 && !st.Fetching {
		return MsgEmpty
	}

	return ""
}

// Teardown cancels pending lookups, closes the popup, destroys every marker
// and releases the provider. The widget is unusable afterwards.
func (w *Widget) Teardown() error {
	w.lookupMu.Lock()
	for _, cancel := range w.lookups {
		cancel()
	}

	w.lookups = nil
	w.lookupMu.Unlock()

	if err := w.loop.Do(w.detach); err != nil {
		if errors.Is(err, ErrClosed) {
			return nil
		}

		return err
	}

	err := w.boot.Teardown()

	w.loop.Close()

	return err
}

// Copyright 2025 The PropMap Authors
// SPDX-License-Identifier: Apache-2.0

package mapview

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propmap/propmap/geocode"
	"github.com/propmap/propmap/provider"
	"github.com/propmap/propmap/provider/scene"
	"github.com/propmap/propmap/spatial"
)

func testConfig(kind provider.Kind) Config {
	cfg := DefaultConfig()
	cfg.Provider = kind
	cfg.BoundingRegion = testRegion

	return cfg
}

type fixture struct {
	w        *Widget
	loader   *scriptedLoader
	nav      *recordingNavigator
	notifier *recordingNotifier
}

func newFixture(t *testing.T, cfg Config, loader *scriptedLoader, geo geocode.Geocoder) *fixture {
	t.Helper()

	f := &fixture{loader: loader, nav: &recordingNavigator{}, notifier: &recordingNotifier{}}

	w, err := New(cfg, Options{
		Loader:    loader,
		Geocoder:  geo,
		Navigator: f.nav,
		Notifier:  f.notifier,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)

	f.w = w

	t.Cleanup(func() { _ = w.Teardown() })

	return f
}

func (f *fixture) scene() *scene.Scene {
	return f.loader.last()
}

func TestWidgetReconcileAfterInitialize(t *testing.T) {
	f := newFixture(t, testConfig(provider.KindOSM), &scriptedLoader{}, nil)
	require.NoError(t, f.w.Initialize(context.Background()))

	res, err := f.w.Reconcile([]MapEntity{{ID: "1", City: "Algiers"}})
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{Created: 1}, res)

	st := f.w.Status()
	assert.Equal(t, StatusReady, st.Provider.Status)
	assert.Equal(t, RecoveryReady, st.Phase)
	assert.Equal(t, 1, st.Markers)
	assert.Empty(t, st.MessageKey)

	require.Len(t, f.scene().Snapshot(), 2) // marker and camera fit
	assert.Equal(t, 1, f.scene().Stats().Fits)
}

func TestWidgetAppliesPendingListOnReady(t *testing.T) {
	f := newFixture(t, testConfig(provider.KindOSM), &scriptedLoader{}, nil)

	res, err := f.w.Reconcile([]MapEntity{{ID: "1", City: "Oran"}, {ID: "2", City: "Oran"}})
	require.NoError(t, err)
	assert.True(t, res.Deferred)

	require.NoError(t, f.w.Initialize(context.Background()))
	assert.Equal(t, []string{"1", "2"}, f.scene().MarkerIDs())
	assert.Equal(t, 1, f.scene().Stats().Fits)
}

func TestWidgetHoldsListWhileFetching(t *testing.T) {
	f := newFixture(t, testConfig(provider.KindOSM), &scriptedLoader{}, nil)
	require.NoError(t, f.w.Initialize(context.Background()))

	require.NoError(t, f.w.SetFetching(true))

	res, err := f.w.Reconcile([]MapEntity{{ID: "1", City: "Oran"}})
	require.NoError(t, err)
	assert.True(t, res.Deferred)
	assert.Empty(t, f.scene().MarkerIDs())
	assert.True(t, f.w.Status().Fetching)

	require.NoError(t, f.w.SetFetching(false))
	assert.Equal(t, []string{"1"}, f.scene().MarkerIDs())
}

func TestWidgetSetActiveCityPansOnce(t *testing.T) {
	f := newFixture(t, testConfig(provider.KindOSM), &scriptedLoader{}, nil)
	require.NoError(t, f.w.Initialize(context.Background()))

	moved, err := f.w.SetActiveCity("Oran")
	require.NoError(t, err)
	assert.True(t, moved)

	moved, err = f.w.SetActiveCity("Oran")
	require.NoError(t, err)
	assert.False(t, moved)

	assert.Equal(t, 1, f.scene().Stats().Flights)
	assert.Equal(t, CityCursor{Current: "Oran"}, f.w.Status().City)
}

func TestWidgetCitySelectedBeforeReady(t *testing.T) {
	f := newFixture(t, testConfig(provider.KindOSM), &scriptedLoader{}, nil)

	moved, err := f.w.SetActiveCity("Annaba")
	require.NoError(t, err)
	assert.False(t, moved)

	require.NoError(t, f.w.Initialize(context.Background()))

	annaba, _ := CityCenter("Annaba")
	assert.Equal(t, annaba, f.scene().Camera().Center)
}

func TestWidgetActivateAndPopupClick(t *testing.T) {
	f := newFixture(t, testConfig(provider.KindOSM), &scriptedLoader{}, nil)
	require.NoError(t, f.w.Initialize(context.Background()))

	_, err := f.w.Reconcile([]MapEntity{{ID: "1", Title: "F4", City: "Oran"}, {ID: "2", City: "Oran"}})
	require.NoError(t, err)

	require.NoError(t, f.w.Activate("1"))

	st := f.w.Status()
	assert.Equal(t, "1", st.Active)
	assert.Equal(t, PopupState{EntityID: "1", Phase: PopupPhaseOpen, ContentMounted: true}, st.Popup)

	z, _ := f.scene().MarkerZIndex("1")
	assert.Equal(t, RaisedZIndex, z)

	require.NoError(t, f.w.PopupClick(context.Background(), "message"))
	require.Len(t, f.notifier.Sent(), 1)
	assert.Equal(t, ActionMessage, f.notifier.Sent()[0].Action)

	require.NoError(t, f.w.PopupClick(context.Background(), "title"))
	assert.Equal(t, []string{"1"}, f.nav.Visited())

	require.NoError(t, f.w.ClearActive())
	st = f.w.Status()
	assert.Empty(t, st.Active)
	assert.Equal(t, PopupPhaseClosed, st.Popup.Phase)

	assert.True(t, IsStaleHandle(f.w.Activate("missing")))
}

func TestWidgetForwardsMapInteractions(t *testing.T) {
	f := newFixture(t, testConfig(provider.KindOSM), &scriptedLoader{}, nil)
	require.NoError(t, f.w.Initialize(context.Background()))

	_, err := f.w.Reconcile([]MapEntity{{ID: "1", City: "Oran"}})
	require.NoError(t, err)

	require.NoError(t, f.w.Interact(func(m provider.Map) {
		assert.True(t, m.(*scene.Scene).ClickMarker("1"))
	}))
	assert.Equal(t, PopupPhaseOpen, f.w.Status().Popup.Phase)

	require.NoError(t, f.w.Interact(func(m provider.Map) {
		m.(*scene.Scene).Emit(provider.EventZoomStart)
	}))

	st := f.w.Status()
	assert.Equal(t, PopupPhaseClosed, st.Popup.Phase)
	assert.Empty(t, st.Active)
}

type fakeGeocoder struct {
	started atomic.Bool
	block   bool
	result  *geocode.Result
	err     error
}

func (g *fakeGeocoder) Geocode(ctx context.Context, _ string, _ string) (*geocode.Result, error) {
	g.started.Store(true)

	if g.block {
		<-ctx.Done()

		return nil, &geocode.GeocodeError{Type: geocode.ErrorTypeCanceled, Message: "canceled", Err: ctx.Err()}
	}

	return g.result, g.err
}

func TestWidgetLocate(t *testing.T) {
	target := spatial.Point{Lat: 36.76, Lng: 3.05}
	geo := &fakeGeocoder{result: &geocode.Result{Point: target, Confidence: "high", Provider: "test"}}
	f := newFixture(t, testConfig(provider.KindOSM), &scriptedLoader{}, geo)
	require.NoError(t, f.w.Initialize(context.Background()))

	res, err := f.w.Locate(context.Background(), "Rue Didouche Mourad")
	require.NoError(t, err)
	assert.Equal(t, target, res.Point)
	assert.Equal(t, target, f.scene().Camera().Center)
}

func TestWidgetLocateFailure(t *testing.T) {
	geo := &fakeGeocoder{err: &geocode.GeocodeError{Type: geocode.ErrorTypeNotFound, Message: "no results"}}
	f := newFixture(t, testConfig(provider.KindOSM), &scriptedLoader{}, geo)
	require.NoError(t, f.w.Initialize(context.Background()))

	_, err := f.w.Locate(context.Background(), "nowhere")

	var ge *GeocodeError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, 0, f.scene().Stats().Flights)
}

func TestWidgetTeardownCancelsLookups(t *testing.T) {
	geo := &fakeGeocoder{block: true}
	f := newFixture(t, testConfig(provider.KindOSM), &scriptedLoader{}, geo)
	require.NoError(t, f.w.Initialize(context.Background()))

	done := make(chan error, 1)

	go func() {
		_, err := f.w.Locate(context.Background(), "somewhere")
		done <- err
	}()

	require.Eventually(t, geo.started.Load, time.Second, time.Millisecond)
	require.NoError(t, f.w.Teardown())

	select {
	case err := <-done:
		assert.True(t, geocode.IsCanceled(err))
	case <-time.After(time.Second):
		t.Fatal("lookup was not canceled")
	}
}

func TestWidgetTeardown(t *testing.T) {
	f := newFixture(t, testConfig(provider.KindOSM), &scriptedLoader{}, nil)
	require.NoError(t, f.w.Initialize(context.Background()))

	_, err := f.w.Reconcile([]MapEntity{{ID: "1", City: "Oran"}, {ID: "2", City: "Blida"}})
	require.NoError(t, err)
	require.NoError(t, f.w.Activate("2"))

	s := f.scene()
	require.NoError(t, f.w.Teardown())

	stats := s.Stats()
	assert.Equal(t, 2, stats.MarkersRemoved)
	assert.Equal(t, 1, stats.PopupsRemoved)
	assert.Empty(t, s.MarkerIDs())

	_, err = s.AddMarker(provider.MarkerOptions{ID: "x"})
	assert.ErrorIs(t, err, provider.ErrRemoved)

	assert.NoError(t, f.w.Teardown())

	_, err = f.w.Reconcile(nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestWidgetCredentialRecovery(t *testing.T) {
	loader := &scriptedLoader{errs: []error{&provider.LoadError{Kind: provider.KindGoogle, StatusCode: http.StatusForbidden, Message: "InvalidKeyMapError"}}}
	f := newFixture(t, testConfig(provider.KindGoogle), loader, nil)

	_, err := f.w.Reconcile([]MapEntity{{ID: "1", City: "Oran"}})
	require.NoError(t, err)

	require.Error(t, f.w.Initialize(context.Background()))

	st := f.w.Status()
	assert.Equal(t, RecoveryCredentialError, st.Phase)
	assert.Equal(t, MsgCredentialError, st.MessageKey)
	assert.False(t, st.Provider.Retryable)
	assert.NotEmpty(t, st.LastError)

	require.NoError(t, f.w.RequestCredential())
	assert.Equal(t, MsgCredentialPrompt, f.w.Status().MessageKey)

	assert.ErrorIs(t, f.w.SubmitCredential(context.Background(), "nope"), ErrInvalidCredential)

	require.NoError(t, f.w.SubmitCredential(context.Background(), validGoogleKey))

	st = f.w.Status()
	assert.Equal(t, RecoveryReady, st.Phase)
	assert.Equal(t, 1, st.Markers)
	assert.Empty(t, st.LastError)
	assert.Equal(t, []string{"1"}, f.scene().MarkerIDs())
}

func TestWidgetRuntimeCredentialFailureReinstalls(t *testing.T) {
	f := newFixture(t, testConfig(provider.KindGoogle), &scriptedLoader{}, nil)
	require.NoError(t, f.w.Initialize(context.Background()))

	_, err := f.w.Reconcile([]MapEntity{{ID: "1", City: "Oran"}})
	require.NoError(t, err)

	first := f.scene()

	assert.True(t, f.w.ReportProviderError(&provider.LoadError{Kind: provider.KindGoogle, StatusCode: http.StatusUnauthorized}))
	assert.Equal(t, RecoveryCredentialError, f.w.Status().Phase)

	require.NoError(t, f.w.SubmitCredential(context.Background(), validGoogleKey))

	second := f.scene()
	assert.NotSame(t, first, second)
	assert.Equal(t, 1, first.Stats().MarkersRemoved)
	assert.Equal(t, []string{"1"}, second.MarkerIDs())
}

func TestWidgetResubmitSameCredentialReloads(t *testing.T) {
	cfg := testConfig(provider.KindGoogle)
	cfg.Credential = validGoogleKey

	loader := &scriptedLoader{}
	f := newFixture(t, cfg, loader, nil)
	require.NoError(t, f.w.Initialize(context.Background()))

	assert.True(t, f.w.ReportProviderError(&provider.LoadError{Kind: provider.KindGoogle, StatusCode: http.StatusUnauthorized}))
	require.NoError(t, f.w.RequestCredential())

	loader.mu.Lock()
	loader.errs = []error{&provider.LoadError{Kind: provider.KindGoogle, StatusCode: http.StatusForbidden, Message: "InvalidKeyMapError"}}
	loader.mu.Unlock()

	err := f.w.SubmitCredential(context.Background(), validGoogleKey)

	var ce *CredentialError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, int32(2), loader.calls.Load())

	st := f.w.Status()
	assert.Equal(t, RecoveryCredentialError, st.Phase)
	assert.Equal(t, 2, st.Provider.Attempt)

	require.NoError(t, f.w.SubmitCredential(context.Background(), validGoogleKey))
	assert.Equal(t, int32(3), loader.calls.Load())
	assert.Equal(t, RecoveryReady, f.w.Status().Phase)
}

func TestWidgetLoadErrorRetry(t *testing.T) {
	loader := &scriptedLoader{errs: []error{&provider.LoadError{Kind: provider.KindOSM, StatusCode: http.StatusServiceUnavailable}}}
	f := newFixture(t, testConfig(provider.KindOSM), loader, nil)

	require.Error(t, f.w.Initialize(context.Background()))

	st := f.w.Status()
	assert.Equal(t, RecoveryLoadError, st.Phase)
	assert.Equal(t, MsgLoadError, st.MessageKey)
	assert.True(t, st.Provider.Retryable)

	require.NoError(t, f.w.Retry(context.Background()))

	st = f.w.Status()
	assert.Equal(t, RecoveryReady, st.Phase)
	assert.Equal(t, 2, st.Provider.Attempt)
	assert.Equal(t, MsgEmpty, st.MessageKey)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Provider = "bing"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.DefaultZoom = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.BoundingRegion = spatial.Bounds{MinLat: 10, MaxLat: 5}
	assert.Error(t, cfg.Validate())

	_, err := New(DefaultConfig(), Options{})
	assert.Error(t, err)
}

// Copyright 2025 The PropMap Authors
// SPDX-License-Identifier: Apache-2.0

package mapview

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propmap/propmap/provider"
	"github.com/propmap/propmap/provider/scene"
)

// scriptedLoader returns the queued errors in order, then succeeds.
type scriptedLoader struct {
	mu     sync.Mutex
	errs   []error
	calls  atomic.Int32
	gate   chan struct{}
	scenes []*scene.Scene
	creds  []string
}

func (l *scriptedLoader) Load(ctx context.Context, kind provider.Kind, credential string) (provider.Map, error) {
	l.calls.Add(1)

	if l.gate != nil {
		select {
		case <-l.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.creds = append(l.creds, credential)

	if len(l.errs) > 0 {
		err := l.errs[0]
		l.errs = l.errs[1:]

		return nil, err
	}

	s := scene.New(kind, nil)
	l.scenes = append(l.scenes, s)

	return s, nil
}

func (l *scriptedLoader) last() *scene.Scene {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.scenes) == 0 {
		return nil
	}

	return l.scenes[len(l.scenes)-1]
}

var osmConfig = BootstrapConfig{Provider: provider.KindOSM}

func TestInitializeConcurrentCallsShareOneLoad(t *testing.T) {
	loader := &scriptedLoader{gate: make(chan struct{})}
	b := NewBootstrapper(loader, zerolog.Nop(), nil)

	const callers = 8

	var wg sync.WaitGroup

	states := make([]ProviderState, callers)
	for i := range callers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			st, err := b.Initialize(context.Background(), osmConfig)
			assert.NoError(t, err)

			states[i] = st
		}()
	}

	require.Eventually(t, func() bool { return loader.calls.Load() > 0 }, time.Second, time.Millisecond)

	close(loader.gate)
	wg.Wait()

	assert.Equal(t, int32(1), loader.calls.Load())

	for _, st := range states {
		assert.Equal(t, StatusReady, st.Status)
		assert.Equal(t, 1, st.Attempt)
	}

	_, err := b.Initialize(context.Background(), osmConfig)
	require.NoError(t, err)
	assert.Equal(t, int32(1), loader.calls.Load())
}

func TestInitializeLoadFailureIsRetryable(t *testing.T) {
	loader := &scriptedLoader{errs: []error{&provider.LoadError{Kind: provider.KindOSM, StatusCode: http.StatusBadGateway, Message: "bad gateway"}}}
	b := NewBootstrapper(loader, zerolog.Nop(), nil)

	st, err := b.Initialize(context.Background(), osmConfig)
	require.Error(t, err)
	assert.True(t, IsProviderLoadError(err))
	assert.Equal(t, StatusError, st.Status)
	assert.True(t, st.Retryable)
	assert.Equal(t, 1, st.Attempt)

	st, err = b.Retry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusReady, st.Status)
	assert.Equal(t, 2, st.Attempt)

	_, ok := b.Map()
	assert.True(t, ok)
}

func TestInitializeCredentialFailureIsNotRetryable(t *testing.T) {
	loader := &scriptedLoader{errs: []error{&provider.LoadError{Kind: provider.KindGoogle, StatusCode: http.StatusForbidden, Message: "RefererNotAllowedMapError"}}}
	b := NewBootstrapper(loader, zerolog.Nop(), nil)

	st, err := b.Initialize(context.Background(), BootstrapConfig{Provider: provider.KindGoogle, Credential: "k"})

	var ce *CredentialError
	require.ErrorAs(t, err, &ce)
	assert.False(t, st.Retryable)
	assert.Equal(t, StatusError, st.Status)
}

func TestRetryRequiresErrorState(t *testing.T) {
	b := NewBootstrapper(&scriptedLoader{}, zerolog.Nop(), nil)

	_, err := b.Retry(context.Background())
	assert.ErrorIs(t, err, ErrNotRetryable)

	_, err = b.Initialize(context.Background(), osmConfig)
	require.NoError(t, err)

	_, err = b.Retry(context.Background())
	assert.ErrorIs(t, err, ErrNotRetryable)
}

func TestInitializeWithNewCredentialReplacesMap(t *testing.T) {
	loader := &scriptedLoader{}
	b := NewBootstrapper(loader, zerolog.Nop(), nil)

	_, err := b.Initialize(context.Background(), BootstrapConfig{Provider: provider.KindOSM, Credential: "first-key"})
	require.NoError(t, err)

	first := loader.last()

	st, err := b.Initialize(context.Background(), BootstrapConfig{Provider: provider.KindOSM, Credential: "second-key"})
	require.NoError(t, err)
	assert.Equal(t, 2, st.Attempt)
	assert.Equal(t, []string{"first-key", "second-key"}, loader.creds)

	// the first install was released
	_, err = first.AddMarker(provider.MarkerOptions{ID: "x"})
	assert.ErrorIs(t, err, provider.ErrRemoved)
}

func TestBootstrapTeardown(t *testing.T) {
	loader := &scriptedLoader{}
	b := NewBootstrapper(loader, zerolog.Nop(), nil)

	_, err := b.Initialize(context.Background(), osmConfig)
	require.NoError(t, err)
	require.NoError(t, b.Teardown())

	assert.Equal(t, StatusUninitialized, b.State().Status)

	_, ok := b.Map()
	assert.False(t, ok)
	require.NoError(t, b.Teardown())
}

func TestInitializeCanceled(t *testing.T) {
	loader := &scriptedLoader{gate: make(chan struct{})}
	b := NewBootstrapper(loader, zerolog.Nop(), nil)

	t.Cleanup(func() { close(loader.gate) })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Initialize(ctx, osmConfig)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestInitializeCancelOnlyStopsThatCaller(t *testing.T) {
	loader := &scriptedLoader{gate: make(chan struct{})}
	b := NewBootstrapper(loader, zerolog.Nop(), nil)

	ctx, cancel := context.WithCancel(context.Background())

	first := make(chan error, 1)
	go func() {
		_, err := b.Initialize(ctx, osmConfig)
		first <- err
	}()

	require.Eventually(t, func() bool { return loader.calls.Load() > 0 }, time.Second, time.Millisecond)

	second := make(chan ProviderState, 1)
	go func() {
		st, err := b.Initialize(context.Background(), osmConfig)
		assert.NoError(t, err)
		second <- st
	}()

	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)
	assert.Equal(t, StatusLoading, b.State().Status)

	close(loader.gate)

	st := <-second
	assert.Equal(t, StatusReady, st.Status)
	assert.Equal(t, 1, st.Attempt)
	assert.Equal(t, int32(1), loader.calls.Load())

	_, ok := b.Map()
	assert.True(t, ok)
}

func TestInitializeLoadTimeout(t *testing.T) {
	loader := &scriptedLoader{gate: make(chan struct{})}
	t.Cleanup(func() { close(loader.gate) })

	b := NewBootstrapper(loader, zerolog.Nop(), nil)
	b.LoadTimeout = 10 * time.Millisecond

	st, err := b.Initialize(context.Background(), osmConfig)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StatusError, st.Status)
	assert.True(t, st.Retryable)
}

func TestInvalidateForcesReload(t *testing.T) {
	loader := &scriptedLoader{}
	b := NewBootstrapper(loader, zerolog.Nop(), nil)

	_, err := b.Initialize(context.Background(), osmConfig)
	require.NoError(t, err)

	b.Invalidate(&CredentialError{Provider: provider.KindOSM, Err: errors.New("401 Unauthorized")})

	st := b.State()
	assert.Equal(t, StatusError, st.Status)
	assert.False(t, st.Retryable)

	_, ok := b.Map()
	assert.True(t, ok)

	st, err = b.Initialize(context.Background(), osmConfig)
	require.NoError(t, err)
	assert.Equal(t, StatusReady, st.Status)
	assert.Equal(t, 2, st.Attempt)
	assert.Equal(t, int32(2), loader.calls.Load())

	b.Invalidate(nil)
	assert.Equal(t, StatusReady, b.State().Status)
}

func TestSharedBootstrapper(t *testing.T) {
	a := SharedBootstrapper(&scriptedLoader{}, zerolog.Nop(), nil)
	b := SharedBootstrapper(&scriptedLoader{}, zerolog.Nop(), nil)
	assert.Same(t, a, b)
}

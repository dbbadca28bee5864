package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Togather-Foundation/conduit/config"
)

func TestResolveCachesInstance(t *testing.T) {
	var builds int32
	desc := NewService("cache", func(ctx context.Context, env *config.Env) (any, error) {
		atomic.AddInt32(&builds, 1)
		return "instance", nil
	})

	r := New()
	env := config.NewFromMap(nil)

	first, err := r.Resolve(context.Background(), env, []*Descriptor{desc})
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), env, []*Descriptor{desc})
	require.NoError(t, err)

	assert.Equal(t, first["cache"], second["cache"])
	assert.EqualValues(t, 1, atomic.LoadInt32(&builds))
	assert.True(t, r.Cached("cache"))
}

// N concurrent resolvers racing on a not-yet-cached name must share one
// factory call and receive the identical instance.
func TestResolveDeduplicatesConcurrentBuilds(t *testing.T) {
	const callers = 32

	var builds int32
	release := make(chan struct{})
	desc := NewService("db", func(ctx context.Context, env *config.Env) (any, error) {
		atomic.AddInt32(&builds, 1)
		<-release
		return &struct{ id int }{id: 7}, nil
	})

	r := New()
	env := config.NewFromMap(nil)

	results := make([]any, callers)
	errs := make([]error, callers)
	var started, done sync.WaitGroup
	started.Add(callers)
	done.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer done.Done()
			started.Done()
			resolved, err := r.Resolve(context.Background(), env, []*Descriptor{desc})
			if err != nil {
				errs[i] = err
				return
			}
			results[i] = resolved["db"]
		}(i)
	}
	started.Wait()
	close(release)
	done.Wait()

	require.EqualValues(t, 1, atomic.LoadInt32(&builds), "factory must run exactly once")
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, results[0], results[i])
	}
}

func TestFactoryFailureIsNotCached(t *testing.T) {
	var attempts int32
	boom := errors.New("connection refused")
	desc := NewService("flaky", func(ctx context.Context, env *config.Env) (any, error) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			return nil, boom
		}
		return "recovered", nil
	})

	r := New()
	env := config.NewFromMap(nil)

	_, err := r.Resolve(context.Background(), env, []*Descriptor{desc})
	require.ErrorIs(t, err, boom)
	assert.False(t, r.Cached("flaky"))

	resolved, err := r.Resolve(context.Background(), env, []*Descriptor{desc})
	require.NoError(t, err)
	assert.Equal(t, "recovered", resolved["flaky"])
	assert.EqualValues(t, 2, atomic.LoadInt32(&attempts))
}

func TestNameCollisionAcrossDescriptors(t *testing.T) {
	build := func(ctx context.Context, env *config.Env) (any, error) { return 1, nil }
	a := NewService("shared", build)
	b := NewService("shared", build)

	r := New()
	env := config.NewFromMap(nil)

	_, err := r.Resolve(context.Background(), env, []*Descriptor{a})
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), env, []*Descriptor{b})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "distinct descriptors")

	// The same descriptor value may be declared by many endpoints.
	_, err = r.Resolve(context.Background(), env, []*Descriptor{a, a})
	require.NoError(t, err)
}

func TestTypedGet(t *testing.T) {
	in := Instances{"count": 42}

	n, err := Get[int](in, "count")
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	_, err = Get[string](in, "count")
	require.Error(t, err)

	_, err = Get[int](in, "absent")
	require.Error(t, err)
}

type poolService struct{ closed bool }

func (s *poolService) Close() { s.closed = true }

type clientService struct {
	closed bool
	err    error
}

func (s *clientService) Close(ctx context.Context) error {
	s.closed = true
	return s.err
}

func TestCloseReleasesCachedServices(t *testing.T) {
	pool := &poolService{}
	client := &clientService{}

	r := New()
	env := config.NewFromMap(nil)
	_, err := r.Resolve(context.Background(), env, []*Descriptor{
		NewService("pool", func(context.Context, *config.Env) (any, error) { return pool, nil }),
		NewService("client", func(context.Context, *config.Env) (any, error) { return client, nil }),
		NewService("plain", func(context.Context, *config.Env) (any, error) { return "no close method", nil }),
	})
	require.NoError(t, err)

	require.NoError(t, r.Close(context.Background()))
	assert.True(t, pool.closed)
	assert.True(t, client.closed)
	assert.False(t, r.Cached("pool"))
	assert.False(t, r.Cached("client"))
	assert.False(t, r.Cached("plain"))
}

func TestCloseCollectsErrors(t *testing.T) {
	boom := errors.New("connection already gone")
	client := &clientService{err: boom}

	r := New()
	env := config.NewFromMap(nil)
	_, err := r.Resolve(context.Background(), env, []*Descriptor{
		NewService("client", func(context.Context, *config.Env) (any, error) { return client, nil }),
	})
	require.NoError(t, err)

	err = r.Close(context.Background())
	require.ErrorIs(t, err, boom)
	assert.True(t, client.closed)
}

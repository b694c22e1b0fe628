package resources

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLazy_BuildsOnce(t *testing.T) {
	var builds atomic.Int32
	l := NewLazy("thing", func(context.Context) (*int, error) {
		builds.Add(1)
		v := 42
		return &v, nil
	})
	if l.Loaded() {
		t.Fatal("Loaded() = true before first Get")
	}

	var wg sync.WaitGroup
	results := make([]*int, 16)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := l.Get(context.Background())
			if err != nil {
				t.Errorf("Get: %v", err)
			}
			results[i] = v
		}()
	}
	wg.Wait()

	if n := builds.Load(); n != 1 {
		t.Errorf("built %d times, want 1", n)
	}
	for _, r := range results {
		if r != results[0] {
			t.Fatal("Get returned different instances")
		}
	}
	if !l.Loaded() {
		t.Error("Loaded() = false after Get")
	}
}

func TestLazy_FailureNotCached(t *testing.T) {
	var calls int
	l := NewLazy("flaky", func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("connection refused")
		}
		return "ok", nil
	})

	_, err := l.Get(context.Background())
	if err == nil || err.Error() != "initialising flaky: connection refused" {
		t.Fatalf("first Get err = %v", err)
	}
	if l.Loaded() {
		t.Error("failed build was cached")
	}
	if _, ok := l.Peek(); ok {
		t.Error("Peek reports a value after a failed build")
	}

	v, err := l.Get(context.Background())
	if err != nil || v != "ok" {
		t.Fatalf("second Get = %q, %v", v, err)
	}
	if v, ok := l.Peek(); !ok || v != "ok" {
		t.Errorf("Peek = %q, %v", v, ok)
	}
}

func TestLazy_ValueNeverReplaced(t *testing.T) {
	n := 0
	l := NewLazy("counter", func(context.Context) (int, error) {
		n++
		return n, nil
	})
	for range 3 {
		if err := l.Warm(context.Background()); err != nil {
			t.Fatalf("Warm: %v", err)
		}
	}
	if v, _ := l.Get(context.Background()); v != 1 {
		t.Errorf("value = %d, want 1", v)
	}
}

type fakeWarmer struct {
	name string
	err  error
	hits atomic.Int32
}

func (f *fakeWarmer) Name() string { return f.name }
func (f *fakeWarmer) Warm(context.Context) error {
	f.hits.Add(1)
	return f.err
}

func TestLazy_GetHonoursContextWhileBuildRuns(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	l := NewLazy("slow", func(context.Context) (int, error) {
		close(started)
		<-release
		return 7, nil
	})

	done := make(chan error, 1)
	go func() {
		_, err := l.Get(context.Background())
		done <- err
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Get(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Get while building = %v, want deadline exceeded", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first Get: %v", err)
	}
	if v, err := l.Get(context.Background()); err != nil || v != 7 {
		t.Errorf("Get after build = %d, %v; want 7", v, err)
	}
}

func TestPrefetch(t *testing.T) {
	ok := &fakeWarmer{name: "ok"}
	bad := &fakeWarmer{name: "bad", err: errors.New("down")}
	other := &fakeWarmer{name: "other"}

	err := Prefetch(context.Background(), ok, bad, other)
	if err == nil {
		t.Error("Prefetch returned nil, want the failure")
	}
	for _, w := range []*fakeWarmer{ok, bad, other} {
		if w.hits.Load() != 1 {
			t.Errorf("%s warmed %d times, want 1", w.name, w.hits.Load())
		}
	}
}

func TestPrefetchRacesWithGet(t *testing.T) {
	var builds atomic.Int32
	l := NewLazy("shared", func(context.Context) (int, error) {
		builds.Add(1)
		return 7, nil
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		Prefetch(context.Background(), l)
	}()
	if v, err := l.Get(context.Background()); err != nil || v != 7 {
		t.Errorf("Get = %d, %v", v, err)
	}
	wg.Wait()
	if builds.Load() != 1 {
		t.Errorf("built %d times, want 1", builds.Load())
	}
}

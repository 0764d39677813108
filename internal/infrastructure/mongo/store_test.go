package mongo

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/clipstream/clipstream-core/internal/infrastructure/config"
)

func testConfig() config.MongoConfig {
	return config.MongoConfig{
		URI:            "mongodb://localhost:27017",
		Database:       "clipstream_test",
		MaxPoolSize:    10,
		ConnectTimeout: 2,
	}
}

// fakeDialer builds store Options around stubbed driver calls.
// The mongo driver hands back a usable (never dialed) client from
// mongo.NewClient-style construction; tests only compare pointers.
type fakeDialer struct {
	connectCalls atomic.Int32
	pingErr      func(call int32) error
	connectErr   func(call int32) error
	// block, when non-nil, is closed by the test to release in-flight connects.
	block chan struct{}

	disconnects atomic.Int32
}

func (f *fakeDialer) options() []Option {
	return []Option{
		func(deps *storeDeps) {
			deps.connect = func(_ context.Context, _ *options.ClientOptions) (*mongo.Client, error) {
				call := f.connectCalls.Add(1)
				if f.block != nil {
					<-f.block
				}
				if f.connectErr != nil {
					if err := f.connectErr(call); err != nil {
						return nil, err
					}
				}
				return &mongo.Client{}, nil
			}
			deps.ping = func(_ context.Context, _ *mongo.Client) error {
				if f.pingErr != nil {
					return f.pingErr(f.connectCalls.Load())
				}
				return nil
			}
			deps.disconnect = func(_ context.Context, _ *mongo.Client) error {
				f.disconnects.Add(1)
				return nil
			}
		},
	}
}

func TestNew_RequiresURI(t *testing.T) {
	cfg := testConfig()
	cfg.URI = ""

	_, err := New(cfg, nil)
	if !errors.Is(err, ErrEmptyURI) {
		t.Fatalf("New() error = %v, want ErrEmptyURI", err)
	}
}

func TestNew_RequiresDatabase(t *testing.T) {
	cfg := testConfig()
	cfg.Database = "  "

	_, err := New(cfg, nil)
	if !errors.Is(err, ErrEmptyDatabase) {
		t.Fatalf("New() error = %v, want ErrEmptyDatabase", err)
	}
}

func TestNew_DoesNotConnect(t *testing.T) {
	dialer := &fakeDialer{}
	_, err := New(testConfig(), nil, dialer.options()...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if n := dialer.connectCalls.Load(); n != 0 {
		t.Errorf("New() dialed %d times, want 0 (establishment is lazy)", n)
	}
}

// Sequential calls after a successful first acquire return the identical
// handle with no further establishment side effects.
func TestAcquire_CachesHandle(t *testing.T) {
	dialer := &fakeDialer{}
	store, err := New(testConfig(), nil, dialer.options()...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()
	first, err := store.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	for i := 0; i < 5; i++ {
		again, err := store.Acquire(ctx)
		if err != nil {
			t.Fatalf("Acquire() call %d error = %v", i+2, err)
		}
		if again != first {
			t.Fatalf("Acquire() call %d returned a different handle", i+2)
		}
	}

	if n := dialer.connectCalls.Load(); n != 1 {
		t.Errorf("connect invoked %d times across 6 sequential calls, want 1", n)
	}
}

// Concurrent callers issued before the first attempt resolves coalesce
// onto one establishment and all receive the same handle.
func TestAcquire_CoalescesConcurrentCallers(t *testing.T) {
	dialer := &fakeDialer{block: make(chan struct{})}
	store, err := New(testConfig(), nil, dialer.options()...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	const callers = 16

	var wg sync.WaitGroup
	results := make([]*mongo.Client, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = store.Acquire(context.Background())
		}(i)
	}

	// Let all callers reach the wait point, then release the dial.
	waitForPending(t, store)
	close(dialer.block)
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: Acquire() error = %v", i, errs[i])
		}
		if results[i] != results[0] {
			t.Fatalf("caller %d received a different handle", i)
		}
	}

	if n := dialer.connectCalls.Load(); n != 1 {
		t.Errorf("connect invoked %d times for %d concurrent callers, want 1", n, callers)
	}
}

// A failed attempt clears the in-flight marker so the next call starts a
// new, independent attempt.
func TestAcquire_RetriesAfterFailure(t *testing.T) {
	connRefused := errors.New("connection refused")
	dialer := &fakeDialer{
		connectErr: func(call int32) error {
			if call == 1 {
				return connRefused
			}
			return nil
		},
	}
	store, err := New(testConfig(), nil, dialer.options()...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()

	// First call: rejection wrapping the transport error.
	if _, err := store.Acquire(ctx); !errors.Is(err, ErrConnect) || !errors.Is(err, connRefused) {
		t.Fatalf("first Acquire() error = %v, want ErrConnect wrapping transport error", err)
	}

	// Second call: a fresh attempt succeeds.
	client, err := store.Acquire(ctx)
	if err != nil {
		t.Fatalf("second Acquire() error = %v", err)
	}

	// Third call: cached handle, zero additional establishment attempts.
	again, err := store.Acquire(ctx)
	if err != nil {
		t.Fatalf("third Acquire() error = %v", err)
	}
	if again != client {
		t.Error("third Acquire() returned a different handle")
	}
	if n := dialer.connectCalls.Load(); n != 2 {
		t.Errorf("connect invoked %d times, want 2 (one failure, one success)", n)
	}
}

// All concurrent waiters on a failing attempt receive the failure; none
// hang, none silently succeed.
func TestAcquire_FailureFansOutToAllWaiters(t *testing.T) {
	dialer := &fakeDialer{
		block: make(chan struct{}),
		connectErr: func(int32) error {
			return errors.New("connection refused")
		},
	}
	store, err := New(testConfig(), nil, dialer.options()...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	const callers = 8

	var wg sync.WaitGroup
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = store.Acquire(context.Background())
		}(i)
	}

	waitForPending(t, store)
	close(dialer.block)
	wg.Wait()

	for i := 0; i < callers; i++ {
		if !errors.Is(errs[i], ErrConnect) {
			t.Errorf("caller %d: error = %v, want ErrConnect", i, errs[i])
		}
	}
	if n := dialer.connectCalls.Load(); n != 1 {
		t.Errorf("connect invoked %d times, want 1", n)
	}
}

// A ping failure counts as a failed attempt and releases the dialed client.
func TestAcquire_PingFailureDisconnects(t *testing.T) {
	dialer := &fakeDialer{
		pingErr: func(call int32) error {
			if call == 1 {
				return errors.New("server selection timeout")
			}
			return nil
		},
	}
	store, err := New(testConfig(), nil, dialer.options()...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()
	if _, err := store.Acquire(ctx); !errors.Is(err, ErrConnect) {
		t.Fatalf("Acquire() error = %v, want ErrConnect", err)
	}
	if n := dialer.disconnects.Load(); n != 1 {
		t.Errorf("disconnect invoked %d times after failed ping, want 1", n)
	}

	if _, err := store.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() after ping failure error = %v", err)
	}
}

// A caller whose context expires stops waiting, but the attempt itself
// runs to completion and its result serves later callers.
func TestAcquire_CallerContextDoesNotCancelAttempt(t *testing.T) {
	dialer := &fakeDialer{block: make(chan struct{})}
	store, err := New(testConfig(), nil, dialer.options()...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := store.Acquire(ctx)
		done <- err
	}()

	waitForPending(t, store)
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Acquire() with cancelled context error = %v, want context.Canceled", err)
	}

	// Release the dial; the attempt completes and is cached.
	close(dialer.block)

	if _, err := store.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() after abandoned wait error = %v", err)
	}
	if n := dialer.connectCalls.Load(); n != 1 {
		t.Errorf("connect invoked %d times, want 1 (abandoned attempt still completes)", n)
	}
}

func TestClose_ReleasesConnection(t *testing.T) {
	dialer := &fakeDialer{}
	store, err := New(testConfig(), nil, dialer.options()...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()
	if _, err := store.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	if err := store.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if n := dialer.disconnects.Load(); n != 1 {
		t.Errorf("disconnect invoked %d times, want 1", n)
	}

	if _, err := store.Acquire(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Acquire() after Close error = %v, want ErrClosed", err)
	}

	// Close is idempotent.
	if err := store.Close(ctx); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestClose_BeforeAnyAcquire(t *testing.T) {
	dialer := &fakeDialer{}
	store, err := New(testConfig(), nil, dialer.options()...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := store.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if n := dialer.disconnects.Load(); n != 0 {
		t.Errorf("disconnect invoked %d times with no connection, want 0", n)
	}
}

func TestHealthCheck_EstablishesOnFirstUse(t *testing.T) {
	dialer := &fakeDialer{}
	store, err := New(testConfig(), nil, dialer.options()...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := store.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}
	if n := dialer.connectCalls.Load(); n != 1 {
		t.Errorf("connect invoked %d times, want 1", n)
	}
}

// waitForPending polls until the store has an in-flight attempt with a
// blocked dial, so tests can order "callers waiting" before "dial resolves".
func waitForPending(t *testing.T, store *Store) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		store.mu.Lock()
		pending := store.pending != nil
		store.mu.Unlock()
		if pending {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for in-flight connection attempt")
}

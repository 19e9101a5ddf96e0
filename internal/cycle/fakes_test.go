package cycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nerrad567/tempsense/internal/reading"
	"github.com/nerrad567/tempsense/internal/retry"
	"github.com/nerrad567/tempsense/internal/source"
)

var (
	errBrokerDown = errors.New("broker unreachable")
	errDiskFull   = errors.New("disk full")
)

// fixedSource always returns the same provider value.
type fixedSource struct {
	value decimal.Decimal
	calls int
}

func (s *fixedSource) Acquire(context.Context) source.Measurement {
	s.calls++
	return source.Measurement{Value: s.value}
}

// fakeTransport scripts connect and publish outcomes.
type fakeTransport struct {
	connected bool

	// connectOK decides each Connect call; nil means always succeed.
	connectOK func(n int) bool
	// publishErr decides each Publish call; nil means always succeed.
	publishErr func(n int) error

	connectCalls int
	publishCalls int
	closeCalls   int
	published    [][]byte
	closeErr     error
}

func (f *fakeTransport) Connect(context.Context) retry.Result {
	if f.connected {
		return retry.Result{Outcome: retry.Success}
	}
	f.connectCalls++
	if f.connectOK != nil && !f.connectOK(f.connectCalls) {
		return retry.Result{Outcome: retry.Exhausted, Attempts: 3, Err: errBrokerDown}
	}
	f.connected = true
	return retry.Result{Outcome: retry.Success, Attempts: 1}
}

func (f *fakeTransport) Publish(_ string, payload []byte) error {
	if !f.connected {
		return errors.New("not connected")
	}
	f.publishCalls++
	if f.publishErr != nil {
		if err := f.publishErr(f.publishCalls); err != nil {
			f.connected = false
			return err
		}
	}
	f.published = append(f.published, payload)
	return nil
}

func (f *fakeTransport) IsConnected() bool { return f.connected }

func (f *fakeTransport) Close() error {
	f.closeCalls++
	f.connected = false
	return f.closeErr
}

// memStore is an in-memory upserting store.
type memStore struct {
	mu     sync.Mutex
	items  map[string]map[int64]reading.Reading
	writes int
	fail   func(n int) error
}

func newMemStore() *memStore {
	return &memStore{items: map[string]map[int64]reading.Reading{}}
}

func (s *memStore) Write(_ context.Context, r reading.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if s.fail != nil {
		if err := s.fail(s.writes); err != nil {
			return err
		}
	}
	if s.items[r.DeviceID] == nil {
		s.items[r.DeviceID] = map[int64]reading.Reading{}
	}
	s.items[r.DeviceID][r.Timestamp] = r
	return nil
}

func (s *memStore) count(device string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items[device])
}

// fakeClock advances only when the controller sleeps.
type fakeClock struct {
	t      time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1700000000, 0)}
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.t = c.t.Add(d)
	return nil
}

// stopAfter wraps a sleeper so the interval wait after the nth cycle
// cancels the run.
func stopAfter(n int, interval time.Duration, clock *fakeClock, cancel context.CancelFunc) retry.Sleeper {
	cycles := 0
	return func(ctx context.Context, d time.Duration) error {
		if d == interval {
			cycles++
			if cycles >= n {
				cancel()
				return context.Canceled
			}
		}
		return clock.sleep(ctx, d)
	}
}

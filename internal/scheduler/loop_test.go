package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/rewired-gh/macrooracle/internal/fred"
	"github.com/rewired-gh/macrooracle/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubFetcher struct {
	mu      sync.Mutex
	fail    error
	empty   bool
	failIDs map[string]bool
	calls   int
	force   []bool
}

func (f *stubFetcher) Fetch(_ context.Context, ids []string, force bool) (*fred.FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.force = append(f.force, force)
	if f.fail != nil {
		return nil, f.fail
	}
	res := &fred.FetchResult{Series: models.SeriesMap{}, FetchedAt: time.Now()}
	for _, id := range ids {
		if f.empty || f.failIDs[id] {
			res.Series[id] = models.Series{}
			res.Errors = append(res.Errors, fred.SeriesError{SeriesID: id, Err: errors.New("boom")})
			continue
		}
		res.Series[id] = models.Series{{Date: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), Value: 1}}
	}
	return res, nil
}

func (f *stubFetcher) set(fn func(f *stubFetcher)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

type stubAnalyzer struct {
	panics     bool
	confidence float64
}

func (a *stubAnalyzer) RunAll(_ context.Context, data models.SeriesMap) models.Analysis {
	if a.panics {
		panic("analyzer exploded")
	}
	return models.Analysis{
		Signals:    map[string]models.Signal{},
		Synthesis:  models.Synthesis{MarketRegime: "transition", DominantSignal: models.Neutral, Confidence: a.confidence},
		Engine:     models.EngineRuleBased,
		AgentCount: len(data),
	}
}

type recorderFunc func(ctx context.Context, r models.RunRecord) error

func (f recorderFunc) SaveRun(ctx context.Context, r models.RunRecord) error { return f(ctx, r) }

func testConfig() Config {
	return Config{
		Interval:         time.Hour,
		BackoffStep:      30 * time.Second,
		BackoffCap:       5 * time.Minute,
		SubscriberBuffer: 5,
		Series:           []string{"DGS10", "DGS2"},
	}
}

func TestBackoff(t *testing.T) {
	step, ceiling := 30*time.Second, 5*time.Minute
	tests := []struct {
		failures int
		want     time.Duration
	}{
		{0, 0},
		{-1, 0},
		{1, 30 * time.Second},
		{2, time.Minute},
		{3, 90 * time.Second},
		{10, 5 * time.Minute},
		{11, 5 * time.Minute},
		{1 << 40, 5 * time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Backoff(tt.failures, step, ceiling), "failures=%d", tt.failures)
	}
}

func TestRunNow_PublishesResult(t *testing.T) {
	f := &stubFetcher{}
	var records []models.RunRecord
	l := New(f, &stubAnalyzer{}, testConfig(), WithRecorder(recorderFunc(func(_ context.Context, r models.RunRecord) error {
		records = append(records, r)
		return nil
	})))
	assert.Nil(t, l.Latest())

	res, err := l.RunNow(context.Background())
	require.NoError(t, err)
	assert.Same(t, res, l.Latest())
	assert.Equal(t, 1, res.Loop.RunNumber)
	assert.Equal(t, 2, res.Loop.SeriesFetched)
	assert.Equal(t, models.EngineRuleBased, res.Loop.Engine)
	assert.Equal(t, 3600.0, res.Loop.IntervalSeconds)
	assert.Equal(t, []bool{true}, f.force, "cycles always force a refresh")

	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].RunNumber)
	assert.Equal(t, "transition", records[0].MarketRegime)
	assert.NotEmpty(t, records[0].ID)

	st := l.Status()
	assert.Equal(t, StateIdle, st.State)
	assert.False(t, st.Running)
	assert.True(t, st.HasResult)
	assert.Equal(t, 1, st.RunCount)
	assert.NotNil(t, st.LastRun)
	assert.Equal(t, 3600.0, st.NextDelaySeconds)
}

func TestRunNow_NoDataFails(t *testing.T) {
	f := &stubFetcher{empty: true}
	l := New(f, &stubAnalyzer{}, testConfig())

	_, err := l.RunNow(context.Background())
	assert.ErrorIs(t, err, ErrNoData)
	assert.Nil(t, l.Latest())
	st := l.Status()
	assert.Equal(t, 1, st.ConsecutiveFailures)
	assert.Contains(t, st.LastError, "no series data")
}

func TestRunNow_PartialFetchFailurePublishes(t *testing.T) {
	f := &stubFetcher{failIDs: map[string]bool{"DGS2": true}}
	l := New(f, &stubAnalyzer{}, testConfig())
	sub := l.Subscribe()
	defer l.Unsubscribe(sub)

	res, err := l.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Loop.SeriesFetched)
	require.Len(t, res.Loop.FetchErrors, 1)
	assert.Contains(t, res.Loop.FetchErrors[0], "DGS2")
	assert.Same(t, res, l.Latest())
	assert.Equal(t, 0, l.Status().ConsecutiveFailures)

	select {
	case u := <-sub.C:
		assert.Equal(t, 1, u.RunNumber)
	default:
		t.Fatal("partial result was not broadcast")
	}
}

func TestRunNow_UnencodableResultFails(t *testing.T) {
	a := &stubAnalyzer{confidence: math.Inf(1)}
	l := New(&stubFetcher{}, a, testConfig())
	sub := l.Subscribe()
	defer l.Unsubscribe(sub)

	_, err := l.RunNow(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encode")
	assert.Nil(t, l.Latest())
	assert.Equal(t, 1, l.Status().ConsecutiveFailures)
	select {
	case <-sub.C:
		t.Fatal("unencodable result was broadcast")
	default:
	}

	a.confidence = 0.5
	res, err := l.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Loop.RunNumber)
}

func TestThreeFailuresBackOffThenCap(t *testing.T) {
	f := &stubFetcher{fail: errors.New("upstream down")}
	cfg := testConfig()
	cfg.BackoffCap = 75 * time.Second
	l := New(f, &stubAnalyzer{}, cfg)

	var delays []time.Duration
	for i := 0; i < 4; i++ {
		_, err := l.RunNow(context.Background())
		require.Error(t, err)
		delays = append(delays, l.NextDelay())
	}
	assert.Less(t, delays[0], delays[1])
	assert.Less(t, delays[1], delays[2])
	assert.Equal(t, time.Hour+75*time.Second, delays[2])
	assert.Equal(t, delays[2], delays[3], "capped")

	f.set(func(f *stubFetcher) { f.fail = nil })
	_, err := l.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Hour, l.NextDelay(), "success resets backoff")
}

func TestCyclePanicIsRecovered(t *testing.T) {
	a := &stubAnalyzer{panics: true}
	l := New(&stubFetcher{}, a, testConfig())

	_, err := l.RunNow(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "analyzer exploded")
	assert.Equal(t, 1, l.Status().ConsecutiveFailures)

	a.panics = false
	res, err := l.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Loop.RunNumber)
}

func TestCycleHook(t *testing.T) {
	f := &stubFetcher{fail: errors.New("down")}
	var events []CycleEvent
	l := New(f, &stubAnalyzer{}, testConfig(), WithCycleHook(func(ev CycleEvent) {
		events = append(events, ev)
	}))
	ctx := context.Background()

	_, _ = l.RunNow(ctx)
	_, _ = l.RunNow(ctx)
	f.set(func(f *stubFetcher) { f.fail = nil })
	_, _ = l.RunNow(ctx)

	require.Len(t, events, 3)
	assert.Equal(t, 1, events[0].Failures)
	assert.Equal(t, 0, events[0].PrevFailures)
	assert.Equal(t, 2, events[1].Failures)
	assert.NoError(t, events[2].Err)
	assert.Equal(t, 2, events[2].PrevFailures)
	assert.Equal(t, 0, events[2].Failures)
	assert.Equal(t, 1, events[2].RunNumber)
}

func TestSaturatedSubscriberIsDropped(t *testing.T) {
	l := New(&stubFetcher{}, &stubAnalyzer{}, testConfig())
	stuck := l.Subscribe()
	live := l.Subscribe()
	assert.Equal(t, 2, l.Status().Subscribers)

	var got []int
	for i := 0; i < 7; i++ {
		_, err := l.RunNow(context.Background())
		require.NoError(t, err)
		u := <-live.C
		got = append(got, u.RunNumber)

		var decoded models.LoopResult
		require.NoError(t, json.Unmarshal(u.Payload, &decoded))
		assert.Equal(t, u.RunNumber, decoded.Loop.RunNumber)
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, got, "delivered in run order")

	var buffered []int
	for u := range stuck.C {
		buffered = append(buffered, u.RunNumber)
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5}, buffered, "queue kept, then closed")
	assert.Equal(t, 1, l.Status().Subscribers)

	l.Unsubscribe(live)
	_, ok := <-live.C
	assert.False(t, ok)
	l.Unsubscribe(live)
	l.Unsubscribe(stuck)
	assert.Equal(t, 0, l.Status().Subscribers)
}

func TestStartStop(t *testing.T) {
	l := New(&stubFetcher{}, &stubAnalyzer{}, testConfig())
	sub := l.Subscribe()

	l.Start(context.Background())
	l.Start(context.Background())

	select {
	case u := <-sub.C:
		assert.Equal(t, 1, u.RunNumber)
	case <-time.After(5 * time.Second):
		t.Fatal("initial cycle did not run")
	}

	require.Eventually(t, func() bool {
		return l.Status().State == StateSleeping
	}, 5*time.Second, 5*time.Millisecond)
	st := l.Status()
	assert.True(t, st.Running)
	require.NotNil(t, st.NextRun)

	l.Stop()
	l.Stop()
	st = l.Status()
	assert.Equal(t, StateStopped, st.State)
	assert.False(t, st.Running)
	assert.Nil(t, st.NextRun)

	_, ok := <-sub.C
	assert.False(t, ok, "stop closes subscriptions")
	assert.NotNil(t, l.Latest(), "cached result survives stop")
}

func TestStop_CancelsInFlightCycle(t *testing.T) {
	f := &blockingFetcher{entered: make(chan struct{})}
	l := New(f, &stubAnalyzer{}, testConfig())
	l.Start(context.Background())

	select {
	case <-f.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("fetch never started")
	}
	l.Stop()
	assert.Equal(t, 0, l.Status().ConsecutiveFailures, "shutdown is not a failure")
}

type blockingFetcher struct {
	entered chan struct{}
	once    sync.Once
}

func (f *blockingFetcher) Fetch(ctx context.Context, _ []string, _ bool) (*fred.FetchResult, error) {
	f.once.Do(func() { close(f.entered) })
	<-ctx.Done()
	return nil, ctx.Err()
}

// Package scheduler drives the periodic fetch and synthesis cycle, caches the latest result
// and fans it out to live subscribers.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rewired-gh/macrooracle/internal/fred"
	"github.com/rewired-gh/macrooracle/internal/logger"
	"github.com/rewired-gh/macrooracle/internal/metrics"
	"github.com/rewired-gh/macrooracle/internal/models"
)

// ErrNoData is returned when a fetch produced no non-empty series.
var ErrNoData = errors.New("no series data fetched")

// State is the loop's current phase.
type State string

const (
	StateIdle         State = "idle"
	StateRunning      State = "running"
	StateFetching     State = "fetching"
	StateSynthesizing State = "synthesizing"
	StateBroadcasting State = "broadcasting"
	StateSleeping     State = "sleeping"
	StateStopping     State = "stopping"
	StateStopped      State = "stopped"
)

// Fetcher loads series by id. force bypasses any response cache.
type Fetcher interface {
	Fetch(ctx context.Context, ids []string, force bool) (*fred.FetchResult, error)
}

// Analyzer turns a series snapshot into an Analysis.
type Analyzer interface {
	RunAll(ctx context.Context, data models.SeriesMap) models.Analysis
}

// Recorder persists a summary of each published result.
type Recorder interface {
	SaveRun(ctx context.Context, r models.RunRecord) error
}

// Config holds loop timing and fan-out settings.
type Config struct {
	Interval         time.Duration
	BackoffStep      time.Duration
	BackoffCap       time.Duration
	SubscriberBuffer int
	Series           []string
}

// DefaultConfig returns the default loop settings with the full series catalog.
func DefaultConfig() Config {
	return Config{
		Interval:         15 * time.Minute,
		BackoffStep:      30 * time.Second,
		BackoffCap:       5 * time.Minute,
		SubscriberBuffer: 5,
		Series:           fred.AllSeriesIDs(),
	}
}

// Backoff is the extra delay after failures consecutive failed cycles: min(ceiling, failures*step).
func Backoff(failures int, step, ceiling time.Duration) time.Duration {
	if failures <= 0 || step <= 0 {
		return 0
	}
	if time.Duration(failures) > ceiling/step {
		return ceiling
	}
	return time.Duration(failures) * step
}

// CycleEvent reports the outcome of one cycle. PrevFailures is the failure count before it.
type CycleEvent struct {
	RunNumber    int
	Err          error
	Failures     int
	PrevFailures int
	Result       *models.LoopResult
}

// Option configures a Loop.
type Option func(*Loop)

// WithRecorder persists each published result.
func WithRecorder(r Recorder) Option {
	return func(l *Loop) { l.recorder = r }
}

// WithCycleHook calls fn after every cycle, on the cycle's goroutine.
func WithCycleHook(fn func(CycleEvent)) Option {
	return func(l *Loop) { l.hooks = append(l.hooks, fn) }
}

// Loop is the background scheduler. All methods are safe for concurrent use.
type Loop struct {
	fetcher  Fetcher
	analyzer Analyzer
	recorder Recorder
	hooks    []func(CycleEvent)
	config   Config
	now      func() time.Time

	cycleMu  sync.Mutex // serializes cycles
	runCount int        // guarded by cycleMu
	latest   atomic.Pointer[models.LoopResult]

	mu        sync.Mutex
	state     State
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	failures  int
	lastErr   error
	lastRun   time.Time
	nextRun   time.Time
	subs      map[uint64]*Subscription
	nextSubID uint64
}

// New creates a stopped loop.
func New(fetcher Fetcher, analyzer Analyzer, config Config, opts ...Option) *Loop {
	d := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = d.Interval
	}
	if config.BackoffStep <= 0 {
		config.BackoffStep = d.BackoffStep
	}
	if config.BackoffCap < config.BackoffStep {
		config.BackoffCap = config.BackoffStep
	}
	if config.SubscriberBuffer < 1 {
		config.SubscriberBuffer = d.SubscriberBuffer
	}
	if len(config.Series) == 0 {
		config.Series = d.Series
	}
	l := &Loop{
		fetcher:  fetcher,
		analyzer: analyzer,
		config:   config,
		now:      time.Now,
		state:    StateIdle,
		subs:     make(map[uint64]*Subscription),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start spawns the loop goroutine. It runs a cycle immediately. Calling Start on a running loop is a no-op.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	l.running = true
	l.cancel = cancel
	l.done = make(chan struct{})
	l.state = StateRunning
	go l.run(ctx, l.done)
	logger.Info("Agent loop started (interval: %v)", l.config.Interval)
}

// Stop cancels the loop goroutine, waits for it and closes every subscription.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.state = StateStopping
	l.cancel()
	done := l.done
	l.mu.Unlock()

	<-done

	l.mu.Lock()
	l.running = false
	l.state = StateStopped
	l.nextRun = time.Time{}
	for id, sub := range l.subs {
		delete(l.subs, id)
		close(sub.ch)
	}
	metrics.Subscribers.Set(0)
	l.mu.Unlock()
	logger.Info("Agent loop stopped")
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		l.runCycle(ctx)
		if ctx.Err() != nil {
			return
		}

		delay := l.NextDelay()
		l.mu.Lock()
		l.state = StateSleeping
		l.nextRun = l.now().Add(delay)
		l.mu.Unlock()

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// RunNow runs one cycle out of band. It does not reset the loop timer.
func (l *Loop) RunNow(ctx context.Context) (*models.LoopResult, error) {
	return l.runCycle(ctx)
}

// runCycle runs one cycle and does the failure accounting.
func (l *Loop) runCycle(ctx context.Context) (*models.LoopResult, error) {
	start := l.now()
	result, err := l.cycle(ctx)
	elapsed := l.now().Sub(start)
	metrics.CycleDuration.Observe(elapsed.Seconds())

	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		l.settle()
		return nil, err
	}

	l.mu.Lock()
	prev := l.failures
	l.lastRun = start
	if err != nil {
		l.failures++
		l.lastErr = err
	} else {
		l.failures = 0
		l.lastErr = nil
	}
	failures := l.failures
	l.mu.Unlock()
	l.settle()

	ev := CycleEvent{Err: err, Failures: failures, PrevFailures: prev, Result: result}
	if err != nil {
		metrics.CyclesTotal.WithLabelValues("failure").Inc()
		logger.Error("Agent loop cycle failed (%d consecutive): %v", failures, err)
	} else {
		ev.RunNumber = result.Loop.RunNumber
		metrics.CyclesTotal.WithLabelValues("success").Inc()
		logger.Info("Agent loop run #%d completed in %.1fs (%s, %d series)",
			result.Loop.RunNumber, result.Loop.ElapsedSeconds, result.Loop.Engine, result.Loop.SeriesFetched)
	}
	metrics.ConsecutiveFailures.Set(float64(failures))
	for _, fn := range l.hooks {
		fn(ev)
	}
	return result, err
}

// settle moves the state back to a resting phase after a cycle.
func (l *Loop) settle() {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch {
	case l.state == StateStopping || l.state == StateStopped:
	case l.running:
		l.state = StateSleeping
	default:
		l.state = StateIdle
	}
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateStopping {
		l.state = s
	}
}

func (l *Loop) cycle(ctx context.Context) (result *models.LoopResult, err error) {
	l.cycleMu.Lock()
	defer l.cycleMu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("cycle panic: %v", r)
		}
	}()

	start := l.now()

	l.setState(StateFetching)
	fetched, err := l.fetcher.Fetch(ctx, l.config.Series, true)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch series: %w", err)
	}
	n := fetched.Series.NonEmpty()
	if n == 0 {
		return nil, fmt.Errorf("%w (%d fetch errors)", ErrNoData, len(fetched.Errors))
	}

	l.setState(StateSynthesizing)
	analysis := l.analyzer.RunAll(ctx, fetched.Series)

	now := l.now()
	result = &models.LoopResult{
		Analysis: analysis,
		Loop: models.LoopMeta{
			RunNumber:       l.runCount + 1,
			ElapsedSeconds:  now.Sub(start).Seconds(),
			Engine:          analysis.Engine,
			SeriesFetched:   n,
			FetchErrors:     fetched.ErrorStrings(),
			Timestamp:       now.UTC(),
			IntervalSeconds: l.config.Interval.Seconds(),
		},
	}
	// A result that cannot be encoded is never cached or published.
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	l.runCount++
	l.latest.Store(result)

	if l.recorder != nil {
		if err := l.recorder.SaveRun(ctx, models.NewRunRecord(uuid.NewString(), result)); err != nil {
			logger.Warn("Failed to record run #%d: %v", result.Loop.RunNumber, err)
		}
	}

	l.setState(StateBroadcasting)
	l.broadcast(Update{RunNumber: result.Loop.RunNumber, Payload: payload, Result: result})
	return result, nil
}

// Latest returns the most recent published result, or nil before the first success.
func (l *Loop) Latest() *models.LoopResult {
	return l.latest.Load()
}

// NextDelay is the sleep before the next tick: interval plus failure backoff.
func (l *Loop) NextDelay() time.Duration {
	l.mu.Lock()
	f := l.failures
	l.mu.Unlock()
	return l.config.Interval + Backoff(f, l.config.BackoffStep, l.config.BackoffCap)
}

// Status is a point-in-time view of the loop.
type Status struct {
	State               State      `json:"state"`
	Running             bool       `json:"running"`
	RunCount            int        `json:"run_count"`
	IntervalSeconds     float64    `json:"interval_seconds"`
	LastRun             *time.Time `json:"last_run,omitempty"`
	NextRun             *time.Time `json:"next_run,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastError           string     `json:"last_error,omitempty"`
	Subscribers         int        `json:"subscribers"`
	HasResult           bool       `json:"has_result"`
	NextDelaySeconds    float64    `json:"next_delay_seconds"`
}

// Status reports the loop state without blocking on a running cycle.
func (l *Loop) Status() Status {
	latest := l.latest.Load()
	l.mu.Lock()
	defer l.mu.Unlock()
	s := Status{
		State:               l.state,
		Running:             l.running,
		IntervalSeconds:     l.config.Interval.Seconds(),
		ConsecutiveFailures: l.failures,
		Subscribers:         len(l.subs),
		HasResult:           latest != nil,
		NextDelaySeconds:    (l.config.Interval + Backoff(l.failures, l.config.BackoffStep, l.config.BackoffCap)).Seconds(),
	}
	if latest != nil {
		s.RunCount = latest.Loop.RunNumber
	}
	if !l.lastRun.IsZero() {
		t := l.lastRun
		s.LastRun = &t
	}
	if !l.nextRun.IsZero() {
		t := l.nextRun
		s.NextRun = &t
	}
	if l.lastErr != nil {
		s.LastError = l.lastErr.Error()
	}
	return s
}

// Update is one broadcast message.
type Update struct {
	RunNumber int
	Payload   []byte // JSON encoding of Result
	Result    *models.LoopResult
}

// Subscription receives updates on C until it is unsubscribed, dropped for a full queue,
// or the loop stops. C is closed in each case.
type Subscription struct {
	C  <-chan Update
	ch chan Update
	id uint64
}

// Subscribe registers a bounded subscriber.
func (l *Loop) Subscribe() *Subscription {
	ch := make(chan Update, l.config.SubscriberBuffer)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextSubID++
	sub := &Subscription{C: ch, ch: ch, id: l.nextSubID}
	l.subs[sub.id] = sub
	metrics.Subscribers.Set(float64(len(l.subs)))
	return sub
}

// Unsubscribe removes sub and closes its channel. Unknown or already dropped subscriptions are ignored.
func (l *Loop) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.subs[sub.id]; ok {
		delete(l.subs, sub.id)
		close(sub.ch)
		metrics.Subscribers.Set(float64(len(l.subs)))
	}
}

func (l *Loop) broadcast(u Update) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, sub := range l.subs {
		select {
		case sub.ch <- u:
		default:
			delete(l.subs, id)
			close(sub.ch)
			metrics.SubscribersDropped.Inc()
			logger.Warn("Dropped subscriber %d with a full queue", id)
		}
	}
	metrics.Subscribers.Set(float64(len(l.subs)))
}

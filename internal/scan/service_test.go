package scan

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/balkashynov/qcscan/internal/db"
	"github.com/balkashynov/qcscan/internal/dedup"
	"github.com/balkashynov/qcscan/internal/inspection"
	"github.com/balkashynov/qcscan/internal/metrics"
	"github.com/balkashynov/qcscan/internal/models"
	"github.com/balkashynov/qcscan/internal/ratelimit"
	"github.com/balkashynov/qcscan/internal/session"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type pipeline struct {
	service  *Service
	store    *db.Store
	sessions *session.Manager
	metrics  *metrics.Collector
	clock    *fakeClock
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()

	conn, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(conn) })

	clock := &fakeClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.Local)}
	store := db.NewStore(conn)

	opts := inspection.DefaultOptions()
	opts.MaxParallelItems = 50
	machine := inspection.NewMachine(store, opts, zerolog.Nop()).WithClock(clock.Now)

	collector := metrics.NewCollector("test")
	limiter := ratelimit.New(ratelimit.DefaultMaxPerWindow).WithClock(clock.Now)
	manager := session.NewManager(store, machine, limiter, zerolog.Nop(),
		session.WithClock(clock.Now),
		session.WithMetrics(collector),
	)
	t.Cleanup(manager.Close)

	suppressor := dedup.New(dedup.DefaultCooldown, dedup.WithClock(clock.Now))

	return &pipeline{
		service:  NewService(store, manager, suppressor, collector, zerolog.Nop()),
		store:    store,
		sessions: manager,
		metrics:  collector,
		clock:    clock,
	}
}

func (p *pipeline) newSession(t *testing.T, workerID string) string {
	t.Helper()
	s, err := p.sessions.CreateSession(context.Background(), workerID)
	require.NoError(t, err)
	return s.ID
}

func (p *pipeline) counter(t *testing.T, name, label, value string) float64 {
	t.Helper()
	families, err := p.metrics.Registry().Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, m := range family.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == label && l.GetValue() == value {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestEntryThenExit(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	sid := p.newSession(t, "w1")

	entry, ok := p.service.SubmitScan(ctx, sid, "ABC123", "r1")
	require.True(t, ok)
	assert.Equal(t, inspection.OutcomeEntranceStarted, entry.Type)

	p.clock.Advance(4 * time.Second)
	exit, ok := p.service.SubmitScan(ctx, sid, "ABC123", "r2")
	require.True(t, ok)
	assert.Equal(t, inspection.OutcomeExitCompleted, exit.Type)
	assert.Equal(t, int64(4), exit.DurationSeconds)

	item, err := p.store.GetItem(ctx, entry.Item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, item.Status)
	assert.Equal(t, "r1", item.StartScanRef)
	require.NotNil(t, item.EndScanRef)
	assert.Equal(t, "r2", *item.EndScanRef)

	assert.Equal(t, 1.0, p.counter(t, "test_scans_total", "outcome", string(inspection.OutcomeEntranceStarted)))
	assert.Equal(t, 1.0, p.counter(t, "test_scans_total", "outcome", string(inspection.OutcomeExitCompleted)))
}

func TestCodeIsNormalized(t *testing.T) {
	p := newPipeline(t)
	sid := p.newSession(t, "w1")

	o, ok := p.service.SubmitScan(context.Background(), sid, "  ABC123\r\n", "r1")
	require.True(t, ok)
	assert.Equal(t, inspection.OutcomeEntranceStarted, o.Type)
	assert.Equal(t, "ABC123", o.Item.Code)
}

func TestMalformedCode(t *testing.T) {
	p := newPipeline(t)
	sid := p.newSession(t, "w1")

	for _, code := range []string{"", "AB", "ABC 123", strings.Repeat("A", 501)} {
		o, ok := p.service.SubmitScan(context.Background(), sid, code, "r")
		assert.True(t, ok, "code %q", code)
		assert.Equal(t, inspection.OutcomeError, o.Type, "code %q", code)
		assert.Contains(t, o.Message, "Invalid code")
	}

	count, err := p.store.CountActive(context.Background(), sid)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestInactiveSession(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	o, ok := p.service.SubmitScan(ctx, "no-such-session", "ABC123", "r1")
	assert.True(t, ok)
	assert.Equal(t, inspection.OutcomeError, o.Type)
	assert.Equal(t, "Session no-such-session is not active", o.Message)

	sid := p.newSession(t, "w1")
	_, err := p.sessions.EndSession(ctx, sid, "w1")
	require.NoError(t, err)

	o, _ = p.service.SubmitScan(ctx, sid, "ABC123", "r2")
	assert.Equal(t, inspection.OutcomeError, o.Type)
	assert.Contains(t, o.Message, "is not active")
}

func TestRateLimit(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	sid := p.newSession(t, "w1")

	for i := 1; i <= ratelimit.DefaultMaxPerWindow; i++ {
		o, ok := p.service.SubmitScan(ctx, sid, fmt.Sprintf("CODE-%03d", i), "r")
		require.True(t, ok)
		require.Equal(t, inspection.OutcomeEntranceStarted, o.Type, "scan %d", i)
		p.clock.Advance(500 * time.Millisecond)
	}

	o, ok := p.service.SubmitScan(ctx, sid, "CODE-031", "r")
	require.True(t, ok)
	assert.Equal(t, inspection.OutcomeRateLimit, o.Type)

	items, err := p.store.ListItems(ctx, sid, "")
	require.NoError(t, err)
	assert.Len(t, items, ratelimit.DefaultMaxPerWindow)
	assert.Equal(t, 1.0, p.counter(t, "test_scans_total", "outcome", string(inspection.OutcomeRateLimit)))

	// the window slides
	p.clock.Advance(time.Minute)
	o, _ = p.service.SubmitScan(ctx, sid, "CODE-032", "r")
	assert.Equal(t, inspection.OutcomeEntranceStarted, o.Type)
}

func TestRepeatIsSuppressed(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	sid := p.newSession(t, "w1")

	first := p.service.Submit(ctx, sid, "ABC123", "r1")
	require.True(t, first.Accepted())

	p.clock.Advance(500 * time.Millisecond)
	second := p.service.Submit(ctx, sid, "ABC123", "r2")
	assert.False(t, second.Accepted())
	assert.Equal(t, dedup.ReasonImmediateRepeat, second.Suppressed)

	items, err := p.store.ListItems(ctx, sid, "")
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, models.StatusActive, items[0].Status)

	assert.Equal(t, 1.0, p.counter(t, "test_scans_suppressed_total", "reason", string(dedup.ReasonImmediateRepeat)))
}

func TestCooldownAfterOtherCode(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	sid := p.newSession(t, "w1")

	require.True(t, p.service.Submit(ctx, sid, "ABC123", "r1").Accepted())
	p.clock.Advance(100 * time.Millisecond)
	require.True(t, p.service.Submit(ctx, sid, "XYZ789", "r2").Accepted())

	p.clock.Advance(time.Second)
	res := p.service.Submit(ctx, sid, "ABC123", "r3")
	assert.Equal(t, dedup.ReasonCooldown, res.Suppressed)

	p.clock.Advance(dedup.DefaultCooldown)
	res = p.service.Submit(ctx, sid, "ABC123", "r4")
	require.True(t, res.Accepted())
	assert.Equal(t, inspection.OutcomeExitCompleted, res.Outcome.Type)
}

type blockingDispatcher struct {
	entered chan struct{}
	unblock chan struct{}
}

func (d *blockingDispatcher) HandleScan(ctx context.Context, sessionID, code, scanRef string) (inspection.Outcome, error) {
	close(d.entered)
	<-d.unblock
	return inspection.Outcome{Type: inspection.OutcomeEntranceStarted, Message: "started"}, nil
}

type activeRegistry struct{}

func (activeRegistry) IsSessionActive(ctx context.Context, sessionID string) (bool, error) {
	return true, nil
}

func TestInFlightSuppressed(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	dispatcher := &blockingDispatcher{entered: make(chan struct{}), unblock: make(chan struct{})}
	// zero windows leave only the in-flight check
	suppressor := dedup.New(0, dedup.WithRepeatWindow(0), dedup.WithClock(clock.Now))
	service := NewService(activeRegistry{}, dispatcher, suppressor, nil, zerolog.Nop())

	done := make(chan Result)
	go func() {
		done <- service.Submit(context.Background(), "s1", "ABC123", "r1")
	}()
	<-dispatcher.entered

	res := service.Submit(context.Background(), "s1", "ABC123", "r2")
	assert.Equal(t, dedup.ReasonInFlight, res.Suppressed)

	close(dispatcher.unblock)
	first := <-done
	assert.True(t, first.Accepted())
	assert.Zero(t, suppressor.InFlight())
}

type failingDispatcher struct {
	err error
}

func (d failingDispatcher) HandleScan(ctx context.Context, sessionID, code, scanRef string) (inspection.Outcome, error) {
	return inspection.Outcome{}, d.err
}

func TestDispatchErrors(t *testing.T) {
	t.Run("session ended mid-flight", func(t *testing.T) {
		service := NewService(activeRegistry{}, failingDispatcher{err: session.ErrSessionNotActive}, dedup.New(0), nil, zerolog.Nop())
		o, ok := service.SubmitScan(context.Background(), "s1", "ABC123", "r")
		assert.True(t, ok)
		assert.Equal(t, inspection.OutcomeError, o.Type)
		assert.Equal(t, "Session s1 is not active", o.Message)
	})

	t.Run("store failure", func(t *testing.T) {
		service := NewService(activeRegistry{}, failingDispatcher{err: fmt.Errorf("disk full")}, dedup.New(0), nil, zerolog.Nop())
		o, ok := service.SubmitScan(context.Background(), "s1", "ABC123", "r")
		assert.True(t, ok)
		assert.Equal(t, inspection.OutcomeError, o.Type)
	})
}

// compile-time checks
var (
	_ SessionRegistry = (*db.Store)(nil)
	_ Dispatcher      = (*session.Manager)(nil)
)

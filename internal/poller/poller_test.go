package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mc-dashboard-backend/config"
	"mc-dashboard-backend/internal/model"
	"mc-dashboard-backend/internal/parse"
	"mc-dashboard-backend/internal/rcon"
	"mc-dashboard-backend/internal/remote"
	"mc-dashboard-backend/internal/snapshot"
	"mc-dashboard-backend/internal/store"
)

// mockPlayers is a mock implementation of the PlayerSource interface.
type mockPlayers struct {
	FetchPlayersFunc func(ctx context.Context) (*parse.PlayerList, error)
}

func (m *mockPlayers) FetchPlayers(ctx context.Context) (*parse.PlayerList, error) {
	return m.FetchPlayersFunc(ctx)
}

// mockMetrics is a mock implementation of the MetricsSource interface.
type mockMetrics struct {
	FetchMetricsFunc func(ctx context.Context) (*remote.Metrics, error)
}

func (m *mockMetrics) FetchMetrics(ctx context.Context) (*remote.Metrics, error) {
	return m.FetchMetricsFunc(ctx)
}

type sessionCall struct {
	op   string
	name string
	at   time.Time
}

// recorder is an in-memory SessionRecorder that logs every call.
type recorder struct {
	mu       sync.Mutex
	calls    []sessionCall
	open     map[string]time.Time
	openErr  error
	closeErr error
}

func newRecorder() *recorder {
	return &recorder{open: make(map[string]time.Time)}
}

func (r *recorder) OpenSession(ctx context.Context, name string, at time.Time) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, sessionCall{op: "open", name: name, at: at})
	if r.openErr != nil {
		return nil, r.openErr
	}
	r.open[name] = at
	return &model.Session{PlayerName: name, JoinedAt: at}, nil
}

func (r *recorder) CloseSession(ctx context.Context, name string, at time.Time) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, sessionCall{op: "close", name: name, at: at})
	if r.closeErr != nil {
		return nil, r.closeErr
	}
	joined, ok := r.open[name]
	if !ok {
		return nil, store.ErrNoOpenSession
	}
	delete(r.open, name)
	d := int64(at.Sub(joined) / time.Second)
	return &model.Session{PlayerName: name, JoinedAt: joined, LeftAt: &at, DurationSeconds: &d}, nil
}

func (r *recorder) take() []sessionCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	calls := r.calls
	r.calls = nil
	return calls
}

type mockNotifier struct {
	dispatched []string
}

func (m *mockNotifier) Dispatch(name string) {
	m.dispatched = append(m.dispatched, name)
}

// harness wires a Service to scripted sources and a controllable clock.
type harness struct {
	svc      *Service
	cache    *snapshot.Cache
	sessions *recorder
	notifier *mockNotifier
	now      time.Time

	playerList *parse.PlayerList
	playerErr  error
	metrics    *remote.Metrics
	metricsErr error
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		cache:    snapshot.New(30 * time.Second),
		sessions: newRecorder(),
		notifier: &mockNotifier{},
		now:      time.Date(2024, 2, 15, 20, 0, 0, 0, time.UTC),
		metrics:  &remote.Metrics{TPS: 19.9, CPUPercent: 40, MemoryUsedMB: 4096, MemoryTotalMB: 8192, DiskUsedGB: 15, DiskTotalGB: 50},
	}
	players := &mockPlayers{FetchPlayersFunc: func(ctx context.Context) (*parse.PlayerList, error) {
		if h.playerErr != nil {
			return nil, h.playerErr
		}
		return h.playerList, nil
	}}
	metrics := &mockMetrics{FetchMetricsFunc: func(ctx context.Context) (*remote.Metrics, error) {
		if h.metricsErr != nil {
			return nil, h.metricsErr
		}
		return h.metrics, nil
	}}
	h.svc = NewService(config.PollerConfig{Interval: 10 * time.Millisecond}, players, metrics, h.sessions, h.cache, h.notifier)
	h.svc.now = func() time.Time { return h.now }
	return h
}

func (h *harness) online(names ...string) {
	h.playerErr = nil
	h.playerList = &parse.PlayerList{Names: names, Online: len(names), Max: 20}
}

func (h *harness) tick(d time.Duration) {
	h.now = h.now.Add(d)
}

func TestPollOnce_Success(t *testing.T) {
	h := newHarness(t)
	h.online("Steve", "Alex")

	outcome := h.svc.PollOnce(context.Background())
	assert.Equal(t, OutcomeSuccess, outcome)

	v := h.cache.Read()
	assert.True(t, v.Online)
	assert.Equal(t, []string{"Steve", "Alex"}, v.Players.Current)
	assert.Equal(t, 2, v.Players.Count)
	assert.Equal(t, 20, v.Players.Max)
	assert.Equal(t, snapshot.Performance{TPS: 19.9, CPUPercent: 40, MemoryUsedMB: 4096, MemoryTotalMB: 8192, DiskUsedGB: 15, DiskTotalGB: 50}, v.Performance)
	assert.Empty(t, v.LastError)
	assert.Equal(t, h.now, v.LastUpdated)

	// First successful poll: everyone online is a join.
	assert.Equal(t, []sessionCall{
		{op: "open", name: "Alex", at: h.now},
		{op: "open", name: "Steve", at: h.now},
	}, h.sessions.take())
	assert.Equal(t, []string{"Alex", "Steve"}, h.notifier.dispatched)
}

func TestPollOnce_TotalFailureKeepsLastKnownData(t *testing.T) {
	h := newHarness(t)
	h.online("Steve")
	require.Equal(t, OutcomeSuccess, h.svc.PollOnce(context.Background()))
	before := h.cache.Read()
	h.sessions.take()

	h.tick(5 * time.Second)
	h.playerErr = errors.New("dial tcp 10.0.0.5:25575: connect: connection refused")
	h.metricsErr = errors.New("ssh dial 10.0.0.5:22: i/o timeout")

	assert.Equal(t, OutcomeFailed, h.svc.PollOnce(context.Background()))

	v := h.cache.Read()
	assert.False(t, v.Online)
	assert.Equal(t, []string{"Steve"}, v.Players.Current)
	assert.Equal(t, 20, v.Players.Max)
	assert.Equal(t, before.Performance, v.Performance)
	assert.Equal(t, h.now, v.LastUpdated)
	assert.Contains(t, v.LastError, "rcon transport: dial tcp")
	assert.Contains(t, v.LastError, "ssh transport: ssh dial")

	// No player list was confirmed, so nothing is known to have changed.
	assert.Empty(t, h.sessions.take())
}

func TestPollOnce_MetricsFailure(t *testing.T) {
	t.Run("before any success uses fallback metrics", func(t *testing.T) {
		h := newHarness(t)
		h.online()
		h.metricsErr = fmt.Errorf("parse disk: %w", parse.ErrUnexpectedFormat)

		assert.Equal(t, OutcomePartial, h.svc.PollOnce(context.Background()))

		v := h.cache.Read()
		assert.True(t, v.Online, "online only reflects the player source")
		assert.Equal(t, snapshot.Performance{TPS: remote.DefaultTPS}, v.Performance)
		assert.Contains(t, v.LastError, "ssh parse:")
	})

	t.Run("after a success keeps previous metrics", func(t *testing.T) {
		h := newHarness(t)
		h.online("Steve")
		h.svc.PollOnce(context.Background())
		before := h.cache.Read().Performance

		h.metricsErr = errors.New("ssh: handshake failed: ssh: unable to authenticate")
		h.online("Steve", "Alex")
		assert.Equal(t, OutcomePartial, h.svc.PollOnce(context.Background()))

		v := h.cache.Read()
		assert.Equal(t, before, v.Performance)
		assert.Equal(t, []string{"Steve", "Alex"}, v.Players.Current, "player data still updates")
		assert.Contains(t, v.LastError, "ssh auth:")
	})
}

func TestPollOnce_JoinLeaveDiff(t *testing.T) {
	h := newHarness(t)
	h.online("A", "B")
	h.svc.PollOnce(context.Background())
	h.sessions.take()
	h.notifier.dispatched = nil

	h.tick(5 * time.Second)
	h.online("B", "C")
	h.svc.PollOnce(context.Background())

	assert.Equal(t, []sessionCall{
		{op: "open", name: "C", at: h.now},
		{op: "close", name: "A", at: h.now},
	}, h.sessions.take())
	assert.Equal(t, []string{"C"}, h.notifier.dispatched)
}

func TestPollOnce_LeaveClosesSessionWithDuration(t *testing.T) {
	h := newHarness(t)
	h.online("Alex")
	h.svc.PollOnce(context.Background())
	joinedAt := h.now

	h.tick(5 * time.Second)
	h.svc.PollOnce(context.Background())

	h.tick(5 * time.Second)
	h.online()
	h.svc.PollOnce(context.Background())

	calls := h.sessions.take()
	var closes []sessionCall
	for _, c := range calls {
		if c.op == "close" {
			closes = append(closes, c)
		}
	}
	require.Len(t, closes, 1)
	assert.Equal(t, sessionCall{op: "close", name: "Alex", at: h.now}, closes[0])
	assert.Equal(t, 10*time.Second, closes[0].at.Sub(joinedAt))
}

func TestPollOnce_SkipsDiffWhilePlayerSourceIsDown(t *testing.T) {
	h := newHarness(t)
	h.online("Steve")
	h.svc.PollOnce(context.Background())
	h.sessions.take()

	h.playerErr = fmt.Errorf("%w: 127.0.0.1:25575", rcon.ErrAuth)
	for i := 0; i < 3; i++ {
		h.tick(5 * time.Second)
		assert.Equal(t, OutcomePartial, h.svc.PollOnce(context.Background()))
	}
	assert.Empty(t, h.sessions.take())
	assert.Contains(t, h.cache.Read().LastError, "rcon auth:")

	// Diffed against the last confirmed list, not the outage.
	h.tick(5 * time.Second)
	h.online()
	h.svc.PollOnce(context.Background())
	assert.Equal(t, []sessionCall{{op: "close", name: "Steve", at: h.now}}, h.sessions.take())
}

func TestPollOnce_FailedOpenIsRetriedNextCycle(t *testing.T) {
	h := newHarness(t)
	h.sessions.openErr = errors.New("database is locked")
	h.online("Steve")

	assert.Equal(t, OutcomePartial, h.svc.PollOnce(context.Background()))

	v := h.cache.Read()
	assert.True(t, v.Online, "the snapshot is still published")
	assert.Equal(t, []string{"Steve"}, v.Players.Current)
	assert.Equal(t, "persistence: database is locked", v.LastError)
	assert.Empty(t, h.notifier.dispatched, "no notification without a session")
	h.sessions.take()

	// The store recovers while Steve is still online.
	h.sessions.openErr = nil
	h.tick(5 * time.Second)
	assert.Equal(t, OutcomeSuccess, h.svc.PollOnce(context.Background()))
	assert.Equal(t, []sessionCall{{op: "open", name: "Steve", at: h.now}}, h.sessions.take())
	assert.Equal(t, []string{"Steve"}, h.notifier.dispatched)
	assert.Empty(t, h.cache.Read().LastError)

	// Opened once: later cycles do not open again.
	h.tick(5 * time.Second)
	h.svc.PollOnce(context.Background())
	assert.Empty(t, h.sessions.take())

	h.tick(5 * time.Second)
	h.online()
	assert.Equal(t, OutcomeSuccess, h.svc.PollOnce(context.Background()))
	assert.Equal(t, []sessionCall{{op: "close", name: "Steve", at: h.now}}, h.sessions.take())
}

func TestPollOnce_FailedCloseIsRetriedNextCycle(t *testing.T) {
	h := newHarness(t)
	h.online("Alex")
	h.svc.PollOnce(context.Background())
	h.sessions.take()

	h.sessions.closeErr = errors.New("database is locked")
	h.tick(5 * time.Second)
	h.online()
	assert.Equal(t, OutcomePartial, h.svc.PollOnce(context.Background()))
	h.sessions.take()

	h.sessions.closeErr = nil
	h.tick(5 * time.Second)
	assert.Equal(t, OutcomeSuccess, h.svc.PollOnce(context.Background()))
	assert.Equal(t, []sessionCall{{op: "close", name: "Alex", at: h.now}}, h.sessions.take())

	h.tick(5 * time.Second)
	h.svc.PollOnce(context.Background())
	assert.Empty(t, h.sessions.take())
}

func TestPollOnce_SettledTransitionsAreNotRetried(t *testing.T) {
	h := newHarness(t)
	h.sessions.openErr = fmt.Errorf("%w for Steve", store.ErrSessionAlreadyOpen)
	h.online("Steve")

	assert.Equal(t, OutcomeSuccess, h.svc.PollOnce(context.Background()))
	assert.Empty(t, h.cache.Read().LastError)
	assert.Empty(t, h.notifier.dispatched)
	h.sessions.take()

	h.tick(5 * time.Second)
	h.svc.PollOnce(context.Background())
	assert.Empty(t, h.sessions.take())

	// Nothing to close is also settled.
	h.tick(5 * time.Second)
	h.online()
	h.svc.PollOnce(context.Background())
	assert.Equal(t, []sessionCall{{op: "close", name: "Steve", at: h.now}}, h.sessions.take())

	h.tick(5 * time.Second)
	h.svc.PollOnce(context.Background())
	assert.Empty(t, h.sessions.take())
}

func TestPollOnce_RecoversFromPanic(t *testing.T) {
	h := newHarness(t)
	h.online("Steve")
	h.svc.PollOnce(context.Background())
	before := h.cache.Read()

	h.svc.metrics = &mockMetrics{FetchMetricsFunc: func(ctx context.Context) (*remote.Metrics, error) {
		panic("unexpected nil")
	}}
	h.tick(5 * time.Second)

	assert.NotPanics(t, func() {
		assert.Equal(t, OutcomeAborted, h.svc.PollOnce(context.Background()))
	})
	assert.Equal(t, before, h.cache.Read())
}

func TestPollOnce_CancelledContextAbandonsCycle(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h.online("Steve")

	assert.Equal(t, OutcomeAborted, h.svc.PollOnce(ctx))
	assert.Empty(t, h.sessions.take())
	assert.True(t, h.cache.Read().LastUpdated.IsZero())
}

// A failing cycle never replaces known players or metrics with empty values.
func TestPollOnce_FailuresNeverBlankKnownData(t *testing.T) {
	h := newHarness(t)
	steps := []struct {
		playersOK bool
		metricsOK bool
		names     []string
	}{
		{playersOK: true, metricsOK: true, names: []string{"Steve"}},
		{playersOK: false, metricsOK: true},
		{playersOK: true, metricsOK: false, names: []string{"Steve", "Alex"}},
		{playersOK: false, metricsOK: false},
		{playersOK: false, metricsOK: false},
		{playersOK: true, metricsOK: true, names: []string{"Alex"}},
		{playersOK: false, metricsOK: false},
	}

	for i, step := range steps {
		before := h.cache.Read()
		h.tick(5 * time.Second)
		if step.playersOK {
			h.online(step.names...)
		} else {
			h.playerErr = errors.New("connection refused")
		}
		h.metricsErr = nil
		if !step.metricsOK {
			h.metricsErr = errors.New("connection refused")
		}

		h.svc.PollOnce(context.Background())
		after := h.cache.Read()

		if !step.playersOK {
			assert.Equal(t, before.Players, after.Players, "step %d", i)
			assert.False(t, after.Online, "step %d", i)
			assert.NotEmpty(t, after.LastError, "step %d", i)
		}
		if !step.metricsOK && !before.Performance.IsZero() {
			assert.Equal(t, before.Performance, after.Performance, "step %d", i)
		}
	}
	assert.Equal(t, []string{"Alex"}, h.cache.Read().Players.Current)
}

func TestRun_StopsOnCancel(t *testing.T) {
	h := newHarness(t)
	h.online("Steve")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.svc.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return !h.cache.Read().LastUpdated.IsZero()
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after cancel")
	}
}

func TestClassify(t *testing.T) {
	testCases := []struct {
		err      error
		expected ErrorClass
	}{
		{err: errors.New("dial tcp: connection refused"), expected: ClassTransport},
		{err: fmt.Errorf("%w: host", rcon.ErrAuth), expected: ClassAuth},
		{err: errors.New("ssh handshake: ssh: unable to authenticate, attempted methods [none publickey]"), expected: ClassAuth},
		{err: fmt.Errorf("list: %w", parse.ErrUnexpectedFormat), expected: ClassParse},
		{err: fmt.Errorf("ssh dial: %w", context.Canceled), expected: ClassCancelled},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.expected, Classify(tc.err), tc.err.Error())
	}
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "success", OutcomeSuccess.String())
	assert.Equal(t, "partial-failure", OutcomePartial.String())
	assert.Equal(t, "total-failure", OutcomeFailed.String())
	assert.Equal(t, "aborted", OutcomeAborted.String())
}

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ressuche.dev/internal/logging"
	"ressuche.dev/internal/models"
	"ressuche.dev/internal/page"
)

var (
	// ErrShuttingDown is returned by Start after Shutdown was called.
	ErrShuttingDown = errors.New("session manager is shutting down")
	// ErrTooManySessions is returned when MaxSessions searches are running.
	ErrTooManySessions = errors.New("too many concurrent searches")
	// ErrUnknownSession is returned for ids the manager does not know.
	ErrUnknownSession = errors.New("unknown search")
)

// Recorder persists searches and their results.
type Recorder interface {
	SaveSearch(ctx context.Context, id string, params models.SearchParameters, started time.Time) error
	AppendConnection(ctx context.Context, id string, seq int, conn models.Connection) error
	FinishSearch(ctx context.Context, id, state, status string, finished time.Time) error
}

type ManagerConfig struct {
	Options Options
	// MaxSessions bounds the number of concurrently running searches; zero
	// means unbounded.
	MaxSessions  int
	WriteTimeout time.Duration
}

// Snapshot is a consistent copy of a search's progress.
type Snapshot struct {
	ID          string                  `json:"id"`
	Params      models.SearchParameters `json:"params"`
	State       string                  `json:"state"`
	Statuses    []string                `json:"statuses"`
	Connections []models.Connection     `json:"connections"`
	StartedAt   time.Time               `json:"startedAt"`
	FinishedAt  *time.Time              `json:"finishedAt,omitempty"`
	Failed      bool                    `json:"failed"`
}

type tracked struct {
	id      string
	params  models.SearchParameters
	started time.Time
	cancel  context.CancelFunc
	done    chan struct{}

	mu          sync.RWMutex
	session     *Session
	state       State
	statuses    []string
	connections []models.Connection
	finished    *time.Time
}

func (t *tracked) snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	state := t.state
	if t.session != nil && t.finished == nil {
		state = t.session.State()
	}
	snap := Snapshot{
		ID:          t.id,
		Params:      t.params,
		State:       state.String(),
		Statuses:    append([]string(nil), t.statuses...),
		Connections: make([]models.Connection, 0, len(t.connections)),
		StartedAt:   t.started,
		Failed:      state == StateFailed,
	}
	for _, conn := range t.connections {
		snap.Connections = append(snap.Connections, conn.Clone())
	}
	if t.finished != nil {
		finished := *t.finished
		snap.FinishedAt = &finished
	}
	return snap
}

// Manager runs searches in their own goroutines, each with a fresh page
// client, and keeps their progress available for polling.
type Manager struct {
	factory  page.Factory
	recorder Recorder
	config   ManagerConfig
	logger   *slog.Logger

	mu       sync.RWMutex
	searches map[string]*tracked
	running  int
	closed   bool

	rootCtx      context.Context
	rootCancel   context.CancelFunc
	shutdownChan chan struct{}
	wg           sync.WaitGroup
	shutdownOnce sync.Once
}

// NewManager creates a manager. recorder may be nil.
func NewManager(factory page.Factory, recorder Recorder, config ManagerConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		factory:      factory,
		recorder:     recorder,
		config:       config,
		logger:       logger.With(slog.String("component", "session_manager")),
		searches:     make(map[string]*tracked),
		rootCtx:      ctx,
		rootCancel:   cancel,
		shutdownChan: make(chan struct{}),
	}
}

// Start launches a search and returns its id.
func (m *Manager) Start(params models.SearchParameters) (string, error) {
	if params.SearchStarted.IsZero() {
		params.SearchStarted = time.Now()
	}
	ctx, cancel := context.WithCancel(m.rootCtx)
	t := &tracked{
		id:      uuid.NewString(),
		params:  params,
		started: params.SearchStarted,
		cancel:  cancel,
		done:    make(chan struct{}),
		state:   StateInit,
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		return "", ErrShuttingDown
	}
	if m.config.MaxSessions > 0 && m.running >= m.config.MaxSessions {
		m.mu.Unlock()
		cancel()
		return "", ErrTooManySessions
	}
	m.searches[t.id] = t
	m.running++
	m.wg.Add(1)
	m.mu.Unlock()

	m.persist("save_search", func(ctx context.Context) error {
		return m.recorder.SaveSearch(ctx, t.id, params, t.started)
	})

	go m.run(ctx, t)

	logging.LogOperation(m.logger, "search_launched",
		slog.String("search_id", t.id),
		slog.String("start", params.StartStation),
		slog.String("final", params.FinalStation))
	return t.id, nil
}

func (m *Manager) run(ctx context.Context, t *tracked) {
	defer m.wg.Done()
	defer t.cancel()
	defer func() {
		m.mu.Lock()
		m.running--
		m.mu.Unlock()
		close(t.done)
	}()

	logger := m.logger.With(slog.String("search_id", t.id))

	client, err := m.factory(ctx)
	if err != nil {
		logging.LogError(logger, "failed to create page client", err)
		t.mu.Lock()
		t.statuses = append(t.statuses, fmt.Sprintf("%s could not start browser: %v", ErrorSignature, err))
		t.mu.Unlock()
		m.finish(t, StateFailed)
		return
	}

	seq := 0
	sinks := Sinks{
		Results: ResultFunc(func(conn models.Connection) {
			t.mu.Lock()
			t.connections = append(t.connections, conn)
			t.mu.Unlock()
			n := seq
			seq++
			m.persist("append_connection", func(ctx context.Context) error {
				return m.recorder.AppendConnection(ctx, t.id, n, conn)
			})
		}),
		Status: StatusFunc(func(message string) {
			t.mu.Lock()
			t.statuses = append(t.statuses, message)
			t.mu.Unlock()
		}),
	}

	s := New(client, t.params, sinks, m.config.Options, logger)
	t.mu.Lock()
	t.session = s
	t.mu.Unlock()

	if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Debug("search ended with error", slog.String("error", err.Error()))
	}
	m.finish(t, s.State())
}

func (m *Manager) finish(t *tracked, state State) {
	now := time.Now()
	t.mu.Lock()
	t.state = state
	t.finished = &now
	status := ""
	if len(t.statuses) > 0 {
		status = t.statuses[len(t.statuses)-1]
	}
	t.mu.Unlock()

	m.persist("finish_search", func(ctx context.Context) error {
		return m.recorder.FinishSearch(ctx, t.id, state.String(), status, now)
	})
}

// persist runs a history write detached from the search's context, so a
// cancelled search still records what it found.
func (m *Manager) persist(operation string, write func(ctx context.Context) error) {
	if m.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.config.WriteTimeout)
	defer cancel()
	if err := write(ctx); err != nil {
		logging.LogError(m.logger, "failed to persist search", err, slog.String("operation", operation))
	}
}

func (m *Manager) lookup(id string) (*tracked, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.searches[id]
	return t, ok
}

func (m *Manager) Snapshot(id string) (Snapshot, error) {
	t, ok := m.lookup(id)
	if !ok {
		return Snapshot{}, ErrUnknownSession
	}
	return t.snapshot(), nil
}

// List returns snapshots of all known searches, newest first.
func (m *Manager) List() []Snapshot {
	m.mu.RLock()
	all := make([]*tracked, 0, len(m.searches))
	for _, t := range m.searches {
		all = append(all, t)
	}
	m.mu.RUnlock()

	snaps := make([]Snapshot, 0, len(all))
	for _, t := range all {
		snaps = append(snaps, t.snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool {
		if snaps[i].StartedAt.Equal(snaps[j].StartedAt) {
			return strings.Compare(snaps[i].ID, snaps[j].ID) < 0
		}
		return snaps[i].StartedAt.After(snaps[j].StartedAt)
	})
	return snaps
}

// Cancel requests cooperative cancellation of a search.
func (m *Manager) Cancel(id string) error {
	t, ok := m.lookup(id)
	if !ok {
		return ErrUnknownSession
	}
	t.cancel()
	return nil
}

// Done returns a channel closed when the search has terminated.
func (m *Manager) Done(id string) (<-chan struct{}, error) {
	t, ok := m.lookup(id)
	if !ok {
		return nil, ErrUnknownSession
	}
	return t.done, nil
}

// Forget drops a terminated search from memory.
func (m *Manager) Forget(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.searches[id]
	if !ok {
		return ErrUnknownSession
	}
	select {
	case <-t.done:
		delete(m.searches, id)
		return nil
	default:
		return fmt.Errorf("search %s is still running", id)
	}
}

// Running returns the number of searches that have not terminated.
func (m *Manager) Running() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// Shutdown cancels every search and waits for their teardown.
func (m *Manager) Shutdown() {
	m.shutdownOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()
		close(m.shutdownChan)
		m.rootCancel()
		m.wg.Wait()
		logging.LogOperation(m.logger, "session_manager_stopped")
	})
}

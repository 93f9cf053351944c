package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const DefaultShutdownTimeout = 5 * time.Second

var (
	// ErrNoListeners is returned by Run when nothing was configured or started.
	ErrNoListeners = errors.New("no listeners to run")

	// ErrAlreadyStarted is returned by every Run call after the first.
	ErrAlreadyStarted = errors.New("transport manager already started")
)

type State int

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Listener is a long-running task serving the tool transport. Start prepares
// it (binding, authenticating) and Run serves until its context is cancelled.
type Listener interface {
	Name() string
	Start(ctx context.Context) error
	Run(ctx context.Context) error
}

type completion struct {
	name string
	err  error
}

// Manager runs the pipe and stream listeners and tears both down when either
// stops or the parent context is cancelled.
type Manager struct {
	pipe            Listener
	stream          Listener
	streamRequired  bool
	shutdownTimeout time.Duration

	mu         sync.Mutex
	state      State
	cancel     context.CancelFunc
	cancelOnce sync.Once
}

// ManagerOption defines a function type to modify the Manager instance.
type ManagerOption func(*Manager)

// WithPipe sets the pipe listener. Its failure to start is always fatal.
func WithPipe(l Listener) ManagerOption {
	return func(m *Manager) {
		m.pipe = l
	}
}

// WithStream sets the push-stream listener. Its failure to start is fatal
// only when required is set.
func WithStream(l Listener, required bool) ManagerOption {
	return func(m *Manager) {
		m.stream = l
		m.streamRequired = required
	}
}

func WithShutdownTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.shutdownTimeout = d
		}
	}
}

func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		shutdownTimeout: DefaultShutdownTimeout,
		state:           StateIdle,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	previous := m.state
	m.state = s
	m.mu.Unlock()
	log.Debug().Str("from", previous.String()).Str("to", s.String()).Msg("Transport state changed")
}

// Shutdown broadcasts cancellation to every running listener. Calling it more
// than once, or before Run, is safe.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	m.cancelOnce.Do(cancel)
}

// Run starts the configured listeners and blocks until they have stopped.
// Cancelling ctx is the external shutdown signal. The first listener error is
// returned; a listener that stops cleanly still shuts the others down.
func (m *Manager) Run(ctx context.Context) error {
	taskCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	if m.state != StateIdle {
		state := m.state
		m.mu.Unlock()
		cancel()
		return fmt.Errorf("%w: %s", ErrAlreadyStarted, state)
	}
	m.state = StateStarting
	m.cancel = cancel
	m.mu.Unlock()
	log.Debug().Str("from", StateIdle.String()).Str("to", StateStarting.String()).Msg("Transport state changed")
	defer m.Shutdown()

	listeners, err := m.start(taskCtx)
	if err != nil {
		m.setState(StateStopped)
		return err
	}

	results := make(chan completion, len(listeners))
	for _, l := range listeners {
		go func(l Listener) {
			results <- completion{name: l.Name(), err: l.Run(taskCtx)}
		}(l)
	}
	m.setState(StateRunning)
	log.Info().Int("listeners", len(listeners)).Msg("Transport running")

	var firstErr error
	pending := len(listeners)
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case done := <-results:
		pending--
		logCompletion(done)
		firstErr = done.err
		log.Warn().Str("listener", done.name).Msg("Listener stopped, shutting down remaining listeners")
	}

	m.setState(StateShuttingDown)
	m.Shutdown()

	timeout := time.NewTimer(m.shutdownTimeout)
	defer timeout.Stop()
	for pending > 0 {
		select {
		case done := <-results:
			pending--
			logCompletion(done)
			if firstErr == nil {
				firstErr = done.err
			}
		case <-timeout.C:
			log.Warn().Int("pending", pending).Dur("timeout", m.shutdownTimeout).Msg("Listeners did not stop before shutdown timeout")
			pending = 0
		}
	}

	m.setState(StateStopped)
	return firstErr
}

func (m *Manager) start(ctx context.Context) ([]Listener, error) {
	var listeners []Listener
	if m.pipe != nil {
		if err := m.pipe.Start(ctx); err != nil {
			log.Err(err).Str("listener", m.pipe.Name()).Msg("Pipe listener failed to start")
			return nil, fmt.Errorf("%s listener: %w", m.pipe.Name(), err)
		}
		listeners = append(listeners, m.pipe)
	}
	if m.stream != nil {
		if err := m.stream.Start(ctx); err != nil {
			if m.streamRequired {
				log.Err(err).Str("listener", m.stream.Name()).Msg("Required stream listener failed to start")
				return nil, fmt.Errorf("%s listener: %w", m.stream.Name(), err)
			}
			log.Warn().Err(err).Str("listener", m.stream.Name()).Msg("Stream listener failed to start, continuing without it")
		} else {
			listeners = append(listeners, m.stream)
		}
	}
	if len(listeners) == 0 {
		return nil, ErrNoListeners
	}
	return listeners, nil
}

func logCompletion(c completion) {
	if c.err != nil {
		log.Err(c.err).Str("listener", c.name).Msg("Listener stopped with error")
		return
	}
	log.Info().Str("listener", c.name).Msg("Listener stopped")
}

package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-task-auth/auth"
	"github.com/rs/zerolog/log"
)

const (
	SSEPath     = "/sse"
	MessagePath = "/message"

	sseQueueSize = 16
)

type sseConn struct {
	conn     *Conn
	messages chan []byte
	closed   chan struct{}
}

// SSEListener serves the tool protocol as a server-sent event stream with
// requests posted back to a per-stream message endpoint.
type SSEListener struct {
	addr     string
	gate     *Gate
	service  *Service
	listener net.Listener
	server   *http.Server

	webGate   *auth.Gate
	handshake *Handshake

	mu    sync.RWMutex
	conns map[string]*sseConn
}

// SSEOption defines a function type to modify the SSEListener instance.
type SSEOption func(*SSEListener)

// WithTokenEndpoint serves the tool handshake at TokenPath on the listener's
// own port, behind webGate. Tokens issued there land in the same ephemeral
// table the listener's gate reads.
func WithTokenEndpoint(webGate *auth.Gate, handshake *Handshake) SSEOption {
	return func(l *SSEListener) {
		l.webGate = webGate
		l.handshake = handshake
	}
}

func NewSSEListener(addr string, gate *Gate, service *Service, opts ...SSEOption) *SSEListener {
	l := &SSEListener{
		addr:    addr,
		gate:    gate,
		service: service,
		conns:   make(map[string]*sseConn),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *SSEListener) Name() string {
	return "sse"
}

// Addr is the bound address once Start has succeeded.
func (l *SSEListener) Addr() string {
	if l.listener == nil {
		return l.addr
	}
	return l.listener.Addr().String()
}

// Handler exposes the routes for mounting or testing.
func (l *SSEListener) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+SSEPath, l.gate.RequireToolAuth(l.handleStream))
	mux.HandleFunc("POST "+MessagePath, l.gate.RequireToolAuth(l.handleMessage))
	if l.handshake != nil {
		mux.HandleFunc("POST "+TokenPath, l.webGate.RequireAuth(l.handshake.IssueHandler()))
	}
	return mux
}

// Start binds the listening socket so a bind failure is reported before Run.
func (l *SSEListener) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("sse bind %s: %w", l.addr, err)
	}
	l.listener = ln
	return nil
}

// Run serves until ctx is done. Open streams observe the cancellation
// through their request context.
func (l *SSEListener) Run(ctx context.Context) error {
	if l.listener == nil {
		return errors.New("sse listener not started")
	}
	l.server = &http.Server{
		Handler:           l.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	log.Info().Str("addr", l.Addr()).Msg("SSE listener serving")

	served := make(chan error, 1)
	go func() {
		served <- l.server.Serve(l.listener)
	}()

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := l.server.Shutdown(shutdownCtx); err != nil {
			_ = l.server.Close()
			return fmt.Errorf("sse shutdown: %w", err)
		}
		return nil
	}
}

func (l *SSEListener) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		auth.WriteJSONError(w, http.StatusInternalServerError, auth.ErrorServer, "Streaming unsupported")
		return
	}
	identity, _ := auth.IdentityFromContext(r.Context())

	id := uuid.NewString()
	stream := &sseConn{conn: l.service.NewConn(identity), messages: make(chan []byte, sseQueueSize), closed: make(chan struct{})}
	l.mu.Lock()
	l.conns[id] = stream
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		delete(l.conns, id)
		l.mu.Unlock()
		close(stream.closed)
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "event: endpoint\ndata: %s?session_id=%s\n\n", MessagePath, id)
	flusher.Flush()
	log.Debug().Str("stream_id", id).Str("user_id", identity.User.ID.String()).Msg("SSE stream opened")

	for {
		select {
		case <-r.Context().Done():
			log.Debug().Str("stream_id", id).Msg("SSE stream closed")
			return
		case msg := <-stream.messages:
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func (l *SSEListener) handleMessage(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	l.mu.RLock()
	stream, ok := l.conns[r.URL.Query().Get("session_id")]
	l.mu.RUnlock()
	if !ok {
		auth.WriteJSONError(w, http.StatusNotFound, auth.ErrorNotFound, "Unknown stream")
		return
	}
	if stream.conn.Identity().User.ID != identity.User.ID {
		auth.WriteJSONError(w, http.StatusForbidden, auth.ErrorForbidden, "Stream belongs to another user")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageSize))
	if err != nil {
		auth.WriteJSONError(w, http.StatusBadRequest, auth.ErrorInvalidRequest, "Unreadable body")
		return
	}
	resp := stream.conn.Handle(r.Context(), body)
	if resp != nil {
		select {
		case stream.messages <- resp:
		case <-stream.closed:
			auth.WriteJSONError(w, http.StatusGone, "stream_closed", "Stream closed")
			return
		case <-r.Context().Done():
			return
		}
	}
	w.WriteHeader(http.StatusAccepted)
}

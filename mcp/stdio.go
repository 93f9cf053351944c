package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
)

// ErrNoToolToken is returned when the stdio listener has no credential to present.
var ErrNoToolToken = errors.New("no tool token configured for stdio")

// StdioListener serves one connection over a pipe, authenticated once with
// the token supplied by the process that launched it.
type StdioListener struct {
	input   io.Reader
	output  io.Writer
	token   string
	gate    *Gate
	service *Service
	conn    *Conn
}

func NewStdioListener(input io.Reader, output io.Writer, token string, gate *Gate, service *Service) *StdioListener {
	return &StdioListener{
		input:   input,
		output:  output,
		token:   token,
		gate:    gate,
		service: service,
	}
}

func (l *StdioListener) Name() string {
	return "stdio"
}

// Start authenticates the configured token through the tool gate.
func (l *StdioListener) Start(ctx context.Context) error {
	if l.token == "" {
		return ErrNoToolToken
	}
	identity, err := l.gate.Authenticate(ctx, l.token)
	if err != nil {
		return fmt.Errorf("stdio authentication: %w", err)
	}
	l.conn = l.service.NewConn(identity)
	log.Info().Str("user_id", identity.User.ID.String()).Str("session_id", identity.Session.ID.String()).Msg("Stdio listener authenticated")
	return nil
}

// Run serves until input closes or ctx is done. A read blocked on the pipe
// is abandoned when ctx is done.
func (l *StdioListener) Run(ctx context.Context) error {
	if l.conn == nil {
		return errors.New("stdio listener not started")
	}
	done := make(chan error, 1)
	go func() {
		done <- l.conn.Serve(ctx, l.input, l.output)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return nil
	}
}

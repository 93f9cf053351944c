package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jrsteele09/go-task-auth/auth"
	"github.com/jrsteele09/go-task-auth/internal/config"
	"github.com/jrsteele09/go-task-auth/internal/logging"
	"github.com/jrsteele09/go-task-auth/internal/storage"
	"github.com/jrsteele09/go-task-auth/mcp"
	"github.com/jrsteele09/go-task-auth/server"
	"github.com/jrsteele09/go-task-auth/sessions"
	"github.com/jrsteele09/go-task-auth/token"
	"github.com/jrsteele09/go-task-auth/transport"
	"github.com/jrsteele09/go-task-auth/vault"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

// Version is overridden at build time with -ldflags "-X main.Version=...".
var Version = "dev"

type flags struct {
	stdio       bool
	sse         bool
	ssePort     int
	sseRequired bool
	token       string
}

func main() {
	var f flags
	pflag.BoolVar(&f.stdio, "stdio", true, "serve tool invocations over stdin/stdout")
	pflag.BoolVar(&f.sse, "sse", true, "serve tool invocations over HTTP server-sent events")
	pflag.IntVar(&f.ssePort, "sse-port", 0, "port for the SSE listener (default from MCP_SSE_PORT)")
	pflag.BoolVar(&f.sseRequired, "sse-required", false, "exit if the SSE listener cannot start")
	pflag.StringVar(&f.token, "token", "", "tool bearer token for the stdio listener (default from MCP_TOKEN)")
	pflag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, f); err != nil {
		log.Error().Err(err).Msg("Tool server exited with error")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, f flags) error {
	c, err := config.Load()
	if err != nil {
		return err
	}
	logging.Configure(c.GetEnv())

	v, err := vault.New(c)
	if err != nil {
		return fmt.Errorf("credential vault: %w", err)
	}
	tokens, err := token.NewManager(c.GetSigningSecret())
	if err != nil {
		return fmt.Errorf("token manager: %w", err)
	}

	stores, err := storage.Open(ctx, c)
	if err != nil {
		return err
	}
	defer func() {
		if err := stores.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close stores")
		}
	}()

	ephemeral := mcp.NewEphemeralTokens()
	sweepCtx, cancelSweepers := context.WithCancel(ctx)
	defer cancelSweepers()
	ephemeral.StartSweeper(sweepCtx, c.GetEphemeralSweepInterval())
	sessions.StartExpirySweeper(sweepCtx, stores.Repos.Sessions, c.GetSessionSweepInterval())

	primary := auth.NewGate(tokens, stores.Repos)
	gate := mcp.NewGate(ephemeral, primary, stores.Repos, mcp.WithRichChallenge(c.GetBaseURL()))
	handshake := mcp.NewHandshake(auth.NewService(tokens, stores.Repos), ephemeral)
	service := mcp.NewService(c.GetAppName(), Version, stores.Repos.Users, v)

	var opts []transport.ManagerOption
	if f.stdio {
		bearer, err := stdioToken(ctx, f, c, stores, handshake)
		if err != nil {
			return err
		}
		opts = append(opts, transport.WithPipe(mcp.NewStdioListener(os.Stdin, os.Stdout, bearer, gate, service)))
	}
	if f.sse {
		addr := c.GetSSEAddr()
		if f.ssePort > 0 {
			addr = fmt.Sprintf(":%d", f.ssePort)
		}
		// Tokens minted on the stream port are served from this process's ephemeral table.
		sse := mcp.NewSSEListener(addr, gate, service, mcp.WithTokenEndpoint(primary, handshake))
		opts = append(opts, transport.WithStream(sse, f.sseRequired || c.GetSSERequired()))
	}
	opts = append(opts, transport.WithShutdownTimeout(c.GetShutdownTimeout()))

	err = transport.NewManager(opts...).Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// stdioToken resolves the bearer the stdio listener authenticates with. With
// the in-memory store nothing outside this process can have issued one, so a
// local admin is bootstrapped and handed a fresh tool token.
func stdioToken(ctx context.Context, f flags, c config.Config, stores *storage.Stores, handshake *mcp.Handshake) (string, error) {
	if f.token != "" {
		return f.token, nil
	}
	if bearer := c.GetToolToken(); bearer != "" {
		return bearer, nil
	}
	if c.GetSessionStore() != config.StoreMemory {
		return "", mcp.ErrNoToolToken
	}

	email, _, err := server.BootstrapAdmin(ctx, stores.Repos.Users, c.GetBaseURL(), c.GetAdminEmail())
	if err != nil {
		return "", fmt.Errorf("bootstrap: %w", err)
	}
	admin, err := stores.Repos.Users.GetByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("bootstrap: %w", err)
	}
	clientInfo := "mcp-server/stdio"
	issued, err := handshake.Issue(ctx, admin, &clientInfo)
	if err != nil {
		return "", fmt.Errorf("local tool token: %w", err)
	}
	log.Info().Str("session_id", issued.SessionID.String()).Msg("Issued local tool token")
	return issued.Token, nil
}

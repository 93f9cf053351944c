package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-task-auth/internal/config"
	"github.com/jrsteele09/go-task-auth/internal/logging"
	"github.com/jrsteele09/go-task-auth/internal/storage"
	"github.com/jrsteele09/go-task-auth/server"
	"github.com/jrsteele09/go-task-auth/sessions"
	"github.com/jrsteele09/go-task-auth/token"
	"github.com/jrsteele09/go-task-auth/vault"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.Load()
	if err != nil {
		return err
	}
	logging.Configure(c.GetEnv())
	displayAppname(c.GetAppName())

	v, err := vault.New(c)
	if err != nil {
		return fmt.Errorf("credential vault: %w", err)
	}
	tokens, err := token.NewManager(c.GetSigningSecret())
	if err != nil {
		return fmt.Errorf("token manager: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, err := storage.Open(ctx, c)
	if err != nil {
		return err
	}
	defer func() {
		if err := stores.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close stores")
		}
	}()

	if err := bootstrap(ctx, c, stores); err != nil {
		return err
	}

	sweeperDone := sessions.StartExpirySweeper(ctx, stores.Repos.Sessions, c.GetSessionSweepInterval())

	handler, err := server.New(c, stores.Repos, tokens, v)
	if err != nil {
		return err
	}
	httpServer := &http.Server{Addr: c.GetPort(), Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	serveErr := make(chan error, 1)
	go func() { serveErr <- listenAndServe(httpServer) }()

	select {
	case <-waitForStopSignal():
	case err := <-serveErr:
		returnError = err
	}

	cancel()
	<-sweeperDone
	if err := shutdown(httpServer); err != nil && returnError == nil {
		returnError = err
	}
	return returnError
}

func bootstrap(ctx context.Context, c config.Config, stores *storage.Stores) error {
	email, password, err := server.BootstrapAdmin(ctx, stores.Repos.Users, c.GetBaseURL(), c.GetAdminEmail())
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	if password != "" {
		// Shown once; the account is usable immediately.
		log.Warn().Str("email", email).Str("password", password).Msg("Admin account created, save this password now")
	}
	return nil
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}

package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-task-auth/auth"
	"github.com/jrsteele09/go-task-auth/internal/config"
	"github.com/jrsteele09/go-task-auth/mcp"
	"github.com/jrsteele09/go-task-auth/token"
	"github.com/jrsteele09/go-task-auth/vault"
	"github.com/rs/zerolog/log"
)

type Server struct {
	env       string // Environment (e.g., "DEV", "PROD")
	mux       *http.ServeMux
	routes    []string
	config    config.Config
	repos     auth.Repos
	gate      *auth.Gate
	auth      *auth.Service
	handshake *mcp.Handshake
	vault     *vault.Vault
}

// New wires the HTTP API. Tool tokens issued here carry no ephemeral entry;
// the tool transport accepts them through its signed-token path.
func New(cfg config.Config, repos auth.Repos, tokens *token.Manager, v *vault.Vault) (*Server, error) {
	if repos.Users == nil || repos.Sessions == nil {
		return nil, fmt.Errorf("[Server New] user and session repositories are required")
	}
	if v == nil {
		return nil, fmt.Errorf("[Server New] credential vault is required")
	}
	authService := auth.NewService(tokens, repos)

	s := &Server{
		env:       cfg.GetEnv(),
		mux:       http.NewServeMux(),
		config:    cfg,
		repos:     repos,
		gate:      auth.NewGate(tokens, repos),
		auth:      authService,
		handshake: mcp.NewHandshake(authService, nil),
		vault:     v,
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)
		if len(parts) > 1 {
			log.Debug().Str("method", parts[0]).Str("path", parts[1]).Msg("Route")
		} else {
			log.Debug().Str("path", parts[0]).Msg("Route")
		}
	}
}

package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jrsteele09/go-task-auth/auth"
	"github.com/jrsteele09/go-task-auth/users"
	"github.com/jrsteele09/go-task-auth/vault"
	"github.com/rs/zerolog/log"
)

const maxMessageSize = 1024 * 1024

type toolFunc func(ctx context.Context, identity *auth.Identity, arguments json.RawMessage) (any, error)

type tool struct {
	description string
	inputSchema any
	run         toolFunc
}

// Service answers tool protocol requests. One Service is shared by every
// listener; per-connection state lives in Conn.
type Service struct {
	name    string
	version string
	users   users.UserRepo
	vault   *vault.Vault
	tools   map[string]tool
	order   []string
}

func NewService(name, version string, userRepo users.UserRepo, v *vault.Vault) *Service {
	s := &Service{
		name:    name,
		version: version,
		users:   userRepo,
		vault:   v,
		tools:   make(map[string]tool),
	}
	emptySchema := map[string]any{"type": "object", "properties": map[string]any{}}
	s.register("whoami", "Returns the authenticated user and tool session", emptySchema, s.whoami)
	s.register("credential_status", "Reports whether a third-party credential is configured for the user", emptySchema, s.credentialStatus)
	return s
}

func (s *Service) register(name, description string, inputSchema any, run toolFunc) {
	s.tools[name] = tool{description: description, inputSchema: inputSchema, run: run}
	s.order = append(s.order, name)
}

// Conn is one authenticated protocol connection.
type Conn struct {
	service     *Service
	identity    *auth.Identity
	mu          sync.Mutex
	initialized bool
}

func (s *Service) NewConn(identity *auth.Identity) *Conn {
	return &Conn{service: s, identity: identity}
}

func (c *Conn) Identity() *auth.Identity {
	return c.identity
}

// Handle processes one JSON-RPC message and returns the encoded response, or
// nil when the message is a notification.
func (c *Conn) Handle(ctx context.Context, line []byte) []byte {
	var req request
	if err := json.Unmarshal(line, &req); err != nil {
		return encodeError(json.RawMessage("null"), codeParseError, "parse error: "+err.Error())
	}
	if req.JSONRPC != "2.0" {
		if req.isNotification() {
			return nil
		}
		return encodeError(req.ID, codeInvalidRequest, "unsupported JSON-RPC version")
	}
	if req.isNotification() {
		return nil
	}
	return c.dispatch(ctx, &req)
}

func (c *Conn) dispatch(ctx context.Context, req *request) []byte {
	switch req.Method {
	case "initialize":
		return c.handleInitialize(req)
	case "ping":
		return encodeResult(req.ID, map[string]any{})
	case "tools/list":
		if !c.isInitialized() {
			return encodeError(req.ID, codeInvalidRequest, "server not initialized (call initialize first)")
		}
		return c.handleToolsList(req)
	case "tools/call":
		if !c.isInitialized() {
			return encodeError(req.ID, codeInvalidRequest, "server not initialized (call initialize first)")
		}
		return c.handleToolsCall(ctx, req)
	default:
		return encodeError(req.ID, codeMethodNotFound, "unknown method: "+req.Method)
	}
}

func (c *Conn) isInitialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

func (c *Conn) handleInitialize(req *request) []byte {
	if len(req.Params) == 0 {
		return encodeError(req.ID, codeInvalidParams, "params required for initialize")
	}
	var params initializeParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return encodeError(req.ID, codeInvalidParams, "invalid initialize params: "+err.Error())
	}

	c.mu.Lock()
	c.initialized = true
	c.mu.Unlock()
	log.Debug().Str("client", params.ClientInfo.Name).Str("client_version", params.ClientInfo.Version).Str("session_id", c.identity.Session.ID.String()).Msg("Tool client initialized")

	return encodeResult(req.ID, initializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    serverCapabilities{Tools: &toolCapability{}},
		ServerInfo:      serverInfo{Name: c.service.name, Version: c.service.version},
	})
}

func (c *Conn) handleToolsList(req *request) []byte {
	descriptions := make([]toolDescription, 0, len(c.service.order))
	for _, name := range c.service.order {
		t := c.service.tools[name]
		descriptions = append(descriptions, toolDescription{Name: name, Description: t.description, InputSchema: t.inputSchema})
	}
	return encodeResult(req.ID, toolsListResult{Tools: descriptions})
}

func (c *Conn) handleToolsCall(ctx context.Context, req *request) []byte {
	if len(req.Params) == 0 {
		return encodeError(req.ID, codeInvalidParams, "params required for tools/call")
	}
	var params toolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return encodeError(req.ID, codeInvalidParams, "invalid tools/call params: "+err.Error())
	}
	t, ok := c.service.tools[params.Name]
	if !ok {
		return encodeError(req.ID, codeInvalidParams, "unknown tool: "+params.Name)
	}

	output, err := t.run(ctx, c.identity, params.Arguments)
	if err != nil {
		log.Warn().Err(err).Str("tool", params.Name).Str("user_id", c.identity.User.ID.String()).Msg("Tool call failed")
		return encodeResult(req.ID, toolsCallResult{
			Content: []contentBlock{{Type: "text", Text: err.Error()}},
			IsError: true,
		})
	}
	text, err := json.Marshal(output)
	if err != nil {
		return encodeError(req.ID, codeInternalError, "failed to encode tool output")
	}
	return encodeResult(req.ID, toolsCallResult{
		Content:           []contentBlock{{Type: "text", Text: string(text)}},
		StructuredContent: output,
	})
}

// Serve reads newline-delimited requests from input and writes responses to
// output until input ends or ctx is done. An oversized request is answered
// with a parse error and the connection keeps reading.
func (c *Conn) Serve(ctx context.Context, input io.Reader, output io.Writer) error {
	reader := bufio.NewReaderSize(input, 64*1024)

	for {
		line, err := readMessage(reader)
		if ctx.Err() != nil {
			return nil
		}

		var resp []byte
		switch {
		case errors.Is(err, errMessageTooLarge):
			log.Warn().Int("limit", maxMessageSize).Msg("Discarded oversized tool request")
			resp = encodeError(json.RawMessage("null"), codeParseError, fmt.Sprintf("parse error: message exceeds %d bytes", maxMessageSize))
		case err != nil && !errors.Is(err, io.EOF):
			return fmt.Errorf("reading request: %w", err)
		case len(line) > 0:
			resp = c.Handle(ctx, line)
		}

		if resp != nil {
			if _, werr := output.Write(append(resp, '\n')); werr != nil {
				return fmt.Errorf("writing response: %w", werr)
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
	}
}

var errMessageTooLarge = errors.New("message too large")

// readMessage returns the next line without its terminator. A line longer
// than maxMessageSize is consumed in full and reported as errMessageTooLarge.
func readMessage(r *bufio.Reader) ([]byte, error) {
	var (
		line    []byte
		tooLong bool
	)
	for {
		chunk, err := r.ReadSlice('\n')
		if !tooLong {
			line = append(line, chunk...)
			if len(bytes.TrimRight(line, "\r\n")) > maxMessageSize {
				tooLong = true
				line = nil
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if tooLong {
			if err != nil && !errors.Is(err, io.EOF) {
				return nil, err
			}
			return nil, errMessageTooLarge
		}
		return bytes.TrimRight(line, "\r\n"), err
	}
}

type whoamiResult struct {
	UserID           string    `json:"user_id"`
	Email            string    `json:"email"`
	DisplayName      string    `json:"display_name,omitempty"`
	SessionID        string    `json:"session_id"`
	SessionType      string    `json:"session_type"`
	SessionExpiresAt time.Time `json:"session_expires_at"`
}

func (s *Service) whoami(_ context.Context, identity *auth.Identity, _ json.RawMessage) (any, error) {
	return whoamiResult{
		UserID:           identity.User.ID.String(),
		Email:            identity.User.Email,
		DisplayName:      identity.User.DisplayName,
		SessionID:        identity.Session.ID.String(),
		SessionType:      string(identity.Session.Kind),
		SessionExpiresAt: identity.Session.ExpiresAt,
	}, nil
}

func (s *Service) credentialStatus(ctx context.Context, identity *auth.Identity, _ json.RawMessage) (any, error) {
	user, err := s.users.GetByID(ctx, identity.User.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	status, err := users.InspectCredential(s.vault, user.EncryptedCredential, NowTimeFunc())
	if err != nil {
		log.Err(err).Str("user_id", user.ID.String()).Msg("Stored credential could not be decrypted")
		return nil, errors.New("stored credential could not be decrypted")
	}
	return status, nil
}

package config

import (
	"fmt"
	"time"
)

const (
	DefaultSSEPort         = 8765
	DefaultShutdownTimeout = 5 * time.Second
)

type TransportConfig interface {
	GetSSERequired() bool
	GetSSEAddr() string
	GetShutdownTimeout() time.Duration
	GetToolToken() string
}

// Transport configures the tool-invocation listeners.
type Transport struct {
	SSERequired     bool
	SSEPort         int
	ShutdownTimeout time.Duration
	ToolToken       string
}

var _ TransportConfig = Transport{}

func loadTransport() Transport {
	return Transport{
		SSERequired:     getBoolEnv("MCP_SSE_REQUIRED", false),
		SSEPort:         getIntEnv("MCP_SSE_PORT", DefaultSSEPort),
		ShutdownTimeout: getDurationEnv("MCP_SHUTDOWN_TIMEOUT", DefaultShutdownTimeout),
		ToolToken:       GetEnv("MCP_TOKEN", ""),
	}
}

func (t Transport) GetSSERequired() bool {
	return t.SSERequired
}

func (t Transport) GetSSEAddr() string {
	port := t.SSEPort
	if port <= 0 {
		port = DefaultSSEPort
	}
	return fmt.Sprintf(":%d", port)
}

func (t Transport) GetShutdownTimeout() time.Duration {
	if t.ShutdownTimeout <= 0 {
		return DefaultShutdownTimeout
	}
	return t.ShutdownTimeout
}

// GetToolToken returns the bearer presented by the stdio listener on behalf
// of the local agent that launched the process.
func (t Transport) GetToolToken() string {
	return t.ToolToken
}

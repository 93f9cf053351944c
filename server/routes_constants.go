package server

import "github.com/jrsteele09/go-task-auth/mcp"

// Route path constants
const (
	// Session routes
	RouteLogin  = mcp.AuthorizePath
	RouteLogout = "/api/logout"
	RouteMe     = "/api/me"

	// Third-party credential routes
	RouteCredentials      = "/api/credentials"
	RouteCredentialStatus = "/api/credentials/status"

	// Tool transport routes
	RouteToolToken         = mcp.TokenPath
	RouteProtectedResource = mcp.WellKnownPath

	RouteHealth = "/healthz"
)

package mcp

import (
	"fmt"
	"net/http"

	"github.com/jrsteele09/go-task-auth/auth"
)

const (
	// Realm is advertised in every WWW-Authenticate challenge.
	Realm = "MCP"

	// WellKnownPath serves the protected-resource metadata document.
	WellKnownPath = "/.well-known/oauth-protected-resource"

	// AuthorizePath and TokenPath are the endpoints a client uses to obtain a tool token.
	AuthorizePath = "/api/login"
	TokenPath     = "/api/mcp/token"
)

// ProtectedResourceMetadata describes how to obtain credentials for the tool transport.
type ProtectedResourceMetadata struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers"`
	BearerMethodsSupported []string `json:"bearer_methods_supported"`
	AuthorizationURI       string   `json:"authorization_uri"`
	TokenURI               string   `json:"token_uri"`
}

func NewProtectedResourceMetadata(baseURL string) ProtectedResourceMetadata {
	return ProtectedResourceMetadata{
		Resource:               baseURL,
		AuthorizationServers:   []string{baseURL},
		BearerMethodsSupported: []string{"header"},
		AuthorizationURI:       baseURL + AuthorizePath,
		TokenURI:               baseURL + TokenPath,
	}
}

type richChallengeBody struct {
	Error            auth.ErrorCode `json:"error"`
	ErrorDescription string         `json:"error_description"`
	AuthorizationURI string         `json:"authorization_uri"`
	TokenURI         string         `json:"token_uri"`
	ResourceMetadata string         `json:"resource_metadata"`
}

// WriteChallenge writes the standard 401 invalid_token challenge.
func WriteChallenge(w http.ResponseWriter, description string) {
	w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Bearer realm=%q, error="invalid_token"`, Realm))
	auth.WriteJSONError(w, http.StatusUnauthorized, auth.ErrorInvalidToken, description)
}

// WriteRichChallenge writes a 401 that also points interactive clients at the
// authorization and token endpoints and the metadata document under baseURL.
func WriteRichChallenge(w http.ResponseWriter, baseURL, description string) {
	meta := NewProtectedResourceMetadata(baseURL)
	metadataURL := baseURL + WellKnownPath
	w.Header().Set("WWW-Authenticate", fmt.Sprintf(
		`Bearer realm=%q, error="insufficient_scope", authorization_uri=%q, token_uri=%q, resource_metadata=%q`,
		Realm, meta.AuthorizationURI, meta.TokenURI, metadataURL))
	auth.WriteJSON(w, http.StatusUnauthorized, richChallengeBody{
		Error:            auth.ErrorInsufficientScope,
		ErrorDescription: description,
		AuthorizationURI: meta.AuthorizationURI,
		TokenURI:         meta.TokenURI,
		ResourceMetadata: metadataURL,
	})
}

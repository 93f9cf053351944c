package server

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())
	s.RegisterRouteHandler("GET "+RouteProtectedResource, ChainMiddleware(s.ProtectedResourceHandler(), s.APIMiddleware()...))

	// Sessions
	s.RegisterRouteHandler("POST "+RouteLogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware(s.gate.RequireAuth)...))
	s.RegisterRouteHandler("GET "+RouteMe, ChainMiddleware(s.MeHandler(), s.APIMiddleware(s.gate.RequireAuth)...))

	// Third-party credential
	s.RegisterRouteHandler("PUT "+RouteCredentials, ChainMiddleware(s.PutCredentialHandler(), s.APIMiddleware(s.gate.RequireAuth)...))
	s.RegisterRouteHandler("DELETE "+RouteCredentials, ChainMiddleware(s.DeleteCredentialHandler(), s.APIMiddleware(s.gate.RequireAuth)...))
	s.RegisterRouteHandler("GET "+RouteCredentialStatus, ChainMiddleware(s.CredentialStatusHandler(), s.APIMiddleware(s.gate.RequireAuth)...))

	// Tool transport handshake
	s.RegisterRouteHandler("POST "+RouteToolToken, ChainMiddleware(s.ToolTokenHandler(), s.APIMiddleware(s.gate.RequireAuth)...))
}

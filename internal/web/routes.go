package web

import (
	"net/http"
)

func (c *WebController) RegisterRoutes(mux *http.ServeMux) {
	// Public routes
	mux.HandleFunc("POST /api/login", c.loginSubmitHandler)

	// Protected routes
	mux.HandleFunc("POST /api/logout", c.RequireAuth(c.logoutHandler))
	mux.HandleFunc("GET /api/me", c.RequireAuth(c.meHandler))
}

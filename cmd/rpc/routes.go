package rpc

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
)

// Query RPC Paths
const (
	StatusRoutePath = "/v1/status"
	TxRoutePath     = "/v1/tx/:hash"
	HealthRoutePath = "/v1/health"
)

// createRouter initializes and returns a new HTTP router with predefined route handlers.
func createRouter(s *Server) *httprouter.Router {
	routes := map[string]handler{
		StatusRoutePath: s.Status,
		TxRoutePath:     s.Transaction,
		HealthRoutePath: s.Health,
	}
	router := httprouter.New()
	for path, h := range routes {
		router.Handle(http.MethodGet, path, h)
	}
	return router
}

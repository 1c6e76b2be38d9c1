package rest

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fortuna/janus/internal/franchise"
	"github.com/fortuna/janus/internal/resolution"
	"github.com/fortuna/janus/internal/store"
	"github.com/gorilla/mux"
)

// Server represents the REST API server
type Server struct {
	port    string
	server  *http.Server
	handler *Handler
}

// NewServer creates a new REST API server
func NewServer(port string, db *store.Database, franchises *franchise.Index, resolutionSvc *resolution.Service) *Server {
	handler := NewHandler(db, franchises)
	runHandler := NewRunHandler(resolutionSvc)

	router := mux.NewRouter()

	// Apply middleware
	router.Use(RecoveryMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(CORSMiddleware)

	// Health check
	router.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	// API v1 routes
	api := router.PathPrefix("/api/v1").Subrouter()

	// Resolution runs
	api.HandleFunc("/resolution", runHandler.HandleRunRequest).Methods("POST")
	api.HandleFunc("/resolution/status", runHandler.HandleRunStatus).Methods("GET")
	api.HandleFunc("/resolution/runs/{runID}", runHandler.HandleGetRun).Methods("GET")
	api.HandleFunc("/resolution/runs/{runID}/applied", runHandler.HandleAppliedReport).Methods("GET")
	api.HandleFunc("/resolution/runs/{runID}/unresolved", runHandler.HandleUnresolvedReport).Methods("GET")

	// Fact-table inspection
	api.HandleFunc("/facts/seasons", handler.GetFactSeasons).Methods("GET")
	api.HandleFunc("/facts/groups", handler.GetUnresolvedGroups).Methods("GET")

	// Identity records
	api.HandleFunc("/players/{playerID}", handler.GetPlayer).Methods("GET")

	// Franchises
	api.HandleFunc("/franchises", handler.GetFranchises).Methods("GET")
	api.HandleFunc("/franchises/resolve", handler.ResolveFranchise).Methods("GET")
	api.HandleFunc("/franchises/family", handler.GetTeamFamily).Methods("GET")

	// Override evidence
	api.HandleFunc("/evidence/verify", handler.VerifyEvidence).Methods("GET")

	return &Server{
		port:    port,
		handler: handler,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%s", port),
			Handler: router,
		},
	}
}

// Start starts the REST API server
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

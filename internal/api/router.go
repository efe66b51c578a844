package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/balkashynov/qcscan/internal/app"
	"github.com/balkashynov/qcscan/internal/logging"
)

// Server exposes the session and scan operations over HTTP
type Server struct {
	app    *app.App
	logger zerolog.Logger
}

// NewServer creates an API server over a wired application
func NewServer(a *app.App) *Server {
	return &Server{
		app:    a,
		logger: logging.Component(a.Logger, "api"),
	}
}

// NewRouter builds the route table
func (s *Server) NewRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/health", s.HealthHandler).Methods("GET")
	r.Handle("/metrics", s.app.Metrics.Handler()).Methods("GET")

	r.HandleFunc("/sessions", s.CreateSessionHandler).Methods("POST")
	r.HandleFunc("/sessions/login", s.LoginHandler).Methods("POST")
	r.HandleFunc("/sessions/{id}", s.GetSessionHandler).Methods("GET")
	r.HandleFunc("/sessions/{id}/restart", s.RestartSessionHandler).Methods("POST")
	r.HandleFunc("/sessions/{id}/end", s.EndSessionHandler).Methods("POST")
	r.HandleFunc("/sessions/{id}/scans", s.SubmitScanHandler).Methods("POST")
	r.HandleFunc("/sessions/{id}/items", s.ListItemsHandler).Methods("GET")

	r.HandleFunc("/items/{id}/abort", s.AbortItemHandler).Methods("POST")
	r.HandleFunc("/items/{id}/quality", s.QualityHandler).Methods("POST")
	r.HandleFunc("/items/{id}/audit", s.AuditHandler).Methods("GET")

	return r
}

// NewHTTPServer returns an http.Server for addr
func (s *Server) NewHTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.NewRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}

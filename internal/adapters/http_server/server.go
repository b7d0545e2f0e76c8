package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"service_locator/internal/domain"
)

type Server struct{ mux *chi.Mux }

// New builds the router. timeout bounds a whole request and should exceed the
// aggregation budget so searches report their own timeout. ident, when set,
// tags access log lines with the signed-in account.
func New(timeout time.Duration, ident domain.IdentityProvider) *Server {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	m := chi.NewRouter()

	// middlewares first, routes after
	m.Use(chimw.RealIP)
	m.Use(chimw.RequestID)
	m.Use(chimw.Recoverer)
	m.Use(Timeout(timeout))
	m.Use(Instrument(log.Logger, ident))

	return &Server{mux: m}
}

func (s *Server) Mux() http.Handler { return s.mux }

// Mount attaches any extra handler (e.g., /metrics) to the router.
func (s *Server) Mount(path string, h http.Handler) {
	s.mux.Handle(path, h)
}

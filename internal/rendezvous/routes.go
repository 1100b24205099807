package rendezvous

import (
	"net/http"

	"github.com/SpatiumPortae/stardrop/internal/conn"
	"github.com/SpatiumPortae/stardrop/internal/logger"
)

func (s *Server) routes() {
	s.router.Use(logger.Middleware(s.logger))
	s.router.HandleFunc("/ping", s.ping()).Methods(http.MethodGet)
	s.router.HandleFunc("/version", s.handleVersion()).Methods(http.MethodGet)
	s.router.Handle("/signal", conn.Middleware()(s.handleSignal()))
}
